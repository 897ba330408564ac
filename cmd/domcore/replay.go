package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/vango-dev/domcore/internal/ref"
	"github.com/vango-dev/domcore/internal/script"
	"github.com/vango-dev/domcore/pkg/dom"
	"github.com/vango-dev/domcore/pkg/render"
)

func replayCmd(configPath *string) *cobra.Command {
	var (
		showOps      bool
		showSnapshot bool
	)

	cmd := &cobra.Command{
		Use:   "replay <script.yaml>",
		Short: "Replay a batch script against a fresh manager",
		Long: `Replay a YAML batch script against a fresh manager and print what the
render layer received.

Examples:
  domcore replay counter.yaml
  domcore replay counter.yaml --ops
  domcore replay counter.yaml --snapshot > tree.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			s, err := script.Load(args[0])
			if err != nil {
				return err
			}

			a := newApp(cfg, cmd.ErrOrStderr())
			defer a.closeAll()

			run, err := replay(cmd.Context(), a, s)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if showSnapshot {
				snap, err := run.manager.Snapshot(cmd.Context())
				if err != nil {
					return err
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}
			printReplay(out, s, run, showOps)
			return nil
		},
	}

	cmd.Flags().BoolVar(&showOps, "ops", false, "Print every render operation")
	cmd.Flags().BoolVar(&showSnapshot, "snapshot", false, "Print the final tree as JSON instead of a summary")
	return cmd
}

type replayRun struct {
	manager  *dom.Manager
	recorder *render.Recorder
	result   *script.Result
}

// replay runs s on a new manager with a recording render layer. Calls made
// by the script echo their argument.
func replay(ctx context.Context, a *app, s *script.Script) (*replayRun, error) {
	m, err := a.newManager()
	if err != nil {
		return nil, err
	}
	rec := render.NewRecorder(func(nodeID uint32, name string, arg any) (any, error) {
		return arg, nil
	})
	m.SetRenderManager(ref.New[dom.RenderManager](rec))

	res, err := script.Apply(ctx, m, s)
	if err != nil {
		return nil, err
	}
	return &replayRun{manager: m, recorder: rec, result: res}, nil
}

func printReplay(w io.Writer, s *script.Script, run *replayRun, showOps bool) {
	name := s.Name
	if name == "" {
		name = "script"
	}
	res := run.result
	success(w, "%s: %d batches, %d steps replayed", name, res.Batches, res.Steps)

	for _, b := range run.recorder.Batches() {
		info(w, "render batch %d: %d ops", b.Seq, len(b.Ops))
		if !showOps {
			continue
		}
		for _, op := range b.Ops {
			info(w, "  %-20s id=%d pid=%d index=%d tag=%s event=%s", op.Op, op.ID, op.PID, op.Index, op.Tag, op.Event)
		}
	}
	for _, ev := range res.Events {
		info(w, "event %s on %d (listener %d, batch %d) payload=%v", ev.Event, ev.TargetID, ev.ListenerID, ev.Batch, ev.Payload)
	}
	for _, c := range res.Calls {
		status := fmt.Sprintf("value=%v", c.Result.Value)
		if !c.Result.OK() {
			status = "error=" + c.Result.Err.Error()
		}
		info(w, "call %s on %d (batch %d) %s", c.Function, c.NodeID, c.Batch, status)
	}
}
