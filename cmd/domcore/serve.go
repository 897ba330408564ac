package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vango-dev/domcore/internal/errors"
	"github.com/vango-dev/domcore/pkg/server"
	"github.com/vango-dev/domcore/pkg/snapshot"
)

func serveCmd(configPath *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve managers over HTTP and websockets",
		Long: `Start the HTTP server with one manager for the configured root.

Native renderers connect to /managers/{id}/render. More managers can be
created with POST /managers. Metrics are served on /metrics.

Examples:
  domcore serve
  domcore serve --config domcore.yaml
  domcore serve --addr 127.0.0.1:9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a := newApp(cfg, cmd.ErrOrStderr())
			defer a.closeAll()

			m, err := a.newManager()
			if err != nil {
				return err
			}

			opts := []server.Option{
				server.WithLogger(a.logger),
				server.WithMetrics(a.metrics),
				server.WithGatherer(a.registry),
				server.WithManagerFactory(a.newManager),
			}
			store, err := a.store()
			if err != nil {
				return err
			}
			if store != nil {
				opts = append(opts, server.WithExporter(snapshot.NewExporter(store, a.logger)))
			}

			out := cmd.OutOrStdout()
			success(out, "domcore listening on %s", cfg.Server.Addr)
			info(out, "manager %d (root %d)", m.ID(), m.GetRootID())
			info(out, "render:  ws://%s/managers/%d/render", displayAddr(cfg.Server.Addr), m.ID())

			srv := server.New(a.directory, a.serverConfig(), opts...)
			if err := srv.Run(ctx); err != nil {
				return errors.New("D041").Wrap(err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from config)")
	return cmd
}

// displayAddr turns ":8080" into "localhost:8080".
func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
