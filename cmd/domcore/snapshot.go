package main

import (
	"github.com/spf13/cobra"

	"github.com/vango-dev/domcore/internal/script"
)

func snapshotCmd(configPath *string) *cobra.Command {
	var (
		bucket   string
		prefix   string
		region   string
		endpoint string
		dir      string
	)

	cmd := &cobra.Command{
		Use:   "snapshot <script.yaml>",
		Short: "Replay a script and export the resulting tree",
		Long: `Replay a YAML batch script against a fresh manager and export the
committed tree as JSON to the snapshot store.

The store comes from the snapshot section of the config; flags override it.
S3 credentials are read from AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY.

Examples:
  domcore snapshot counter.yaml --dir ./snapshots
  domcore snapshot counter.yaml --bucket my-snapshots --prefix ci/
  domcore snapshot counter.yaml --bucket snaps --endpoint http://localhost:9000`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("bucket") {
				cfg.Snapshot.Bucket = bucket
			}
			if flags.Changed("prefix") {
				cfg.Snapshot.Prefix = prefix
			}
			if flags.Changed("region") {
				cfg.Snapshot.Region = region
			}
			if flags.Changed("endpoint") {
				cfg.Snapshot.Endpoint = endpoint
			}
			if flags.Changed("dir") {
				cfg.Snapshot.Dir = dir
			}
			if err := cfg.Validate(); err != nil {
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
			key, err := a.export(cmd.Context(), run.manager)
			if err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "snapshot exported: %s", key)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&bucket, "bucket", "", "S3 bucket")
	flags.StringVar(&prefix, "prefix", "", "Key prefix inside the bucket")
	flags.StringVar(&region, "region", "", "S3 region (default us-east-1)")
	flags.StringVar(&endpoint, "endpoint", "", "S3-compatible endpoint URL")
	flags.StringVar(&dir, "dir", "", "Local snapshot directory")
	return cmd
}
