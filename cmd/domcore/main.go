// Command domcore runs and inspects DOM tree coordinators.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/domcore/internal/config"
	"github.com/vango-dev/domcore/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		errors.PrintError(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "domcore",
		Short: "DOM tree coordinator for native render layers",
		Long: `domcore owns trees of logical UI nodes, batches structural mutations,
dispatches events, drives layout passes and streams committed results to
native renderers over websockets.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file (.json, .yaml, .yml, .toml)")

	rootCmd.AddCommand(
		serveCmd(&configPath),
		replayCmd(&configPath),
		snapshotCmd(&configPath),
		configCmd(&configPath),
		versionCmd(),
	)
	return rootCmd
}

// loadConfig loads path, or returns defaults when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// success prints a success message.
func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "  %s\n", fmt.Sprintf(format, args...))
}
