// Command logrelay relays chat from game-server log files to Discord,
// OpenTelemetry and stdout.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	// global flags
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "logrelay",
	Short: "Relay game-server log events to chat",
	Long: `logrelay tails game-server log files, matches each new line against
YAML patterns and delivers sanitized events to stdout, Discord and
OpenTelemetry.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable debug logging")
}

// newLogger returns a text logger on w at Info, or Debug when verbose.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
