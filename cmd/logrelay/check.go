package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/logrelay/logrelay-go/internal/sink"
	"github.com/logrelay/logrelay-go/pkg/logrelay"
	"github.com/logrelay/logrelay-go/pkg/logrelay/matcher"
	"github.com/logrelay/logrelay-go/pkg/logrelay/pattern"
)

var (
	// check flags
	checkEngine  string
	checkLines   []string
	checkStdin   bool
	checkFormat  string
	checkTimeout time.Duration
)

var checkCmd = &cobra.Command{
	Use:   "check FILE...",
	Short: "Validate pattern files and test lines against them",
	Long: `Validate pattern files and report every rejected or defaulted entry.

With --line or --stdin, each line is parsed against the loaded patterns and
the resulting event is printed. Lines that produce no event print nothing.

Examples:
  # Validate pattern files
  logrelay check patterns.yaml extra.yaml

  # Test a line
  logrelay check patterns.yaml --line "[CHAT] Steve: hello"

  # Test a whole log
  logrelay check patterns.yaml --stdin --format pretty < server.log`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkEngine, "engine", "linear",
		"Regex engine: linear, backtrack")
	checkCmd.Flags().DurationVar(&checkTimeout, "match-timeout", matcher.DefaultTimeout,
		"Per-match timeout for the backtrack engine")
	checkCmd.Flags().StringArrayVarP(&checkLines, "line", "l", nil,
		"Line to parse (repeatable)")
	checkCmd.Flags().BoolVar(&checkStdin, "stdin", false,
		"Parse lines read from stdin")
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", sink.FormatJSONL,
		"Output format: jsonl, pretty")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	engine, err := matcher.ParseEngine(checkEngine)
	if err != nil {
		return err
	}
	if checkTimeout <= 0 {
		return fmt.Errorf("invalid --match-timeout: must be positive")
	}
	comp := matcher.Compiler{Engine: engine, Timeout: checkTimeout}

	w, err := sink.NewWriter(cmd.OutOrStdout(), checkFormat)
	if err != nil {
		return err
	}

	lines := checkLines
	if checkStdin {
		lines = append(lines, readLines(cmd.InOrStdin())...)
	}
	return checkPatterns(cmd.Context(), args, comp, lines, w, cmd.ErrOrStderr())
}

// checkPatterns reports problems in files to report, then parses lines and
// delivers each event to w. It fails if any file is rejected outright.
func checkPatterns(ctx context.Context, files []string, comp matcher.Compiler, lines []string, w logrelay.Sink, report io.Writer) error {
	var rejected int
	sources := make([]pattern.Source, 0, len(files))
	for _, f := range files {
		src := pattern.NewFileSource(f)
		doc, err := pattern.Read(ctx, src, comp, pattern.Limits{})
		if err != nil {
			fmt.Fprintf(report, "%s: rejected: %v\n", f, err)
			rejected++
			continue
		}
		for _, p := range doc.Problems {
			fmt.Fprintf(report, "%s: %v\n", f, p)
		}
		fmt.Fprintf(report, "%s: %d patterns\n", f, len(doc.Definitions))
		sources = append(sources, src)
	}
	if rejected > 0 {
		return fmt.Errorf("%d of %d pattern files rejected", rejected, len(files))
	}
	if len(lines) == 0 {
		return nil
	}

	store := pattern.NewStore(pattern.WithCompiler(comp))
	if _, err := store.Load(ctx, sources...); err != nil {
		return err
	}
	parser, err := logrelay.NewEventParser(store, logrelay.WithCompiler(comp))
	if err != nil {
		return err
	}
	for _, line := range lines {
		if ev := parser.Parse(ctx, line, "check"); ev != nil {
			if err := w.Deliver(ctx, *ev); err != nil {
				return fmt.Errorf("output error: %w", err)
			}
		}
	}
	return nil
}

func readLines(r io.Reader) []string {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), logrelay.MaxBufferedLine)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "warning:", err)
	}
	return lines
}
