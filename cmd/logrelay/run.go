package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/logrelay/logrelay-go/internal/config"
	"github.com/logrelay/logrelay-go/internal/guard"
	"github.com/logrelay/logrelay-go/internal/sink"
	"github.com/logrelay/logrelay-go/pkg/logrelay"
	"github.com/logrelay/logrelay-go/pkg/logrelay/metrics"
	"github.com/logrelay/logrelay-go/pkg/logrelay/pattern"
)

// shutdownTimeout bounds flushing sinks and closing the metrics listener.
const shutdownTimeout = 5 * time.Second

var (
	// run flags
	configPath string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Tail log sources and relay events",
	Long: `Tail every configured log source and relay matching lines.

Send SIGHUP to reload pattern files without restarting. If no pattern file
loads, the current patterns stay active.

The Discord bot token is read from LOGRELAY_DISCORD_TOKEN.

Examples:
  # Run with a config file
  logrelay run --config /etc/logrelay/logrelay.yaml

  # Reload patterns
  kill -HUP $(pidof logrelay)`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&configPath, "config", "c", "logrelay.yaml",
		"Path to the configuration file")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := newLogger(cmd.ErrOrStderr(), verbose)
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	d, err := newDaemon(ctx, cfg, cmd.OutOrStdout(), logger)
	if err != nil {
		return err
	}
	defer d.close()

	if err := d.relay.Start(ctx); err != nil {
		return err
	}
	defer d.relay.Stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case <-hup:
			// Reload logs its own failure; the relay keeps running.
			_ = d.relay.Reload(ctx)
		}
	}
}

// daemon holds everything runRun starts and must release.
type daemon struct {
	relay    *logrelay.Relay
	guard    *guard.Guard
	registry *prometheus.Registry
	closers  []func(context.Context) error
	log      *slog.Logger
}

// newDaemon loads patterns and wires the guard, sinks and metrics for cfg.
// Stdout events are written to out.
func newDaemon(ctx context.Context, cfg *config.Config, out io.Writer, logger *slog.Logger) (*daemon, error) {
	d := &daemon{registry: prometheus.NewRegistry(), log: logger}
	d.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(d.registry)

	comp := cfg.Compiler()
	store := pattern.NewStore(
		pattern.WithCompiler(comp),
		pattern.WithLimits(cfg.PatternLimits()),
		pattern.WithLogger(logger.With("component", "patterns")),
	)
	n, err := store.Load(ctx, cfg.PatternSources()...)
	if err != nil {
		return nil, fmt.Errorf("load patterns: %w", err)
	}
	logger.Info("patterns loaded", "patterns", n, "files", len(cfg.Patterns.Files))

	opts := append(cfg.TailOptions(),
		logrelay.WithLogger(logger),
		logrelay.WithMetrics(m),
	)
	if policy, ok := cfg.GuardPolicy(); ok {
		g, err := guard.New(policy, comp, guard.WithLogger(logger.With("component", "guard")))
		if err != nil {
			return nil, fmt.Errorf("guard: %w", err)
		}
		d.guard = g
		opts = append(opts, logrelay.WithGuard(g))
	}

	fanout, err := d.sinks(ctx, cfg, out, m)
	if err != nil {
		d.close()
		return nil, err
	}

	d.relay, err = logrelay.NewRelay(store, cfg.Sources, fanout, opts...)
	if err != nil {
		d.close()
		return nil, err
	}

	if cfg.Metrics.Address != "" {
		l := metrics.Listen(cfg.Metrics.Address, d.registry, logger)
		d.closers = append(d.closers, l.Close)
	}
	return d, nil
}

func (d *daemon) sinks(ctx context.Context, cfg *config.Config, out io.Writer, m *metrics.Metrics) (*sink.Fanout, error) {
	var named []sink.Named
	s := cfg.Sinks

	if s.Stdout.Enabled {
		w, err := sink.NewWriter(out, s.Stdout.Format)
		if err != nil {
			return nil, err
		}
		named = append(named, sink.Named{Name: "stdout", Sink: w, Kinds: s.Stdout.Kinds})
	}

	if s.Discord.Enabled {
		dc, err := sink.NewDiscord(s.Discord.Token, sink.DiscordConfig{
			DefaultChannel: s.Discord.DefaultChannel,
			Channels:       s.Discord.Channels,
			Interval:       s.Discord.Interval,
		})
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, func(context.Context) error { return dc.Close() })
		named = append(named, sink.Named{Name: "discord", Sink: dc, Kinds: s.Discord.Kinds})
	}

	if s.OTel.Enabled {
		o, err := sink.NewOTLP(ctx, sink.OTelConfig{
			Endpoint:    s.OTel.Endpoint,
			ServiceName: s.OTel.ServiceName,
			Insecure:    s.OTel.Insecure,
		})
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, o.Close)
		named = append(named, sink.Named{Name: "otel", Sink: o, Kinds: s.OTel.Kinds})
	}

	return sink.NewFanout(d.log, m, named...), nil
}

// close releases sinks and the metrics listener in reverse order.
func (d *daemon) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	if err := errors.Join(errs...); err != nil {
		d.log.Warn("shutdown", "error", err)
	}
}
