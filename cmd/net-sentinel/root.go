package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"NetSentinel/internal/alerter"
	"NetSentinel/internal/api"
	"NetSentinel/internal/config"
	"NetSentinel/internal/engine/manager"
	"NetSentinel/internal/logging"
	"NetSentinel/internal/metrics"
	"NetSentinel/internal/model"
	"NetSentinel/internal/notification"
	"NetSentinel/internal/probe"
	"NetSentinel/internal/query"
	"NetSentinel/internal/snapshot"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type runOptions struct {
	configPath   string
	baselineOnly bool
	once         bool
	noBaseline   bool
	baselineFrom string
}

func newRootCmd() *cobra.Command {
	opts := &runOptions{}

	root := &cobra.Command{
		Use:          "net-sentinel",
		Short:        "Watch the host's network for suspicious activity",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMonitor(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config file (yaml)")
	addRunFlags(root, opts)

	run := &cobra.Command{
		Use:   "run",
		Short: "Build a baseline and monitor continuously (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMonitor(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	addRunFlags(run, opts)

	root.AddCommand(run, newTailCmd(opts))
	return root
}

func addRunFlags(cmd *cobra.Command, opts *runOptions) {
	cmd.Flags().BoolVar(&opts.baselineOnly, "baseline-only", false, "just build the baseline and exit")
	cmd.Flags().BoolVar(&opts.once, "once", false, "run a single sample+analysis then exit")
	cmd.Flags().BoolVar(&opts.noBaseline, "no-baseline", false, "skip baseline build (start immediately)")
	cmd.Flags().StringVar(&opts.baselineFrom, "baseline-from", "", "load the baseline from a snapshot directory instead of building it")
}

// loadConfig loads the configuration and builds the logger it asks for.
func loadConfig(path string) (*config.Config, *zap.Logger, error) {
	bootstrap, err := logging.New(config.Default().Logging)
	if err != nil {
		return nil, nil, err
	}
	cfg := config.LoadOrDefault(path, bootstrap)

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		bootstrap.Warn("Keeping default logger", zap.Error(err))
		logger = bootstrap
	}
	return cfg, logger, nil
}

func runMonitor(parent context.Context, out io.Writer, opts *runOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	defer logger.Sync()

	return monitor(ctx, out, opts, cfg, probe.NewHostSampler(logger), logger)
}

// monitor wires the sinks, the status server and the manager around sampler,
// then runs the operating mode selected by opts. Cancelling ctx during warm-up
// or the main loop is a clean exit.
func monitor(ctx context.Context, out io.Writer, opts *runOptions, cfg *config.Config, sampler model.Sampler, logger *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	sinks, err := openSinks(cfg, hostname, logger)
	if err != nil {
		return err
	}
	dispatcher := alerter.NewAlerter(logger, m, out, sinks...)
	defer dispatcher.Close()

	mgr := manager.NewManager(cfg, sampler, dispatcher, m, logger)

	if cfg.API.ListenAddr != "" || cfg.API.GRPCAddr != "" {
		var querier query.Querier
		if cfg.Sinks.ClickHouse.Enabled {
			querier, err = query.NewClickHouseQuerier(cfg.Sinks.ClickHouse)
			if err != nil {
				logger.Warn("Alert history unavailable", zap.Error(err))
				querier = nil
			}
		}
		srv := api.NewServer(cfg.API, mgr, querier, reg, logger)
		mgr.OnPhaseChange(srv.SetPhase)
		if err := srv.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Status server shutdown", zap.Error(err))
			}
		}()
	}

	switch {
	case opts.noBaseline:
		mgr.SkipBaseline()
	case opts.baselineFrom != "":
		baseline, err := snapshot.Read(opts.baselineFrom)
		if err != nil {
			return err
		}
		mgr.UseBaseline(baseline)
		fmt.Fprintf(out, "[+] Baseline loaded from %s: %d connections.\n", opts.baselineFrom, baseline.Len())
	default:
		fmt.Fprintf(out, "[+] Building baseline using %d samples (interval %s)...\n", cfg.General.BaselineSamples, cfg.SampleInterval())
		n, err := mgr.BuildBaseline(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				fmt.Fprintln(out, "[+] net_sentinel exiting cleanly.")
				return nil
			}
			return err
		}
		fmt.Fprintf(out, "[+] Baseline ready: %d connections recorded.\n", n)
		if cfg.General.SnapshotDir != "" {
			dir, err := snapshot.NewWriter(hostname).Write(mgr.Baseline(), cfg.General.SnapshotDir, time.Now())
			if err != nil {
				logger.Warn("Baseline snapshot not written", zap.Error(err))
			} else {
				logger.Info("Baseline snapshot written", zap.String("dir", dir))
			}
		}
		if opts.baselineOnly {
			fmt.Fprintln(out, "[+] Baseline built; exiting due to --baseline-only.")
			return nil
		}
	}

	if opts.once {
		return mgr.RunOnce(ctx)
	}

	fmt.Fprintln(out, "[+] Starting continuous monitoring. Press Ctrl+C to stop.")
	if err := mgr.Run(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "[+] net_sentinel exiting cleanly.")
	return nil
}

// openSinks provisions every configured alert destination. Any failure here
// is fatal: the sinks must exist before monitoring begins.
func openSinks(cfg *config.Config, hostname string, logger *zap.Logger) ([]model.Sink, error) {
	var sinks []model.Sink
	closeAll := func() {
		for _, s := range sinks {
			_ = s.Close()
		}
	}

	file, err := notification.NewFileSink(cfg.General.LogFile, cfg.Sinks.File)
	if err != nil {
		return nil, err
	}
	sinks = append(sinks, file)
	logger.Info("Alert log ready", zap.String("path", cfg.General.LogFile))

	if cfg.Sinks.NATS.Enabled {
		nats, err := notification.NewNATSSink(cfg.Sinks.NATS, logger)
		if err != nil {
			closeAll()
			return nil, err
		}
		sinks = append(sinks, nats)
	}

	if cfg.Sinks.ClickHouse.Enabled {
		ch, err := notification.NewClickHouseSink(cfg.Sinks.ClickHouse, hostname, logger)
		if err != nil {
			closeAll()
			return nil, err
		}
		sinks = append(sinks, ch)
	}

	if cfg.Sinks.SMTP.Enabled {
		sinks = append(sinks, notification.NewEmailSink(cfg.Sinks.SMTP, hostname))
		logger.Info("Email digests enabled", zap.String("to", cfg.Sinks.SMTP.To))
	}

	return sinks, nil
}
