package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	cfgPkg "github.com/xhad/tutor/pkg/config"
	"github.com/xhad/tutor/pkg/logger"
	"github.com/xhad/tutor/pkg/metrics"
)

type globalFlags struct {
	configPath  string
	envFile     string
	logLevel    string
	metricsAddr string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, state := newRootCommand()
	err := root.ExecuteContext(ctx)
	state.shutdown()
	if err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func newRootCommand() (*cobra.Command, *app) {
	var flags globalFlags
	state := &app{}

	cmd := &cobra.Command{
		Use:           "tutor",
		Short:         "Index course transcripts and answer questions grounded in them",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return state.setup(cmd, flags)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "Path to config file")
	pf.StringVar(&flags.envFile, "env-file", ".env", "Environment file to load before reading configuration")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	cmd.AddCommand(newIngestCommand(state))
	cmd.AddCommand(newAskCommand(state))
	cmd.AddCommand(newChatCommand(state))
	cmd.AddCommand(newStatusCommand(state))
	return cmd, state
}

// setup loads configuration, builds the logger and metrics, and wires the
// service. Cleanups are registered for shutdown.
func (a *app) setup(cmd *cobra.Command, flags globalFlags) error {
	if err := godotenv.Load(flags.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", flags.envFile, err)
	}

	cfg, err := cfgPkg.LoadConfig(flags.configPath)
	if err != nil {
		return err
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("config: %v", e)
		}
		return fmt.Errorf("invalid configuration (%d problems)", len(errs))
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.onShutdown(func() { _ = log.Sync() })
	ctx := ctxzap.ToContext(cmd.Context(), log)
	cmd.SetContext(ctx)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if flags.metricsAddr != "" {
		a.onShutdown(serveMetrics(ctx, flags.metricsAddr, reg))
	}

	return a.build(ctx, cfg, m)
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		ctxzap.Info(ctx, "serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ctxzap.Error(ctx, "metrics server failed", zap.Error(err))
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}
