package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/awion/cryon-risk/config"
	"github.com/awion/cryon-risk/public/api"
	"github.com/awion/cryon-risk/public/engine"
	"github.com/awion/cryon-risk/public/logging"
	"github.com/awion/cryon-risk/public/metrics"
	"github.com/awion/cryon-risk/public/notifier"
	"github.com/awion/cryon-risk/public/storage"
	"github.com/awion/cryon-risk/ui"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const version = "0.1.0"

const shutdownTimeout = 5 * time.Second

type options struct {
	configPath string
	verbose    bool
	headless   bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "cryon-risk",
		Short:         "Entity risk scoring engine",
		Long:          "Cryon Risk tracks risk scores of users, devices and applications, raises alerts and exposes them to operators.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}
	rootCmd.SetVersionTemplate("Cryon Risk v{{.Version}}\n")

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "Path to configuration file")
	rootCmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.Flags().BoolVar(&opts.headless, "headless", false, "Run without the interactive console")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(opts.configPath); err == nil {
				return fmt.Errorf("configuration file already exists: %s", opts.configPath)
			}
			if err := config.CreateDefaultConfig(opts.configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved configuration to %s\n", opts.configPath)
			return nil
		},
	})

	return rootCmd
}

func run(opts *options) error {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if opts.verbose {
		cfg.Logging.Verbose = true
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("Starting Cryon Risk",
		zap.String("version", version),
		zap.String("config", opts.configPath),
		zap.String("storage", cfg.Storage.Type))

	store, err := storage.NewStorage(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage", zap.Error(err))
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	engineOpts := []engine.Option{
		engine.WithLogger(logger.Named("engine")),
		engine.WithMetrics(metrics.New(registry)),
	}

	if cfg.Notify.Enabled() {
		nc, err := notifier.Connect(cfg.Notify, logger)
		if err != nil {
			logger.Warn("Alert forwarding disabled", zap.Error(err))
		} else {
			defer nc.Close()
			engineOpts = append(engineOpts, engine.WithAlertSink(
				notifier.NewNATSNotifier(nc, cfg.Notify.Subject, logger.Named("notifier"))))
			logger.Info("Forwarding alerts to NATS", zap.String("subject", cfg.Notify.Subject))
		}
	}

	eng := engine.New(store, cfg.Simulation, engineOpts...)
	if err := eng.Seed(cfg.Rules, cfg.Entities); err != nil {
		return fmt.Errorf("seeding engine: %w", err)
	}
	if err := eng.Start(); err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}
	defer eng.Stop()

	var server *api.Server
	if cfg.API.Enabled {
		server = api.NewServer(cfg.API, eng, api.Templates{
			Departments: cfg.Departments,
			Patterns:    cfg.PatternTemplates,
		}, registry, logger.Named("api"))
		server.Start()
	}

	var cliDone <-chan struct{}
	if !opts.headless {
		console := ui.NewCLI(eng, cfg.Departments, cfg.PatternTemplates, os.Stdin, os.Stdout)
		console.Start()
		defer console.Stop()
		cliDone = console.Done()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case <-cliDone:
		logger.Info("Console closed, shutting down")
	}

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("API server shutdown failed", zap.Error(err))
		}
	}

	logger.Info("Cryon Risk terminated")
	return nil
}
