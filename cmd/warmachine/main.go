package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/com-four/warmachine-ng/internal/bus"
	"github.com/com-four/warmachine-ng/internal/config"
	"github.com/com-four/warmachine-ng/internal/metrics"
	"github.com/com-four/warmachine-ng/internal/plugin"
	"github.com/com-four/warmachine-ng/internal/slack"
	"github.com/com-four/warmachine-ng/internal/store"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "warmachine",
		Short: "warmachine: a no bullshit extensible Slack bot",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.warmachine/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(runCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to slack and run the bot",
		RunE:  run,
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return err
	}
	setLogLevel(cfg.General.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings, err := store.NewSettingsStore(cfg.Store.DBPath, logger)
	if err != nil {
		return err
	}
	defer settings.Close()

	messageBus := bus.New(100, logger)
	defer messageBus.Close()

	conn := slack.NewClient(slack.Config{
		Token:         cfg.Slack.Token,
		APIBase:       cfg.Slack.APIBase,
		ReconnectWait: time.Duration(cfg.Slack.ReconnectWaitSecs) * time.Second,
		PingInterval:  time.Duration(cfg.Slack.PingIntervalSecs) * time.Second,
		Logger:        logger,
	})
	defer conn.Close()

	registry := plugin.NewRegistry(logger)
	if cfg.Plugins.Giphy.Enabled {
		registry.Register(plugin.NewGiphy(logger))
	}
	var standup *plugin.Standup
	if cfg.Plugins.Standup.Enabled {
		standup = plugin.NewStandup(settings, logger)
		registry.Register(standup)
	}
	if cfg.Plugins.Dir != "" {
		options, err := plugin.LoadOptions(cfg.Plugins.Dir, logger)
		if err != nil {
			return err
		}
		registry.ApplyOptions(options)
	}
	if cfg.Plugins.Giphy.Enabled && cfg.Plugins.Giphy.APIKey != "" {
		registry.ApplyOptions(map[string]map[string]string{
			"giphy": {"apiKey": cfg.Plugins.Giphy.APIKey},
		})
	}

	if cfg.Metrics.Enabled {
		go serveMetrics(ctx, cfg.Metrics.Addr)
	}

	// Initial connect: an authentication failure here is surfaced to the
	// operator instead of retried.
	if err := conn.Connect(ctx); err != nil {
		return fmt.Errorf("initial connect: %w", err)
	}

	go registry.Run(ctx, messageBus, conn)
	if standup != nil {
		go standup.Start(ctx, conn)
	}

	logger.Info("warmachine running", "connection", conn.ID())
	for {
		msg, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down")
				return nil
			}
			return err
		}
		messageBus.Publish(msg)
	}
}

func setLogLevel(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", metrics.Collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics server starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server failed", "err", err)
	}
}
