package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/androidcarpooling/AI-CCTV-Detection/internal/app"
	"github.com/androidcarpooling/AI-CCTV-Detection/internal/config"
	"github.com/androidcarpooling/AI-CCTV-Detection/internal/logging"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "facewatch",
	Short: "Match faces in photos, videos and camera streams against a watchlist",
	Long: `Facewatch enrolls people from reference photos into a watchlist and
recognises them in still images, video files and live camera streams.
Every recognised face raises alert and track events that can be forwarded
to a webhook, a NATS subject or an MQTT topic.`,
	SilenceUsage: true,
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error (overrides LOG_LEVEL)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// loadConfig reads and validates the configuration and installs the default logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg := config.Load()
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, logger, nil
}

// loadApp connects the watchlist store, detector and event deliverers.
func loadApp(ctx context.Context) (*app.App, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing: %w", err)
	}
	return a, nil
}

// closeApp flushes pending event deliveries and closes the store.
func closeApp(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		a.Logger.Warn("shutdown incomplete", "error", err)
	}
}
