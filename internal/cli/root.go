package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/dappwatch/internal/control"
	"github.com/vietddude/dappwatch/internal/core/config"
)

const defaultConfigPath = "config.yaml"

var (
	cfgPath string
	isDebug bool
	cfg     *config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:   "dappwatch",
	Short: "Job board, bank and counter dapp client",
	Long: `dappwatch keeps a read model of the job board, bank and counter contracts
built from their event logs, and sends writes through a tracked transaction
lifecycle that resyncs the read model on every confirmation.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", defaultConfigPath, "config file")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

func setup(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found")
	}

	path := cfgPath
	if !cmd.Flags().Changed("config") {
		// The default file is optional; env and defaults still apply.
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}

	loaded, err := config.Load(path)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		return err
	}
	cfg = loaded

	slogLevel := slog.LevelInfo
	if isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}
	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
	return nil
}

// withSession builds the app, refreshes once and hands the session to fn.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, s *control.Session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	app, err := control.NewApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize session: %w", err)
	}
	defer func() {
		if err := app.Stop(context.Background()); err != nil {
			slog.Warn("Error during shutdown", "error", err)
		}
	}()

	if _, err := app.Session().Refresh(ctx); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	return fn(ctx, app.Session())
}
