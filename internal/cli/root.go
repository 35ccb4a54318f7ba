// Package cli implements the uwuifier command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/menta2k/uwuifier/internal/config"
	"github.com/menta2k/uwuifier/internal/logging"
	"github.com/menta2k/uwuifier/pkg/cropper"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "uwuifier",
	Short: "Turn a portrait photo into upscaled anime art",
	Long: `uwuifier crops a photo to a square centered on its single face,
restyles the square as anime art through a diffusion backend and upscales
the result with a super-resolution model.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, cropper.ErrUnsupportedInput) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default "+config.GetConfigPath()+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug|info|warn|error")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// loadConfig reads the configuration named by --config, or the default
// path when present, and applies --log-level
func loadConfig() (*config.Config, error) {
	path, mustExist := configPath, true
	if path == "" {
		path, mustExist = config.GetConfigPath(), false
	}
	cfg, err := config.Load(path, mustExist)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

// setupFrom validates cfg and builds the logger
func setupFrom(cfg *config.Config) (*config.Config, *zap.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
