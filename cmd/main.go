package main

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"study-assistant/internal/app"
	"study-assistant/internal/config"
	"study-assistant/internal/helper"
)

const defaultConfigPath = "./configs/config.yaml"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "study-assistant",
	Short: "Ask questions about your study material",
	Long: `Upload documents, index them for semantic search and get answers
grounded in your own notes plus a small FAQ set.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to the yaml config file")
}

// openApp loads the config and builds every component, the caller closes it
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	helper.SetupLogger(cfg.Log.Level, cfg.Log.Pretty)
	return app.New(ctx, cfg)
}

// withApp runs fn against a freshly opened app
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing app")
		}
	}()
	return fn(ctx, a)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
