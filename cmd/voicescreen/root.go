package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/cognivox/voicescreen/internal/config"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	rootCmd := &cobra.Command{
		Use:           "voicescreen",
		Short:         "Voice dementia screening service and tools",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// A local .env is a development convenience; absence is fine.
			_ = godotenv.Load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (TOML)")

	rootCmd.AddCommand(newServeCommand(&configFlag))
	rootCmd.AddCommand(newPredictCommand(&configFlag))
	rootCmd.AddCommand(newPreprocessCommand())
	rootCmd.AddCommand(newDatasetCommand())

	return rootCmd
}

func loadConfig(configFlag *string) (config.Config, error) {
	path := ""
	if configFlag != nil {
		path = *configFlag
	}
	return config.Loader{}.Load(path)
}

func newLogger(level string) *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return slog.New(handler)
}

func parseLevel(value string) slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
