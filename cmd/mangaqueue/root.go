package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kerbaras/mangaqueue/pkg/app"
	"github.com/kerbaras/mangaqueue/pkg/config"
	"github.com/kerbaras/mangaqueue/pkg/logging"
)

var (
	configPath string
	cfg        config.Config
)

var rootCmd = &cobra.Command{
	Use:   "mangaqueue",
	Short: "Queue manga downloads and read them anywhere",
	Long:  "Download manga chapters one job at a time, from a TUI, the command line or an HTTP API",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// The TUI owns the terminal, so logs go to a file next to the library.
		logPath := filepath.Join(filepath.Dir(cfg.Library.Path), "mangaqueue.log")
		if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		logger, err := logging.NewFile(logPath, cfg.Logging.Development)
		if err != nil {
			return err
		}
		defer logger.Sync()

		return app.NewApp(cfg, logger).Run(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (yaml, toml or json)")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(serveCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger builds the stderr logger used by the non-interactive commands.
func newLogger() *zap.Logger {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
