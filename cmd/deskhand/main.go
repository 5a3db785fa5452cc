package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/deskhand/internal/config"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "deskhand",
	Short: "Watch messaging channels and turn matching messages into task files",
	Long: `deskhand polls WhatsApp Web, LinkedIn and an email inbox for messages that
mention your keywords, writes each new one as a markdown task file into
<data_dir>/vault/Needs_Action and processes pending tasks in the background.

Quick start:
  deskhand login whatsapp     # scan the QR code once
  deskhand check whatsapp     # one-off keyword check
  deskhand serve              # run the watcher and the brain`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", filepath.Join(os.Getenv("HOME"), ".deskhand", "config.json"), "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func setupLogging(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
