package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/gcbackup/gcbackup/internal/config"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgPath   string
	logLevel  string
	logFormat string
	globalCfg *config.Config
	logger    *slog.Logger
)

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gcbackup",
		Short: "Incremental backup of your Garmin Connect activities",
		Long: `gcbackup authenticates against Garmin Connect, enumerates your historical
activities, and incrementally downloads each one in several formats (summary
and details JSON, GPX, TCX, and the original FIT file) into a local backup
directory. Files already present and files previously confirmed absent on
Garmin Connect are skipped, so repeated runs only fetch what is new.`,
		Example: `  gcbackup download ~/garmin-backup
  gcbackup download -f original -f gpx ~/garmin-backup
  gcbackup download -a 3983141717 ~/garmin-backup
  gcbackup wellness --date 2024-06-01 ~/garmin-backup
  gcbackup status ~/garmin-backup
  gcbackup verify ~/garmin-backup`,
		Version: "0.1.0",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()

			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}

			if cfgPath == "" {
				var err error
				cfgPath, err = config.FindConfigFile()
				if err != nil {
					logger.Debug("config file not found, using defaults", "error", err)
				}
			}

			if cfgPath != "" {
				var err error
				globalCfg, err = config.Load(cfgPath)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				logger.Debug("config loaded", "path", cfgPath)
			} else {
				globalCfg = config.DefaultConfig()
			}

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (auto-discovered if not specified)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text or json)")

	cmd.AddCommand(
		newDownloadCmd(),
		newWellnessCmd(),
		newStatusCmd(),
		newVerifyCmd(),
	)

	return cmd
}

// setupLogging initializes the slog logger based on flags
func setupLogging() {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if strings.ToLower(logFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// resolveBackupDir picks the backup directory from the positional argument or
// the config file, and rejects a path that exists as a regular file.
func resolveBackupDir(args []string) (string, error) {
	dir := globalCfg.BackupDir
	if len(args) > 0 {
		dir = args[0]
	}
	if dir == "" {
		return "", fmt.Errorf("no backup directory specified")
	}

	abs, err := absPath(dir)
	if err != nil {
		return "", err
	}

	if fi, err := os.Stat(abs); err == nil && !fi.IsDir() {
		return "", fmt.Errorf("the provided backup directory %s exists and is a file", abs)
	}
	return abs, nil
}
