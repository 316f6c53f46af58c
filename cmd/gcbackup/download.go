package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gcbackup/gcbackup/internal/backup"
	"github.com/gcbackup/gcbackup/internal/garmin"
	"github.com/gcbackup/gcbackup/internal/store"
	"github.com/spf13/cobra"
)

var (
	downloadFormats   []string
	downloadUsername  string
	downloadPassword  string
	downloadActivity  int64
	downloadUserAgent string
)

func newDownloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download [BACKUP_DIR]",
		Short: "Download activities from Garmin Connect",
		Long: `Download activities from Garmin Connect. By default this does an incremental
backup: every activity not yet present in the backup directory is downloaded
in all requested formats, and formats Garmin Connect reported as absent on a
previous run are not requested again.

If an activity ID is given with -a/--activity, only that activity is
downloaded, even if it was downloaded before.`,
		Example: `  gcbackup download ~/garmin-backup
  gcbackup download -f original -f gpx ~/garmin-backup
  gcbackup download -a 3983141717 ~/garmin-backup`,
		Args: cobra.MaximumNArgs(1),
		RunE: downloadRun,
	}

	cmd.Flags().StringSliceVarP(&downloadFormats, "formats", "f", nil,
		fmt.Sprintf("formats to download, repeatable (choices: %v; default: all)", garmin.FormatNames()))
	cmd.Flags().StringVarP(&downloadUsername, "username", "u", "", "Garmin Connect username or email")
	cmd.Flags().StringVarP(&downloadPassword, "password", "p", "", "Garmin Connect password (prompted if not given)")
	cmd.Flags().Int64VarP(&downloadActivity, "activity", "a", 0, "activity ID; download only that activity, even if already backed up")
	cmd.Flags().StringVar(&downloadUserAgent, "user-agent", "", "User-Agent header for requests")

	return cmd
}

func downloadRun(cmd *cobra.Command, args []string) error {
	backupDir, err := resolveBackupDir(args)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return fmt.Errorf("creating backup directory: %w", err)
	}

	formats, err := resolveFormats(downloadFormats)
	if err != nil {
		return err
	}

	username, password, err := resolveCredentials()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	userAgent := downloadUserAgent
	if userAgent == "" {
		userAgent = globalCfg.UserAgent
	}

	client := garmin.NewClient(garmin.ClientConfig{
		Username:  username,
		Password:  password,
		UserAgent: userAgent,
		BaseURL:   globalCfg.Endpoints.BaseURL,
		SSOURL:    globalCfg.Endpoints.SSOURL,
	}, logger)

	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()

	st := openRunStore(backupDir)
	if st != nil {
		defer st.Close()
	}

	downloader := backup.NewDownloader(client, backupDir, st, logger)
	report, err := downloader.Run(ctx, formats, downloadActivity)
	if err != nil {
		return err
	}

	fmt.Printf("\nBackup complete:\n")
	fmt.Printf("  Downloaded: %d\n", report.Downloaded)
	fmt.Printf("  Not found:  %d\n", report.NotFound)
	fmt.Printf("  Up to date: %d\n", report.Skipped)

	return nil
}

// resolveFormats parses the -f selections, defaulting to the config file's
// selection and finally to all configured formats.
func resolveFormats(names []string) ([]garmin.Format, error) {
	if len(names) == 0 {
		names = globalCfg.Formats
	}
	if len(names) == 0 {
		return garmin.Formats(), nil
	}

	seen := make(map[garmin.Format]bool)
	var formats []garmin.Format
	for _, name := range names {
		f, err := garmin.ParseFormat(name)
		if err != nil {
			return nil, err
		}
		if !seen[f] {
			seen[f] = true
			formats = append(formats, f)
		}
	}
	return formats, nil
}

// resolveCredentials picks credentials from flags, then config, then
// interactive prompts.
func resolveCredentials() (string, string, error) {
	username := downloadUsername
	if username == "" {
		username = globalCfg.Username
	}
	if username == "" {
		var err error
		if username, err = promptUsername(); err != nil {
			return "", "", err
		}
	}

	password := downloadPassword
	if password == "" {
		password = globalCfg.Password
	}
	if password == "" {
		var err error
		if password, err = promptPassword(); err != nil {
			return "", "", err
		}
	}

	return username, password, nil
}

// openRunStore opens the run-history database. History is best effort: a
// store that cannot be opened downgrades to logging, never a failed backup.
func openRunStore(backupDir string) *store.Store {
	st, err := store.New(globalCfg.DatabasePath(backupDir), logger)
	if err != nil {
		logger.Warn("run history unavailable", "error", err)
		return nil
	}
	return st
}
