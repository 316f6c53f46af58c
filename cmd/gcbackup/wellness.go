package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gcbackup/gcbackup/internal/backup"
	"github.com/gcbackup/gcbackup/internal/garmin"
	"github.com/spf13/cobra"
)

var wellnessDate string

func newWellnessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wellness [BACKUP_DIR]",
		Short: "Download daily wellness data from Garmin Connect",
		Long: `Download the wellness archive for one day into the backup directory.
The file is stored as YYYY-MM-DD.zip; days Garmin Connect has no data for
are recorded in the not-found ledger and not requested again.`,
		Example: `  gcbackup wellness --date 2024-06-01 ~/garmin-backup`,
		Args:    cobra.MaximumNArgs(1),
		RunE:    wellnessRun,
	}

	cmd.Flags().StringVar(&wellnessDate, "date", "", "date to fetch, YYYY-MM-DD (default: yesterday)")
	cmd.Flags().StringVarP(&downloadUsername, "username", "u", "", "Garmin Connect username or email")
	cmd.Flags().StringVarP(&downloadPassword, "password", "p", "", "Garmin Connect password (prompted if not given)")

	return cmd
}

func wellnessRun(cmd *cobra.Command, args []string) error {
	backupDir, err := resolveBackupDir(args)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return fmt.Errorf("creating backup directory: %w", err)
	}

	date := time.Now().AddDate(0, 0, -1)
	if wellnessDate != "" {
		date, err = time.Parse("2006-01-02", wellnessDate)
		if err != nil {
			return fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", wellnessDate, err)
		}
	}

	username, password, err := resolveCredentials()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := garmin.NewClient(garmin.ClientConfig{
		Username:  username,
		Password:  password,
		UserAgent: globalCfg.UserAgent,
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
	report, err := downloader.DownloadWellness(ctx, date)
	if err != nil {
		return err
	}

	if report.Downloaded > 0 {
		fmt.Printf("Wellness data for %s downloaded\n", date.Format("2006-01-02"))
	} else {
		fmt.Printf("No wellness data available for %s\n", date.Format("2006-01-02"))
	}
	return nil
}
