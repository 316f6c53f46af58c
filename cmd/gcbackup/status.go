package main

import (
	"fmt"
	"strings"

	"github.com/gcbackup/gcbackup/internal/backup"
	"github.com/gcbackup/gcbackup/internal/store"
	"github.com/spf13/cobra"
)

var statusLimit int

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [BACKUP_DIR]",
		Short: "Show the backup directory state and recent runs",
		Example: `  gcbackup status ~/garmin-backup
  gcbackup status --limit 20 ~/garmin-backup`,
		Args: cobra.MaximumNArgs(1),
		RunE: statusRun,
	}

	cmd.Flags().IntVar(&statusLimit, "limit", 10, "number of recent runs to show")

	return cmd
}

func statusRun(cmd *cobra.Command, args []string) error {
	backupDir, err := resolveBackupDir(args)
	if err != nil {
		return err
	}

	existing, err := backup.ExistingFiles(backupDir)
	if err != nil {
		return err
	}
	ledger, err := backup.LoadLedger(backupDir)
	if err != nil {
		return err
	}

	// Dot-files (the ledger, the run-history database) are bookkeeping,
	// not backed-up data.
	dataFiles := 0
	for name := range existing {
		if !strings.HasPrefix(name, ".") {
			dataFiles++
		}
	}

	fmt.Printf("Backup directory: %s\n", backupDir)
	fmt.Printf("  Data files:        %d\n", dataFiles)
	fmt.Printf("  Known not found:   %d\n", ledger.Len())

	st, err := store.New(globalCfg.DatabasePath(backupDir), logger)
	if err != nil {
		logger.Debug("no run history available", "error", err)
		return nil
	}
	defer st.Close()

	runs, err := st.ListRuns(statusLimit)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("\nNo recorded runs.")
		return nil
	}

	fmt.Println("\nRecent runs:")
	for _, run := range runs {
		fmt.Printf("  %s  %-8s  %-7s  downloaded=%d not_found=%d skipped=%d",
			run.StartTime.Format("2006-01-02 15:04:05"),
			run.Mode, run.Status, run.Downloaded, run.NotFound, run.Skipped)
		if run.ErrorMessage != "" {
			fmt.Printf("  error=%q", run.ErrorMessage)
		}
		fmt.Println()
	}

	return nil
}
