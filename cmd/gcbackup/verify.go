package main

import (
	"fmt"

	"github.com/gcbackup/gcbackup/internal/verify"
	"github.com/spf13/cobra"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [BACKUP_DIR]",
		Short: "Check the integrity of downloaded files",
		Long: `Verify every data file in the backup directory: FIT files must decode,
JSON documents must parse, and GPX/TCX exports must be well-formed XML.`,
		Example: `  gcbackup verify ~/garmin-backup`,
		Args:    cobra.MaximumNArgs(1),
		RunE:    verifyRun,
	}
}

func verifyRun(cmd *cobra.Command, args []string) error {
	backupDir, err := resolveBackupDir(args)
	if err != nil {
		return err
	}

	report, err := verify.Dir(backupDir, logger)
	if err != nil {
		return err
	}

	fmt.Printf("Verified %d files: %d valid, %d invalid (%d skipped)\n",
		report.TotalFiles, report.ValidFiles, len(report.InvalidFiles), report.SkippedFiles)

	if len(report.InvalidFiles) > 0 {
		fmt.Println("\nInvalid files:")
		for _, f := range report.InvalidFiles {
			fmt.Printf("  - %s: %s\n", f.Name, f.Reason)
		}
		return fmt.Errorf("verification failed for %d files", len(report.InvalidFiles))
	}

	return nil
}
