package backup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gcbackup/gcbackup/internal/garmin"
	"github.com/gcbackup/gcbackup/internal/store"
)

// Report summarizes one backup run.
type Report struct {
	Mode       string
	Activities int
	Downloaded int
	NotFound   int
	Skipped    int
	StartTime  time.Time
	EndTime    time.Time
}

// Downloader orchestrates a backup run: it lists the remote activities,
// plans the delta against the backup directory, and executes the fetches
// sequentially. One run is one pass; no state survives in-process.
type Downloader struct {
	session   Session
	backupDir string
	store     *store.Store
	logger    *slog.Logger
}

// NewDownloader creates a Downloader for backupDir. store may be nil, in
// which case no run history is recorded.
func NewDownloader(session Session, backupDir string, st *store.Store, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{
		session:   session,
		backupDir: backupDir,
		store:     st,
		logger:    logger,
	}
}

// Run performs a backup. With activityID == 0 it does a full incremental
// sync; otherwise it downloads just that activity, re-fetching every
// requested format even if local files already exist. An empty formats
// selection means all configured formats.
func (d *Downloader) Run(ctx context.Context, formats []garmin.Format, activityID int64) (*Report, error) {
	if len(formats) == 0 {
		formats = garmin.Formats()
	}

	if activityID != 0 {
		return d.downloadOne(ctx, formats, activityID)
	}
	return d.downloadAll(ctx, formats)
}

func (d *Downloader) downloadAll(ctx context.Context, formats []garmin.Format) (*Report, error) {
	report := &Report{Mode: "full", StartTime: time.Now()}
	run := d.beginRun(report.Mode)

	d.logger.Info("querying activity list")
	activities, err := d.session.ListActivities(ctx)
	if err != nil {
		d.finishRun(run, report, err)
		return nil, fmt.Errorf("listing activities: %w", err)
	}
	d.logger.Info("activities found on garmin connect", "count", len(activities))

	ledger, err := LoadLedger(d.backupDir)
	if err != nil {
		d.finishRun(run, report, err)
		return nil, err
	}
	existing, err := ExistingFiles(d.backupDir)
	if err != nil {
		d.finishRun(run, report, err)
		return nil, err
	}

	plan, err := Plan(activities, formats, existing, ledger.Names())
	if err != nil {
		d.finishRun(run, report, err)
		return nil, err
	}

	report.Activities = len(activities)
	report.Skipped = len(activities)*len(formats) - planItems(plan)

	if len(plan) == 0 {
		d.logger.Info("backup folder up to date, nothing to download")
		report.EndTime = time.Now()
		d.finishRun(run, report, nil)
		return report, nil
	}
	d.logger.Info("activities to be downloaded", "count", len(plan))

	fetcher := NewFetcher(d.session, d.backupDir, ledger, d.logger)
	for _, work := range plan {
		select {
		case <-ctx.Done():
			report.EndTime = time.Now()
			d.finishRun(run, report, ctx.Err())
			return report, ctx.Err()
		default:
		}

		d.logger.Info("downloading activity",
			"id", work.Activity.ID,
			"type", work.Activity.Type,
			"date", work.Activity.Start.Format("2006-01-02"),
			"formats", formatNames(work.Formats))

		if err := d.fetchFormats(ctx, fetcher, work.Activity, work.Formats, report); err != nil {
			report.EndTime = time.Now()
			d.finishRun(run, report, err)
			return report, err
		}
	}

	report.EndTime = time.Now()
	d.finishRun(run, report, nil)
	d.logger.Info("backup completed",
		"downloaded", report.Downloaded,
		"not_found", report.NotFound,
		"skipped", report.Skipped,
		"duration", report.EndTime.Sub(report.StartTime).Round(time.Millisecond))
	return report, nil
}

// downloadOne bypasses the planner: an explicit single-activity request
// always re-fetches.
func (d *Downloader) downloadOne(ctx context.Context, formats []garmin.Format, activityID int64) (*Report, error) {
	report := &Report{Mode: "single", StartTime: time.Now(), Activities: 1}
	run := d.beginRun(report.Mode)

	d.logger.Info("fetching summary information", "activity", activityID)
	activity, err := d.session.FetchActivitySummary(ctx, activityID)
	if err != nil {
		d.finishRun(run, report, err)
		return nil, fmt.Errorf("resolving activity %d: %w", activityID, err)
	}

	ledger, err := LoadLedger(d.backupDir)
	if err != nil {
		d.finishRun(run, report, err)
		return nil, err
	}

	d.logger.Info("downloading activity",
		"id", activity.ID,
		"type", activity.Type,
		"date", activity.Start.Format("2006-01-02"),
		"formats", formatNames(formats))

	fetcher := NewFetcher(d.session, d.backupDir, ledger, d.logger)
	if err := d.fetchFormats(ctx, fetcher, activity, formats, report); err != nil {
		report.EndTime = time.Now()
		d.finishRun(run, report, err)
		return report, err
	}

	report.EndTime = time.Now()
	d.finishRun(run, report, nil)
	return report, nil
}

// DownloadWellness fetches the wellness archive for one date.
func (d *Downloader) DownloadWellness(ctx context.Context, date time.Time) (*Report, error) {
	if date.After(time.Now()) {
		return nil, fmt.Errorf("cannot download wellness data from the future: %s", date.Format("2006-01-02"))
	}

	report := &Report{Mode: "wellness", StartTime: time.Now()}
	run := d.beginRun(report.Mode)

	ledger, err := LoadLedger(d.backupDir)
	if err != nil {
		d.finishRun(run, report, err)
		return nil, err
	}

	fetcher := NewFetcher(d.session, d.backupDir, ledger, d.logger)
	outcome, err := fetcher.FetchWellness(ctx, date)
	if err != nil {
		report.EndTime = time.Now()
		d.finishRun(run, report, err)
		return report, err
	}
	switch outcome {
	case OutcomeDownloaded:
		report.Downloaded++
	case OutcomeNotFound:
		report.NotFound++
	}

	report.EndTime = time.Now()
	d.finishRun(run, report, nil)
	return report, nil
}

func (d *Downloader) fetchFormats(ctx context.Context, fetcher *Fetcher, activity garmin.Activity, formats []garmin.Format, report *Report) error {
	for _, format := range formats {
		outcome, err := fetcher.FetchAndStore(ctx, activity, format)
		if err != nil {
			return fmt.Errorf("downloading %s for activity %d: %w", format.String(), activity.ID, err)
		}
		switch outcome {
		case OutcomeDownloaded:
			report.Downloaded++
		case OutcomeNotFound:
			report.NotFound++
		}
	}
	return nil
}

// beginRun records the start of a run in the history store. Store failures
// are logged and never affect the backup itself.
func (d *Downloader) beginRun(mode string) *store.Run {
	if d.store == nil {
		return nil
	}
	run := &store.Run{
		Mode:      mode,
		StartTime: time.Now(),
		Status:    store.StatusRunning,
	}
	if err := d.store.CreateRun(run); err != nil {
		d.logger.Warn("failed to record run start", "error", err)
		return nil
	}
	return run
}

func (d *Downloader) finishRun(run *store.Run, report *Report, runErr error) {
	if d.store == nil || run == nil {
		return
	}
	run.EndTime = time.Now()
	run.Activities = report.Activities
	run.Downloaded = report.Downloaded
	run.NotFound = report.NotFound
	run.Skipped = report.Skipped
	if runErr != nil {
		run.Status = store.StatusFailed
		run.ErrorMessage = runErr.Error()
	} else if report.NotFound > 0 {
		run.Status = store.StatusPartial
	} else {
		run.Status = store.StatusSuccess
	}
	if err := d.store.UpdateRun(run); err != nil {
		d.logger.Warn("failed to record run result", "error", err)
	}
}

func planItems(plan []Work) int {
	n := 0
	for _, w := range plan {
		n += len(w.Formats)
	}
	return n
}

func formatNames(formats []garmin.Format) []string {
	names := make([]string, len(formats))
	for i, f := range formats {
		names[i] = f.String()
	}
	return names
}
