package backup

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gcbackup/gcbackup/internal/garmin"
)

// fitSuffix is the extension of a native binary fitness file. When the
// "original" download's archive does not contain one, the service had no
// native file for that activity.
const fitSuffix = ".fit"

// Session is the remote capability the engine consumes. *garmin.Client
// satisfies it; tests substitute a fake.
type Session interface {
	FetchActivity(ctx context.Context, activityID int64, format garmin.Format) (*garmin.Response, error)
	FetchActivitySummary(ctx context.Context, activityID int64) (garmin.Activity, error)
	ListActivities(ctx context.Context) ([]garmin.Activity, error)
	FetchWellness(ctx context.Context, date time.Time) (*garmin.Response, error)
}

// Outcome classifies the result of one fetch-and-store attempt.
type Outcome int

const (
	// OutcomeDownloaded means a data file was written.
	OutcomeDownloaded Outcome = iota
	// OutcomeNotFound means the item was recorded in the not-found ledger.
	OutcomeNotFound
)

// Fetcher downloads one (activity, format) pair at a time and persists the
// result: exactly one of a data file or a ledger entry per attempt.
type Fetcher struct {
	session   Session
	backupDir string
	ledger    *Ledger
	logger    *slog.Logger
}

// NewFetcher creates a Fetcher writing into backupDir and recording misses
// in ledger.
func NewFetcher(session Session, backupDir string, ledger *Ledger, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		session:   session,
		backupDir: backupDir,
		ledger:    ledger,
		logger:    logger,
	}
}

// FetchAndStore downloads the activity in the given format. A non-success
// response, tolerated or not, is recorded in the ledger and the batch moves
// on; only transport-level failures and unknown formats are returned as
// errors. Re-invoking for an already stored item simply overwrites the file.
func (f *Fetcher) FetchAndStore(ctx context.Context, activity garmin.Activity, format garmin.Format) (Outcome, error) {
	name, err := activity.ExportFilename(format)
	if err != nil {
		return OutcomeNotFound, err
	}

	resp, err := f.session.FetchActivity(ctx, activity.ID, format)
	if err != nil {
		var httpErr *garmin.HTTPError
		if errors.As(err, &httpErr) {
			// A hard HTTP failure on one item must not abort the batch.
			f.logger.Warn("remote fetch failed, recording as not found",
				"activity", activity.ID, "format", format.String(), "status", httpErr.StatusCode)
			return f.recordNotFound(name)
		}
		return OutcomeNotFound, err
	}

	if resp.StatusCode != http.StatusOK {
		// Tolerated "no data" status; the body is not activity data.
		f.logger.Debug("format not available",
			"activity", activity.ID, "format", format.String(), "status", resp.StatusCode)
		return f.recordNotFound(name)
	}

	data := resp.Body
	if format == garmin.FormatOriginal {
		extracted, ext, err := extractOriginal(resp.Body)
		if err != nil {
			// A malformed archive affects only this item; recover locally.
			f.logger.Warn("unreadable original archive, recording as not found",
				"activity", activity.ID, "error", err)
			return f.recordNotFound(name)
		}
		if ext != fitSuffix {
			// The service returns an empty or alternate-format archive when
			// no native binary file exists for the activity.
			f.logger.Debug("no native fit file for activity",
				"activity", activity.ID, "archive_ext", ext)
			return f.recordNotFound(name)
		}
		data = extracted
		name = strings.TrimSuffix(name, fitSuffix) + ext
	}

	if err := f.writeFile(name, data); err != nil {
		return OutcomeNotFound, err
	}
	return OutcomeDownloaded, nil
}

// FetchWellness downloads the daily wellness archive for date, stored as
// YYYY-MM-DD.zip, with the same not-found handling as activity formats.
func (f *Fetcher) FetchWellness(ctx context.Context, date time.Time) (Outcome, error) {
	name := date.Format("2006-01-02") + ".zip"

	resp, err := f.session.FetchWellness(ctx, date)
	if err != nil {
		var httpErr *garmin.HTTPError
		if errors.As(err, &httpErr) {
			f.logger.Warn("wellness fetch failed, recording as not found",
				"date", date.Format("2006-01-02"), "status", httpErr.StatusCode)
			return f.recordNotFound(name)
		}
		return OutcomeNotFound, err
	}
	if resp.StatusCode != http.StatusOK {
		return f.recordNotFound(name)
	}

	if err := f.writeFile(name, resp.Body); err != nil {
		return OutcomeNotFound, err
	}
	return OutcomeDownloaded, nil
}

func (f *Fetcher) recordNotFound(name string) (Outcome, error) {
	if err := f.ledger.MarkNotFound(name); err != nil {
		return OutcomeNotFound, fmt.Errorf("recording %s as not found: %w", name, err)
	}
	return OutcomeNotFound, nil
}

// writeFile writes data under the backup directory in one whole-buffer write.
func (f *Fetcher) writeFile(name string, data []byte) error {
	if err := os.MkdirAll(f.backupDir, 0755); err != nil {
		return fmt.Errorf("creating backup directory %s: %w", f.backupDir, err)
	}
	dest := filepath.Join(f.backupDir, name)
	if err := os.WriteFile(dest, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	return nil
}

// extractOriginal unpacks the single entry of the zip archive the original
// format endpoint returns and reports the entry's filename extension, which
// overrides the configured suffix.
func extractOriginal(archive []byte) ([]byte, string, error) {
	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, "", fmt.Errorf("opening original archive: %w", err)
	}
	if len(reader.File) == 0 {
		return nil, "", nil
	}

	entry := reader.File[0]
	rc, err := entry.Open()
	if err != nil {
		return nil, "", fmt.Errorf("opening archive entry %s: %w", entry.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, "", fmt.Errorf("extracting archive entry %s: %w", entry.Name, err)
	}
	return data, strings.ToLower(path.Ext(entry.Name)), nil
}
