package backup

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gcbackup/gcbackup/internal/garmin"
	"github.com/gcbackup/gcbackup/internal/store"
)

func countFiles(t *testing.T, dir string) (data int, ledgerLines int) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() == LedgerFilename {
			raw, err := os.ReadFile(dir + "/" + LedgerFilename)
			if err != nil {
				t.Fatal(err)
			}
			ledgerLines = len(strings.Fields(string(raw)))
			continue
		}
		data++
	}
	return data, ledgerLines
}

func TestFullSyncFromScratch(t *testing.T) {
	session := newFakeSession(t, makeActivities(10))
	dir := t.TempDir()
	downloader := NewDownloader(session, dir, nil, discardLogger())

	report, err := downloader.Run(context.Background(), nil, 0)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	dataFiles, ledgerLines := countFiles(t, dir)
	if dataFiles != 50 {
		t.Errorf("expected 50 data files (10 activities x 5 formats), got %d", dataFiles)
	}
	if ledgerLines != 0 {
		t.Errorf("expected no ledger, got %d lines", ledgerLines)
	}
	if report.Downloaded != 50 || report.NotFound != 0 || report.Skipped != 0 {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestFullSyncIdempotent(t *testing.T) {
	session := newFakeSession(t, makeActivities(10))
	dir := t.TempDir()
	downloader := NewDownloader(session, dir, nil, discardLogger())

	if _, err := downloader.Run(context.Background(), nil, 0); err != nil {
		t.Fatalf("first Run() failed: %v", err)
	}
	firstFetches := len(session.fetchCalls)

	report, err := downloader.Run(context.Background(), nil, 0)
	if err != nil {
		t.Fatalf("second Run() failed: %v", err)
	}
	if len(session.fetchCalls) != firstFetches {
		t.Errorf("second run issued %d extra fetches", len(session.fetchCalls)-firstFetches)
	}
	if report.Downloaded != 0 {
		t.Errorf("second run downloaded %d, want 0", report.Downloaded)
	}
	if report.Skipped != 50 {
		t.Errorf("second run skipped %d, want 50", report.Skipped)
	}

	dataFiles, _ := countFiles(t, dir)
	if dataFiles != 50 {
		t.Errorf("file set changed on second run: %d files", dataFiles)
	}
}

func TestFullSyncWithMissingFormat(t *testing.T) {
	session := newFakeSession(t, makeActivities(10))
	session.statuses[garmin.FormatGPX] = 404
	dir := t.TempDir()
	downloader := NewDownloader(session, dir, nil, discardLogger())

	report, err := downloader.Run(context.Background(), nil, 0)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	dataFiles, ledgerLines := countFiles(t, dir)
	if dataFiles != 40 {
		t.Errorf("expected 40 data files, got %d", dataFiles)
	}
	if ledgerLines != 10 {
		t.Errorf("expected 10 ledger lines, got %d", ledgerLines)
	}
	if report.NotFound != 10 {
		t.Errorf("report.NotFound = %d, want 10", report.NotFound)
	}

	// A second run must not re-request any gpx.
	before := len(session.fetchCalls)
	if _, err := downloader.Run(context.Background(), nil, 0); err != nil {
		t.Fatalf("second Run() failed: %v", err)
	}
	for _, call := range session.fetchCalls[before:] {
		if strings.HasSuffix(call, "/gpx") {
			t.Errorf("second run re-issued gpx fetch %q", call)
		}
	}
	if len(session.fetchCalls) != before {
		t.Errorf("second run issued %d fetches, want 0", len(session.fetchCalls)-before)
	}
}

func TestFullSyncResumesPartialState(t *testing.T) {
	activities := makeActivities(4)
	session := newFakeSession(t, activities)
	dir := t.TempDir()

	// Pre-download two activities completely out of band.
	ledger, err := LoadLedger(dir)
	if err != nil {
		t.Fatal(err)
	}
	fetcher := NewFetcher(session, dir, ledger, discardLogger())
	for _, a := range activities[:2] {
		for _, f := range garmin.Formats() {
			if _, err := fetcher.FetchAndStore(context.Background(), a, f); err != nil {
				t.Fatal(err)
			}
		}
	}
	preloadFetches := len(session.fetchCalls)

	downloader := NewDownloader(session, dir, nil, discardLogger())
	report, err := downloader.Run(context.Background(), nil, 0)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if got := len(session.fetchCalls) - preloadFetches; got != 10 {
		t.Errorf("expected 10 fetches for the 2 remaining activities, got %d", got)
	}
	if report.Downloaded != 10 || report.Skipped != 10 {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestSingleActivityBypassesPlanner(t *testing.T) {
	activities := makeActivities(1)
	session := newFakeSession(t, activities)
	dir := t.TempDir()
	downloader := NewDownloader(session, dir, nil, discardLogger())

	// First pass downloads everything.
	if _, err := downloader.Run(context.Background(), nil, activities[0].ID); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	before := len(session.fetchCalls)

	// Explicit single-activity request must re-fetch even though all local
	// files exist.
	report, err := downloader.Run(context.Background(), nil, activities[0].ID)
	if err != nil {
		t.Fatalf("second Run() failed: %v", err)
	}
	if got := len(session.fetchCalls) - before; got != len(garmin.Formats()) {
		t.Errorf("expected %d re-fetches, got %d", len(garmin.Formats()), got)
	}
	if report.Downloaded != len(garmin.Formats()) {
		t.Errorf("report.Downloaded = %d, want %d", report.Downloaded, len(garmin.Formats()))
	}
}

func TestRunFormatSubset(t *testing.T) {
	session := newFakeSession(t, makeActivities(2))
	dir := t.TempDir()
	downloader := NewDownloader(session, dir, nil, discardLogger())

	formats := []garmin.Format{garmin.FormatOriginal, garmin.FormatGPX}
	report, err := downloader.Run(context.Background(), formats, 0)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	dataFiles, _ := countFiles(t, dir)
	if dataFiles != 4 {
		t.Errorf("expected 4 data files (2 activities x 2 formats), got %d", dataFiles)
	}
	if report.Downloaded != 4 {
		t.Errorf("report.Downloaded = %d, want 4", report.Downloaded)
	}
}

func TestDownloadWellnessFutureDate(t *testing.T) {
	downloader := NewDownloader(newFakeSession(t, nil), t.TempDir(), nil, discardLogger())
	_, err := downloader.DownloadWellness(context.Background(), time.Now().AddDate(0, 0, 2))
	if err == nil {
		t.Fatal("expected error for a future date")
	}
}

func TestRunRecordsHistory(t *testing.T) {
	st, err := store.New(":memory:", discardLogger())
	if err != nil {
		t.Fatalf("store.New() failed: %v", err)
	}
	defer st.Close()

	session := newFakeSession(t, makeActivities(2))
	session.statuses[garmin.FormatTCX] = 404
	downloader := NewDownloader(session, t.TempDir(), st, discardLogger())

	if _, err := downloader.Run(context.Background(), nil, 0); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	runs, err := st.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 recorded run, got %d", len(runs))
	}
	run := runs[0]
	if run.Mode != "full" {
		t.Errorf("Mode = %q, want \"full\"", run.Mode)
	}
	if run.Status != store.StatusPartial {
		t.Errorf("Status = %q, want partial (tcx was missing)", run.Status)
	}
	if run.Downloaded != 8 || run.NotFound != 2 {
		t.Errorf("unexpected counts: downloaded=%d not_found=%d", run.Downloaded, run.NotFound)
	}
}
