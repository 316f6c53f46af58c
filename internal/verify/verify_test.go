package verify

import (
	"archive/zip"
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeTestFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		t.Fatal(err)
	}
}

func makeZip(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("wellness.fit")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("payload")); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDirValidFiles(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "2018-03-10T10_15_00Z_123_summary.json", []byte(`{"activityId": 123}`))
	writeTestFile(t, dir, "2018-03-10T10_15_00Z_123.gpx", []byte(`<?xml version="1.0"?><gpx></gpx>`))
	writeTestFile(t, dir, "2018-03-10T10_15_00Z_123.tcx", []byte(`<TrainingCenterDatabase/>`))
	writeTestFile(t, dir, "2024-06-01.zip", makeZip(t))

	report, err := Dir(dir, discardLogger())
	if err != nil {
		t.Fatalf("Dir() failed: %v", err)
	}
	if report.TotalFiles != 4 {
		t.Errorf("TotalFiles = %d, want 4", report.TotalFiles)
	}
	if report.ValidFiles != 4 {
		t.Errorf("ValidFiles = %d, want 4", report.ValidFiles)
	}
	if len(report.InvalidFiles) != 0 {
		t.Errorf("unexpected invalid files: %v", report.InvalidFiles)
	}
}

func TestDirInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "bad_summary.json", []byte(`{"activityId": `))
	writeTestFile(t, dir, "bad.gpx", []byte(`<gpx><trk></gpx>`))
	writeTestFile(t, dir, "bad.fit", []byte("not a fit file"))
	writeTestFile(t, dir, "bad.zip", []byte("not a zip"))
	writeTestFile(t, dir, "good.json", []byte(`{}`))

	report, err := Dir(dir, discardLogger())
	if err != nil {
		t.Fatalf("Dir() failed: %v", err)
	}
	if report.TotalFiles != 5 {
		t.Errorf("TotalFiles = %d, want 5", report.TotalFiles)
	}
	if report.ValidFiles != 1 {
		t.Errorf("ValidFiles = %d, want 1", report.ValidFiles)
	}
	if len(report.InvalidFiles) != 4 {
		t.Fatalf("InvalidFiles = %d, want 4", len(report.InvalidFiles))
	}
	for _, inv := range report.InvalidFiles {
		if inv.Reason == "" {
			t.Errorf("invalid file %s has empty reason", inv.Name)
		}
	}
}

func TestDirSkipsLedgerAndUnknown(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, ".not_found", []byte("something.gpx\n"))
	writeTestFile(t, dir, "notes.txt", []byte("not a backup file"))
	writeTestFile(t, dir, "good.json", []byte(`{}`))
	if err := os.Mkdir(filepath.Join(dir, "subdir"), 0755); err != nil {
		t.Fatal(err)
	}

	report, err := Dir(dir, discardLogger())
	if err != nil {
		t.Fatalf("Dir() failed: %v", err)
	}
	if report.TotalFiles != 1 {
		t.Errorf("TotalFiles = %d, want 1", report.TotalFiles)
	}
	if report.SkippedFiles != 1 {
		t.Errorf("SkippedFiles = %d, want 1 (notes.txt)", report.SkippedFiles)
	}
}

func TestDirMissingDirectory(t *testing.T) {
	if _, err := Dir(filepath.Join(t.TempDir(), "absent"), discardLogger()); err == nil {
		t.Error("expected error for missing directory")
	}
}
