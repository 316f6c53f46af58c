// Package verify checks the integrity of files in a backup directory:
// FIT files must decode, JSON documents must parse, and GPX/TCX exports
// must be well-formed XML.
package verify

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/muktihari/fit/decoder"
)

// InvalidFile describes one file that failed verification.
type InvalidFile struct {
	Name   string
	Reason string
}

// Report summarizes a verification pass over a backup directory.
type Report struct {
	TotalFiles   int
	ValidFiles   int
	SkippedFiles int
	InvalidFiles []InvalidFile
}

// Dir verifies every data file directly under backupDir. Files with
// unrecognized extensions and the not-found ledger are skipped, not failed.
func Dir(backupDir string, logger *slog.Logger) (*Report, error) {
	if logger == nil {
		logger = slog.Default()
	}

	entries, err := os.ReadDir(backupDir)
	if err != nil {
		return nil, fmt.Errorf("reading backup directory %s: %w", backupDir, err)
	}

	report := &Report{}
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		err := verifyFile(filepath.Join(backupDir, entry.Name()))
		switch {
		case err == nil:
			report.TotalFiles++
			report.ValidFiles++
		case errors.Is(err, errUnrecognized):
			report.SkippedFiles++
			logger.Debug("skipping unrecognized file", "name", entry.Name())
		default:
			report.TotalFiles++
			report.InvalidFiles = append(report.InvalidFiles, InvalidFile{
				Name:   entry.Name(),
				Reason: err.Error(),
			})
			logger.Warn("invalid file", "name", entry.Name(), "error", err)
		}
	}

	return report, nil
}

var errUnrecognized = errors.New("unrecognized file type")

func verifyFile(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".fit":
		return verifyFIT(path)
	case ".json":
		return verifyJSON(path)
	case ".gpx", ".tcx":
		return verifyXML(path)
	case ".zip":
		return verifyZip(path)
	default:
		return errUnrecognized
	}
}

func verifyFIT(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := decoder.New(f)
	if _, err := dec.Decode(); err != nil {
		return fmt.Errorf("fit decode failed: %w", err)
	}
	return nil
}

func verifyJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if !json.Valid(data) {
		return errors.New("invalid json")
	}
	return nil
}

func verifyXML(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := xml.NewDecoder(f)
	for {
		_, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("malformed xml: %w", err)
		}
	}
}

func verifyZip(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if _, err := zip.NewReader(bytes.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("unreadable archive: %w", err)
	}
	return nil
}
