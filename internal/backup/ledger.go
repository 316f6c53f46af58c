// Package backup implements the incremental synchronization engine: it derives
// the local backup state from disk, plans which (activity, format) pairs still
// need fetching, performs the downloads, and records permanently-absent items
// in a not-found ledger so repeated runs converge without duplicate work.
package backup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LedgerFilename is the sentinel file under the backup directory listing
// filenames previously confirmed absent on the remote service.
const LedgerFilename = ".not_found"

// Ledger is the not-found ledger for one backup directory. Entries are
// filenames, not full paths. The ledger only ever grows: a marked name is
// never pruned automatically, and duplicates collapse into set semantics.
type Ledger struct {
	path    string
	entries map[string]struct{}
}

// LoadLedger reads the ledger file under backupDir. A missing file yields an
// empty ledger. Blank lines are ignored, whitespace is trimmed, and any path
// components in old entries are stripped down to the filename.
func LoadLedger(backupDir string) (*Ledger, error) {
	path := filepath.Join(backupDir, LedgerFilename)
	l := &Ledger{
		path:    path,
		entries: make(map[string]struct{}),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return l, nil
		}
		return nil, fmt.Errorf("reading ledger %s: %w", path, err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		l.entries[filepath.Base(line)] = struct{}{}
	}
	return l, nil
}

// Contains reports whether name is recorded as not found.
func (l *Ledger) Contains(name string) bool {
	_, ok := l.entries[name]
	return ok
}

// Names returns a copy of the recorded set.
func (l *Ledger) Names() map[string]struct{} {
	out := make(map[string]struct{}, len(l.entries))
	for name := range l.entries {
		out[name] = struct{}{}
	}
	return out
}

// Len returns the number of recorded names.
func (l *Ledger) Len() int { return len(l.entries) }

// MarkNotFound unions name into the ledger and persists it. The file is
// rewritten whole through a temp-file rename so a crash mid-write can never
// leave a corrupted ledger.
func (l *Ledger) MarkNotFound(name string) error {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." {
		return fmt.Errorf("refusing to record empty ledger entry")
	}
	if _, ok := l.entries[name]; ok {
		return nil
	}
	l.entries[name] = struct{}{}
	return l.flush()
}

func (l *Ledger) flush() error {
	names := make([]string, 0, len(l.entries))
	for name := range l.entries {
		names = append(names, name)
	}
	sort.Strings(names)

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating backup directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, LedgerFilename+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp ledger: %w", err)
	}
	tmpName := tmp.Name()

	var content strings.Builder
	for _, name := range names {
		content.WriteString(name)
		content.WriteByte('\n')
	}
	if _, err := tmp.WriteString(content.String()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp ledger: %w", err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing ledger: %w", err)
	}
	return nil
}

// ExistingFiles returns the set of filenames directly under backupDir.
// A missing directory yields an empty set: the first run starts from nothing.
func ExistingFiles(backupDir string) (map[string]struct{}, error) {
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]struct{}{}, nil
		}
		return nil, fmt.Errorf("reading backup directory %s: %w", backupDir, err)
	}

	files := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		files[e.Name()] = struct{}{}
	}
	return files, nil
}
