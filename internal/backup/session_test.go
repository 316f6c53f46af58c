package backup

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gcbackup/gcbackup/internal/garmin"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// makeZip builds a zip archive with a single named entry.
func makeZip(t *testing.T, entryName string, content []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(entryName)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// emptyZip builds a valid zip archive containing no entries.
func emptyZip(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := zip.NewWriter(&buf).Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// fakeSession is an in-memory Session. Per-format status codes and bodies can
// be overridden; unset formats return 200 with a plausible body. errFormats
// simulate hard HTTP failures; transportErr simulates a fatal network error.
type fakeSession struct {
	activities []garmin.Activity

	statuses     map[garmin.Format]int
	bodies       map[garmin.Format][]byte
	errFormats   map[garmin.Format]int // format -> hard failure status
	transportErr error

	wellnessStatus int
	wellnessBody   []byte

	fetchCalls []string
}

func newFakeSession(t *testing.T, activities []garmin.Activity) *fakeSession {
	t.Helper()
	return &fakeSession{
		activities: activities,
		statuses:   map[garmin.Format]int{},
		bodies: map[garmin.Format][]byte{
			garmin.FormatSummary:  []byte(`{"activityId": 1}`),
			garmin.FormatDetails:  []byte(`{"metrics": []}`),
			garmin.FormatGPX:      []byte(`<gpx></gpx>`),
			garmin.FormatTCX:      []byte(`<tcx></tcx>`),
			garmin.FormatOriginal: makeZip(t, "activity.fit", []byte("fit bytes")),
		},
		errFormats:     map[garmin.Format]int{},
		wellnessStatus: 200,
		wellnessBody:   makeZip(t, "wellness.fit", []byte("wellness bytes")),
	}
}

func (s *fakeSession) FetchActivity(ctx context.Context, activityID int64, format garmin.Format) (*garmin.Response, error) {
	s.fetchCalls = append(s.fetchCalls, fmt.Sprintf("%d/%s", activityID, format))
	if s.transportErr != nil {
		return nil, s.transportErr
	}
	if status, ok := s.errFormats[format]; ok {
		return nil, &garmin.HTTPError{StatusCode: status, Status: fmt.Sprintf("%d error", status)}
	}
	status := s.statuses[format]
	if status == 0 {
		status = 200
	}
	return &garmin.Response{StatusCode: status, Body: s.bodies[format]}, nil
}

func (s *fakeSession) FetchActivitySummary(ctx context.Context, activityID int64) (garmin.Activity, error) {
	for _, a := range s.activities {
		if a.ID == activityID {
			return a, nil
		}
	}
	return garmin.Activity{}, fmt.Errorf("activity %d not found", activityID)
}

func (s *fakeSession) ListActivities(ctx context.Context) ([]garmin.Activity, error) {
	return s.activities, nil
}

func (s *fakeSession) FetchWellness(ctx context.Context, date time.Time) (*garmin.Response, error) {
	s.fetchCalls = append(s.fetchCalls, "wellness/"+date.Format("2006-01-02"))
	if s.transportErr != nil {
		return nil, s.transportErr
	}
	return &garmin.Response{StatusCode: s.wellnessStatus, Body: s.wellnessBody}, nil
}
