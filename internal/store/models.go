package store

import "time"

// Run statuses.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// Run records one backup execution.
type Run struct {
	ID           int64
	Mode         string // "full", "single", "wellness"
	StartTime    time.Time
	EndTime      time.Time
	Activities   int
	Downloaded   int
	NotFound     int
	Skipped      int
	Status       string // one of the Status* constants
	ErrorMessage string
}
