package garmin

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Activity identifies one recorded session on Garmin Connect.
// Immutable once constructed; safe to use as a map key.
type Activity struct {
	ID    int64
	Name  string
	Type  string
	Start time.Time
}

// BaseFilename derives the canonical local filename stem for the activity:
// the UTC start time in ISO-8601 followed by the activity id. The pair is
// unique because the id alone is unique. Colons are not legal in Windows
// filenames, so they are replaced there.
func (a Activity) BaseFilename() string {
	stamp := a.Start.UTC().Format(time.RFC3339)
	if runtime.GOOS == "windows" {
		stamp = strings.ReplaceAll(stamp, ":", "_")
	}
	return fmt.Sprintf("%s_%d", stamp, a.ID)
}

// ExportFilename returns the local filename for the activity in the given
// format. Pure: no filesystem access.
func (a Activity) ExportFilename(format Format) (string, error) {
	suffix, err := format.Suffix()
	if err != nil {
		return "", err
	}
	return a.BaseFilename() + suffix, nil
}

// ExportFilepath returns the full local path under backupDir for the activity
// in the given format.
func (a Activity) ExportFilepath(backupDir string, format Format) (string, error) {
	name, err := a.ExportFilename(format)
	if err != nil {
		return "", err
	}
	return filepath.Join(backupDir, name), nil
}

// listEntry is one element of the activity list endpoint's JSON response.
// The list endpoint reports start times in GMT without a zone qualifier.
type listEntry struct {
	ActivityID   int64  `json:"activityId"`
	ActivityName string `json:"activityName"`
	ActivityType struct {
		TypeKey string `json:"typeKey"`
	} `json:"activityType"`
	StartTimeGMT string `json:"startTimeGMT"`
}

// activitySummary is the activity summary endpoint's JSON response, which
// unlike the list carries an explicit timezone for the start time.
type activitySummary struct {
	ActivityID   int64  `json:"activityId"`
	ActivityName string `json:"activityName"`
	ActivityType struct {
		TypeKey string `json:"typeKey"`
	} `json:"activityTypeDTO"`
	SummaryDTO struct {
		StartTimeLocal string `json:"startTimeLocal"`
	} `json:"summaryDTO"`
	TimeZoneUnitDTO struct {
		UnitKey string `json:"unitKey"`
	} `json:"timeZoneUnitDTO"`
}

// garmin timestamps come in a few flavors depending on the endpoint.
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.0",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

func parseGarminTime(value string, loc *time.Location) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

// parseActivityList parses the raw list endpoint body into activities.
func parseActivityList(body []byte) ([]Activity, error) {
	var entries []listEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("parsing activity list: %w", err)
	}

	activities := make([]Activity, 0, len(entries))
	for _, e := range entries {
		start, err := parseGarminTime(e.StartTimeGMT, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("activity %d: %w", e.ActivityID, err)
		}
		activities = append(activities, Activity{
			ID:    e.ActivityID,
			Name:  e.ActivityName,
			Type:  e.ActivityType.TypeKey,
			Start: start,
		})
	}
	return activities, nil
}

// parseActivitySummary parses a summary endpoint body into an Activity,
// applying the summary's own timezone to the local start time.
func parseActivitySummary(activityID int64, body []byte) (Activity, error) {
	var summary activitySummary
	if err := json.Unmarshal(body, &summary); err != nil {
		return Activity{}, fmt.Errorf("parsing summary for activity %d: %w", activityID, err)
	}

	loc := time.UTC
	if key := summary.TimeZoneUnitDTO.UnitKey; key != "" {
		l, err := time.LoadLocation(key)
		if err != nil {
			return Activity{}, fmt.Errorf("activity %d: unknown timezone %q: %w", activityID, key, err)
		}
		loc = l
	}

	start, err := parseGarminTime(summary.SummaryDTO.StartTimeLocal, loc)
	if err != nil {
		return Activity{}, fmt.Errorf("activity %d: %w", activityID, err)
	}

	return Activity{
		ID:    activityID,
		Name:  summary.ActivityName,
		Type:  summary.ActivityType.TypeKey,
		Start: start,
	}, nil
}
