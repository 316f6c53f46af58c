package backup

import (
	"github.com/gcbackup/gcbackup/internal/garmin"
)

// Work is one activity together with the formats that still need fetching.
type Work struct {
	Activity garmin.Activity
	Formats  []garmin.Format
}

// Plan computes the minimal fetch list for a sync run. A format is included
// for an activity iff its target filename is in neither existing nor notFound;
// a file on disk therefore always wins over a stale ledger entry. Activities
// with nothing to fetch are dropped. Pure: no network or filesystem access.
func Plan(activities []garmin.Activity, formats []garmin.Format, existing, notFound map[string]struct{}) ([]Work, error) {
	var plan []Work
	for _, activity := range activities {
		var needed []garmin.Format
		for _, format := range formats {
			name, err := activity.ExportFilename(format)
			if err != nil {
				return nil, err
			}
			if _, ok := existing[name]; ok {
				continue
			}
			if _, ok := notFound[name]; ok {
				continue
			}
			needed = append(needed, format)
		}
		if len(needed) > 0 {
			plan = append(plan, Work{Activity: activity, Formats: needed})
		}
	}
	return plan, nil
}
