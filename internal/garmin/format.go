package garmin

import (
	"fmt"
	"sort"
	"strings"
)

// Format identifies one export representation of an activity.
type Format int

const (
	FormatSummary Format = iota
	FormatDetails
	FormatGPX
	FormatTCX
	FormatOriginal
)

// formatSpec carries the static per-format download parameters: the endpoint
// template (relative to the connect base URL, with %d for the activity id),
// the local file suffix, and the HTTP status codes tolerated as "no data"
// rather than hard failures.
type formatSpec struct {
	name     string
	endpoint string
	suffix   string
	tolerate []int
}

var formatSpecs = map[Format]formatSpec{
	FormatSummary: {
		name:     "summary",
		endpoint: "/proxy/activity-service/activity/%d",
		suffix:   "_summary.json",
	},
	FormatDetails: {
		name:     "details",
		endpoint: "/proxy/activity-service/activity/%d/details",
		suffix:   "_details.json",
		tolerate: []int{404},
	},
	FormatGPX: {
		name:     "gpx",
		endpoint: "/proxy/download-service/export/gpx/activity/%d",
		suffix:   ".gpx",
		tolerate: []int{404, 204},
	},
	FormatTCX: {
		name:     "tcx",
		endpoint: "/proxy/download-service/export/tcx/activity/%d",
		suffix:   ".tcx",
		tolerate: []int{404, 204},
	},
	FormatOriginal: {
		name:     "original",
		endpoint: "/proxy/download-service/files/activity/%d",
		suffix:   ".fit",
		tolerate: []int{404},
	},
}

// Formats returns all known formats in stable order.
func Formats() []Format {
	fmts := make([]Format, 0, len(formatSpecs))
	for f := range formatSpecs {
		fmts = append(fmts, f)
	}
	sort.Slice(fmts, func(i, j int) bool { return fmts[i] < fmts[j] })
	return fmts
}

// String returns the format's wire name, or "unknown" for values outside the table.
func (f Format) String() string {
	spec, ok := formatSpecs[f]
	if !ok {
		return "unknown"
	}
	return spec.name
}

// Suffix returns the local file suffix for the format.
func (f Format) Suffix() (string, error) {
	spec, ok := formatSpecs[f]
	if !ok {
		return "", &UnknownFormatError{Format: f}
	}
	return spec.suffix, nil
}

// spec returns the formatSpec, erroring on unregistered formats.
func (f Format) spec() (formatSpec, error) {
	spec, ok := formatSpecs[f]
	if !ok {
		return formatSpec{}, &UnknownFormatError{Format: f}
	}
	return spec, nil
}

// ParseFormat resolves a format name as given on the command line.
// "fit" is accepted as an alias for "original" since that is the file
// the original download produces.
func ParseFormat(name string) (Format, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "fit" {
		return FormatOriginal, nil
	}
	for f, spec := range formatSpecs {
		if spec.name == name {
			return f, nil
		}
	}
	return 0, &UnknownFormatError{Name: name}
}

// FormatNames returns the accepted format names for help text.
func FormatNames() []string {
	names := make([]string, 0, len(formatSpecs)+1)
	for _, f := range Formats() {
		names = append(names, f.String())
	}
	names = append(names, "fit")
	return names
}

// UnknownFormatError reports a format that is not in the format table.
type UnknownFormatError struct {
	Format Format
	Name   string
}

func (e *UnknownFormatError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("unknown activity format %q", e.Name)
	}
	return fmt.Sprintf("unknown activity format %d", int(e.Format))
}
