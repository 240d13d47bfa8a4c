package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// canonicalIDPattern matches the Tracker-style PROJ-N identifier that
// serves as SyncState's primary key (spec §3).
var canonicalIDPattern = regexp.MustCompile(`^([A-Z][A-Z0-9]*)-(\d+)$`)

// CanonicalID is a validated "PROJ-N" identifier.
type CanonicalID string

// NewCanonicalID validates and returns id as a CanonicalID.
func NewCanonicalID(id string) (CanonicalID, error) {
	if !canonicalIDPattern.MatchString(id) {
		return "", fmt.Errorf("invalid canonical identifier %q: want PROJ-N", id)
	}
	return CanonicalID(id), nil
}

// Project returns the uppercase project code prefix, e.g. "ACME" for "ACME-7".
func (c CanonicalID) Project() ProjectCode {
	parts := canonicalIDPattern.FindStringSubmatch(string(c))
	if parts == nil {
		return ""
	}
	return ProjectCode(parts[1])
}

// Number returns the numeric suffix, e.g. 7 for "ACME-7".
func (c CanonicalID) Number() int {
	parts := canonicalIDPattern.FindStringSubmatch(string(c))
	if parts == nil {
		return 0
	}
	n, _ := strconv.Atoi(parts[2])
	return n
}

func (c CanonicalID) String() string { return string(c) }

// ProjectCode is the uppercase project prefix of a CanonicalID.
type ProjectCode string

// ProjectCodeOf extracts the "PROJ" prefix out of an arbitrary
// "PROJ-N" string without validating the full identifier, used by the
// webhook ingester (spec §4.4) which only has a raw identifier string.
func ProjectCodeOf(id string) ProjectCode {
	idx := strings.LastIndex(id, "-")
	if idx <= 0 {
		return ""
	}
	return ProjectCode(strings.ToUpper(id[:idx]))
}

// trackerIssueDescriptionPatterns recognizes the two sentinel phrases the
// engine looks for when it must recover a Tracker id from free-text
// description content (spec §4.3 step 7, §4.5 phase2).
var trackerIssueDescriptionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`Synced from Tracker:\s*([A-Z][A-Z0-9]*-\d+)`),
	regexp.MustCompile(`Tracker Issue:\s*([A-Z][A-Z0-9]*-\d+)`),
}

// ExtractTrackerID recovers a "PROJ-N" identifier embedded in free text,
// following the two sentinel phrases the engine and pipeline recognize.
// Returns "" if no match is found.
func ExtractTrackerID(text string) CanonicalID {
	for _, pattern := range trackerIssueDescriptionPatterns {
		if m := pattern.FindStringSubmatch(text); m != nil {
			return CanonicalID(m[1])
		}
	}
	return ""
}

// trackerLabelPattern matches a RepoLog label of the form "tracker:PROJ-N"
// (spec §4.1, §4.4, §4.5 phase3b).
var trackerLabelPattern = regexp.MustCompile(`^tracker:([A-Z][A-Z0-9]*-\d+)$`)

// ExtractTrackerLabels returns every "tracker:PROJ-N" label present,
// preserving duplicates. The sync path does not call it: phase3b reads a
// single TrackerID per RepoLog issue, so multiple labels are not fanned
// out (see DESIGN.md Open Question #2).
func ExtractTrackerLabels(labels []string) []CanonicalID {
	var ids []CanonicalID
	for _, l := range labels {
		if m := trackerLabelPattern.FindStringSubmatch(l); m != nil {
			ids = append(ids, CanonicalID(m[1]))
		}
	}
	return ids
}

// HasLabel reports whether labels contains the exact label value.
func HasLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}
