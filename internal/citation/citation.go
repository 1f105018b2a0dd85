// Package citation formats Bluebook-style case citations from the raw
// citation records an upstream source (CourtListener) returns.
package citation

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Record is one raw citation as reported by a source, e.g. volume 601,
// reporter "U.S.", page "416", primary when it is the official reporter
// citation for the case.
type Record struct {
	Volume   int
	Reporter string
	Page     string
	Year     string // ISO-8601 date or a bare year
	Primary  bool
}

// Format chooses the citation to render and produces a Bluebook-style
// string such as "601 U.S. 416 (2024)". Selection order: the record
// tagged Primary; else the first U.S.-reporter record; else the first
// record; empty input returns "".
func Format(records []Record) string {
	r, ok := choose(records)
	if !ok {
		return ""
	}
	year := parseYear(r.Year)
	if year == "" {
		return fmt.Sprintf("%d %s %s", r.Volume, r.Reporter, r.Page)
	}
	return fmt.Sprintf("%d %s %s (%s)", r.Volume, r.Reporter, r.Page, year)
}

func choose(records []Record) (Record, bool) {
	if len(records) == 0 {
		return Record{}, false
	}
	for _, r := range records {
		if r.Primary {
			return r, true
		}
	}
	for _, r := range records {
		if isUSReporter(r.Reporter) {
			return r, true
		}
	}
	return records[0], true
}

func isUSReporter(reporter string) bool {
	return strings.TrimSpace(reporter) == "U.S."
}

// parseYear accepts either a bare "2024" or an ISO-8601 date like
// "2024-06-28" and returns the 4-digit year, or "" if neither parses.
func parseYear(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return strconv.Itoa(t.Year())
	}
	if _, err := strconv.Atoi(s); err == nil && len(s) == 4 {
		return s
	}
	return ""
}
