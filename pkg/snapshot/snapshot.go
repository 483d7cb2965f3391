// Package snapshot provides the snapshot listing/lookup service of
// §4.6: a thin, cached view over a repository's raw snapshot records,
// with prefix-based ID lookup and date/tag filtering.
package snapshot

import (
	"strings"
	"time"
)

// Snapshot is the service's view of one repository snapshot.
type Snapshot struct {
	ID       string
	Time     time.Time
	Paths    []string
	Tags     []string
	Hostname string
	Parent   string
	Size     int64
	FileCount int
}

// Filter is AND-combined across every non-zero field (§4.6). Tags is
// "at least one of" (set-intersection non-empty); DateFrom/DateTo are
// inclusive.
type Filter struct {
	Tags       []string
	Paths      []string
	Hosts      []string
	DateFrom   *time.Time
	DateTo     *time.Time
	MaxResults int
}

// Summary is what GetSnapshotSummary returns (§4.6).
type Summary struct {
	ID         string
	Timestamp  time.Time
	Paths      []string
	Tags       []string
	Repository string
	Size       int64
	FileCount  int
}

func matches(s Snapshot, f Filter) bool {
	if len(f.Hosts) > 0 {
		found := false
		for _, h := range f.Hosts {
			if s.Hostname == h {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Paths) > 0 {
		found := false
		for _, fp := range f.Paths {
			for _, sp := range s.Paths {
				if strings.Contains(sp, fp) {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Tags) > 0 {
		found := false
		for _, ft := range f.Tags {
			for _, st := range s.Tags {
				if st == ft {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.DateFrom != nil && s.Time.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && s.Time.After(*f.DateTo) {
		return false
	}
	return true
}
