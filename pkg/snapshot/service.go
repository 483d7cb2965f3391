package snapshot

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/auriora/timelocker/pkg/errs"
	"github.com/auriora/timelocker/pkg/repository"
)

// Repository is the slice of pkg/repository.Repository this service
// depends on, kept narrow so pkg/snapshot has a single, mockable seam
// instead of importing the whole repository surface.
type Repository interface {
	ID() string
	Snapshots(ctx context.Context, tags []string) ([]repository.RawSnapshot, error)
}

// fromRaw converts the engine's raw snapshot descriptor into the
// service's model.
func fromRaw(r repository.RawSnapshot) Snapshot {
	id := r.ID
	if id == "" {
		id = r.ShortID
	}
	t, _ := time.Parse(time.RFC3339, r.Time)
	return Snapshot{
		ID:        id,
		Time:      t,
		Paths:     r.Paths,
		Tags:      r.Tags,
		Hostname:  r.Hostname,
		Size:      r.Summary.TotalSize,
		FileCount: r.Summary.TotalFileCount,
	}
}

// Service lists and looks up snapshots from one repository, caching the
// last full listing for the ttl given to NewService (§4.6).
type Service struct {
	mu         sync.Mutex
	repo       Repository
	ttl        time.Duration
	cached     []Snapshot
	cachedAt   time.Time
	hasCache   bool
}

// NewService builds a Service. ttl <= 0 disables caching (every list
// re-queries the repository).
func NewService(repo Repository, ttl time.Duration) *Service {
	return &Service{repo: repo, ttl: ttl}
}

// ClearCache discards the cached listing, forcing the next
// ListSnapshots call to re-query the repository.
func (s *Service) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasCache = false
	s.cached = nil
}

func (s *Service) fresh() bool {
	return s.hasCache && s.ttl > 0 && time.Since(s.cachedAt) < s.ttl
}

// ListSnapshots returns snapshots matching filter, newest first. When
// the cache is fresh and forceRefresh is false, filtering happens
// in-memory against the cached listing; otherwise the repository is
// re-queried (§4.6).
func (s *Service) ListSnapshots(ctx context.Context, filter Filter, forceRefresh bool) ([]Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if forceRefresh || !s.fresh() {
		raw, err := s.repo.Snapshots(ctx, nil)
		if err != nil {
			return nil, errs.Wrap(errs.KindRepository, "failed to list snapshots", err)
		}
		all := make([]Snapshot, len(raw))
		for i, r := range raw {
			all[i] = fromRaw(r)
		}
		sort.Slice(all, func(i, j int) bool { return all[i].Time.After(all[j].Time) })
		s.cached = all
		s.cachedAt = time.Now()
		s.hasCache = true
	}

	var out []Snapshot
	for _, snap := range s.cached {
		if matches(snap, filter) {
			out = append(out, snap)
		}
	}
	if filter.MaxResults > 0 && len(out) > filter.MaxResults {
		out = out[:filter.MaxResults]
	}
	return out, nil
}

// GetSnapshotByID resolves a full or partial snapshot ID by prefix
// match against the current listing. Exactly one match is required.
func (s *Service) GetSnapshotByID(ctx context.Context, idPrefix string) (Snapshot, error) {
	all, err := s.ListSnapshots(ctx, Filter{}, false)
	if err != nil {
		return Snapshot{}, err
	}
	var matches []Snapshot
	for _, snap := range all {
		if strings.HasPrefix(snap.ID, idPrefix) {
			matches = append(matches, snap)
		}
	}
	switch len(matches) {
	case 0:
		return Snapshot{}, errs.Newf(errs.KindSnapshotNotFound, "no snapshot matches id %q", idPrefix)
	case 1:
		return matches[0], nil
	default:
		return Snapshot{}, errs.Newf(errs.KindAmbiguousSnapshot, "id %q matches %d snapshots", idPrefix, len(matches))
	}
}

// GetLatestSnapshot returns the newest snapshot matching filter, or
// false if none match.
func (s *Service) GetLatestSnapshot(ctx context.Context, filter Filter) (Snapshot, bool, error) {
	all, err := s.ListSnapshots(ctx, filter, false)
	if err != nil {
		return Snapshot{}, false, err
	}
	if len(all) == 0 {
		return Snapshot{}, false, nil
	}
	return all[0], true, nil
}

// GetSnapshotsByDate returns snapshots whose timestamp falls within
// toleranceHours of target, newest first.
func (s *Service) GetSnapshotsByDate(ctx context.Context, target time.Time, toleranceHours float64) ([]Snapshot, error) {
	all, err := s.ListSnapshots(ctx, Filter{}, false)
	if err != nil {
		return nil, err
	}
	tolerance := time.Duration(toleranceHours * float64(time.Hour))
	var out []Snapshot
	for _, snap := range all {
		diff := snap.Time.Sub(target)
		if diff < 0 {
			diff = -diff
		}
		if diff <= tolerance {
			out = append(out, snap)
		}
	}
	return out, nil
}

// GetSnapshotSummary projects a Snapshot into the denormalized view
// §4.6 specifies for display/reporting.
func (s *Service) GetSnapshotSummary(snap Snapshot) Summary {
	return Summary{
		ID:         snap.ID,
		Timestamp:  snap.Time,
		Paths:      snap.Paths,
		Tags:       snap.Tags,
		Repository: s.repo.ID(),
		Size:       snap.Size,
		FileCount:  snap.FileCount,
	}
}
