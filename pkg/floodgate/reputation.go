package floodgate

import (
	"sync"
	"time"
)

// ViolationKind identifies what rule a source broke.
type ViolationKind string

const (
	ViolationBurst       ViolationKind = "burst"
	ViolationMinuteLimit ViolationKind = "minute_limit"
	ViolationHourLimit   ViolationKind = "hour_limit"
	ViolationDDoS        ViolationKind = "ddos"
	ViolationInjection   ViolationKind = "injection"
)

// ViolationRecord is a single recorded rule breach for a source.
type ViolationRecord struct {
	Timestamp time.Time     `json:"timestamp"`
	Kind      ViolationKind `json:"kind"`
	Detail    string        `json:"detail,omitempty"`
}

// ReputationStore tracks trusted, suspicious and banned sources plus their
// violation history. Trusted and suspicious are independent sticky flags;
// bans and penalties carry expiries that are cleared lazily on read.
// All methods are safe for concurrent use.
type ReputationStore struct {
	mu         sync.RWMutex
	trusted    map[string]struct{}
	suspicious map[string]struct{}
	banned     map[string]time.Time
	penalized  map[string]time.Time
	violations map[string][]ViolationRecord
	memory     time.Duration
}

// NewReputationStore creates a store that retains violation records for the
// given memory window.
func NewReputationStore(memory time.Duration) *ReputationStore {
	return &ReputationStore{
		trusted:    make(map[string]struct{}),
		suspicious: make(map[string]struct{}),
		banned:     make(map[string]time.Time),
		penalized:  make(map[string]time.Time),
		violations: make(map[string][]ViolationRecord),
		memory:     memory,
	}
}

// AddTrusted puts a source on the explicit allow-list.
func (s *ReputationStore) AddTrusted(source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trusted[source] = struct{}{}
}

// RemoveTrusted takes a source off the allow-list.
func (s *ReputationStore) RemoveTrusted(source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.trusted, source)
}

// IsTrusted reports whether a source is on the allow-list.
func (s *ReputationStore) IsTrusted(source string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.trusted[source]
	return ok
}

// MarkSuspicious flags a source for stricter limits. The flag is sticky
// until explicitly cleared.
func (s *ReputationStore) MarkSuspicious(source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspicious[source] = struct{}{}
}

// ClearSuspicious removes the suspicious flag.
func (s *ReputationStore) ClearSuspicious(source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.suspicious, source)
}

// IsSuspicious reports whether a source is flagged suspicious.
func (s *ReputationStore) IsSuspicious(source string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.suspicious[source]
	return ok
}

// Ban blocks a source until the given time. An existing later expiry is
// kept; a ban never shortens an existing longer block.
func (s *ReputationStore) Ban(source string, until time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.banned[source]; ok && existing.After(until) {
		return
	}
	s.banned[source] = until
}

// Unban clears any ban on the source.
func (s *ReputationStore) Unban(source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.banned, source)
}

// BannedUntil returns the ban expiry if the source is banned at the given
// time. A past-or-equal expiry counts as not banned and is removed.
func (s *ReputationStore) BannedUntil(source string, now time.Time) (time.Time, bool) {
	s.mu.RLock()
	until, ok := s.banned[source]
	s.mu.RUnlock()
	if !ok {
		return time.Time{}, false
	}
	if !until.After(now) {
		s.mu.Lock()
		// Re-check: the ban may have been extended since the read lock.
		if current, still := s.banned[source]; still && !current.After(now) {
			delete(s.banned, source)
		}
		s.mu.Unlock()
		return time.Time{}, false
	}
	return until, true
}

// Penalize applies a temporary block until the given time, keeping any
// existing later expiry.
func (s *ReputationStore) Penalize(source string, until time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.penalized[source]; ok && existing.After(until) {
		return
	}
	s.penalized[source] = until
}

// PenalizedUntil returns the penalty expiry if the source is penalized at
// the given time, clearing stale entries lazily.
func (s *ReputationStore) PenalizedUntil(source string, now time.Time) (time.Time, bool) {
	s.mu.RLock()
	until, ok := s.penalized[source]
	s.mu.RUnlock()
	if !ok {
		return time.Time{}, false
	}
	if !until.After(now) {
		s.mu.Lock()
		if current, still := s.penalized[source]; still && !current.After(now) {
			delete(s.penalized, source)
		}
		s.mu.Unlock()
		return time.Time{}, false
	}
	return until, true
}

// RecordViolation appends a violation record, pruning entries older than
// the violation memory window.
func (s *ReputationStore) RecordViolation(source string, rec ViolationRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.violations[source] = pruneViolations(append(s.violations[source], rec), rec.Timestamp.Add(-s.memory))
}

// Violations returns a copy of the source's violation records still inside
// the memory window, pruning expired ones.
func (s *ReputationStore) Violations(source string, now time.Time) []ViolationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := pruneViolations(s.violations[source], now.Add(-s.memory))
	if len(kept) == 0 {
		delete(s.violations, source)
		return nil
	}
	s.violations[source] = kept
	out := make([]ViolationRecord, len(kept))
	copy(out, kept)
	return out
}

// CountViolations returns how many violations the source accumulated inside
// the trailing window, optionally filtered to the given kinds.
func (s *ReputationStore) CountViolations(source string, now time.Time, window time.Duration, kinds ...ViolationKind) int {
	cutoff := now.Add(-window)
	count := 0
	for _, rec := range s.Violations(source, now) {
		if rec.Timestamp.Before(cutoff) {
			continue
		}
		if len(kinds) == 0 {
			count++
			continue
		}
		for _, k := range kinds {
			if rec.Kind == k {
				count++
				break
			}
		}
	}
	return count
}

// HasActiveState reports whether the source carries any ban, penalty or
// remembered violation at the given time. The sweep keeps such sources.
func (s *ReputationStore) HasActiveState(source string, now time.Time) bool {
	if _, banned := s.BannedUntil(source, now); banned {
		return true
	}
	if _, penalized := s.PenalizedUntil(source, now); penalized {
		return true
	}
	return len(s.Violations(source, now)) > 0
}

// SweepExpired drops expired bans and penalties and prunes violation
// histories. It returns the number of entries removed.
func (s *ReputationStore) SweepExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for source, until := range s.banned {
		if !until.After(now) {
			delete(s.banned, source)
			removed++
		}
	}
	for source, until := range s.penalized {
		if !until.After(now) {
			delete(s.penalized, source)
			removed++
		}
	}
	cutoff := now.Add(-s.memory)
	for source, recs := range s.violations {
		kept := pruneViolations(recs, cutoff)
		if len(kept) == 0 {
			delete(s.violations, source)
			removed++
			continue
		}
		s.violations[source] = kept
	}
	return removed
}

func pruneViolations(recs []ViolationRecord, cutoff time.Time) []ViolationRecord {
	drop := 0
	for drop < len(recs) && recs[drop].Timestamp.Before(cutoff) {
		drop++
	}
	if drop == 0 {
		return recs
	}
	return append(recs[:0], recs[drop:]...)
}

// ReputationSnapshot is a versioned, serializable view of the store used by
// host applications to persist bans and trust lists across restarts.
type ReputationSnapshot struct {
	Version    int                  `json:"version"`
	TakenAt    time.Time            `json:"taken_at"`
	Trusted    []string             `json:"trusted"`
	Suspicious []string             `json:"suspicious"`
	Banned     map[string]time.Time `json:"banned"`
}

// SnapshotVersion is the current snapshot schema version.
const SnapshotVersion = 1

// Snapshot captures the administrative state (trust, suspicion, bans) at
// the given time. Violation histories and penalties are transient and are
// deliberately not captured.
func (s *ReputationStore) Snapshot(now time.Time) *ReputationSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &ReputationSnapshot{
		Version: SnapshotVersion,
		TakenAt: now,
		Banned:  make(map[string]time.Time, len(s.banned)),
	}
	for source := range s.trusted {
		snap.Trusted = append(snap.Trusted, source)
	}
	for source := range s.suspicious {
		snap.Suspicious = append(snap.Suspicious, source)
	}
	for source, until := range s.banned {
		if until.After(now) {
			snap.Banned[source] = until
		}
	}
	return snap
}

// Restore merges a snapshot into the store, skipping bans that have already
// expired relative to the given time.
func (s *ReputationStore) Restore(snap *ReputationSnapshot, now time.Time) {
	if snap == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, source := range snap.Trusted {
		s.trusted[source] = struct{}{}
	}
	for _, source := range snap.Suspicious {
		s.suspicious[source] = struct{}{}
	}
	for source, until := range snap.Banned {
		if !until.After(now) {
			continue
		}
		if existing, ok := s.banned[source]; ok && existing.After(until) {
			continue
		}
		s.banned[source] = until
	}
}
