package floodgate

import "time"

// SourceWindow is the per-source sliding window of request timestamps.
// Timestamps are kept in arrival order and pruned lazily against the
// retention horizon, so every counting window (minute, hour, burst) is a
// sub-window of the retained data.
//
// SourceWindow is not safe for concurrent use; the RateLimiter guards each
// source's state with a per-source lock.
type SourceWindow struct {
	requests  []time.Time
	firstSeen time.Time
	lastSeen  time.Time
	total     int64
	retention time.Duration
}

func newSourceWindow(retention time.Duration, now time.Time) *SourceWindow {
	return &SourceWindow{
		firstSeen: now,
		lastSeen:  now,
		retention: retention,
	}
}

// Record appends a request at the given time and prunes entries older than
// the retention horizon. A timestamp earlier than the last recorded one
// (clock skew) is clamped to the last-seen time so the sequence stays
// ordered and counts never go negative. It returns the timestamp actually
// recorded.
func (w *SourceWindow) Record(now time.Time) time.Time {
	if now.Before(w.lastSeen) {
		now = w.lastSeen
	}
	w.requests = append(w.requests, now)
	w.lastSeen = now
	w.total++
	w.prune(now)
	return now
}

// CountSince returns the number of requests recorded in [now-window, now].
// Entries are time-ordered, so a backward scan with early exit is exact and
// O(k) in the count returned.
func (w *SourceWindow) CountSince(now time.Time, window time.Duration) int {
	cutoff := now.Add(-window)
	count := 0
	for i := len(w.requests) - 1; i >= 0; i-- {
		if w.requests[i].Before(cutoff) {
			break
		}
		count++
	}
	return count
}

// prune drops entries older than the retention horizon.
func (w *SourceWindow) prune(now time.Time) {
	cutoff := now.Add(-w.retention)
	drop := 0
	for drop < len(w.requests) && w.requests[drop].Before(cutoff) {
		drop++
	}
	if drop > 0 {
		w.requests = append(w.requests[:0], w.requests[drop:]...)
	}
}

// FirstSeen returns when the source was first observed.
func (w *SourceWindow) FirstSeen() time.Time { return w.firstSeen }

// LastSeen returns when the source was last observed.
func (w *SourceWindow) LastSeen() time.Time { return w.lastSeen }

// TotalRequests returns the lifetime request count; it is never pruned.
func (w *SourceWindow) TotalRequests() int64 { return w.total }
