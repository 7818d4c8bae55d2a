package floodgate

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced Clock for deterministic tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

func mustLimiter(t *testing.T, opts ...Option) *RateLimiter {
	t.Helper()
	rl, err := NewRateLimiter(opts...)
	if err != nil {
		t.Fatalf("NewRateLimiter() error = %v", err)
	}
	return rl
}

func TestEvaluateInvalidSource(t *testing.T) {
	rl := mustLimiter(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if _, err := rl.Evaluate("", now, RequestMetadata{}); !errors.Is(err, ErrInvalidSource) {
		t.Errorf("Evaluate(\"\") error = %v, want ErrInvalidSource", err)
	}
	if _, err := rl.ScoreThreat("", now, "", RequestMetadata{}); !errors.Is(err, ErrInvalidSource) {
		t.Errorf("ScoreThreat(\"\") error = %v, want ErrInvalidSource", err)
	}
	if _, err := rl.Status(""); !errors.Is(err, ErrInvalidSource) {
		t.Errorf("Status(\"\") error = %v, want ErrInvalidSource", err)
	}
	if err := rl.Ban("", time.Hour); !errors.Is(err, ErrInvalidSource) {
		t.Errorf("Ban(\"\") error = %v, want ErrInvalidSource", err)
	}
	if err := rl.Ban("x", 0); !errors.Is(err, ErrInvalidDuration) {
		t.Errorf("Ban(duration=0) error = %v, want ErrInvalidDuration", err)
	}
}

func TestMinuteLimitScenario(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	cfg := DefaultConfig()
	cfg.BurstThreshold = 100 // keep the burst guard out of this scenario

	rl := mustLimiter(t, WithConfig(cfg), WithClock(clock))

	// One request at t0 establishes the source, then let it age past the
	// new-source window so the base limits apply.
	if d, _ := rl.Evaluate("client", clock.Now(), RequestMetadata{}); !d.Allowed() {
		t.Fatalf("first request: action = %q, want allow", d.Action)
	}
	clock.Advance(61 * time.Minute)

	// 31 requests just under 2s apart: the first 30 land inside the base
	// minute limit, the 31st breaches it.
	var last *Decision
	for i := 1; i <= 31; i++ {
		now := clock.Advance(1900 * time.Millisecond)
		d, err := rl.Evaluate("client", now, RequestMetadata{})
		if err != nil {
			t.Fatalf("request %d: error = %v", i, err)
		}
		if i <= 30 {
			if !d.Allowed() {
				t.Fatalf("request %d: action = %q (%s), want allow", i, d.Action, d.Reason)
			}
			if d.MinuteCount != i {
				t.Errorf("request %d: MinuteCount = %d, want %d", i, d.MinuteCount, i)
			}
			if d.Limits == nil || d.Limits.PerMinute != 30 {
				t.Errorf("request %d: limits = %+v, want per-minute 30", i, d.Limits)
			}
		}
		last = d
	}

	if last.Action != ActionRateLimit {
		t.Fatalf("request 31: action = %q (%s), want rate_limit", last.Action, last.Reason)
	}
	// First violation in the trailing hour: base penalty, no escalation.
	if last.RetryAfter != time.Minute {
		t.Errorf("request 31: RetryAfter = %v, want 1m", last.RetryAfter)
	}

	// The penalty now short-circuits evaluation.
	now := clock.Advance(time.Second)
	d, _ := rl.Evaluate("client", now, RequestMetadata{})
	if d.Action != ActionBlockTemporary {
		t.Errorf("during penalty: action = %q, want block_temporary", d.Action)
	}
	if d.RetryAfter != 59*time.Second {
		t.Errorf("during penalty: RetryAfter = %v, want 59s", d.RetryAfter)
	}
}

func TestBurstScenario(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	rl := mustLimiter(t, WithClock(clock))

	// Six requests 200ms apart. The new-source minute limit (9) tolerates
	// them, but the sixth exceeds the burst threshold of 5 in 10s.
	for i := 1; i <= 5; i++ {
		d, err := rl.Evaluate("flooder", clock.Now(), RequestMetadata{})
		if err != nil {
			t.Fatalf("request %d: error = %v", i, err)
		}
		if !d.Allowed() {
			t.Fatalf("request %d: action = %q (%s), want allow", i, d.Action, d.Reason)
		}
		clock.Advance(200 * time.Millisecond)
	}

	d, err := rl.Evaluate("flooder", clock.Now(), RequestMetadata{})
	if err != nil {
		t.Fatalf("request 6: error = %v", err)
	}
	if d.Action != ActionBlockTemporary {
		t.Fatalf("request 6: action = %q (%s), want block_temporary", d.Action, d.Reason)
	}
	if d.RetryAfter != 10*time.Minute {
		t.Errorf("request 6: RetryAfter = %v, want 10m (flat burst penalty)", d.RetryAfter)
	}
	if !strings.Contains(d.Reason, "burst detected") {
		t.Errorf("request 6: Reason = %q, want burst mention", d.Reason)
	}

	status, err := rl.Status("flooder")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.ViolationCount != 1 {
		t.Errorf("ViolationCount = %d, want 1", status.ViolationCount)
	}
	if status.IsBanned {
		t.Error("IsBanned = true after a single burst, want false")
	}
}

func TestAutoBanAfterTenViolations(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	cfg := DefaultConfig()
	cfg.RequestsPerMinute = 1
	cfg.BurstThreshold = 100

	rl := mustLimiter(t, WithConfig(cfg), WithClock(clock))

	// Each round makes two requests a second apart. With a per-minute limit
	// of 1 the second request of every round is a violation; the tenth
	// violation crosses the auto-ban threshold.
	for round := 1; round <= 10; round++ {
		d, err := rl.Evaluate("abuser", clock.Now(), RequestMetadata{})
		if err != nil {
			t.Fatalf("round %d first request: error = %v", round, err)
		}
		if !d.Allowed() {
			t.Fatalf("round %d first request: action = %q (%s), want allow", round, d.Action, d.Reason)
		}

		now := clock.Advance(time.Second)
		d, err = rl.Evaluate("abuser", now, RequestMetadata{})
		if err != nil {
			t.Fatalf("round %d second request: error = %v", round, err)
		}

		switch {
		case round < 10:
			if d.Action != ActionRateLimit {
				t.Fatalf("round %d: action = %q (%s), want rate_limit", round, d.Action, d.Reason)
			}
		default:
			if d.Action != ActionBlockPermanent {
				t.Fatalf("round 10: action = %q (%s), want block_permanent", d.Action, d.Reason)
			}
			if d.RetryAfter != 24*time.Hour {
				t.Errorf("round 10: RetryAfter = %v, want 24h", d.RetryAfter)
			}
			if !strings.Contains(d.Reason, "auto-banned") {
				t.Errorf("round 10: Reason = %q, want auto-ban mention", d.Reason)
			}
		}

		clock.Advance(10 * time.Minute)
	}

	status, err := rl.Status("abuser")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !status.IsBanned {
		t.Error("IsBanned = false after auto-ban, want true")
	}
	if rl.Stats().AutoBans != 1 {
		t.Errorf("Stats().AutoBans = %d, want 1", rl.Stats().AutoBans)
	}
}

func TestBanPrecedence(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	rl := mustLimiter(t, WithClock(clock))

	if err := rl.Ban("banned-client", time.Hour); err != nil {
		t.Fatalf("Ban() error = %v", err)
	}

	d, err := rl.Evaluate("banned-client", clock.Now(), RequestMetadata{})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if d.Action != ActionBlockPermanent {
		t.Fatalf("action = %q, want block_permanent", d.Action)
	}
	if d.RetryAfter != time.Hour {
		t.Errorf("RetryAfter = %v, want 1h", d.RetryAfter)
	}

	// The ban short-circuits the pipeline: no burst or threshold checks run.
	stats := rl.Stats()
	if stats.Evaluations != 1 {
		t.Errorf("Evaluations = %d, want 1", stats.Evaluations)
	}
	if stats.BurstChecks != 0 || stats.ThresholdChecks != 0 {
		t.Errorf("BurstChecks/ThresholdChecks = %d/%d, want 0/0 while banned", stats.BurstChecks, stats.ThresholdChecks)
	}
	if stats.PermBlocked != 1 {
		t.Errorf("PermBlocked = %d, want 1", stats.PermBlocked)
	}
}

func TestBanExpiry(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	rl := mustLimiter(t, WithClock(clock))

	if err := rl.Ban("parolee", time.Hour); err != nil {
		t.Fatalf("Ban() error = %v", err)
	}

	now := clock.Advance(2 * time.Hour)
	d, err := rl.Evaluate("parolee", now, RequestMetadata{})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !d.Allowed() {
		t.Errorf("action = %q (%s), want allow after ban expiry", d.Action, d.Reason)
	}

	status, _ := rl.Status("parolee")
	if status.IsBanned {
		t.Error("IsBanned = true after expiry, want false")
	}
}

func TestTrustToggleAdjustsLimits(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	rl := mustLimiter(t, WithClock(clock))

	// Requests spaced 15s apart keep the burst guard quiet even at the
	// suspicious threshold. The source stays inside the new-source window
	// throughout, so each reputation change shows in the effective limits.
	steps := []struct {
		name      string
		setup     func()
		perMinute int
	}{
		{"trusted", func() { rl.AddTrustedSource("client") }, 60},
		{"new source", func() { rl.RemoveTrustedSource("client") }, 9},
		{"suspicious", func() { rl.MarkSuspicious("client") }, 3},
		{"cleared", func() { rl.ClearSuspicious("client") }, 9},
	}

	for _, step := range steps {
		step.setup()
		now := clock.Advance(15 * time.Second)
		d, err := rl.Evaluate("client", now, RequestMetadata{})
		if err != nil {
			t.Fatalf("%s: error = %v", step.name, err)
		}
		if !d.Allowed() {
			t.Fatalf("%s: action = %q (%s), want allow", step.name, d.Action, d.Reason)
		}
		if d.Limits == nil || d.Limits.PerMinute != step.perMinute {
			t.Errorf("%s: limits = %+v, want per-minute %d", step.name, d.Limits, step.perMinute)
		}
	}
}

func TestContextMultiplierAdjustsLimits(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	rl := mustLimiter(t, WithClock(clock))
	rl.AddTrustedSource("client")

	// Trusted base 60/min scaled by the request context.
	tests := []struct {
		multiplier float64
		perMinute  int
	}{
		{0, 60}, // zero means unscaled
		{1.2, 72},
		{0.5, 30},
	}

	for _, tt := range tests {
		now := clock.Advance(15 * time.Second)
		d, err := rl.Evaluate("client", now, RequestMetadata{ContextMultiplier: tt.multiplier})
		if err != nil {
			t.Fatalf("multiplier %v: error = %v", tt.multiplier, err)
		}
		if d.Limits == nil || d.Limits.PerMinute != tt.perMinute {
			t.Errorf("multiplier %v: limits = %+v, want per-minute %d", tt.multiplier, d.Limits, tt.perMinute)
		}
	}
}

func TestConcurrentEvaluate(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	cfg := DefaultConfig()
	cfg.RequestsPerMinute = 100000
	cfg.RequestsPerHour = 1000000
	cfg.BurstThreshold = 100000

	rl := mustLimiter(t, WithConfig(cfg), WithClock(clock))

	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := rl.Evaluate("shared", start, RequestMetadata{GeoTag: "US"}); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent Evaluate() error = %v", err)
	}

	status, err := rl.Status("shared")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if want := int64(workers * perWorker); status.TotalRequests != want {
		t.Errorf("TotalRequests = %d, want %d", status.TotalRequests, want)
	}
	if got := rl.Stats().Evaluations; got != int64(workers*perWorker) {
		t.Errorf("Stats().Evaluations = %d, want %d", got, workers*perWorker)
	}
}

func TestSweepRemovesStaleSources(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	rl := mustLimiter(t, WithClock(clock))

	if _, err := rl.Evaluate("idle", start, RequestMetadata{}); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if _, err := rl.Evaluate("banned", start, RequestMetadata{}); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if err := rl.Ban("banned", 48*time.Hour); err != nil {
		t.Fatalf("Ban() error = %v", err)
	}

	now := clock.Advance(25 * time.Hour)
	removed := rl.Sweep(now)

	// Both sources are idle past the staleness horizon, but an active ban
	// keeps a source resident.
	if removed != 1 {
		t.Errorf("Sweep() = %d, want 1", removed)
	}
	if got := rl.Stats().ActiveSources; got != 1 {
		t.Errorf("ActiveSources = %d, want 1", got)
	}

	// A swept source starts fresh on its next request.
	d, err := rl.Evaluate("idle", now, RequestMetadata{})
	if err != nil {
		t.Fatalf("Evaluate() after sweep error = %v", err)
	}
	if !d.Allowed() {
		t.Errorf("action = %q, want allow", d.Action)
	}
}

func TestScoreThreatCriticalFlood(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	cfg := DefaultConfig()
	cfg.RequestsPerMinute = 100000
	cfg.RequestsPerHour = 1000000
	cfg.BurstThreshold = 100000

	rl := mustLimiter(t, WithConfig(cfg), WithClock(clock))

	// 700 requests in 35 seconds with identical payloads from one origin:
	// an unmistakable application-layer flood.
	md := RequestMetadata{UserAgent: "flood-client/1.0", PayloadSize: 1000, GeoTag: "US"}
	now := start
	for i := 0; i < 700; i++ {
		if _, err := rl.Evaluate("flood", now, md); err != nil {
			t.Fatalf("request %d: error = %v", i, err)
		}
		now = clock.Advance(50 * time.Millisecond)
	}

	oversized := strings.Repeat("x", 12288)
	assessment, err := rl.ScoreThreat("flood", now, oversized, md)
	if err != nil {
		t.Fatalf("ScoreThreat() error = %v", err)
	}
	if assessment.Level != ThreatCritical {
		t.Fatalf("Level = %q (score %v), want critical", assessment.Level, assessment.Score)
	}
	if assessment.RecommendedAction != string(ActionBlockPermanent) {
		t.Errorf("RecommendedAction = %q, want block_permanent", assessment.RecommendedAction)
	}

	// Each critical assessment records a ddos violation; three inside five
	// minutes trip the fast auto-ban rule.
	for i := 0; i < 2; i++ {
		now = clock.Advance(time.Second)
		if _, err := rl.ScoreThreat("flood", now, oversized, md); err != nil {
			t.Fatalf("ScoreThreat() repeat %d error = %v", i, err)
		}
	}

	status, err := rl.Status("flood")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !status.IsBanned {
		t.Error("IsBanned = false after repeated critical assessments, want true")
	}
}

func TestScoreThreatUnknownSource(t *testing.T) {
	rl := mustLimiter(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	// A source with no traffic history scores only on the payload at hand.
	assessment, err := rl.ScoreThreat("stranger", now, "hello", RequestMetadata{})
	if err != nil {
		t.Fatalf("ScoreThreat() error = %v", err)
	}
	if assessment.Level != ThreatNone {
		t.Errorf("Level = %q, want none", assessment.Level)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	rl := mustLimiter(t, WithClock(clock))

	rl.AddTrustedSource("friend")
	rl.MarkSuspicious("shady")
	if err := rl.Ban("enemy", 48*time.Hour); err != nil {
		t.Fatalf("Ban() error = %v", err)
	}

	snap := rl.Snapshot()

	restored := mustLimiter(t, WithClock(clock))
	restored.RestoreSnapshot(snap)

	status, _ := restored.Status("friend")
	if !status.IsTrusted {
		t.Error("friend not trusted after restore")
	}
	status, _ = restored.Status("shady")
	if !status.IsSuspicious {
		t.Error("shady not suspicious after restore")
	}
	status, _ = restored.Status("enemy")
	if !status.IsBanned {
		t.Error("enemy not banned after restore")
	}
}
