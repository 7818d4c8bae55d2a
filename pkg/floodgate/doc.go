// Package floodgate provides adaptive rate limiting and DDoS detection for
// Go applications.
//
// The engine tracks per-source request history in bounded sliding windows,
// applies reputation-aware threshold policies, detects short-window bursts,
// escalates repeat offenders through progressive penalties up to automatic
// bans, and scores behavioral and statistical abuse signals, all in memory,
// on the hot path of every inbound request.
//
// # Quick Start
//
// Construct an engine and evaluate requests by source key:
//
//	limiter, err := floodgate.NewRateLimiter()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	decision, err := limiter.Evaluate("198.51.100.7", time.Now(), floodgate.RequestMetadata{})
//	if !decision.Allowed() {
//	    fmt.Printf("%s: retry after %v\n", decision.Reason, decision.RetryAfter)
//	}
//
// The source is an opaque identity token: an IP address, phone number, API
// key or anything else the host application keys traffic by.
//
// # HTTP Middleware
//
// Use as HTTP middleware for automatic enforcement:
//
//	limiter, _ := floodgate.NewRateLimiter(
//	    floodgate.WithKeyExtractor(floodgate.ExtractIPWithProxy()),
//	)
//
//	http.Handle("/api/", limiter.Middleware(yourHandler))
//
// Rate-limited and temporarily blocked requests receive 429 with a
// Retry-After header; banned sources receive 403.
//
// # Decision Pipeline
//
// Every Evaluate call walks the same pipeline:
//
//  1. An active ban short-circuits everything else.
//  2. An active penalty short-circuits the counters.
//  3. The request is recorded in the source's sliding window and the
//     rolling behavior profile is updated.
//  4. The behavioral analyzer may flag the source suspicious (mechanical
//     timing, user-agent rotation, bot agent strings, geo spread).
//  5. The burst guard may apply a flat penalty and escalate to auto-ban.
//  6. The threshold policy compares minute/hour counts against effective
//     limits (trusted x2.0, suspicious x0.1, new source x0.3) and may apply
//     a progressive penalty.
//  7. Otherwise the request is allowed with counts and limits attached.
//
// The DDoS threat scorer runs out of band via ScoreThreat (dashboards,
// manual analysis) and feeds critical findings back into the same auto-ban
// rules as burst and threshold violations.
//
// # Configuration
//
// Load thresholds from YAML:
//
//	limiter, err := floodgate.NewRateLimiter(
//	    floodgate.WithConfigFile("floodgate.yaml"),
//	)
//
// Example configuration:
//
//	requests_per_minute: 30
//	requests_per_hour: 800
//	burst_threshold: 5
//	burst_window_seconds: 10
//	auto_ban_threshold: 10
//	auto_ban_duration_seconds: 86400
//
// # Concurrency
//
// All public methods are safe for concurrent use. State is partitioned per
// source: each source's window and behavior profile live behind their own
// lock, so concurrent requests from different sources never contend. The
// background sweep snapshots keys and locks per entry, never stalling the
// hot path for a full table scan.
//
// # Persistence
//
// The engine is purely in-memory. Hosts that need bans and trust lists to
// survive restarts can persist Snapshot() through the store package (memory
// or Redis backed) and feed it back with RestoreSnapshot().
package floodgate
