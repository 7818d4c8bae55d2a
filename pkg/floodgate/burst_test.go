package floodgate

import (
	"testing"
	"time"
)

func TestBurstGuardCheck(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	guard := NewBurstGuard(DefaultConfig())

	tests := []struct {
		name          string
		requests      int
		spacing       time.Duration
		suspicious    bool
		wantTriggered bool
		wantCount     int
	}{
		{
			name:          "under threshold",
			requests:      5,
			spacing:       time.Second,
			wantTriggered: false,
			wantCount:     5,
		},
		{
			name:          "over threshold",
			requests:      6,
			spacing:       time.Second,
			wantTriggered: true,
			wantCount:     6,
		},
		{
			name:          "spread out requests",
			requests:      8,
			spacing:       3 * time.Second,
			wantTriggered: false,
			wantCount:     4, // only the last 10s window counts
		},
		{
			name:          "suspicious source has halved threshold",
			requests:      3,
			spacing:       time.Second,
			suspicious:    true,
			wantTriggered: true,
			wantCount:     3,
		},
		{
			name:          "suspicious source under halved threshold",
			requests:      2,
			spacing:       time.Second,
			suspicious:    true,
			wantTriggered: false,
			wantCount:     2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newSourceWindow(time.Hour, base)
			now := base
			for i := 0; i < tt.requests; i++ {
				now = base.Add(time.Duration(i) * tt.spacing)
				w.Record(now)
			}

			triggered, count := guard.Check(w, tt.suspicious, now)
			if triggered != tt.wantTriggered {
				t.Errorf("Check() triggered = %v, want %v", triggered, tt.wantTriggered)
			}
			if count != tt.wantCount {
				t.Errorf("Check() count = %d, want %d", count, tt.wantCount)
			}
		})
	}
}
