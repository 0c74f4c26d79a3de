// Package recent tracks recently submitted claims for the duplicate-claim
// heuristic.
package recent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Tracker counts claim submissions sharing a claimant/amount/incident-date
// fingerprint within a sliding window. Backed by the cache's windowed
// counters so the Pro tier shares counts across instances through Redis.
type Tracker struct {
	cache  domain.Cache
	window time.Duration
}

// NewTracker creates a tracker. The window bounds how long a submission
// stays visible to the duplicate check.
func NewTracker(cache domain.Cache, window time.Duration) *Tracker {
	if window <= 0 {
		window = 72 * time.Hour
	}
	return &Tracker{cache: cache, window: window}
}

// Observe records the claim's fingerprint and returns how many submissions
// with the same fingerprint were seen inside the window, this one included.
// Claims without a usable fingerprint count as unique.
func (t *Tracker) Observe(ctx context.Context, tenantID string, summary *domain.ClaimSummary) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("tenantID is required")
	}

	key, ok := fingerprint(summary)
	if !ok {
		return 1, nil
	}

	count, err := t.cache.IncrementCounter(ctx, tenantID, key, t.window)
	if err != nil {
		return 0, fmt.Errorf("failed to track recent claim: %w", err)
	}

	return count, nil
}

// fingerprint derives the dedup key from the summary. Requires a claimant
// name and a non-zero amount; without both, any match would be noise.
func fingerprint(s *domain.ClaimSummary) (string, bool) {
	if s == nil || s.Claimant.Name == "" || s.Amount.IsZero() {
		return "", false
	}

	var day string
	if !s.IncidentDate.IsZero() {
		day = s.IncidentDate.UTC().Format("2006-01-02")
	}

	raw := strings.ToLower(strings.TrimSpace(s.Claimant.Name)) + "|" + s.Amount.String() + "|" + day
	sum := sha256.Sum256([]byte(raw))

	return "recent:" + hex.EncodeToString(sum[:16]), true
}
