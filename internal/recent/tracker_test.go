package recent

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/shopspring/decimal"
)

func testSummary() *domain.ClaimSummary {
	return &domain.ClaimSummary{
		ClaimType:    "auto",
		IncidentDate: time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC),
		Amount:       decimal.NewFromInt(3500),
		Currency:     "USD",
		Claimant:     domain.Claimant{Name: "Dana Whitfield"},
	}
}

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	c, err := cache.New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return NewTracker(c, 72*time.Hour)
}

func TestTrackerCountsMatchingSubmissions(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := tracker.Observe(ctx, "tenant-a", testSummary())
		if err != nil {
			t.Fatalf("Observe: %v", err)
		}
		if got != want {
			t.Errorf("submission %d: count = %d, want %d", want, got, want)
		}
	}
}

func TestTrackerDistinctFingerprints(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	if _, err := tracker.Observe(ctx, "tenant-a", testSummary()); err != nil {
		t.Fatalf("Observe: %v", err)
	}

	other := testSummary()
	other.Amount = decimal.NewFromInt(9000)

	got, err := tracker.Observe(ctx, "tenant-a", other)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if got != 1 {
		t.Errorf("different amount should start a new count, got %d", got)
	}

	// Name matching ignores case and surrounding whitespace.
	same := testSummary()
	same.Claimant.Name = "  DANA WHITFIELD "
	got, err = tracker.Observe(ctx, "tenant-a", same)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if got != 2 {
		t.Errorf("normalized name should match the first submission, got %d", got)
	}
}

func TestTrackerTenantIsolation(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	if _, err := tracker.Observe(ctx, "tenant-a", testSummary()); err != nil {
		t.Fatalf("Observe: %v", err)
	}

	got, err := tracker.Observe(ctx, "tenant-b", testSummary())
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if got != 1 {
		t.Errorf("counts must not leak across tenants, got %d", got)
	}
}

func TestTrackerUnusableFingerprint(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	s := testSummary()
	s.Claimant.Name = ""

	got, err := tracker.Observe(ctx, "tenant-a", s)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if got != 1 {
		t.Errorf("claims without a fingerprint count as unique, got %d", got)
	}

	got, err = tracker.Observe(ctx, "tenant-a", nil)
	if err != nil {
		t.Fatalf("Observe(nil): %v", err)
	}
	if got != 1 {
		t.Errorf("nil summary counts as unique, got %d", got)
	}
}

func TestTrackerRequiresTenantID(t *testing.T) {
	tracker := newTestTracker(t)

	if _, err := tracker.Observe(context.Background(), "", testSummary()); err == nil {
		t.Fatal("expected error for empty tenantID")
	}
}
