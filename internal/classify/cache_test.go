package classify

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"ticketbot/internal/domain"
	"ticketbot/internal/metrics"
	"ticketbot/internal/storage/sqlite"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlite.InitDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

// countingFetcher returns canned values and records how often it was called.
type countingFetcher struct {
	values []string
	err    error
	calls  int
}

func (f *countingFetcher) fetch(ctx context.Context, fieldID string) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.values, nil
}

func newTestCache(t *testing.T, fetcher *countingFetcher, ttl time.Duration) (*CategoryCache, *time.Time) {
	t.Helper()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	cache := NewCategoryCache(newTestDB(t), fetcher.fetch, ttl, newTestMetrics(), zap.NewNop())
	cache.now = func() time.Time { return now }
	return cache, &now
}

func TestCategoriesFetchesOnceWithinTTL(t *testing.T) {
	fetcher := &countingFetcher{values: []string{"billing", "bug_report"}}
	cache, _ := newTestCache(t, fetcher, 12*time.Hour)

	for i := 0; i < 3; i++ {
		got := cache.Categories(context.Background(), "42")
		if len(got) != 2 || got[0] != "billing" || got[1] != "bug_report" {
			t.Fatalf("call %d: got %v", i, got)
		}
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected 1 fetch, got %d", fetcher.calls)
	}
}

func TestCategoriesRefetchesAfterTTL(t *testing.T) {
	fetcher := &countingFetcher{values: []string{"billing"}}
	cache, now := newTestCache(t, fetcher, 12*time.Hour)

	cache.Categories(context.Background(), "42")
	*now = now.Add(12*time.Hour + time.Minute)
	cache.Categories(context.Background(), "42")

	if fetcher.calls != 2 {
		t.Fatalf("expected 2 fetches, got %d", fetcher.calls)
	}
}

func TestCategoriesServesStaleOnFetchFailure(t *testing.T) {
	fetcher := &countingFetcher{values: []string{"billing", "other"}}
	cache, now := newTestCache(t, fetcher, 12*time.Hour)

	cache.Categories(context.Background(), "42")
	*now = now.Add(13 * time.Hour)
	fetcher.err = errors.New("zendesk down")

	got := cache.Categories(context.Background(), "42")
	if len(got) != 2 || got[0] != "billing" {
		t.Fatalf("expected stale values, got %v", got)
	}

	// Every subsequent call keeps retrying the remote fetch.
	cache.Categories(context.Background(), "42")
	if fetcher.calls != 3 {
		t.Fatalf("expected 3 fetches, got %d", fetcher.calls)
	}
}

func TestCategoriesRestoresFromStore(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	seed := domain.CategorySet{FieldID: "42", Values: []string{"billing", "bug_report"}, FetchedAt: now.Add(-24 * time.Hour)}
	if err := sqlite.UpsertFieldOptions(db, seed); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	fetcher := &countingFetcher{err: errors.New("zendesk down")}
	cache := NewCategoryCache(db, fetcher.fetch, 12*time.Hour, newTestMetrics(), zap.NewNop())
	cache.now = func() time.Time { return now }

	got := cache.Categories(context.Background(), "42")
	if len(got) != 2 || got[0] != "billing" {
		t.Fatalf("expected stored values, got %v", got)
	}

	// The restored row is expired, so the fetch is retried next time.
	cache.Categories(context.Background(), "42")
	if fetcher.calls != 2 {
		t.Fatalf("expected 2 fetches, got %d", fetcher.calls)
	}
}

func TestCategoriesEmptyWhenNothingKnown(t *testing.T) {
	fetcher := &countingFetcher{err: errors.New("zendesk down")}
	cache, _ := newTestCache(t, fetcher, 12*time.Hour)

	if got := cache.Categories(context.Background(), "42"); len(got) != 0 {
		t.Fatalf("expected no values, got %v", got)
	}
}

func TestRefreshPersistsVocabulary(t *testing.T) {
	db := newTestDB(t)
	fetcher := &countingFetcher{values: []string{"billing"}}
	cache := NewCategoryCache(db, fetcher.fetch, 12*time.Hour, newTestMetrics(), zap.NewNop())

	if _, err := cache.Refresh(context.Background(), "42"); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	stored, err := sqlite.GetFieldOptions(db, "42")
	if err != nil {
		t.Fatalf("GetFieldOptions failed: %v", err)
	}
	if len(stored.Values) != 1 || stored.Values[0] != "billing" {
		t.Fatalf("unexpected stored values: %v", stored.Values)
	}
}

func TestRefreshRejectsEmptyVocabulary(t *testing.T) {
	fetcher := &countingFetcher{values: nil}
	cache, _ := newTestCache(t, fetcher, 12*time.Hour)

	if _, err := cache.Refresh(context.Background(), "42"); err == nil {
		t.Fatal("expected error for empty fetch result")
	}
}
