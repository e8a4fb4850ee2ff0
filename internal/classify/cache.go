package classify

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"ticketbot/internal/domain"
	"ticketbot/internal/metrics"
	"ticketbot/internal/storage/sqlite"
)

// FetchOptionsFunc fetches the live option values of a custom field
// from the ticketing system.
type FetchOptionsFunc func(ctx context.Context, fieldID string) ([]string, error)

// CategoryCache holds the classification vocabulary per field id,
// refreshed from Zendesk when the TTL expires and mirrored into the
// ticket_fields table so restarts start from the last known good set.
//
// Stale data is always preferred over a failed fetch: the cache never
// surfaces an error to the classification path.
type CategoryCache struct {
	db      *sql.DB
	fetch   FetchOptionsFunc
	ttl     time.Duration
	now     func() time.Time
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	entries map[string]domain.CategorySet
}

func NewCategoryCache(db *sql.DB, fetch FetchOptionsFunc, ttl time.Duration, m *metrics.Metrics, logger *zap.Logger) *CategoryCache {
	return &CategoryCache{
		db:      db,
		fetch:   fetch,
		ttl:     ttl,
		now:     time.Now,
		logger:  logger,
		metrics: m,
		entries: make(map[string]domain.CategorySet),
	}
}

// Categories returns the current vocabulary for fieldID. It never
// fails: on any fetch problem it returns the last known set, falling
// back to the durable mirror, or an empty slice if nothing has ever
// been fetched.
func (c *CategoryCache) Categories(ctx context.Context, fieldID string) []string {
	c.mu.Lock()
	entry, ok := c.entries[fieldID]
	c.mu.Unlock()

	if ok && c.now().Sub(entry.FetchedAt) < c.ttl {
		return copyValues(entry.Values)
	}

	if refreshed, err := c.Refresh(ctx, fieldID); err == nil {
		return copyValues(refreshed.Values)
	}

	// Fetch failed or came back empty. Serve whatever is known.
	if ok {
		c.logger.Warn("serving stale category vocabulary",
			zap.String("field_id", fieldID),
			zap.Time("fetched_at", entry.FetchedAt))
		return copyValues(entry.Values)
	}

	stored, err := sqlite.GetFieldOptions(c.db, fieldID)
	if err != nil {
		if err != sql.ErrNoRows {
			c.logger.Warn("loading stored category vocabulary failed",
				zap.String("field_id", fieldID), zap.Error(err))
		}
		return nil
	}

	// The mirror row keeps its stored FetchedAt, so an expired row
	// still triggers a remote retry on the next call.
	c.mu.Lock()
	c.entries[fieldID] = stored
	c.mu.Unlock()

	c.logger.Info("category vocabulary restored from store",
		zap.String("field_id", fieldID),
		zap.Int("values", len(stored.Values)))
	return copyValues(stored.Values)
}

// Refresh fetches the vocabulary from the ticketing system and, when
// non-empty, persists it and swaps the in-memory entry. A concurrent
// duplicate fetch converges to the same remote truth and is harmless.
func (c *CategoryCache) Refresh(ctx context.Context, fieldID string) (domain.CategorySet, error) {
	values, err := c.fetch(ctx, fieldID)
	if err != nil {
		c.metrics.FieldRefreshTotal.WithLabelValues("error").Inc()
		c.logger.Warn("category vocabulary fetch failed",
			zap.String("field_id", fieldID), zap.Error(err))
		return domain.CategorySet{}, err
	}
	if len(values) == 0 {
		c.metrics.FieldRefreshTotal.WithLabelValues("empty").Inc()
		c.logger.Warn("category vocabulary fetch returned no options",
			zap.String("field_id", fieldID))
		return domain.CategorySet{}, errEmptyVocabulary
	}

	set := domain.CategorySet{
		FieldID:   fieldID,
		Values:    values,
		FetchedAt: c.now(),
	}
	if err := sqlite.UpsertFieldOptions(c.db, set); err != nil {
		// The in-memory entry still serves this process; only the
		// restart mirror is behind.
		c.logger.Warn("persisting category vocabulary failed",
			zap.String("field_id", fieldID), zap.Error(err))
	}

	c.mu.Lock()
	c.entries[fieldID] = set
	c.mu.Unlock()

	c.metrics.FieldRefreshTotal.WithLabelValues("ok").Inc()
	c.logger.Info("category vocabulary refreshed",
		zap.String("field_id", fieldID),
		zap.Int("values", len(values)))
	return set, nil
}

var errEmptyVocabulary = errors.New("field options fetch returned no values")

func copyValues(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}
