package classify

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"ticketbot/internal/domain"
	"ticketbot/internal/integrations/llm"
	"ticketbot/internal/metrics"
	"ticketbot/internal/storage/sqlite"
)

// ToolCaller is the model-facing surface of the classifier. The nil
// tool call return means the model chose not to classify.
type ToolCaller interface {
	RequestClassification(ctx context.Context, subject, comment string, categories []string) (*llm.ToolCall, llm.Usage, error)
}

// Classifier turns a ticket event into a stored classification. It
// never returns an error: every failure along the way degrades the
// result to the unknown category so the caller can route the ticket to
// human triage.
type Classifier struct {
	llm     ToolCaller
	cache   *CategoryCache
	db      *sql.DB
	fieldID string
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewClassifier(tc ToolCaller, cache *CategoryCache, db *sql.DB, fieldID string, m *metrics.Metrics, logger *zap.Logger) *Classifier {
	return &Classifier{
		llm:     tc,
		cache:   cache,
		db:      db,
		fieldID: fieldID,
		logger:  logger,
		metrics: m,
	}
}

// Classify runs the full pipeline for one ticket event and persists
// the outcome. Categories outside the current vocabulary are kept
// verbatim rather than coerced to unknown; the vocabulary steers the
// model, it does not gate the result.
func (c *Classifier) Classify(ctx context.Context, event domain.TicketEvent) domain.Classification {
	categories := c.cache.Categories(ctx, c.fieldID)

	result := domain.Classification{
		TicketID:     event.TicketID,
		Category:     domain.CategoryUnknown,
		ClassifiedAt: time.Now(),
	}

	start := time.Now()
	call, usage, err := c.llm.RequestClassification(ctx, event.Subject, event.Comment, categories)
	c.metrics.LLMRequestDuration.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		result.Summary = err.Error()
		c.metrics.LLMFailuresTotal.Inc()
		c.metrics.ClassificationsTotal.WithLabelValues("llm_error").Inc()
		c.logger.Error("classification request failed",
			zap.String("ticket_id", event.TicketID), zap.Error(err))
	case call == nil:
		result.Summary = "model did not return a structured classification"
		c.metrics.ClassificationsTotal.WithLabelValues("no_tool_call").Inc()
		c.logger.Warn("model declined to classify",
			zap.String("ticket_id", event.TicketID))
	default:
		args, perr := llm.ParseClassifyArguments(call.Arguments)
		if perr != nil {
			result.Summary = "invalid tool call arguments: " + perr.Error()
			c.metrics.ClassificationsTotal.WithLabelValues("bad_arguments").Inc()
			c.logger.Warn("tool call arguments rejected",
				zap.String("ticket_id", event.TicketID), zap.Error(perr))
			break
		}
		result.Category = args.Category
		result.Summary = args.Summary
		c.metrics.ClassificationsTotal.WithLabelValues("classified").Inc()
		c.logger.Info("ticket classified",
			zap.String("ticket_id", event.TicketID),
			zap.String("category", args.Category),
			zap.Int64("input_tokens", usage.InputTokens),
			zap.Int64("output_tokens", usage.OutputTokens))
	}

	if err := sqlite.UpsertClassification(c.db, result); err != nil {
		// Persistence is best effort; the webhook response and the
		// downstream ticket update do not depend on it.
		c.logger.Error("storing classification failed",
			zap.String("ticket_id", event.TicketID), zap.Error(err))
	}

	return result
}
