package server

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ticketbot/internal/domain"
	"ticketbot/internal/metrics"
	"ticketbot/internal/storage/sqlite"
)

// Classifier produces a classification for a ticket event. It is
// expected never to fail; degraded results carry the unknown category.
type Classifier interface {
	Classify(ctx context.Context, event domain.TicketEvent) domain.Classification
}

// TicketUpdater writes the classification outcome back to the
// ticketing system.
type TicketUpdater interface {
	SetTicketCategory(ctx context.Context, ticketID, fieldID, category string) error
	TagForTriage(ctx context.Context, ticketID string) error
}

// TriageNotifier announces tickets that need a human look.
type TriageNotifier interface {
	NotifyTriage(c domain.Classification, subject string)
}

type Server struct {
	classifier Classifier
	updater    TicketUpdater
	notifier   TriageNotifier
	db         *sql.DB
	fieldID    string
	secret     string
	logger     *zap.Logger
	metrics    *metrics.Metrics

	// updates tracks in-flight downstream writes so shutdown and tests
	// can wait for them.
	updates sync.WaitGroup
}

func New(classifier Classifier, updater TicketUpdater, notifier TriageNotifier, db *sql.DB, fieldID, secret string, m *metrics.Metrics, logger *zap.Logger) *Server {
	return &Server{
		classifier: classifier,
		updater:    updater,
		notifier:   notifier,
		db:         db,
		fieldID:    fieldID,
		secret:     secret,
		logger:     logger,
		metrics:    m,
	}
}

// Router builds the HTTP surface: the authenticated webhook ingress,
// the classification lookup routes, and the operational endpoints.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), AccessLog(s.logger))

	r.POST("/api/webhook/classify_tickets", s.countWebhook(), VerifySignature(s.secret, s.logger), s.HandleWebhook)
	r.GET("/api/tickets/stats", s.GetStats)
	r.GET("/api/tickets/:ticket_id", s.GetTicket)

	r.GET("/health", s.HealthCheck)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	return r
}

func (s *Server) countWebhook() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.metrics.WebhookRequestsTotal.WithLabelValues(strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// HandleWebhook classifies one ticket event. The HTTP response is
// decided by the classification alone; the write-back to the ticketing
// system happens on a detached goroutine and its failures are only
// logged.
func (s *Server) HandleWebhook(c *gin.Context) {
	var event domain.TicketEvent
	if err := c.ShouldBindJSON(&event); err != nil || event.TicketID == "" || event.Subject == "" || event.Comment == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Missing ticket information."})
		return
	}

	result := s.classifier.Classify(c.Request.Context(), event)
	if result.Category == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error processing ticket"})
		return
	}

	s.updates.Add(1)
	go func() {
		defer s.updates.Done()
		s.updateTicket(result, event.Subject)
	}()

	c.JSON(http.StatusOK, gin.H{
		"message": "Ticket processed",
		"classification": gin.H{
			"category": result.Category,
			"summary":  result.Summary,
		},
	})
}

func (s *Server) updateTicket(result domain.Classification, subject string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	if result.IsUnknown() {
		err = s.updater.TagForTriage(ctx, result.TicketID)
		s.notifier.NotifyTriage(result, subject)
	} else {
		err = s.updater.SetTicketCategory(ctx, result.TicketID, s.fieldID, result.Category)
	}
	if err != nil {
		s.metrics.TicketUpdateFailuresTotal.Inc()
		s.logger.Error("ticket update failed",
			zap.String("ticket_id", result.TicketID), zap.Error(err))
	}
}

// WaitForUpdates blocks until all in-flight downstream writes finish.
func (s *Server) WaitForUpdates() {
	s.updates.Wait()
}

func (s *Server) GetTicket(c *gin.Context) {
	record, err := sqlite.GetClassification(s.db, c.Param("ticket_id"))
	switch {
	case err == sql.ErrNoRows:
		c.JSON(http.StatusNotFound, gin.H{"message": "Ticket not found"})
	case err != nil:
		s.logger.Error("classification lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error fetching ticket"})
	default:
		c.JSON(http.StatusOK, record)
	}
}

func (s *Server) GetStats(c *gin.Context) {
	counts, err := sqlite.ClassificationStats(s.db)
	if err != nil {
		s.logger.Error("stats query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error fetching stats"})
		return
	}

	total := 0
	for _, cc := range counts {
		total += cc.Count
	}
	c.JSON(http.StatusOK, gin.H{"stats": counts, "total": total})
}

func (s *Server) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "ticketbot"})
}
