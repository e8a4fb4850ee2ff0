package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"ticketbot/internal/classify"
	"ticketbot/internal/config"
	"ticketbot/internal/httpx"
	"ticketbot/internal/integrations/llm"
	slacknotify "ticketbot/internal/integrations/slack"
	"ticketbot/internal/integrations/zendesk"
	"ticketbot/internal/metrics"
	"ticketbot/internal/server"
	"ticketbot/internal/storage/sqlite"
)

// Run wires the whole service together and blocks until SIGINT/SIGTERM.
func Run() error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)

	db, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer db.Close()

	m := metrics.New(prometheus.DefaultRegisterer)

	zd := zendesk.NewClient(cfg.ZendeskSubdomain, cfg.ZendeskEmail, cfg.ZendeskAPIToken, logger)
	model := llm.NewClient(cfg.LLMProvider, cfg.LLMModel, cfg.AnthropicAPIKey, cfg.OpenAIAPIKey, logger)
	notifier := slacknotify.NewNotifier(cfg.SlackBotToken, cfg.SlackTriageChannel, logger)

	cache := classify.NewCategoryCache(db, zd.FieldOptions,
		time.Duration(cfg.FieldCacheTTLHours)*time.Hour, m, logger)
	classifier := classify.NewClassifier(model, cache, db, cfg.ZendeskFieldID, m, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Warm the vocabulary before traffic arrives; a failure here is
	// not fatal, the cache retries on demand.
	if _, err := cache.Refresh(ctx, cfg.ZendeskFieldID); err != nil {
		logger.Warn("initial vocabulary fetch failed", zap.Error(err))
	}
	classify.StartRefreshScheduler(ctx, cache, cfg.ZendeskFieldID, cfg.FieldRefreshSchedule, logger)

	srv := server.New(classifier, zd, notifier, db, cfg.ZendeskFieldID, cfg.WebhookSecret, m, logger)

	gin.SetMode(gin.ReleaseMode)
	httpServer := &http.Server{
		Addr:    ":" + cfg.ListenPort,
		Handler: srv.Router(),
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.ListenPort))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", zap.Error(err))
			// Let the signal handler path unwind normally.
			p, _ := os.FindProcess(os.Getpid())
			p.Signal(syscall.SIGTERM)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	// Let in-flight ticket updates drain before the process exits.
	srv.WaitForUpdates()
	logger.Info("server exited")
	return nil
}
