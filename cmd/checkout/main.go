// Package main запускает HTTP-сервер сервиса продажи курсов.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/course-checkout/internal/config"
	"github.com/mmeshcher/course-checkout/internal/dedup"
	"github.com/mmeshcher/course-checkout/internal/enrollment"
	"github.com/mmeshcher/course-checkout/internal/handler"
	"github.com/mmeshcher/course-checkout/internal/ledger"
	"github.com/mmeshcher/course-checkout/internal/metrics"
	"github.com/mmeshcher/course-checkout/internal/middleware"
	"github.com/mmeshcher/course-checkout/internal/payment"
	"github.com/mmeshcher/course-checkout/internal/repository"
	"github.com/mmeshcher/course-checkout/internal/service"
	"github.com/mmeshcher/course-checkout/internal/webhook"
)

const serviceName = "course-checkout"

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}
	if err := cfg.Validate(); err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	m, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		sugar.Fatalw("metrics initialization error", "error", err.Error())
	}

	var journal webhook.Journal
	if cfg.RedisAddress != "" {
		rj := dedup.NewRedisJournal(cfg.RedisAddress, serviceName, dedup.DefaultTTL)
		defer rj.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rj.Ping(pingCtx); err != nil {
			// Журнал только ускоряет ответ на повторы, без него корректность сохраняется.
			sugar.Warnw("redis event journal unavailable, continuing without it", "error", err.Error())
		}
		cancel()
		journal = rj
	}

	gateway := payment.NewGateway(payment.Config{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		Currency:      cfg.Currency,
		APIURL:        cfg.StripeAPIURL,
	}, logger)

	purchases := ledger.New(repo)
	linker := enrollment.NewLinker(repo, logger)
	processor := webhook.NewProcessor(gateway, purchases, linker, journal, logger, m)

	svc := service.NewService(repo, purchases, gateway, service.Options{
		AllowedOrigins:    cfg.AllowedOrigins,
		StalePendingAfter: cfg.StalePendingAfter,
	}, logger, m)
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, processor, logger, authMiddleware, promhttp.Handler())

	r := h.SetupRouter()

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Фоновая проверка зависших покупок
	g.Go(func() error {
		svc.StartStaleAudit(ctx)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting checkout server", "addr", cfg.RunAddress, "currency", cfg.Currency)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
