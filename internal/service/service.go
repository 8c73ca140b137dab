// Package service реализует бизнес-логику сервиса продажи курсов.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/course-checkout/internal/metrics"
	"github.com/mmeshcher/course-checkout/internal/model"
	"github.com/mmeshcher/course-checkout/internal/payment"
	"github.com/mmeshcher/course-checkout/internal/validation"
)

// ErrInvalidOrigin возвращается, если Origin запроса не подходит для адресов возврата с оплаты.
var ErrInvalidOrigin = errors.New("invalid origin")

const staleAuditInterval = time.Minute

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	GetEnrolledCourses(ctx context.Context, userID int64) ([]model.Course, error)
	CountStalePending(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Ledger создаёт и читает покупки.
type Ledger interface {
	Create(ctx context.Context, courseID, userID int64) (*model.Purchase, error)
	FindByID(ctx context.Context, id string) (*model.Purchase, error)
}

// Gateway открывает сессию оплаты у провайдера.
type Gateway interface {
	OpenSession(ctx context.Context, p *model.Purchase, successURL, cancelURL string) (payment.Session, error)
}

// Options содержит настройки сервиса.
type Options struct {
	AllowedOrigins    []string
	StalePendingAfter time.Duration
}

// Service содержит бизнес-логику сервиса продажи курсов.
type Service struct {
	repo    Repository
	ledger  Ledger
	gateway Gateway
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewService создаёт новый сервис.
func NewService(repo Repository, ledger Ledger, gateway Gateway, opts Options, logger *zap.Logger, m *metrics.Metrics) *Service {
	return &Service{
		repo:    repo,
		ledger:  ledger,
		gateway: gateway,
		opts:    opts,
		logger:  logger,
		metrics: m,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Purchase создаёт покупку курса и открывает для неё сессию оплаты.
// Возвращает адрес страницы оплаты.
func (s *Service) Purchase(ctx context.Context, userID, courseID int64, origin string) (string, error) {
	base, ok := validation.NormalizeOrigin(origin)
	if !ok || !validation.IsAllowedOrigin(base, s.opts.AllowedOrigins) {
		return "", fmt.Errorf("%w: %q", ErrInvalidOrigin, origin)
	}

	p, err := s.ledger.Create(ctx, courseID, userID)
	if err != nil {
		return "", err
	}
	s.metrics.PurchaseCreated()

	session, err := s.gateway.OpenSession(ctx, p, base+"/loading/my-enrollments", base+"/")
	if err != nil {
		s.logger.Warn("open checkout session failed, purchase stays pending",
			zap.String("purchaseID", p.ID), zap.Error(err))
		return "", err
	}

	s.logger.Info("checkout session opened",
		zap.String("purchaseID", p.ID),
		zap.String("sessionID", session.ID),
		zap.Int64("userID", userID),
		zap.Int64("courseID", courseID),
		zap.Int64("amount", p.Amount),
	)

	return session.URL, nil
}

// GetEnrolledCourses возвращает курсы, на которые записан пользователь.
func (s *Service) GetEnrolledCourses(ctx context.Context, userID int64) ([]model.Course, error) {
	return s.repo.GetEnrolledCourses(ctx, userID)
}

// GetPurchase возвращает покупку пользователя. Чужая покупка неотличима от отсутствующей.
func (s *Service) GetPurchase(ctx context.Context, userID int64, id string) (*model.Purchase, error) {
	p, err := s.ledger.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, fmt.Errorf("purchase %s: %w", id, model.ErrNotFound)
	}
	return p, nil
}

// AuditStale считает покупки, зависшие в pending дольше настроенного порога.
func (s *Service) AuditStale(ctx context.Context) (int64, error) {
	n, err := s.repo.CountStalePending(ctx, s.opts.StalePendingAfter)
	if err != nil {
		return 0, err
	}

	s.metrics.SetStalePending(n)
	if n > 0 {
		s.logger.Warn("stale pending purchases",
			zap.Int64("count", n),
			zap.Duration("olderThan", s.opts.StalePendingAfter),
		)
	}
	return n, nil
}

// StartStaleAudit запускает фоновую проверку зависших покупок.
func (s *Service) StartStaleAudit(ctx context.Context) {
	if s.opts.StalePendingAfter <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(staleAuditInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.AuditStale(ctx); err != nil && ctx.Err() == nil {
					s.logger.Warn("stale purchase audit failed", zap.Error(err))
				}
			}
		}
	}()
}
