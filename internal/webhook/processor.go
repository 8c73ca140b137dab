// Package webhook обрабатывает асинхронные события платёжного провайдера и
// превращает их доставку "как минимум один раз" в однократный переход покупки
// в конечный статус.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/course-checkout/internal/dedup"
	"github.com/mmeshcher/course-checkout/internal/metrics"
	"github.com/mmeshcher/course-checkout/internal/model"
	"github.com/mmeshcher/course-checkout/internal/payment"
)

// Gateway проверяет и разрешает события провайдера.
type Gateway interface {
	VerifySignature(payload []byte, header string) (payment.Event, error)
	ResolvePurchaseID(ctx context.Context, ev payment.Event) (string, error)
}

// Ledger читает покупки и переводит их в конечный статус.
type Ledger interface {
	FindByID(ctx context.Context, id string) (*model.Purchase, error)
	MarkTerminal(ctx context.Context, id string, outcome model.PurchaseStatus) (bool, error)
}

// Linker связывает пользователя и курс.
type Linker interface {
	Link(ctx context.Context, userID, courseID int64) error
}

// Journal помнит уже подтверждённые события.
type Journal interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Remember(ctx context.Context, eventID string) error
}

// Outcome описывает итог обработки одной доставки.
type Outcome string

const (
	// OutcomeApplied: покупка переведена в конечный статус этой доставкой.
	OutcomeApplied Outcome = "applied"
	// OutcomeDuplicate: покупка уже была в конечном статусе.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeIgnored: тип события не обрабатывается.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeUnresolvable: событие не сопоставляется ровно одной покупке.
	OutcomeUnresolvable Outcome = "unresolvable"
	// OutcomeGone: покупка из метаданных не найдена.
	OutcomeGone Outcome = "gone"
	// OutcomeRejected: подпись не прошла проверку.
	OutcomeRejected Outcome = "rejected"
	// OutcomeFailed: временный сбой, провайдер должен повторить доставку.
	OutcomeFailed Outcome = "failed"
)

// Processor обрабатывает события вебхука.
type Processor struct {
	gateway Gateway
	ledger  Ledger
	linker  Linker
	journal Journal
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewProcessor создаёт обработчик. journal и m могут быть nil.
func NewProcessor(gateway Gateway, ledger Ledger, linker Linker, journal Journal, logger *zap.Logger, m *metrics.Metrics) *Processor {
	if journal == nil {
		journal = dedup.Nop{}
	}
	return &Processor{
		gateway: gateway,
		ledger:  ledger,
		linker:  linker,
		journal: journal,
		logger:  logger,
		metrics: m,
	}
}

// Handle обрабатывает одну доставку вебхука по сырому телу и заголовку подписи.
// Ошибка возвращается только при неверной подписи (model.ErrInvalidSignature)
// или временном сбое; в остальных случаях доставку нужно подтвердить.
func (p *Processor) Handle(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	start := time.Now()

	ev, err := p.gateway.VerifySignature(payload, signature)
	if err != nil {
		p.logger.Warn("webhook signature rejected", zap.Error(err))
		p.metrics.ObserveWebhook(string(OutcomeRejected), "", time.Since(start))
		return OutcomeRejected, err
	}

	log := p.logger.With(zap.String("eventID", ev.ID), zap.String("eventType", string(ev.Type)))

	outcome, err := p.dispatch(ctx, ev, log)
	p.metrics.ObserveWebhook(string(outcome), string(ev.Type), time.Since(start))

	if err != nil {
		log.Error("webhook processing failed", zap.Error(err))
		return outcome, err
	}

	switch outcome {
	case OutcomeApplied, OutcomeDuplicate, OutcomeGone, OutcomeUnresolvable:
		if err := p.journal.Remember(ctx, ev.ID); err != nil {
			log.Warn("remember webhook event", zap.Error(err))
		}
	}

	log.Info("webhook processed", zap.String("outcome", string(outcome)))
	return outcome, nil
}

func (p *Processor) dispatch(ctx context.Context, ev payment.Event, log *zap.Logger) (Outcome, error) {
	var target model.PurchaseStatus
	switch ev.Type {
	case payment.EventPaymentSucceeded:
		target = model.PurchaseStatusCompleted
	case payment.EventPaymentFailed:
		target = model.PurchaseStatusFailed
	default:
		return OutcomeIgnored, nil
	}

	if seen, err := p.journal.Seen(ctx, ev.ID); err != nil {
		log.Warn("check webhook journal", zap.Error(err))
	} else if seen {
		return OutcomeDuplicate, nil
	}

	purchaseID, err := p.gateway.ResolvePurchaseID(ctx, ev)
	if err != nil {
		if errors.Is(err, model.ErrUnresolvable) {
			log.Warn("webhook event cannot be resolved to a purchase", zap.Error(err))
			return OutcomeUnresolvable, nil
		}
		return OutcomeFailed, fmt.Errorf("resolve purchase: %w", err)
	}

	log = log.With(zap.String("purchaseID", purchaseID))

	purchase, err := p.ledger.FindByID(ctx, purchaseID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			log.Warn("purchase referenced by webhook not found")
			return OutcomeGone, nil
		}
		return OutcomeFailed, fmt.Errorf("find purchase: %w", err)
	}

	if purchase.Status.IsTerminal() {
		return OutcomeDuplicate, nil
	}

	// Связка пишется до конечного статуса: сбой между шагами оставляет покупку
	// в pending, и повторная доставка безопасно доведёт её до конца.
	if target == model.PurchaseStatusCompleted {
		if err := p.linker.Link(ctx, purchase.UserID, purchase.CourseID); err != nil {
			return OutcomeFailed, fmt.Errorf("link enrollment: %w", err)
		}
	}

	applied, err := p.ledger.MarkTerminal(ctx, purchase.ID, target)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("mark purchase %s: %w", target, err)
	}

	if !applied {
		if target == model.PurchaseStatusCompleted {
			p.checkLostRace(ctx, purchase.ID, log)
		}
		return OutcomeDuplicate, nil
	}

	return OutcomeApplied, nil
}

// checkLostRace фиксирует случай, когда связка выполнена, но параллельная доставка
// успела перевести покупку в failed.
func (p *Processor) checkLostRace(ctx context.Context, purchaseID string, log *zap.Logger) {
	current, err := p.ledger.FindByID(ctx, purchaseID)
	if err != nil {
		log.Warn("re-read purchase after lost race", zap.Error(err))
		return
	}
	if current.Status != model.PurchaseStatusCompleted {
		p.metrics.EnrollmentAnomaly()
		log.Error("enrollment linked but purchase finished with another status",
			zap.String("status", string(current.Status)),
			zap.Int64("userID", current.UserID),
			zap.Int64("courseID", current.CourseID),
		)
	}
}
