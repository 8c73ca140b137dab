// Package payment реализует шлюз к платёжному провайдеру Stripe: открытие
// сессии оплаты, проверку подписи вебхуков и поиск покупки по событию.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"

	"github.com/mmeshcher/course-checkout/internal/model"
)

// MetadataPurchaseID задаёт ключ метаданных сессии, в котором хранится идентификатор покупки.
const MetadataPurchaseID = "purchase_id"

// EventType задаёт тип события платёжного провайдера.
type EventType string

const (
	EventPaymentSucceeded EventType = "payment_intent.succeeded"
	EventPaymentFailed    EventType = "payment_intent.payment_failed"
)

// Event содержит проверенное событие провайдера.
type Event struct {
	ID              string
	Type            EventType
	PaymentIntentID string
}

// Session описывает открытую сессию оплаты.
type Session struct {
	ID  string
	URL string
}

// Config содержит параметры подключения к Stripe.
type Config struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
	// APIURL переопределяет адрес API (stripe-mock, тесты).
	APIURL  string
	Timeout time.Duration
}

// Gateway работает со Stripe. Создаётся один раз на процесс и передаётся явно.
type Gateway struct {
	api           *client.API
	webhookSecret string
	currency      string
}

// NewGateway создаёт шлюз с собственным клиентом Stripe.
func NewGateway(cfg Config, logger *zap.Logger) *Gateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient:    &http.Client{Timeout: timeout},
		LeveledLogger: logger.Sugar(),
		// Повторную доставку обеспечивает сам провайдер, внутренних ретраев нет.
		MaxNetworkRetries: stripe.Int64(0),
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripe.String(cfg.APIURL)
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg),
	})

	currency := strings.ToLower(cfg.Currency)
	if currency == "" {
		currency = "usd"
	}

	return &Gateway{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		currency:      currency,
	}
}

// OpenSession открывает hosted checkout сессию для покупки.
// Сумма берётся только из purchase.Amount, идентификатор покупки передаётся в метаданных.
func (g *Gateway) OpenSession(ctx context.Context, p *model.Purchase, successURL, cancelURL string) (Session, error) {
	params := &stripe.CheckoutSessionParams{
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(g.currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(p.CourseTitle),
					},
					UnitAmount: stripe.Int64(p.Amount),
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	params.AddMetadata(MetadataPurchaseID, p.ID)
	params.SetIdempotencyKey("checkout-" + p.ID)

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return Session{}, classify("create checkout session", err)
	}

	return Session{ID: s.ID, URL: s.URL}, nil
}

// VerifySignature проверяет подпись конверта события до разбора любых полей.
func (g *Gateway) VerifySignature(payload []byte, header string) (Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, header, g.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", model.ErrInvalidSignature, err)
	}

	res := Event{
		ID:   ev.ID,
		Type: EventType(ev.Type),
	}

	if strings.HasPrefix(string(ev.Type), "payment_intent.") && ev.Data != nil {
		var obj struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(ev.Data.Raw, &obj); err == nil {
			res.PaymentIntentID = obj.ID
		}
	}

	return res, nil
}

// ResolvePurchaseID находит сессию оплаты по платёжному намерению события и
// возвращает идентификатор покупки из её метаданных. Если сессий не одна, событие неразрешимо.
func (g *Gateway) ResolvePurchaseID(ctx context.Context, ev Event) (string, error) {
	if ev.PaymentIntentID == "" {
		return "", fmt.Errorf("%w: event %s has no payment intent", model.ErrUnresolvable, ev.ID)
	}

	params := &stripe.CheckoutSessionListParams{
		PaymentIntent: stripe.String(ev.PaymentIntentID),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(2)

	var sessions []*stripe.CheckoutSession
	iter := g.api.CheckoutSessions.List(params)
	for iter.Next() {
		sessions = append(sessions, iter.CheckoutSession())
		if len(sessions) > 1 {
			break
		}
	}
	if err := iter.Err(); err != nil {
		return "", classify("list checkout sessions", err)
	}

	if len(sessions) != 1 {
		return "", fmt.Errorf("%w: %d sessions for payment intent %s", model.ErrUnresolvable, len(sessions), ev.PaymentIntentID)
	}

	purchaseID := sessions[0].Metadata[MetadataPurchaseID]
	if purchaseID == "" {
		return "", fmt.Errorf("%w: session %s has no purchase id", model.ErrUnresolvable, sessions[0].ID)
	}

	return purchaseID, nil
}

// classify помечает сетевые сбои, 429 и 5xx провайдера как временные.
func classify(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		if se.HTTPStatusCode >= http.StatusInternalServerError || se.HTTPStatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%s: %w: %w", op, model.ErrTransient, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, model.ErrTransient, err)
}
