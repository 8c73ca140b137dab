package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/course-checkout/internal/ledger"
	"github.com/mmeshcher/course-checkout/internal/metrics"
	"github.com/mmeshcher/course-checkout/internal/model"
	"github.com/mmeshcher/course-checkout/internal/payment"
	"github.com/mmeshcher/course-checkout/internal/testutil"
)

type stubGateway struct {
	err error

	purchase   *model.Purchase
	successURL string
	cancelURL  string
}

func (g *stubGateway) OpenSession(_ context.Context, p *model.Purchase, successURL, cancelURL string) (payment.Session, error) {
	g.purchase = p
	g.successURL = successURL
	g.cancelURL = cancelURL
	if g.err != nil {
		return payment.Session{}, g.err
	}
	return payment.Session{ID: "cs_test_1", URL: "https://checkout.stripe.test/cs_test_1"}, nil
}

func newTestService(t *testing.T, gw Gateway, opts Options) (*Service, *testutil.MemStore, *prometheus.Registry) {
	t.Helper()

	store := testutil.NewMemStore()
	store.AddUser(model.User{ID: 1, Name: "Ann", Email: "ann@example.com"})
	store.AddUser(model.User{ID: 2, Name: "Bob", Email: "bob@example.com"})
	store.AddCourse(model.Course{ID: 10, Title: "Go Concurrency", Price: 1000, Discount: 10})

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	return NewService(store, ledger.New(store), gw, opts, zap.NewNop(), m), store, reg
}

func TestPurchase_OpensSession(t *testing.T) {
	gw := &stubGateway{}
	svc, _, _ := newTestService(t, gw, Options{})

	url, err := svc.Purchase(context.Background(), 1, 10, "https://learn.example.com")
	require.NoError(t, err)

	assert.Equal(t, "https://checkout.stripe.test/cs_test_1", url)
	require.NotNil(t, gw.purchase)
	assert.Equal(t, int64(900), gw.purchase.Amount)
	assert.Equal(t, model.PurchaseStatusPending, gw.purchase.Status)
	assert.Equal(t, "https://learn.example.com/loading/my-enrollments", gw.successURL)
	assert.Equal(t, "https://learn.example.com/", gw.cancelURL)
}

func TestPurchase_InvalidOrigin(t *testing.T) {
	tests := []struct {
		name    string
		origin  string
		allowed []string
	}{
		{name: "empty", origin: ""},
		{name: "not a url", origin: "learn.example.com"},
		{name: "with path", origin: "https://learn.example.com/evil"},
		{name: "not allowed", origin: "https://evil.example.com", allowed: []string{"https://learn.example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &stubGateway{}
			svc, store, _ := newTestService(t, gw, Options{AllowedOrigins: tt.allowed})

			_, err := svc.Purchase(context.Background(), 1, 10, tt.origin)
			require.ErrorIs(t, err, ErrInvalidOrigin)
			assert.Nil(t, gw.purchase)
			assert.Equal(t, 0, store.Calls("CreatePurchase"))
		})
	}
}

func TestPurchase_NotFound(t *testing.T) {
	gw := &stubGateway{}
	svc, _, _ := newTestService(t, gw, Options{})

	_, err := svc.Purchase(context.Background(), 1, 404, "https://learn.example.com")
	require.ErrorIs(t, err, model.ErrNotFound)
	assert.Nil(t, gw.purchase)
}

func TestPurchase_GatewayErrorLeavesPending(t *testing.T) {
	gw := &stubGateway{err: errors.New("stripe down")}
	svc, store, _ := newTestService(t, gw, Options{})

	_, err := svc.Purchase(context.Background(), 1, 10, "https://learn.example.com")
	require.Error(t, err)

	require.NotNil(t, gw.purchase)
	assert.Equal(t, model.PurchaseStatusPending, store.Purchase(gw.purchase.ID).Status)
}

func TestGetPurchase_OwnerOnly(t *testing.T) {
	gw := &stubGateway{}
	svc, _, _ := newTestService(t, gw, Options{})
	ctx := context.Background()

	_, err := svc.Purchase(ctx, 1, 10, "https://learn.example.com")
	require.NoError(t, err)
	id := gw.purchase.ID

	p, err := svc.GetPurchase(ctx, 1, id)
	require.NoError(t, err)
	assert.Equal(t, id, p.ID)

	_, err = svc.GetPurchase(ctx, 2, id)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestGetEnrolledCourses(t *testing.T) {
	svc, store, _ := newTestService(t, &stubGateway{}, Options{})
	ctx := context.Background()

	_, err := store.AddCourseToUser(ctx, 1, 10)
	require.NoError(t, err)

	courses, err := svc.GetEnrolledCourses(ctx, 1)
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, "Go Concurrency", courses[0].Title)
}

func TestAuditStale(t *testing.T) {
	svc, store, reg := newTestService(t, &stubGateway{}, Options{StalePendingAfter: time.Hour})

	old := time.Now().Add(-2 * time.Hour)
	store.PutPurchase(model.Purchase{ID: "old-pending", CourseID: 10, UserID: 1, Status: model.PurchaseStatusPending, CreatedAt: old})
	store.PutPurchase(model.Purchase{ID: "old-done", CourseID: 10, UserID: 1, Status: model.PurchaseStatusCompleted, CreatedAt: old})
	store.PutPurchase(model.Purchase{ID: "fresh", CourseID: 10, UserID: 1, Status: model.PurchaseStatusPending, CreatedAt: time.Now()})

	n, err := svc.AuditStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	expected := `
# HELP checkout_stale_pending_purchases Pending purchases older than the configured threshold.
# TYPE checkout_stale_pending_purchases gauge
checkout_stale_pending_purchases 1
`
	require.NoError(t, promtest.GatherAndCompare(reg, strings.NewReader(expected), "checkout_stale_pending_purchases"))
}

func TestAuditStale_StoreError(t *testing.T) {
	svc, store, _ := newTestService(t, &stubGateway{}, Options{StalePendingAfter: time.Hour})
	store.FailNext("CountStalePending", model.ErrTransient)

	_, err := svc.AuditStale(context.Background())
	require.ErrorIs(t, err, model.ErrTransient)
}
