package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pos-keramik/internal/backendapi"
	"github.com/noah-isme/pos-keramik/internal/cart"
	"github.com/noah-isme/pos-keramik/internal/payment"
	"github.com/noah-isme/pos-keramik/internal/promo"
	"github.com/noah-isme/pos-keramik/internal/session"
)

type fakeBackend struct {
	mu          sync.Mutex
	saleReqs    []backendapi.SaleRequest
	saleErr     error
	usageCodes  []string
	usageErr    error
	orderNumber string
	block       chan struct{}
}

func (f *fakeBackend) CreateSale(_ context.Context, req backendapi.SaleRequest) (backendapi.SaleResult, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saleReqs = append(f.saleReqs, req)
	if f.saleErr != nil {
		return backendapi.SaleResult{}, f.saleErr
	}
	num := f.orderNumber
	if num == "" {
		num = "POS-1"
	}
	return backendapi.SaleResult{OrderNumber: num}, nil
}

func (f *fakeBackend) IncrementPromoUsage(_ context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usageCodes = append(f.usageCodes, code)
	return f.usageErr
}

type fakeScheduler struct {
	mu    sync.Mutex
	codes []string
}

func (f *fakeScheduler) ScheduleUsageIncrement(_ context.Context, code, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes = append(f.codes, code)
	return nil
}

func newSession(t *testing.T) *session.Session {
	t.Helper()
	s := session.New(1200, nil)
	p := cart.Product{ID: uuid.New(), Name: "Granite Tile 60x60", Price: 10_000, Stock: 10}
	require.NoError(t, s.AddItem(p, 2))
	require.NoError(t, s.SetPayment(payment.MethodCash, "250.00"))
	return s
}

func TestFinalizeHappyPath(t *testing.T) {
	backend := &fakeBackend{orderNumber: "POS-2025-000042"}
	svc := &Service{Backend: backend, Logger: zerolog.Nop()}
	sess := newSession(t)

	conf, err := svc.Finalize(context.Background(), sess)
	require.NoError(t, err)
	require.Equal(t, "POS-2025-000042", conf.OrderNumber)
	require.EqualValues(t, 22_400, conf.Summary.Total)
	require.EqualValues(t, 2_600, conf.Change)

	require.Len(t, backend.saleReqs, 1)
	req := backend.saleReqs[0]
	require.Len(t, req.Items, 1)
	require.EqualValues(t, 20_000, req.Subtotal)
	require.Equal(t, "cash", req.PaymentMethod)
	require.EqualValues(t, 25_000, req.AmountPaid)

	v := sess.View()
	require.Equal(t, session.StateCompleted, v.State)
	require.Empty(t, v.Lines)
}

func TestFinalizeEmptyCart(t *testing.T) {
	svc := &Service{Backend: &fakeBackend{}, Logger: zerolog.Nop()}
	sess := session.New(1200, nil)
	_, err := svc.Finalize(context.Background(), sess)
	require.ErrorIs(t, err, session.ErrEmptyCart)
}

func TestFinalizeInsufficientCash(t *testing.T) {
	backend := &fakeBackend{}
	svc := &Service{Backend: backend, Logger: zerolog.Nop()}
	sess := session.New(1200, nil)
	require.NoError(t, sess.AddItem(cart.Product{ID: uuid.New(), Name: "Grout 2kg", Price: 10_000, Stock: 5}, 1))
	require.NoError(t, sess.SetPayment(payment.MethodCash, "5.00"))

	_, err := svc.Finalize(context.Background(), sess)
	require.ErrorIs(t, err, session.ErrInsufficientPayment)
	require.Empty(t, backend.saleReqs, "no submission may happen")
}

func TestFinalizeFailureKeepsSession(t *testing.T) {
	backend := &fakeBackend{saleErr: errors.New("insufficient stock for Granite Tile")}
	svc := &Service{Backend: backend, Logger: zerolog.Nop()}
	sess := newSession(t)
	require.NoError(t, sess.SetPromo(promo.Applied{Code: "SAVE10", Kind: promo.KindPercent, PercentBps: 1000}))

	_, err := svc.Finalize(context.Background(), sess)
	require.ErrorIs(t, err, ErrSaleCreation)
	require.Equal(t, "insufficient stock for Granite Tile", err.Error(), "backend message must surface verbatim")

	v := sess.View()
	require.Equal(t, session.StateFailed, v.State)
	require.Len(t, v.Lines, 1, "a failed sale never clears the cart")
	require.NotNil(t, v.Promo, "a failed sale never resets the promotion")
	require.Equal(t, "250.00", v.Payment.AmountRaw)

	// Retry succeeds.
	backend.saleErr = nil
	_, err = svc.Finalize(context.Background(), sess)
	require.NoError(t, err)
}

func TestFinalizePromoUsageBestEffort(t *testing.T) {
	backend := &fakeBackend{usageErr: errors.New("usage endpoint down")}
	scheduler := &fakeScheduler{}
	svc := &Service{Backend: backend, Retry: scheduler, Logger: zerolog.Nop()}
	sess := newSession(t)
	require.NoError(t, sess.SetPromo(promo.Applied{Code: "SAVE10", Kind: promo.KindPercent, PercentBps: 1000}))

	conf, err := svc.Finalize(context.Background(), sess)
	require.NoError(t, err, "usage increment failure must not fail the sale")
	require.Equal(t, "SAVE10", conf.PromoCode)
	require.Equal(t, []string{"SAVE10"}, backend.usageCodes)
	require.Equal(t, []string{"SAVE10"}, scheduler.codes, "failed increment goes to the retry queue")
	require.Equal(t, session.StateCompleted, sess.View().State)
}

func TestFinalizeNoPromoSkipsUsage(t *testing.T) {
	backend := &fakeBackend{}
	svc := &Service{Backend: backend, Logger: zerolog.Nop()}
	sess := newSession(t)

	_, err := svc.Finalize(context.Background(), sess)
	require.NoError(t, err)
	require.Empty(t, backend.usageCodes)
}

func TestFinalizeDuplicateInFlightRejected(t *testing.T) {
	backend := &fakeBackend{block: make(chan struct{})}
	svc := &Service{Backend: backend, Logger: zerolog.Nop()}
	sess := newSession(t)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Finalize(context.Background(), sess)
		done <- err
	}()

	// Second attempt while the first is blocked in flight.
	require.Eventually(t, func() bool {
		_, err := svc.Finalize(context.Background(), sess)
		return errors.Is(err, session.ErrSubmitInFlight)
	}, time.Second, 5*time.Millisecond)

	close(backend.block)
	require.NoError(t, <-done)
}
