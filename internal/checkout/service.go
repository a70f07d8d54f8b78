package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/pos-keramik/internal/backendapi"
	"github.com/noah-isme/pos-keramik/internal/events"
	"github.com/noah-isme/pos-keramik/internal/payment"
	"github.com/noah-isme/pos-keramik/internal/pricing"
	"github.com/noah-isme/pos-keramik/internal/session"
)

// ErrSaleCreation marks a rejected or failed sale submission. The concrete
// error text is the backend's message, surfaced to the operator verbatim.
var ErrSaleCreation = errors.New("checkout: sale creation failed")

// SaleError carries the backend's failure message without decoration.
type SaleError struct {
	Message string
}

func (e *SaleError) Error() string { return e.Message }

// Is lets callers match against ErrSaleCreation.
func (e *SaleError) Is(target error) bool { return target == ErrSaleCreation }

// Submitter covers the backend calls finalize performs.
type Submitter interface {
	CreateSale(ctx context.Context, req backendapi.SaleRequest) (backendapi.SaleResult, error)
	IncrementPromoUsage(ctx context.Context, code string) error
}

// UsageRetryScheduler queues a promo usage increment for out-of-band retry.
type UsageRetryScheduler interface {
	ScheduleUsageIncrement(ctx context.Context, code, orderNumber string) error
}

// Confirmation is the receipt data returned on a completed sale.
type Confirmation struct {
	OrderNumber string
	Summary     pricing.Summary
	Method      payment.Method
	AmountPaid  pricing.Money
	Change      pricing.Money
	PromoCode   string
}

// Service finalizes transactions: it drives the session state machine,
// submits the sale and applies the partial-failure policy for promo usage
// bookkeeping (the sale always outranks the counter).
type Service struct {
	Backend Submitter
	Retry   UsageRetryScheduler
	Events  *events.Bus
	Logger  zerolog.Logger
	Timeout time.Duration
}

// Finalize runs one transaction attempt end to end. Precondition failures
// (empty cart, insufficient cash, submit already in flight) surface as the
// session package's sentinel errors with no state change. A backend failure
// moves the session to Failed and leaves cart, promotion and payment intact
// for retry.
func (s *Service) Finalize(ctx context.Context, sess *session.Session) (Confirmation, error) {
	if s == nil || s.Backend == nil {
		return Confirmation{}, errors.New("checkout service not configured")
	}
	snap, err := sess.BeginFinalize()
	if err != nil {
		return Confirmation{}, err
	}

	req := saleRequest(snap)
	callCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	result, err := s.Backend.CreateSale(callCtx, req)
	if err != nil {
		sess.FailFinalize()
		s.Logger.Error().Err(err).Str("session_id", snap.SessionID.String()).Msg("sale creation failed")
		s.emit(ctx, events.TopicSaleFailed, snap, map[string]any{"reason": err.Error()})
		return Confirmation{}, &SaleError{Message: err.Error()}
	}

	if snap.Promo != nil {
		s.recordPromoUsage(ctx, snap.Promo.Code, result.OrderNumber)
	}

	sess.CompleteFinalize()
	conf := Confirmation{
		OrderNumber: result.OrderNumber,
		Summary:     snap.Summary,
		Method:      snap.Method,
		AmountPaid:  snap.Entered,
		Change:      snap.Change,
	}
	if snap.Promo != nil {
		conf.PromoCode = snap.Promo.Code
	}
	s.emit(ctx, events.TopicSaleCompleted, snap, map[string]any{
		"orderNumber": result.OrderNumber,
		"total":       snap.Summary.Total,
		"change":      snap.Change,
		"method":      string(snap.Method),
	})
	return conf, nil
}

// recordPromoUsage is strictly best-effort: a failure is logged, handed to
// the retry queue when one is wired, and never fails the sale.
func (s *Service) recordPromoUsage(ctx context.Context, code, orderNumber string) {
	err := s.Backend.IncrementPromoUsage(ctx, code)
	if err == nil {
		return
	}
	s.Logger.Warn().Err(err).Str("code", code).Str("order", orderNumber).Msg("promo usage increment failed, sale stands")
	if s.Retry == nil {
		return
	}
	if schedErr := s.Retry.ScheduleUsageIncrement(ctx, code, orderNumber); schedErr != nil {
		s.Logger.Error().Err(schedErr).Str("code", code).Msg("queue promo usage retry")
	}
}

func (s *Service) emit(ctx context.Context, topic string, snap session.Snapshot, payload map[string]any) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, topic, snap.SessionID, payload); err != nil {
		s.Logger.Warn().Err(err).Str("topic", topic).Msg("emit event")
	}
}

func saleRequest(snap session.Snapshot) backendapi.SaleRequest {
	items := make([]backendapi.SaleItem, 0, len(snap.Lines))
	for _, l := range snap.Lines {
		items = append(items, backendapi.SaleItem{
			ProductID: l.ProductID.String(),
			Name:      l.Name,
			Qty:       l.Qty,
			UnitPrice: l.UnitPrice,
			Subtotal:  l.Subtotal(),
		})
	}
	req := backendapi.SaleRequest{
		Items:         items,
		Subtotal:      snap.Summary.Subtotal,
		Tax:           snap.Summary.Tax,
		Discount:      snap.Summary.Discount,
		Total:         snap.Summary.Total,
		PaymentMethod: string(snap.Method),
		ClientRef:     snap.SessionID.String(),
	}
	if snap.Method.Cash() {
		req.AmountPaid = snap.Entered
	}
	if snap.Promo != nil {
		req.PromoCode = snap.Promo.Code
	}
	return req
}
