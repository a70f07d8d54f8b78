package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/pos-keramik/internal/cart"
	"github.com/noah-isme/pos-keramik/internal/payment"
	"github.com/noah-isme/pos-keramik/internal/pricing"
	"github.com/noah-isme/pos-keramik/internal/promo"
)

var (
	// ErrSubmitInFlight rejects mutations and duplicate finalize attempts
	// while a submission is running. At most one finalize per session.
	ErrSubmitInFlight = errors.New("session: finalize already in flight")
	// ErrEmptyCart rejects finalizing an empty cart.
	ErrEmptyCart = errors.New("session: cart is empty")
	// ErrInsufficientPayment rejects finalizing cash tenders short of the total.
	ErrInsufficientPayment = errors.New("session: entered amount is below the total")
)

// State tracks the finalizer state machine for the active transaction.
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Session owns all transaction state for one terminal: cart, applied
// promotion, payment input and finalizer state. All access goes through its
// methods; the mutex makes the HTTP surface safe and enforces the single
// in-flight finalize.
type Session struct {
	ID uuid.UUID

	mu         sync.Mutex
	cart       *cart.Cart
	promo      *promo.Applied
	tender     payment.Method
	enteredRaw string
	entered    pricing.Money
	state      State
	taxBps     int
	now        func() time.Time
	touchedAt  time.Time
}

// New creates an idle session with an empty cart.
func New(taxBps int, now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}
	return &Session{
		ID:        uuid.New(),
		cart:      cart.New(),
		tender:    payment.MethodCash,
		state:     StateIdle,
		taxBps:    taxBps,
		now:       now,
		touchedAt: now(),
	}
}

// AddItem adds or increments a cart line.
func (s *Session) AddItem(p cart.Product, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSubmitting {
		return ErrSubmitInFlight
	}
	if err := s.cart.Add(p, qty); err != nil {
		return err
	}
	s.settle()
	return nil
}

// SetQty changes a line quantity. Quantities of zero or less return
// cart.ErrRemovalConfirmation without mutating.
func (s *Session) SetQty(productID uuid.UUID, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSubmitting {
		return ErrSubmitInFlight
	}
	if err := s.cart.SetQty(productID, qty); err != nil {
		return err
	}
	s.settle()
	return nil
}

// RemoveItem is the confirmed second step of a removal. Idempotent.
func (s *Session) RemoveItem(productID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSubmitting {
		return ErrSubmitInFlight
	}
	s.cart.Remove(productID)
	s.settle()
	return nil
}

// ClearCart empties the cart.
func (s *Session) ClearCart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSubmitting {
		return ErrSubmitInFlight
	}
	s.cart.Clear()
	s.settle()
	return nil
}

// SetPromo stores the applied promotion, replacing any previous one.
func (s *Session) SetPromo(applied promo.Applied) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSubmitting {
		return ErrSubmitInFlight
	}
	a := applied
	s.promo = &a
	s.settle()
	return nil
}

// RemovePromo clears the applied promotion; the derived discount drops to 0.
func (s *Session) RemovePromo() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSubmitting {
		return ErrSubmitInFlight
	}
	s.promo = nil
	s.settle()
	return nil
}

// SetPayment records the tender method and, for cash, the raw entered amount.
// Switching methods always resets the entered amount so stale cash input never
// leaks into another tender's sufficiency check. The amount string is parsed
// exactly once here.
func (s *Session) SetPayment(method payment.Method, amount string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSubmitting {
		return ErrSubmitInFlight
	}
	if method != s.tender {
		s.enteredRaw = ""
		s.entered = 0
	}
	s.tender = method
	if method.Cash() {
		s.enteredRaw = amount
		s.entered = payment.ParseAmount(amount)
	}
	s.settle()
	return nil
}

// Snapshot is an immutable copy of the session handed to the finalizer while
// the session is in Submitting.
type Snapshot struct {
	SessionID uuid.UUID
	Lines     []cart.Line
	Summary   pricing.Summary
	Promo     *promo.Applied
	Method    payment.Method
	Entered   pricing.Money
	Change    pricing.Money
}

// BeginFinalize validates the preconditions and moves the session into
// Submitting, returning the snapshot to submit. A session already submitting
// rejects the attempt; Failed sessions may retry with their state intact.
func (s *Session) BeginFinalize() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSubmitting {
		return Snapshot{}, ErrSubmitInFlight
	}
	if s.cart.Empty() {
		return Snapshot{}, ErrEmptyCart
	}
	summary := s.summaryLocked()
	assessment := payment.Assess(s.tender, s.entered, summary.Total)
	if !assessment.Sufficient {
		return Snapshot{}, ErrInsufficientPayment
	}
	s.state = StateSubmitting
	snap := Snapshot{
		SessionID: s.ID,
		Lines:     s.cart.Lines(),
		Summary:   summary,
		Method:    s.tender,
		Entered:   s.entered,
		Change:    assessment.Change,
	}
	if s.promo != nil {
		p := *s.promo
		snap.Promo = &p
	}
	return snap, nil
}

// CompleteFinalize records a successful sale: the cart, promotion and payment
// input reset and the session lands in Completed.
func (s *Session) CompleteFinalize() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cart.Clear()
	s.promo = nil
	s.tender = payment.MethodCash
	s.enteredRaw = ""
	s.entered = 0
	s.state = StateCompleted
	s.touchedAt = s.now()
}

// FailFinalize records a failed sale creation. Cart, promotion and payment
// state stay untouched so the operator can retry without re-entering the order.
func (s *Session) FailFinalize() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateFailed
	s.touchedAt = s.now()
}

// settle runs after every successful mutation: a terminal state returns to
// Idle so the next transaction can proceed.
func (s *Session) settle() {
	if s.state == StateCompleted || s.state == StateFailed {
		s.state = StateIdle
	}
	s.touchedAt = s.now()
}

func (s *Session) summaryLocked() pricing.Summary {
	var discount pricing.Money
	if s.promo != nil {
		discount = s.promo.Discount(s.cart.Subtotal())
	}
	return pricing.Compute(s.cart.PricingItems(), discount, s.taxBps)
}

// PaymentView describes the current payment input and gate outcome.
type PaymentView struct {
	Method     payment.Method
	AmountRaw  string
	Amount     pricing.Money
	Sufficient bool
	Change     pricing.Money
}

// View is a consistent read of the whole session.
type View struct {
	ID      uuid.UUID
	State   State
	Lines   []cart.Line
	Promo   *promo.Applied
	Summary pricing.Summary
	Payment PaymentView
}

// View returns a consistent copy of the session state with totals and the
// payment assessment recomputed from scratch. Nothing derived is cached.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary := s.summaryLocked()
	assessment := payment.Assess(s.tender, s.entered, summary.Total)
	v := View{
		ID:      s.ID,
		State:   s.state,
		Lines:   s.cart.Lines(),
		Summary: summary,
		Payment: PaymentView{
			Method:     s.tender,
			AmountRaw:  s.enteredRaw,
			Amount:     s.entered,
			Sufficient: assessment.Sufficient,
			Change:     assessment.Change,
		},
	}
	if s.promo != nil {
		p := *s.promo
		v.Promo = &p
	}
	return v
}

// TouchedAt reports the last mutation time, used for registry expiry.
func (s *Session) TouchedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touchedAt
}
