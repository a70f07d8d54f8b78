package promo

import (
	"errors"
	"strings"

	"github.com/noah-isme/pos-keramik/internal/pricing"
)

var (
	// ErrInvalidCode is returned for empty or whitespace-only input. No
	// validator call is made in that case.
	ErrInvalidCode = errors.New("promo: code is required")
	// ErrValidationFailed indicates the external validator rejected the code
	// (unknown, expired, exhausted or not yet active).
	ErrValidationFailed = errors.New("promo: code rejected")
	// ErrNetwork indicates the validator could not be reached.
	ErrNetwork = errors.New("promo: validator unreachable")
)

// Kind enumerates the supported discount types.
type Kind string

const (
	// KindPercent discounts a percentage of the subtotal.
	KindPercent Kind = "percent"
	// KindFixed discounts a fixed amount, clamped to the subtotal.
	KindFixed Kind = "fixed"
)

// Applied is a validated promotion held by a session. At most one is applied
// at a time; the discount amount is always derived, never stored.
type Applied struct {
	Code       string
	Kind       Kind
	Value      pricing.Money
	PercentBps int32
}

// Normalize uppercases and trims a candidate code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Discount computes the amount this promotion takes off the given subtotal.
// The result re-derives on every call so cart edits after application are
// always reflected. It is never negative and never exceeds the subtotal.
func (a Applied) Discount(subtotal pricing.Money) pricing.Money {
	if subtotal <= 0 {
		return 0
	}
	var discount pricing.Money
	switch a.Kind {
	case KindPercent:
		if a.PercentBps <= 0 {
			return 0
		}
		discount = (subtotal * pricing.Money(a.PercentBps)) / 10000
	case KindFixed:
		discount = a.Value
	default:
		return 0
	}
	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		return 0
	}
	return discount
}
