package promo

import "context"

// Validator abstracts the external promo-code validation collaborator.
type Validator interface {
	ValidatePromoCode(ctx context.Context, code string) (Applied, error)
}

// Resolver normalizes candidate codes and resolves them against the external
// validator. It holds no state; the owning session keeps the applied result.
type Resolver struct {
	Backend Validator
}

// Apply rejects blank input locally, then asks the validator for the
// normalized code. Implementations of Validator surface ErrValidationFailed
// or ErrNetwork so callers can distinguish the failure for user messaging.
func (r *Resolver) Apply(ctx context.Context, codeText string) (Applied, error) {
	code := Normalize(codeText)
	if code == "" {
		return Applied{}, ErrInvalidCode
	}
	if r == nil || r.Backend == nil {
		return Applied{}, ErrNetwork
	}
	applied, err := r.Backend.ValidatePromoCode(ctx, code)
	if err != nil {
		return Applied{}, err
	}
	applied.Code = Normalize(applied.Code)
	if applied.Code == "" {
		applied.Code = code
	}
	return applied, nil
}
