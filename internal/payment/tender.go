package payment

import (
	"errors"
	"strings"

	"github.com/noah-isme/pos-keramik/internal/pricing"
)

// ErrUnknownMethod is returned for tender methods the terminal does not support.
var ErrUnknownMethod = errors.New("payment: unknown tender method")

// Method enumerates the tender methods accepted at the terminal.
type Method string

const (
	MethodCash  Method = "cash"
	MethodCOD   Method = "cod"
	MethodGCash Method = "gcash"
	MethodMaya  Method = "maya"
)

// ParseMethod normalizes and validates a tender method string.
func ParseMethod(value string) (Method, error) {
	switch Method(strings.ToLower(strings.TrimSpace(value))) {
	case MethodCash:
		return MethodCash, nil
	case MethodCOD:
		return MethodCOD, nil
	case MethodGCash:
		return MethodGCash, nil
	case MethodMaya:
		return MethodMaya, nil
	default:
		return "", ErrUnknownMethod
	}
}

// Cash reports whether the method requires an entered amount.
func (m Method) Cash() bool {
	return m == MethodCash
}

// ParseAmount converts a decimal string such as "250.00" into minor units
// without going through floating point. Malformed or empty input parses as 0,
// which is correctly insufficient for any positive total. Fractions beyond
// two digits are truncated.
func ParseAmount(value string) pricing.Money {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0
	}
	whole, frac, _ := strings.Cut(trimmed, ".")
	var units pricing.Money
	for _, r := range whole {
		if r < '0' || r > '9' {
			return 0
		}
		units = units*10 + pricing.Money(r-'0')
		if units > 1<<53 {
			return 0
		}
	}
	var cents pricing.Money
	for i, r := range frac {
		if r < '0' || r > '9' {
			return 0
		}
		if i < 2 {
			cents = cents*10 + pricing.Money(r-'0')
		}
	}
	if len(frac) == 1 {
		cents *= 10
	}
	return units*100 + cents
}

// Assessment is the outcome of the sufficiency gate.
type Assessment struct {
	Sufficient bool
	Change     pricing.Money
}

// Assess compares an entered amount against the transaction total. Non-cash
// tenders are always sufficient and never yield change; insufficient cash
// never surfaces a negative change.
func Assess(method Method, entered, total pricing.Money) Assessment {
	if !method.Cash() {
		return Assessment{Sufficient: true}
	}
	if entered < total {
		return Assessment{}
	}
	return Assessment{Sufficient: true, Change: entered - total}
}
