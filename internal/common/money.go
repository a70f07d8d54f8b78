package common

import "strconv"

// FormatMinor renders an amount in centavos as a plain decimal string with
// two fraction digits, e.g. 22400 -> "224.00". Used on receipts and in API
// payloads that carry display amounts.
func FormatMinor(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	whole := amount / 100
	frac := amount % 100
	s := strconv.FormatInt(whole, 10) + "." + pad2(frac)
	if neg {
		return "-" + s
	}
	return s
}

func pad2(n int64) string {
	if n < 10 {
		return "0" + strconv.FormatInt(n, 10)
	}
	return strconv.FormatInt(n, 10)
}
