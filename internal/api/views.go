package api

import (
	"github.com/noah-isme/pos-keramik/internal/cart"
	"github.com/noah-isme/pos-keramik/internal/checkout"
	"github.com/noah-isme/pos-keramik/internal/common"
	"github.com/noah-isme/pos-keramik/internal/pricing"
	"github.com/noah-isme/pos-keramik/internal/promo"
	"github.com/noah-isme/pos-keramik/internal/session"
)

type lineView struct {
	ProductID    string `json:"productId"`
	Name         string `json:"name"`
	UnitPrice    int64  `json:"unitPrice"`
	Qty          int    `json:"qty"`
	StockCeiling int    `json:"stockCeiling"`
	Subtotal     int64  `json:"subtotal"`
}

type promoView struct {
	Code    string  `json:"code"`
	Kind    string  `json:"kind"`
	Value   int64   `json:"value,omitempty"`
	Percent float64 `json:"percent,omitempty"`
}

type summaryView struct {
	Subtotal     int64  `json:"subtotal"`
	Discount     int64  `json:"discount"`
	Tax          int64  `json:"tax"`
	Total        int64  `json:"total"`
	TotalDisplay string `json:"totalDisplay"`
}

type paymentView struct {
	Method        string `json:"method"`
	AmountRaw     string `json:"amountEntered,omitempty"`
	Amount        int64  `json:"amount"`
	Sufficient    bool   `json:"sufficient"`
	Change        int64  `json:"change"`
	ChangeDisplay string `json:"changeDisplay"`
}

type sessionView struct {
	ID      string      `json:"id"`
	State   string      `json:"state"`
	Lines   []lineView  `json:"lines"`
	Promo   *promoView  `json:"promo,omitempty"`
	Summary summaryView `json:"summary"`
	Payment paymentView `json:"payment"`
}

type confirmationView struct {
	OrderNumber   string      `json:"orderNumber"`
	Summary       summaryView `json:"summary"`
	Method        string      `json:"method"`
	AmountPaid    int64       `json:"amountPaid"`
	Change        int64       `json:"change"`
	ChangeDisplay string      `json:"changeDisplay"`
	PromoCode     string      `json:"promoCode,omitempty"`
}

func renderLines(lines []cart.Line) []lineView {
	out := make([]lineView, 0, len(lines))
	for _, l := range lines {
		out = append(out, lineView{
			ProductID:    l.ProductID.String(),
			Name:         l.Name,
			UnitPrice:    l.UnitPrice,
			Qty:          l.Qty,
			StockCeiling: l.StockCeiling,
			Subtotal:     l.Subtotal(),
		})
	}
	return out
}

func renderPromo(p *promo.Applied) *promoView {
	if p == nil {
		return nil
	}
	v := &promoView{Code: p.Code, Kind: string(p.Kind)}
	switch p.Kind {
	case promo.KindPercent:
		v.Percent = float64(p.PercentBps) / 100
	case promo.KindFixed:
		v.Value = p.Value
	}
	return v
}

func renderSummary(s pricing.Summary) summaryView {
	return summaryView{
		Subtotal:     s.Subtotal,
		Discount:     s.Discount,
		Tax:          s.Tax,
		Total:        s.Total,
		TotalDisplay: common.FormatMinor(s.Total),
	}
}

func renderSession(v session.View) sessionView {
	return sessionView{
		ID:      v.ID.String(),
		State:   string(v.State),
		Lines:   renderLines(v.Lines),
		Promo:   renderPromo(v.Promo),
		Summary: renderSummary(v.Summary),
		Payment: paymentView{
			Method:        string(v.Payment.Method),
			AmountRaw:     v.Payment.AmountRaw,
			Amount:        v.Payment.Amount,
			Sufficient:    v.Payment.Sufficient,
			Change:        v.Payment.Change,
			ChangeDisplay: common.FormatMinor(v.Payment.Change),
		},
	}
}

func renderConfirmation(c checkout.Confirmation) confirmationView {
	return confirmationView{
		OrderNumber:   c.OrderNumber,
		Summary:       renderSummary(c.Summary),
		Method:        string(c.Method),
		AmountPaid:    c.AmountPaid,
		Change:        c.Change,
		ChangeDisplay: common.FormatMinor(c.Change),
		PromoCode:     c.PromoCode,
	}
}
