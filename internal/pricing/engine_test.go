package pricing

import "testing"

func TestComputeBasic(t *testing.T) {
	items := []Item{{Qty: 2, UnitPrice: 10_000}}
	summary := Compute(items, 0, 1200)
	if summary.Subtotal != 20_000 {
		t.Fatalf("expected subtotal 20000, got %d", summary.Subtotal)
	}
	if summary.Tax != 2_400 {
		t.Fatalf("expected tax 2400, got %d", summary.Tax)
	}
	if summary.Total != 22_400 {
		t.Fatalf("expected total 22400, got %d", summary.Total)
	}
}

func TestComputeOrderIndependent(t *testing.T) {
	a := []Item{{Qty: 1, UnitPrice: 5_000}, {Qty: 3, UnitPrice: 2_500}}
	b := []Item{{Qty: 3, UnitPrice: 2_500}, {Qty: 1, UnitPrice: 5_000}}
	if Compute(a, 0, 1200).Subtotal != Compute(b, 0, 1200).Subtotal {
		t.Fatal("subtotal must not depend on item order")
	}
}

func TestComputeDiscountClamped(t *testing.T) {
	items := []Item{{Qty: 1, UnitPrice: 10_000}}
	summary := Compute(items, 50_000, 1200)
	if summary.Discount != 10_000 {
		t.Fatalf("expected discount clamped to 10000, got %d", summary.Discount)
	}
	if summary.Total < 0 {
		t.Fatalf("total must never be negative, got %d", summary.Total)
	}
	if summary.Total != 1_200 {
		t.Fatalf("expected total 1200 (tax remains), got %d", summary.Total)
	}
}

func TestComputeNegativeDiscountIgnored(t *testing.T) {
	items := []Item{{Qty: 1, UnitPrice: 10_000}}
	summary := Compute(items, -500, 1200)
	if summary.Discount != 0 {
		t.Fatalf("expected zero discount, got %d", summary.Discount)
	}
}

func TestComputeSkipsNonPositiveQty(t *testing.T) {
	items := []Item{{Qty: 0, UnitPrice: 10_000}, {Qty: -2, UnitPrice: 10_000}, {Qty: 1, UnitPrice: 7_500}}
	summary := Compute(items, 0, 0)
	if summary.Subtotal != 7_500 {
		t.Fatalf("expected subtotal 7500, got %d", summary.Subtotal)
	}
	if summary.Tax != 0 {
		t.Fatalf("expected zero tax at 0 bps, got %d", summary.Tax)
	}
}
