package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pos-keramik/internal/backendapi"
	"github.com/noah-isme/pos-keramik/internal/cart"
	"github.com/noah-isme/pos-keramik/internal/checkout"
	"github.com/noah-isme/pos-keramik/internal/obs"
	"github.com/noah-isme/pos-keramik/internal/pricing"
	"github.com/noah-isme/pos-keramik/internal/promo"
	"github.com/noah-isme/pos-keramik/internal/session"
)

type fakeStore struct {
	products    map[uuid.UUID]cart.Product
	promoResult promo.Applied
	promoErr    error
	saleErr     error
	orderNumber string
	saleReqs    []backendapi.SaleRequest
	usageCodes  []string
}

func (f *fakeStore) LookupProduct(_ context.Context, id uuid.UUID) (cart.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return cart.Product{}, backendapi.ErrProductNotFound
	}
	return p, nil
}

func (f *fakeStore) ValidatePromoCode(_ context.Context, code string) (promo.Applied, error) {
	if f.promoErr != nil {
		return promo.Applied{}, f.promoErr
	}
	result := f.promoResult
	if result.Code == "" {
		result.Code = code
	}
	return result, nil
}

func (f *fakeStore) CreateSale(_ context.Context, req backendapi.SaleRequest) (backendapi.SaleResult, error) {
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

func (f *fakeStore) IncrementPromoUsage(_ context.Context, code string) error {
	f.usageCodes = append(f.usageCodes, code)
	return nil
}

type testServer struct {
	router *chi.Mux
	store  *fakeStore
	tileID uuid.UUID
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	tileID := uuid.New()
	store := &fakeStore{
		products: map[uuid.UUID]cart.Product{
			tileID: {ID: tileID, Name: "Granite Tile 60x60", Price: 10_000, Stock: 3},
		},
	}
	registry := session.NewRegistry(1200, 0, nil)
	h := &Handler{
		Registry: registry,
		Backend:  store,
		Promo:    &promo.Resolver{Backend: store},
		Checkout: &checkout.Service{Backend: store, Logger: zerolog.Nop()},
		Validate: validator.New(),
		Logger:   zerolog.Nop(),
	}
	r := chi.NewRouter()
	r.Route("/api/v1", func(v chi.Router) { h.Routes(v) })
	return &testServer{router: r, store: store, tileID: tileID}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) openSession(t *testing.T) string {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var payload struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload.Data.ID
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) sessionView {
	t.Helper()
	var payload struct {
		Data sessionView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload.Data
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload.Error.Code
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t)
	id := ts.openSession(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeSession(t, rec)
	require.Equal(t, "idle", view.State)
	require.Empty(t, view.Lines)

	rec = ts.do(t, http.MethodDelete, "/api/v1/sessions/"+id, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/sessions/"+id, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "SESSION_NOT_FOUND", errorCode(t, rec))
}

func TestAddItemComputesTotals(t *testing.T) {
	ts := newTestServer(t)
	id := ts.openSession(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/items", addItemRequest{ProductID: ts.tileID.String(), Qty: 2})
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeSession(t, rec)
	require.Len(t, view.Lines, 1)
	require.EqualValues(t, 20_000, view.Summary.Subtotal)
	require.EqualValues(t, 2_400, view.Summary.Tax)
	require.EqualValues(t, 22_400, view.Summary.Total)
	require.Equal(t, "224.00", view.Summary.TotalDisplay)
}

func TestAddItemStockCeiling(t *testing.T) {
	ts := newTestServer(t)
	id := ts.openSession(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/items", addItemRequest{ProductID: ts.tileID.String(), Qty: 3})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/items", addItemRequest{ProductID: ts.tileID.String(), Qty: 1})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "STOCK_EXCEEDED", errorCode(t, rec))
}

func TestAddItemUnknownProduct(t *testing.T) {
	ts := newTestServer(t)
	id := ts.openSession(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/items", addItemRequest{ProductID: uuid.NewString(), Qty: 1})
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "PRODUCT_NOT_FOUND", errorCode(t, rec))
}

func TestUpdateItemZeroQtyNeedsConfirmation(t *testing.T) {
	ts := newTestServer(t)
	id := ts.openSession(t)
	ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/items", addItemRequest{ProductID: ts.tileID.String(), Qty: 2})

	itemPath := fmt.Sprintf("/api/v1/sessions/%s/items/%s", id, ts.tileID)
	rec := ts.do(t, http.MethodPatch, itemPath, updateItemRequest{Qty: 0})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "REMOVAL_CONFIRMATION_REQUIRED", errorCode(t, rec))

	// Line is untouched until the confirmed delete.
	rec = ts.do(t, http.MethodGet, "/api/v1/sessions/"+id, nil)
	require.Len(t, decodeSession(t, rec).Lines, 1)

	rec = ts.do(t, http.MethodDelete, itemPath, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decodeSession(t, rec).Lines)
}

func TestPromoApplyAndDerivedDiscount(t *testing.T) {
	ts := newTestServer(t)
	id := ts.openSession(t)
	ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/items", addItemRequest{ProductID: ts.tileID.String(), Qty: 2})
	ts.store.promoResult = promo.Applied{Code: "SAVE10", Kind: promo.KindPercent, PercentBps: 1000}

	rec := ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/promo", promoRequest{Code: " save10 "})
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeSession(t, rec)
	require.NotNil(t, view.Promo)
	require.Equal(t, "SAVE10", view.Promo.Code)
	require.EqualValues(t, 2_000, view.Summary.Discount)
	require.EqualValues(t, 20_400, view.Summary.Total)

	rec = ts.do(t, http.MethodDelete, "/api/v1/sessions/"+id+"/promo", nil)
	view = decodeSession(t, rec)
	require.Nil(t, view.Promo)
	require.EqualValues(t, 0, view.Summary.Discount)
}

func TestPromoRejectionSurfacesBackendMessage(t *testing.T) {
	ts := newTestServer(t)
	id := ts.openSession(t)
	ts.store.promoErr = fmt.Errorf("%w: promo code has expired", promo.ErrValidationFailed)

	rec := ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/promo", promoRequest{Code: "OLD"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "PROMO_REJECTED", errorCode(t, rec))
	require.Contains(t, rec.Body.String(), "promo code has expired")
}

func TestPromoNetworkError(t *testing.T) {
	ts := newTestServer(t)
	id := ts.openSession(t)
	ts.store.promoErr = fmt.Errorf("%w: dial tcp: connection refused", promo.ErrNetwork)

	rec := ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/promo", promoRequest{Code: "SAVE10"})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Equal(t, "NETWORK_ERROR", errorCode(t, rec))
}

func TestPaymentSufficiencyGate(t *testing.T) {
	ts := newTestServer(t)
	id := ts.openSession(t)
	ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/items", addItemRequest{ProductID: ts.tileID.String(), Qty: 2})

	rec := ts.do(t, http.MethodPut, "/api/v1/sessions/"+id+"/payment", paymentRequest{Method: "cash", Amount: "200.00"})
	view := decodeSession(t, rec)
	require.False(t, view.Payment.Sufficient)

	rec = ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/checkout", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "INSUFFICIENT_PAYMENT", errorCode(t, rec))

	rec = ts.do(t, http.MethodPut, "/api/v1/sessions/"+id+"/payment", paymentRequest{Method: "cash", Amount: "250.00"})
	view = decodeSession(t, rec)
	require.True(t, view.Payment.Sufficient)
	require.EqualValues(t, 2_600, view.Payment.Change)
	require.Equal(t, "26.00", view.Payment.ChangeDisplay)
}

func TestPaymentUnknownMethod(t *testing.T) {
	ts := newTestServer(t)
	id := ts.openSession(t)
	rec := ts.do(t, http.MethodPut, "/api/v1/sessions/"+id+"/payment", paymentRequest{Method: "check"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "UNKNOWN_METHOD", errorCode(t, rec))
}

func TestCheckoutSuccess(t *testing.T) {
	ts := newTestServer(t)
	ts.store.orderNumber = "POS-2025-000042"
	id := ts.openSession(t)
	ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/items", addItemRequest{ProductID: ts.tileID.String(), Qty: 2})
	ts.do(t, http.MethodPut, "/api/v1/sessions/"+id+"/payment", paymentRequest{Method: "cash", Amount: "250.00"})

	rec := ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/checkout", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var payload struct {
		Data confirmationView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, "POS-2025-000042", payload.Data.OrderNumber)
	require.EqualValues(t, 2_600, payload.Data.Change)

	require.Len(t, ts.store.saleReqs, 1)
	require.EqualValues(t, pricing.Money(22_400), ts.store.saleReqs[0].Total)

	// Session resets for the next customer.
	rec = ts.do(t, http.MethodGet, "/api/v1/sessions/"+id, nil)
	view := decodeSession(t, rec)
	require.Equal(t, "completed", view.State)
	require.Empty(t, view.Lines)
}

func TestCheckoutEmptyCart(t *testing.T) {
	ts := newTestServer(t)
	id := ts.openSession(t)
	rec := ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/checkout", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "EMPTY_CART", errorCode(t, rec))
}

func TestCheckoutFailureKeepsCart(t *testing.T) {
	ts := newTestServer(t)
	ts.store.saleErr = fmt.Errorf("insufficient stock for Granite Tile 60x60")
	id := ts.openSession(t)
	ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/items", addItemRequest{ProductID: ts.tileID.String(), Qty: 2})
	ts.do(t, http.MethodPut, "/api/v1/sessions/"+id+"/payment", paymentRequest{Method: "gcash"})

	rec := ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/checkout", nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Equal(t, "SALE_FAILED", errorCode(t, rec))
	require.Contains(t, rec.Body.String(), "insufficient stock for Granite Tile 60x60")

	rec = ts.do(t, http.MethodGet, "/api/v1/sessions/"+id, nil)
	view := decodeSession(t, rec)
	require.Equal(t, "failed", view.State)
	require.Len(t, view.Lines, 1)
}

func TestCheckoutSaleMetricSkipsPreconditionFailures(t *testing.T) {
	obs.MustRegisterDomainMetrics("pos_api_test", prometheus.NewRegistry())
	ts := newTestServer(t)
	id := ts.openSession(t)

	series := testutil.CollectAndCount(obs.SalesTotal)

	rec := ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/checkout", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/items", addItemRequest{ProductID: ts.tileID.String(), Qty: 1})
	ts.do(t, http.MethodPut, "/api/v1/sessions/"+id+"/payment", paymentRequest{Method: "cash", Amount: "1.00"})
	rec = ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/checkout", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	require.Equal(t, series, testutil.CollectAndCount(obs.SalesTotal), "rejected preconditions are not sale outcomes")

	// A submitted attempt the backend refuses does count.
	failed := obs.SalesTotal.WithLabelValues("cash", "failed")
	before := testutil.ToFloat64(failed)
	ts.store.saleErr = fmt.Errorf("insufficient stock for Granite Tile 60x60")
	ts.do(t, http.MethodPut, "/api/v1/sessions/"+id+"/payment", paymentRequest{Method: "cash", Amount: "250.00"})
	rec = ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/checkout", nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Equal(t, before+1, testutil.ToFloat64(failed))
}

func TestMalformedBodyRejected(t *testing.T) {
	ts := newTestServer(t)
	id := ts.openSession(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+id+"/items", bytes.NewReader([]byte("{broken")))
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "VALIDATION", errorCode(t, rec))
}
