package backendapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/pos-keramik/internal/cart"
	"github.com/noah-isme/pos-keramik/internal/pricing"
	"github.com/noah-isme/pos-keramik/internal/promo"
	"github.com/noah-isme/pos-keramik/internal/resilience"
)

var (
	// ErrProductNotFound is returned when the catalog has no such product.
	ErrProductNotFound = errors.New("backendapi: product not found")
	// ErrBackend wraps non-2xx responses outside the typed cases.
	ErrBackend = errors.New("backendapi: backend error")
)

// Store is the surface of the retailer backend the terminal consumes. The
// backend owns all durable state; the terminal only reads catalog data and
// submits finished sales.
type Store interface {
	LookupProduct(ctx context.Context, id uuid.UUID) (cart.Product, error)
	ValidatePromoCode(ctx context.Context, code string) (promo.Applied, error)
	CreateSale(ctx context.Context, req SaleRequest) (SaleResult, error)
	IncrementPromoUsage(ctx context.Context, code string) error
}

// SaleItem is one submitted line of the sale payload.
type SaleItem struct {
	ProductID string        `json:"productId"`
	Name      string        `json:"name"`
	Qty       int           `json:"qty"`
	UnitPrice pricing.Money `json:"unitPrice"`
	Subtotal  pricing.Money `json:"subtotal"`
}

// SaleRequest is the sale-creation payload. Amounts are minor units.
type SaleRequest struct {
	Items         []SaleItem    `json:"items"`
	Subtotal      pricing.Money `json:"subtotal"`
	Tax           pricing.Money `json:"tax"`
	Discount      pricing.Money `json:"discount"`
	Total         pricing.Money `json:"total"`
	PaymentMethod string        `json:"paymentMethod"`
	PromoCode     string        `json:"promoCode,omitempty"`
	AmountPaid    pricing.Money `json:"amountPaid,omitempty"`
	ClientRef     string        `json:"clientRef,omitempty"`
}

// SaleResult carries the confirmation returned by the backend.
type SaleResult struct {
	OrderNumber string
}

// Client talks to the store backend REST API through the resilient HTTP
// wrapper. Configure the wrapper with an otelhttp transport to propagate
// traces.
type Client struct {
	BaseURL string
	HTTP    resilience.HTTPClient
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// LookupProduct fetches price, optional discounted price and current stock.
func (c *Client) LookupProduct(ctx context.Context, id uuid.UUID) (cart.Product, error) {
	var payload struct {
		Data struct {
			ID            string   `json:"id"`
			Name          string   `json:"name"`
			Price         int64    `json:"price"`
			DiscountPrice *int64   `json:"discountPrice"`
			Stock         int      `json:"stock"`
			Categories    []string `json:"categories"`
		} `json:"data"`
	}
	resp, err := c.get(ctx, "/api/v1/products/"+id.String())
	if err != nil {
		return cart.Product{}, fmt.Errorf("lookup product: %w", err)
	}
	defer drain(resp)
	if resp.StatusCode == http.StatusNotFound {
		return cart.Product{}, ErrProductNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return cart.Product{}, c.asBackendError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return cart.Product{}, fmt.Errorf("decode product: %w", err)
	}
	p := cart.Product{
		ID:    id,
		Name:  payload.Data.Name,
		Price: payload.Data.Price,
		Stock: payload.Data.Stock,
	}
	if payload.Data.DiscountPrice != nil {
		dp := pricing.Money(*payload.Data.DiscountPrice)
		p.DiscountPrice = &dp
	}
	return p, nil
}

// ValidatePromoCode asks the backend whether the code is usable right now.
// Rejections surface promo.ErrValidationFailed carrying the backend message
// verbatim; transport failures surface promo.ErrNetwork.
func (c *Client) ValidatePromoCode(ctx context.Context, code string) (promo.Applied, error) {
	body, err := json.Marshal(map[string]string{"code": code})
	if err != nil {
		return promo.Applied{}, err
	}
	resp, err := c.post(ctx, "/api/v1/promo-codes/validate", body)
	if err != nil {
		return promo.Applied{}, fmt.Errorf("%w: %v", promo.ErrNetwork, err)
	}
	defer drain(resp)
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return promo.Applied{}, fmt.Errorf("%w: %s", promo.ErrValidationFailed, c.errorMessage(resp))
	}
	if resp.StatusCode != http.StatusOK {
		return promo.Applied{}, fmt.Errorf("%w: %v", promo.ErrNetwork, c.asBackendError(resp))
	}
	var payload struct {
		Valid     bool `json:"valid"`
		PromoCode *struct {
			Code          string  `json:"code"`
			DiscountType  string  `json:"discountType"`
			DiscountValue float64 `json:"discountValue"`
		} `json:"promoCode"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return promo.Applied{}, fmt.Errorf("%w: decode validation response: %v", promo.ErrNetwork, err)
	}
	if !payload.Valid || payload.PromoCode == nil {
		return promo.Applied{}, fmt.Errorf("%w: promo code is not valid", promo.ErrValidationFailed)
	}
	applied := promo.Applied{Code: payload.PromoCode.Code}
	switch strings.ToLower(strings.TrimSpace(payload.PromoCode.DiscountType)) {
	case "percentage", "percent":
		applied.Kind = promo.KindPercent
		applied.PercentBps = int32(math.Round(payload.PromoCode.DiscountValue * 100))
	case "fixed":
		applied.Kind = promo.KindFixed
		applied.Value = pricing.Money(math.Round(payload.PromoCode.DiscountValue * 100))
	default:
		return promo.Applied{}, fmt.Errorf("%w: unknown discount type %q", promo.ErrValidationFailed, payload.PromoCode.DiscountType)
	}
	return applied, nil
}

// CreateSale submits the finished transaction. The backend decrements stock
// and records the sale; the returned order number goes on the receipt.
func (c *Client) CreateSale(ctx context.Context, req SaleRequest) (SaleResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return SaleResult{}, err
	}
	resp, err := c.post(ctx, "/api/v1/sales", body)
	if err != nil {
		return SaleResult{}, fmt.Errorf("create sale: %w", err)
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return SaleResult{}, errors.New(c.errorMessage(resp))
	}
	var payload struct {
		Success bool `json:"success"`
		Order   struct {
			OrderNumber string `json:"orderNumber"`
		} `json:"order"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return SaleResult{}, fmt.Errorf("decode sale response: %w", err)
	}
	if !payload.Success {
		return SaleResult{}, errors.New("sale was not accepted")
	}
	return SaleResult{OrderNumber: payload.Order.OrderNumber}, nil
}

// IncrementPromoUsage bumps the usage counter for a redeemed code. Callers
// treat failures as best-effort.
func (c *Client) IncrementPromoUsage(ctx context.Context, code string) error {
	resp, err := c.post(ctx, "/api/v1/promo-codes/"+code+"/usage", nil)
	if err != nil {
		return fmt.Errorf("increment promo usage: %w", err)
	}
	defer drain(resp)
	if resp.StatusCode >= 300 {
		return c.asBackendError(resp)
	}
	return nil
}

// Ping probes backend reachability for readiness checks.
func (c *Client) Ping(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	resp, err := c.get(ctx, "/healthz")
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode >= 500 {
		return c.asBackendError(resp)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, c.url(path), nil)
	if err != nil {
		return nil, err
	}
	return c.HTTP.Do(ctx, req)
}

func (c *Client) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(http.MethodPost, c.url(path), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.HTTP.Do(ctx, req)
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + path
}

func (c *Client) asBackendError(resp *http.Response) error {
	return fmt.Errorf("%w: %s", ErrBackend, c.errorMessage(resp))
}

// errorMessage extracts the backend's human-readable message so it can be
// surfaced to the operator verbatim.
func (c *Client) errorMessage(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err == nil && len(data) > 0 {
		var body errorBody
		if jsonErr := json.Unmarshal(data, &body); jsonErr == nil && body.Error.Message != "" {
			return body.Error.Message
		}
	}
	return resp.Status
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
