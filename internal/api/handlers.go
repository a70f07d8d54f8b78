package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/pos-keramik/internal/backendapi"
	"github.com/noah-isme/pos-keramik/internal/cart"
	"github.com/noah-isme/pos-keramik/internal/checkout"
	"github.com/noah-isme/pos-keramik/internal/common"
	"github.com/noah-isme/pos-keramik/internal/events"
	"github.com/noah-isme/pos-keramik/internal/obs"
	"github.com/noah-isme/pos-keramik/internal/payment"
	"github.com/noah-isme/pos-keramik/internal/promo"
	"github.com/noah-isme/pos-keramik/internal/session"
)

// Handler exposes the terminal session endpoints.
type Handler struct {
	Registry *session.Registry
	Backend  backendapi.Store
	Promo    *promo.Resolver
	Checkout *checkout.Service
	Events   *events.Bus
	Validate *validator.Validate
	Logger   zerolog.Logger
}

type addItemRequest struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	Qty       int    `json:"qty" validate:"required,gt=0"`
}

type updateItemRequest struct {
	Qty int `json:"qty"`
}

type promoRequest struct {
	Code string `json:"code" validate:"required"`
}

type paymentRequest struct {
	Method string `json:"method" validate:"required"`
	Amount string `json:"amount"`
}

// CreateSession handles POST /api/v1/sessions.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	s := h.Registry.Open()
	h.Logger.Info().Str("session_id", s.ID.String()).Msg("session opened")
	common.JSON(w, http.StatusCreated, map[string]any{"data": renderSession(s.View())})
}

// GetSession handles GET /api/v1/sessions/{id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": renderSession(s.View())})
}

// CloseSession handles DELETE /api/v1/sessions/{id}.
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.Registry.Close(id)
	w.WriteHeader(http.StatusNoContent)
}

// AddItem handles POST /api/v1/sessions/{id}/items. The product is resolved
// against the backend catalog on every add so price and stock are current.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req addItemRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		h.writeError(w, common.NewAppError("VALIDATION", "productId must be a UUID", http.StatusBadRequest, err))
		return
	}
	product, err := h.Backend.LookupProduct(r.Context(), productID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := s.AddItem(product, req.Qty); err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": renderSession(s.View())})
}

// UpdateItem handles PATCH /api/v1/sessions/{id}/items/{productId}. A
// quantity of zero or less does not remove the line; it returns 409 asking
// for the explicit DELETE.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	productID, err := productID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req updateItemRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if err := s.SetQty(productID, req.Qty); err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": renderSession(s.View())})
}

// RemoveItem handles DELETE /api/v1/sessions/{id}/items/{productId}, the
// confirmed second step of a removal.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	productID, err := productID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := s.RemoveItem(productID); err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": renderSession(s.View())})
}

// ClearItems handles DELETE /api/v1/sessions/{id}/items.
func (h *Handler) ClearItems(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := s.ClearCart(); err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": renderSession(s.View())})
}

// ApplyPromo handles POST /api/v1/sessions/{id}/promo.
func (h *Handler) ApplyPromo(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req promoRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	applied, err := h.Promo.Apply(r.Context(), req.Code)
	if err != nil {
		h.countPromo("rejected")
		h.writeError(w, err)
		return
	}
	if err := s.SetPromo(applied); err != nil {
		h.writeError(w, err)
		return
	}
	h.countPromo("accepted")
	h.emit(r, events.TopicPromoApplied, s, map[string]any{"code": applied.Code})
	common.JSON(w, http.StatusOK, map[string]any{"data": renderSession(s.View())})
}

// RemovePromo handles DELETE /api/v1/sessions/{id}/promo.
func (h *Handler) RemovePromo(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := s.RemovePromo(); err != nil {
		h.writeError(w, err)
		return
	}
	h.emit(r, events.TopicPromoRemoved, s, nil)
	common.JSON(w, http.StatusOK, map[string]any{"data": renderSession(s.View())})
}

// SetPayment handles PUT /api/v1/sessions/{id}/payment.
func (h *Handler) SetPayment(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req paymentRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	method, err := payment.ParseMethod(req.Method)
	if err != nil {
		h.writeError(w, common.NewAppError("UNKNOWN_METHOD", "unsupported tender method", http.StatusBadRequest, err))
		return
	}
	if err := s.SetPayment(method, req.Amount); err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": renderSession(s.View())})
}

// SubmitCheckout handles POST /api/v1/sessions/{id}/checkout.
func (h *Handler) SubmitCheckout(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	conf, err := h.Checkout.Finalize(r.Context(), s)
	if err != nil {
		// Precondition rejections never reached the backend; only a
		// submitted attempt counts as a sale outcome.
		if errors.Is(err, checkout.ErrSaleCreation) {
			h.countSale(string(s.View().Payment.Method), "failed")
		}
		h.writeError(w, err)
		return
	}
	h.countSale(string(conf.Method), "completed")
	if obs.SaleAmountCentavos != nil {
		obs.SaleAmountCentavos.Add(float64(conf.Summary.Total))
	}
	if obs.DiscountCentavos != nil {
		obs.DiscountCentavos.Add(float64(conf.Summary.Discount))
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": renderConfirmation(conf)})
}

func (h *Handler) session(r *http.Request) (*session.Session, error) {
	id, err := sessionID(r)
	if err != nil {
		return nil, err
	}
	return h.Registry.Get(id)
}

func sessionID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, session.ErrNotFound
	}
	return id, nil
}

func productID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "productId"))
	if err != nil {
		return uuid.Nil, common.NewAppError("VALIDATION", "productId must be a UUID", http.StatusBadRequest, err)
	}
	return id, nil
}

func (h *Handler) decode(r *http.Request, dst any) error {
	if err := common.DecodeJSON(r, dst); err != nil {
		return common.NewAppError("VALIDATION", "malformed request body", http.StatusBadRequest, err)
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(dst); err != nil {
			return common.NewAppError("VALIDATION", err.Error(), http.StatusBadRequest, err)
		}
	}
	return nil
}

func (h *Handler) emit(r *http.Request, topic string, s *session.Session, payload map[string]any) {
	if h.Events == nil {
		return
	}
	if _, err := h.Events.Emit(r.Context(), topic, s.ID, payload); err != nil {
		h.Logger.Warn().Err(err).Str("topic", topic).Msg("emit event")
	}
}

func (h *Handler) countPromo(result string) {
	if obs.PromoValidationTotal != nil {
		obs.PromoValidationTotal.WithLabelValues(result).Inc()
	}
}

func (h *Handler) countSale(method, result string) {
	if obs.SalesTotal != nil {
		obs.SalesTotal.WithLabelValues(method, result).Inc()
	}
}

// writeError maps domain sentinels onto the canonical error envelope. Backend
// rejection messages pass through verbatim so the operator sees what the
// store system said.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		common.JSONError(w, status, appErr.Code, appErr.Message, appErr.Details)
		return
	}

	switch {
	case errors.Is(err, session.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "session not found", nil)
	case errors.Is(err, backendapi.ErrProductNotFound):
		common.JSONError(w, http.StatusNotFound, "PRODUCT_NOT_FOUND", "product not found", nil)
	case errors.Is(err, cart.ErrOutOfStock):
		common.JSONError(w, http.StatusUnprocessableEntity, "OUT_OF_STOCK", "product is out of stock", nil)
	case errors.Is(err, cart.ErrStockExceeded):
		common.JSONError(w, http.StatusUnprocessableEntity, "STOCK_EXCEEDED", "quantity exceeds available stock", nil)
	case errors.Is(err, cart.ErrRemovalConfirmation):
		common.JSONError(w, http.StatusConflict, "REMOVAL_CONFIRMATION_REQUIRED", "confirm removal by deleting the line", nil)
	case errors.Is(err, cart.ErrInvalidQty):
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "quantity must be positive", nil)
	case errors.Is(err, cart.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "LINE_NOT_FOUND", "item is not in the cart", nil)
	case errors.Is(err, promo.ErrInvalidCode):
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_CODE", "promo code is required", nil)
	case errors.Is(err, promo.ErrValidationFailed):
		common.JSONError(w, http.StatusUnprocessableEntity, "PROMO_REJECTED", verbatim(err, promo.ErrValidationFailed), nil)
	case errors.Is(err, promo.ErrNetwork):
		common.JSONError(w, http.StatusBadGateway, "NETWORK_ERROR", "promo validator unreachable", nil)
	case errors.Is(err, session.ErrEmptyCart):
		common.JSONError(w, http.StatusUnprocessableEntity, "EMPTY_CART", "cart is empty", nil)
	case errors.Is(err, session.ErrInsufficientPayment):
		common.JSONError(w, http.StatusUnprocessableEntity, "INSUFFICIENT_PAYMENT", "entered amount is below the total", nil)
	case errors.Is(err, session.ErrSubmitInFlight):
		common.JSONError(w, http.StatusConflict, "SUBMIT_IN_FLIGHT", "a checkout is already in progress", nil)
	case errors.Is(err, checkout.ErrSaleCreation):
		common.JSONError(w, http.StatusBadGateway, "SALE_FAILED", err.Error(), nil)
	default:
		h.Logger.Error().Err(err).Msg("unhandled error")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}

// verbatim strips the sentinel prefix added by %w wrapping, leaving the
// collaborator's original message.
func verbatim(err, sentinel error) string {
	msg := err.Error()
	prefix := sentinel.Error() + ": "
	if strings.HasPrefix(msg, prefix) {
		return strings.TrimPrefix(msg, prefix)
	}
	return msg
}
