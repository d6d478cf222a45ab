package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shopkit/checkout/internal/checkout/app"
	"github.com/shopkit/checkout/internal/checkout/domain"
	"github.com/shopkit/checkout/internal/checkout/ports"
)

// Handler exposes HTTP endpoints for cart, checkout, and order operations.
type Handler struct {
	service *app.Service
}

// NewHandler constructs a Handler.
func NewHandler(service *app.Service) *Handler {
	return &Handler{service: service}
}

// Register binds the handlers to the provided ServeMux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/carts", h.createCart)
	mux.HandleFunc("GET /v1/carts/{id}", h.getCart)
	mux.HandleFunc("POST /v1/carts/{id}/items", h.addItem)
	mux.HandleFunc("PUT /v1/carts/{id}/items/{variant}", h.setItemQuantity)
	mux.HandleFunc("DELETE /v1/carts/{id}/items/{variant}", h.removeItem)
	mux.HandleFunc("POST /v1/carts/{id}/coupon", h.applyCoupon)
	mux.HandleFunc("DELETE /v1/carts/{id}/coupon", h.removeCoupon)
	mux.HandleFunc("GET /v1/carts/{id}/quote", h.quoteCart)

	mux.HandleFunc("POST /v1/checkout", h.checkout)

	mux.HandleFunc("GET /v1/orders", h.listOrders)
	mux.HandleFunc("GET /v1/orders/{id}", h.getOrder)
	mux.HandleFunc("POST /v1/orders/{id}/submit", h.orderAction(h.submitOrder))
	mux.HandleFunc("POST /v1/orders/{id}/pay", h.orderAction(h.payOrder))
	mux.HandleFunc("POST /v1/orders/{id}/fulfill", h.orderAction(h.fulfillOrder))
	mux.HandleFunc("POST /v1/orders/{id}/ship", h.orderAction(h.shipOrder))
	mux.HandleFunc("POST /v1/orders/{id}/deliver", h.orderAction(h.deliverOrder))
	mux.HandleFunc("POST /v1/orders/{id}/cancel", h.orderAction(h.cancelOrder))
	mux.HandleFunc("POST /v1/orders/{id}/refund", h.orderAction(h.refundOrder))
}

func (h *Handler) createCart(w http.ResponseWriter, r *http.Request) {
	var payload app.CreateCartInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	cart, err := h.service.CreateCart(r.Context(), payload)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"cart": cart})
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	cart, err := h.service.GetCart(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": cart})
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var payload app.AddItemInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	cart, err := h.service.AddItem(r.Context(), id, payload)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": cart})
}

func (h *Handler) setItemQuantity(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	variant, ok := pathUUID(w, r, "variant")
	if !ok {
		return
	}

	var payload struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	cart, err := h.service.SetItemQuantity(r.Context(), id, variant, payload.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": cart})
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	variant, ok := pathUUID(w, r, "variant")
	if !ok {
		return
	}

	cart, err := h.service.RemoveItem(r.Context(), id, variant)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": cart})
}

func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var payload struct {
		Code        string            `json:"code"`
		Destination ports.Destination `json:"destination"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if payload.Code == "" {
		writeError(w, http.StatusBadRequest, "coupon code required")
		return
	}

	cart, applied, err := h.service.ApplyCoupon(r.Context(), id, payload.Code, payload.Destination)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": cart, "discount": applied})
}

func (h *Handler) removeCoupon(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	cart, err := h.service.RemoveCoupon(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": cart})
}

func (h *Handler) quoteCart(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	dest := ports.Destination{
		Country:    r.URL.Query().Get("country"),
		Region:     r.URL.Query().Get("region"),
		PostalCode: r.URL.Query().Get("postal_code"),
	}

	quote, err := h.service.QuoteCart(r.Context(), id, dest)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quote": quote})
}

// CheckoutInput captures the payload for placing an order.
type CheckoutInput struct {
	CartID      uuid.UUID         `json:"cart_id"`
	Destination ports.Destination `json:"destination"`
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idemKey == "" {
		writeError(w, http.StatusBadRequest, "Idempotency-Key header required")
		return
	}

	var payload CheckoutInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if payload.CartID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "cart_id required")
		return
	}

	// The key is claimed before any work runs, so a duplicate request either
	// replays the stored response or sees the original still in flight; it
	// can never place a second order.
	stored, acquired, err := h.service.ReserveIdempotencyKey(ctx, idemKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !acquired {
		if stored == nil || stored.StatusCode == 0 {
			writeError(w, http.StatusConflict, "request with this Idempotency-Key is in flight")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(stored.StatusCode)
		_, _ = w.Write(stored.Body)
		return
	}

	order, err := h.service.Checkout(ctx, payload.CartID, payload.Destination)
	if err != nil {
		h.releaseIdempotencyKey(ctx, idemKey)
		writeDomainError(w, err)
		return
	}

	body, err := json.Marshal(map[string]any{"order": order})
	if err != nil {
		h.releaseIdempotencyKey(ctx, idemKey)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resolved := ports.StoredResponse{
		StatusCode: http.StatusCreated,
		Body:       body,
		OrderID:    order.ID.String(),
	}
	if err := h.service.SaveIdempotentResponse(ctx, idemKey, resolved); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(body)
}

// releaseIdempotencyKey frees a claimed key on a survivable context; the
// request's own context may already be cancelled by the time checkout fails.
func (h *Handler) releaseIdempotencyKey(ctx context.Context, key string) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	_ = h.service.ReleaseIdempotencyKey(releaseCtx, key)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	filter := ports.ListFilter{}
	if stateParam := r.URL.Query().Get("state"); stateParam != "" {
		state := domain.OrderState(stateParam)
		filter.State = &state
	}
	if userParam := r.URL.Query().Get("user_id"); userParam != "" {
		userID, err := uuid.Parse(userParam)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user_id")
			return
		}
		filter.UserID = &userID
	}
	if pageParam := r.URL.Query().Get("page"); pageParam != "" {
		if page, err := strconv.Atoi(pageParam); err == nil {
			filter.Page = page
		}
	}
	if pageSizeParam := r.URL.Query().Get("page_size"); pageSizeParam != "" {
		if pageSize, err := strconv.Atoi(pageSizeParam); err == nil {
			filter.PageSize = pageSize
		}
	}

	orders, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

type actionInput struct {
	PaymentToken string `json:"payment_token,omitempty"`
	TrackingRef  string `json:"tracking_ref,omitempty"`
	Actor        string `json:"actor,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

func (h *Handler) orderAction(action func(r *http.Request, id uuid.UUID, input actionInput) (*domain.Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		var input actionInput
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
				writeError(w, http.StatusBadRequest, "invalid JSON payload")
				return
			}
		}
		if input.Actor == "" {
			input.Actor = "api"
		}

		order, err := action(r, id, input)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"order": order})
	}
}

func (h *Handler) submitOrder(r *http.Request, id uuid.UUID, _ actionInput) (*domain.Order, error) {
	return h.service.SubmitForPayment(r.Context(), id)
}

func (h *Handler) payOrder(r *http.Request, id uuid.UUID, input actionInput) (*domain.Order, error) {
	return h.service.PayOrder(r.Context(), id, input.PaymentToken)
}

func (h *Handler) fulfillOrder(r *http.Request, id uuid.UUID, _ actionInput) (*domain.Order, error) {
	return h.service.StartFulfillment(r.Context(), id)
}

func (h *Handler) shipOrder(r *http.Request, id uuid.UUID, input actionInput) (*domain.Order, error) {
	return h.service.ShipOrder(r.Context(), id, input.TrackingRef)
}

func (h *Handler) deliverOrder(r *http.Request, id uuid.UUID, _ actionInput) (*domain.Order, error) {
	return h.service.DeliverOrder(r.Context(), id)
}

func (h *Handler) cancelOrder(r *http.Request, id uuid.UUID, input actionInput) (*domain.Order, error) {
	return h.service.CancelOrder(r.Context(), id, input.Actor, input.Reason)
}

func (h *Handler) refundOrder(r *http.Request, id uuid.UUID, input actionInput) (*domain.Order, error) {
	return h.service.RefundOrder(r.Context(), id, input.Actor, input.Reason)
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// writeDomainError maps the engine's error taxonomy onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ports.ErrCartNotFound),
		errors.Is(err, ports.ErrOrderNotFound),
		errors.Is(err, ports.ErrVariantNotFound),
		errors.Is(err, ports.ErrReservationNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	switch domain.Kind(err) {
	case domain.KindValidation:
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case domain.KindConflict, domain.KindState, domain.KindResource:
		writeError(w, http.StatusConflict, err.Error())
	case domain.KindExternal:
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
