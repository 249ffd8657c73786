package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/KasparTech1/Friday01/internal/intake/application"
	"github.com/KasparTech1/Friday01/internal/intake/domain"
)

// Idempotency guards the create-order route against replayed submissions.
type Idempotency interface {
	Middleware(log *slog.Logger, onDuplicate http.HandlerFunc) func(http.Handler) http.Handler
}

type Handler struct {
	log     *slog.Logger
	gateway *application.Gateway
	idem    Idempotency
	ready   func() bool
	tracer  trace.Tracer
}

type Option func(*Handler)

func WithIdempotency(idem Idempotency) Option {
	return func(h *Handler) { h.idem = idem }
}

// WithReadiness makes /health report 503 until ready returns true.
func WithReadiness(ready func() bool) Option {
	return func(h *Handler) { h.ready = ready }
}

func NewHandler(log *slog.Logger, gateway *application.Gateway, opts ...Option) *Handler {
	h := &Handler{
		log:     log,
		gateway: gateway,
		ready:   func() bool { return true },
		tracer:  otel.Tracer("intake-http"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type createOrderReq struct {
	DealerID   string `json:"dealerId"`
	CustomerPO string `json:"customerPo"`
}

type setItemReq struct {
	Qty int64 `json:"qty"`
}

type setItemResp struct {
	OrderID           string `json:"orderId"`
	PartID            string `json:"part"`
	Qty               int64  `json:"qty"`
	EffectiveQtyAfter int64  `json:"effectiveQtyAfter"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    domain.Kind `json:"kind"`
	Message string      `json:"message"`
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.extractTrace)

	r.Get("/health", h.health)
	r.Get("/inventory", h.listInventory)
	r.With(h.idempotent).Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Put("/orders/{id}/items/{part}", h.setItem)
	r.Delete("/orders/{id}/items/{part}", h.removeItem)
	r.Post("/orders/{id}/confirm", h.confirm)
	r.Post("/orders/{id}/cancel-confirm", h.cancelConfirm)
	r.Post("/orders/{id}/submit", h.submit)
	r.Post("/orders/{id}/abandon", h.abandon)
	r.Get("/dealers/{dealerID}/orders", h.listDealerOrders)

	return r
}

func (h *Handler) extractTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) idempotent(next http.Handler) http.Handler {
	if h.idem == nil {
		return next
	}
	return h.idem.Middleware(h.log, func(w http.ResponseWriter, r *http.Request) {
		h.writeJSON(w, http.StatusConflict, errorBody{Error: errorDetail{
			Kind:    domain.KindInvalidState,
			Message: "a request with this idempotency key is still in progress",
		}})
	})(next)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if !h.ready() {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) listInventory(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListInventory")
	defer span.End()

	lines, err := h.gateway.ListEffectiveInventory(ctx)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	h.writeJSON(w, http.StatusOK, lines)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateOrder")
	defer span.End()

	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, span, domain.Validation("invalid body: %v", err))
		return
	}

	o, err := h.gateway.CreateOrder(ctx, req.DealerID, req.CustomerPO)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	span.SetAttributes(attribute.String("order.id", o.ID))
	w.Header().Set("Location", "/orders/"+o.ID)
	h.writeJSON(w, http.StatusCreated, o)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.start(r, "GetOrder")
	defer span.End()

	o, err := h.gateway.GetOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	h.writeJSON(w, http.StatusOK, o)
}

func (h *Handler) listDealerOrders(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListDealerOrders",
		trace.WithAttributes(attribute.String("dealer.id", chi.URLParam(r, "dealerID"))))
	defer span.End()

	orders, err := h.gateway.ListDealerOrders(ctx, chi.URLParam(r, "dealerID"))
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	h.writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) setItem(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.start(r, "SetOrderItem")
	defer span.End()

	var req setItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, span, domain.Validation("invalid body: %v", err))
		return
	}
	orderID, partID := chi.URLParam(r, "id"), chi.URLParam(r, "part")
	span.SetAttributes(attribute.String("part.id", partID), attribute.Int64("qty", req.Qty))

	effective, err := h.gateway.SetOrderItem(ctx, orderID, partID, req.Qty)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	h.writeJSON(w, http.StatusOK, setItemResp{
		OrderID:           orderID,
		PartID:            partID,
		Qty:               req.Qty,
		EffectiveQtyAfter: effective,
	})
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.start(r, "RemoveOrderItem")
	defer span.End()

	if err := h.gateway.RemoveOrderItem(ctx, chi.URLParam(r, "id"), chi.URLParam(r, "part")); err != nil {
		h.writeError(w, span, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "ConfirmOrder", h.gateway.ConfirmOrder)
}

func (h *Handler) cancelConfirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "CancelConfirm", h.gateway.CancelConfirm)
}

func (h *Handler) abandon(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "AbandonOrder", h.gateway.AbandonOrder)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.start(r, "SubmitOrder")
	defer span.End()

	res, err := h.gateway.SubmitOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, name string, fn func(context.Context, string) (application.OrderView, error)) {
	ctx, span := h.start(r, name)
	defer span.End()

	o, err := fn(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	h.writeJSON(w, http.StatusOK, o)
}

func (h *Handler) start(r *http.Request, name string) (context.Context, trace.Span) {
	return h.tracer.Start(r.Context(), name, trace.WithAttributes(attribute.String("order.id", chi.URLParam(r, "id"))))
}

// StatusFor maps an error kind onto its HTTP status.
func StatusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindUnknownPart, domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInvalidState, domain.KindEmptyOrder, domain.KindInsufficientAvailability,
		domain.KindInsufficientStock, domain.KindCommitFailed:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, span trace.Span, err error) {
	var ie *domain.Error
	if !errors.As(err, &ie) {
		ie = domain.Translate(err).(*domain.Error)
	}
	status := StatusFor(ie.Kind)
	span.SetAttributes(attribute.String("error.kind", string(ie.Kind)))
	if status >= http.StatusInternalServerError {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(ie.Kind))
	}
	msg := ie.Message
	if ie.Kind == domain.KindInternal {
		msg = "internal error"
	}
	h.writeJSON(w, status, errorBody{Error: errorDetail{Kind: ie.Kind, Message: msg}})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("write response", "status", status, "err", err)
	}
}
