package sales

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/stockflow/internal/platform/httpx"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

// Handler wires HTTP endpoints for the sales module.
type Handler struct {
	logger  *slog.Logger
	service *Service
	credit  CreditChecker
}

// NewHandler constructs sales handler. credit may be nil.
func NewHandler(logger *slog.Logger, service *Service, credit CreditChecker) *Handler {
	return &Handler{logger: logger, service: service, credit: credit}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate(false))
		r.Post("/drafts", h.handleCreate(true))
		r.Get("/{id}", h.handleGet)
		r.Post("/{id}/submit", h.handleTransition(h.service.Submit))
		r.Post("/{id}/confirm", h.handleTransition(h.service.Confirm))
		r.Post("/{id}/hold", h.handleTransition(h.service.Hold))
		r.Post("/{id}/release-hold", h.handleTransition(h.service.ReleaseHold))
		r.Post("/{id}/process", h.handleTransition(h.service.StartProcessing))
		r.Post("/{id}/pack", h.handleTransition(h.service.MarkPacked))
		r.Post("/{id}/cancel", h.handleTransition(h.service.Cancel))
		r.Post("/{id}/invoice", h.handleInvoice)
	})
	r.Get("/invoices/{id}", h.handleGetInvoice)
	r.Post("/invoices/{id}/payments", h.handlePayment)
	r.Get("/customers/{id}/credit", h.handleCredit)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error("sales request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	customerID, err := httpx.QueryInt64(r, "customer_id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	limit, err := httpx.QueryInt64(r, "limit")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	orders, err := h.service.List(r.Context(), OrderFilter{
		CustomerID: customerID,
		Status:     OrderStatus(r.URL.Query().Get("status")),
		Limit:      int(limit),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orders)
}

func (h *Handler) handleCreate(draft bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input CreateOrderInput
		if err := httpx.DecodeJSON(r, &input); err != nil {
			h.fail(w, r, err)
			return
		}
		input.Actor = shared.ActorFromContext(r.Context())
		create := h.service.Create
		if draft {
			create = h.service.SaveDraft
		}
		order, err := create(r.Context(), input)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		h.logger.Info("sales order created", slog.String("number", order.Number), slog.String("status", string(order.Status)))
		httpx.JSON(w, http.StatusCreated, order)
	}
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleTransition(fn func(ctx context.Context, id, actor int64) (Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.IDParam(r, "id")
		if err != nil {
			h.fail(w, r, err)
			return
		}
		order, err := fn(r.Context(), id, shared.ActorFromContext(r.Context()))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, order)
	}
}

func (h *Handler) handleInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	inv, err := h.service.GenerateInvoice(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) handlePayment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	inv, err := h.service.RecordPayment(r.Context(), id, req.Amount, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) handleCredit(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if h.credit == nil {
		httpx.JSON(w, http.StatusOK, CreditDecision{Approved: true, Message: "credit checks disabled"})
		return
	}
	decision, err := h.credit.CheckCreditLimit(r.Context(), id, zeroAmount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, decision)
}
