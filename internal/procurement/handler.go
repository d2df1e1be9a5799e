package procurement

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/stockflow/internal/inventory"
	"github.com/odyssey-erp/stockflow/internal/platform/httpx"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

// Handler manages procurement endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/purchase-orders", func(r chi.Router) {
		r.Get("/", h.handleListPOs)
		r.Post("/", h.handleCreatePO)
		r.Get("/{id}", h.handleGetPO)
		r.Get("/{id}/grns", h.handleListGRNs)
		r.Get("/{id}/approvals", h.handleApprovals)
		r.Post("/{id}/submit", h.poTransition(h.service.SubmitPurchaseOrder))
		r.Post("/{id}/approve", h.poTransition(h.service.ApprovePurchaseOrder))
		r.Post("/{id}/reject", h.handleRejectPO)
		r.Post("/{id}/send", h.poTransition(h.service.SendPurchaseOrder))
		r.Post("/{id}/cancel", h.poTransition(h.service.CancelPurchaseOrder))
	})
	r.Route("/grns", func(r chi.Router) {
		r.Post("/", h.handleCreateGRN)
		r.Get("/{id}", h.handleGetGRN)
		r.Post("/{id}/submit", h.grnTransition(h.service.SubmitGoodsReceipt))
		r.Post("/{id}/reject", h.grnTransition(h.service.RejectGoodsReceipt))
		r.Post("/{id}/verify", h.handleVerifyGRN)
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error("procurement request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) handleListPOs(w http.ResponseWriter, r *http.Request) {
	supplierID, err := httpx.QueryInt64(r, "supplier_id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	limit, err := httpx.QueryInt64(r, "limit")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	pos, err := h.service.ListPurchaseOrders(r.Context(), POFilter{
		SupplierID: supplierID,
		Status:     POStatus(r.URL.Query().Get("status")),
		Limit:      int(limit),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pos)
}

func (h *Handler) handleCreatePO(w http.ResponseWriter, r *http.Request) {
	var input CreatePOInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	input.Actor = shared.ActorFromContext(r.Context())
	po, err := h.service.CreatePurchaseOrder(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("purchase order created", slog.String("number", po.Number), slog.Int64("supplier_id", po.SupplierID))
	httpx.JSON(w, http.StatusCreated, po)
}

func (h *Handler) handleGetPO(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	po, err := h.service.GetPurchaseOrder(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) handleListGRNs(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	grns, err := h.service.ListGoodsReceipts(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grns)
}

func (h *Handler) handleApprovals(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	logs, err := h.service.ApprovalHistory(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, logs)
}

func (h *Handler) poTransition(fn func(ctx context.Context, id, actor int64) (PurchaseOrder, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.IDParam(r, "id")
		if err != nil {
			h.fail(w, r, err)
			return
		}
		po, err := fn(r.Context(), id, shared.ActorFromContext(r.Context()))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, po)
	}
}

func (h *Handler) handleRejectPO(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req rejectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	po, err := h.service.RejectPurchaseOrder(r.Context(), id, shared.ActorFromContext(r.Context()), req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) handleCreateGRN(w http.ResponseWriter, r *http.Request) {
	var input CreateGRNInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	input.Actor = shared.ActorFromContext(r.Context())
	grn, err := h.service.CreateGoodsReceipt(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, grn)
}

func (h *Handler) handleGetGRN(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	grn, err := h.service.GetGoodsReceipt(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grn)
}

func (h *Handler) grnTransition(fn func(ctx context.Context, id, actor int64) (GoodsReceipt, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.IDParam(r, "id")
		if err != nil {
			h.fail(w, r, err)
			return
		}
		grn, err := fn(r.Context(), id, shared.ActorFromContext(r.Context()))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, grn)
	}
}

func (h *Handler) handleVerifyGRN(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	grn, err := h.service.VerifyGoodsReceipt(r.Context(), id, shared.ActorFromContext(r.Context()), r.Header.Get(inventory.IdempotencyHeader))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("goods receipt verified", slog.String("number", grn.Number), slog.Int64("po_id", grn.POID))
	httpx.JSON(w, http.StatusOK, grn)
}
