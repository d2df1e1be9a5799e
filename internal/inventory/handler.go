package inventory

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/stockflow/internal/platform/httpx"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

// IdempotencyHeader carries client supplied idempotency keys.
const IdempotencyHeader = "Idempotency-Key"

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stock", h.handleGetStock)
	r.Get("/stock/low", h.handleLowStock)
	r.Get("/stock/reconcile", h.handleReconcile)
	r.Put("/stock/reorder-point", h.handleReorderPoint)
	r.Get("/transactions", h.handleHistory)
	r.Post("/adjustments", h.handleAdjustment)
	r.Post("/damages", h.handleDamage)
	r.Route("/transfers", func(r chi.Router) {
		r.Get("/", h.handleListTransfers)
		r.Post("/", h.handleCreateTransfer)
		r.Get("/{id}", h.handleGetTransfer)
		r.Post("/{id}/approve", h.handleApproveTransfer)
		r.Post("/{id}/ship", h.handleShipTransfer)
		r.Post("/{id}/receive", h.handleReceiveTransfer)
		r.Post("/{id}/cancel", h.handleCancelTransfer)
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error("inventory request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) pairQuery(r *http.Request) (int64, int64, error) {
	warehouseID, err := httpx.QueryInt64(r, "warehouse_id")
	if err != nil {
		return 0, 0, err
	}
	productID, err := httpx.QueryInt64(r, "product_id")
	if err != nil {
		return 0, 0, err
	}
	return warehouseID, productID, nil
}

func (h *Handler) handleGetStock(w http.ResponseWriter, r *http.Request) {
	warehouseID, productID, err := h.pairQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rec, err := h.service.GetStock(r.Context(), warehouseID, productID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	warehouseID, err := httpx.QueryInt64(r, "warehouse_id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	limit, err := httpx.QueryInt64(r, "limit")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	recs, err := h.service.LowStock(r.Context(), warehouseID, int(limit))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, recs)
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	warehouseID, productID, err := h.pairQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.service.Reconcile(r.Context(), warehouseID, productID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) handleReorderPoint(w http.ResponseWriter, r *http.Request) {
	var req reorderPointRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.SetReorderPoint(r.Context(), req.WarehouseID, req.ProductID, req.ReorderPoint); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	warehouseID, productID, err := h.pairQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	limit, err := httpx.QueryInt64(r, "limit")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	txs, err := h.service.History(r.Context(), TransactionFilter{WarehouseID: warehouseID, ProductID: productID, Limit: int(limit)})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]TransactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, t.Response())
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.service.PostAdjustment(r.Context(), AdjustmentInput{
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
		WarehouseID:    req.WarehouseID,
		ProductID:      req.ProductID,
		Qty:            req.Quantity,
		Reason:         req.Reason,
		Actor:          shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("inventory adjustment posted", slog.String("number", res.Number), slog.Int64("qty", req.Quantity))
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) handleDamage(w http.ResponseWriter, r *http.Request) {
	var req damageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.service.PostDamage(r.Context(), DamageInput{
		WarehouseID: req.WarehouseID,
		ProductID:   req.ProductID,
		Qty:         req.Quantity,
		Reason:      req.Reason,
		Actor:       shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) handleListTransfers(w http.ResponseWriter, r *http.Request) {
	warehouseID, err := httpx.QueryInt64(r, "warehouse_id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	transfers, err := h.service.ListTransfers(r.Context(), TransferFilter{
		Status:      TransferStatus(r.URL.Query().Get("status")),
		WarehouseID: warehouseID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, transfers)
}

func (h *Handler) handleCreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req CreateTransferInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	req.Actor = shared.ActorFromContext(r.Context())
	t, err := h.service.CreateTransfer(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, t)
}

func (h *Handler) handleGetTransfer(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := h.service.GetTransfer(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) handleApproveTransfer(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id, actor int64) (Transfer, error) {
		return h.service.ApproveTransfer(r.Context(), id, actor)
	})
}

func (h *Handler) handleCancelTransfer(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id, actor int64) (Transfer, error) {
		return h.service.CancelTransfer(r.Context(), id, actor)
	})
}

func (h *Handler) handleShipTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferLinesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	h.transition(w, r, func(id, actor int64) (Transfer, error) {
		return h.service.ShipTransfer(r.Context(), id, req.Items, actor)
	})
}

func (h *Handler) handleReceiveTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferLinesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	h.transition(w, r, func(id, actor int64) (Transfer, error) {
		return h.service.ReceiveTransfer(r.Context(), id, req.Items, actor)
	})
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(id, actor int64) (Transfer, error)) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := fn(id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}
