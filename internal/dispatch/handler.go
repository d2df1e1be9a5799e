package dispatch

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/stockflow/internal/inventory"
	"github.com/odyssey-erp/stockflow/internal/platform/httpx"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

// Handler manages dispatch endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers dispatch routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/pick", h.handleStartPicking)
	r.Post("/{id}/picks", h.quantities(h.service.RecordPicks))
	r.Post("/{id}/packs", h.quantities(h.service.RecordPacks))
	r.Post("/{id}/pack", h.handleCompletePacking)
	r.Post("/{id}/ready", h.handleReady)
	r.Post("/{id}/ship", h.handleShip)
	r.Post("/{id}/in-transit", h.tracking(h.service.MarkInTransit))
	r.Post("/{id}/out-for-delivery", h.tracking(h.service.MarkOutForDelivery))
	r.Post("/{id}/deliver", h.tracking(h.service.MarkDelivered))
	r.Post("/{id}/fail", h.tracking(h.service.MarkFailed))
	r.Post("/{id}/cancel", h.tracking(h.service.Cancel))
	r.Post("/{id}/tracking", h.handleAddTracking)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error("dispatch request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	orderID, err := httpx.QueryInt64(r, "sales_order_id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	limit, err := httpx.QueryInt64(r, "limit")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	list, err := h.service.List(r.Context(), Filter{
		SalesOrderID: orderID,
		Status:       Status(r.URL.Query().Get("status")),
		Limit:        int(limit),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	input.Actor = shared.ActorFromContext(r.Context())
	d, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("dispatch created", slog.String("number", d.Number), slog.Int64("sales_order_id", d.SalesOrderID))
	httpx.JSON(w, http.StatusCreated, d)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	d, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) handleStartPicking(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	d, err := h.service.StartPicking(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) handleCompletePacking(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	d, err := h.service.CompletePacking(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) quantities(fn func(ctx context.Context, id int64, lines []QuantityInput, actor int64) (Dispatch, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.IDParam(r, "id")
		if err != nil {
			h.fail(w, r, err)
			return
		}
		var req quantitiesRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
		d, err := fn(r.Context(), id, req.Lines, shared.ActorFromContext(r.Context()))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, d)
	}
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input ReadyInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	d, err := h.service.MarkReadyToShip(r.Context(), id, input, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) handleShip(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	d, err := h.service.Ship(r.Context(), id, shared.ActorFromContext(r.Context()), r.Header.Get(inventory.IdempotencyHeader))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("dispatch shipped", slog.String("number", d.Number), slog.String("tracking_number", d.TrackingNumber))
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) tracking(fn func(ctx context.Context, id int64, input TrackingInput, actor int64) (Dispatch, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.IDParam(r, "id")
		if err != nil {
			h.fail(w, r, err)
			return
		}
		var input TrackingInput
		if err := httpx.DecodeJSON(r, &input); err != nil {
			h.fail(w, r, err)
			return
		}
		d, err := fn(r.Context(), id, input, shared.ActorFromContext(r.Context()))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, d)
	}
}

func (h *Handler) handleAddTracking(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input TrackingInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.service.AddTrackingUpdate(r.Context(), id, input, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, u)
}
