package audit

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aiguard/proxy/internal/httpserver"
	"github.com/aiguard/proxy/pkg/model"
)

// Reader is the narrow read contract the handler needs.
type Reader interface {
	ListAuditLogs(ctx context.Context, limit, offset int) ([]model.AuditLog, error)
}

// Handler exposes the read-only /_api/admin/audit-log endpoint.
type Handler struct {
	logs   Reader
	logger *slog.Logger
}

// NewHandler creates an audit log Handler.
func NewHandler(logs Reader, logger *slog.Logger) *Handler {
	return &Handler{logs: logs, logger: logger}
}

// Routes returns a chi.Router with audit log routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	entries, err := h.logs.ListAuditLogs(r.Context(), params.PageSize, params.Offset)
	if err != nil {
		h.logger.Error("listing audit log", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list audit log")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}
