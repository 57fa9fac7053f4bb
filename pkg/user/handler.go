package user

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/aiguard/proxy/internal/audit"
	"github.com/aiguard/proxy/internal/httpserver"
	"github.com/aiguard/proxy/pkg/authn"
	"github.com/aiguard/proxy/pkg/model"
	"github.com/aiguard/proxy/pkg/repo"
)

// Repository is the store contract the handler needs.
type Repository interface {
	GetUserByID(ctx context.Context, id primitive.ObjectID) (*model.User, error)
	UpdateUserProfile(ctx context.Context, id primitive.ObjectID, displayName string) (*model.User, error)
	SetDefaultProject(ctx context.Context, userID, projectID primitive.ObjectID) error
	SetUserStatus(ctx context.Context, id primitive.ObjectID, status model.UserStatus) error
	CreateUser(ctx context.Context, email, displayName string) (*model.User, error)
}

// Handler exposes the caller's own account lifecycle.
type Handler struct {
	users  Repository
	audit  *audit.Writer
	logger *slog.Logger
}

// NewHandler creates an account Handler.
func NewHandler(users Repository, auditWriter *audit.Writer, logger *slog.Logger) *Handler {
	return &Handler{users: users, audit: auditWriter, logger: logger}
}

// Routes returns a chi.Router for /_api/users. The caller is expected to
// have already run authn.Middleware upstream.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/profile", h.handleGetProfile)
	r.Patch("/profile", h.handleUpdateProfile)
	r.Put("/account/default-project", h.handleSetDefaultProject)
	r.Delete("/account", h.handleDeleteAccount)
	return r
}

// AdminRoutes returns the /_api/admin/users surface: direct user
// provisioning and lifecycle transitions. The caller is expected to have
// already run authn.AdminGuard upstream.
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleAdminCreate)
	r.Put("/{id}/status", h.handleAdminSetStatus)
	return r
}

func principal(r *http.Request) (*model.User, bool) {
	p, ok := authn.FromContext(r.Context())
	if !ok || p.User == nil {
		return nil, false
	}
	return p.User, true
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	u, ok := principal(r)
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	httpserver.Respond(w, http.StatusOK, ToResponse(u))
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	u, ok := principal(r)
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var req UpdateProfileRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	updated, err := h.users.UpdateUserProfile(r.Context(), u.ID, req.DisplayName)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		h.logger.Error("updating user profile", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to update profile")
		return
	}

	h.audit.LogRequest(r, &u.ID, "user.profile.update", "user", u.ID.Hex(), model.AuditSuccess, nil, "")
	httpserver.Respond(w, http.StatusOK, ToResponse(updated))
}

func (h *Handler) handleSetDefaultProject(w http.ResponseWriter, r *http.Request) {
	u, ok := principal(r)
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var req SetDefaultProjectRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	projectID, err := primitive.ObjectIDFromHex(req.ProjectID)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid projectId")
		return
	}

	if err := h.users.SetDefaultProject(r.Context(), u.ID, projectID); err != nil {
		h.logger.Error("setting default project", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to set default project")
		return
	}

	h.audit.LogRequest(r, &u.ID, "user.default_project.set", "user", u.ID.Hex(), model.AuditSuccess, map[string]any{"projectId": req.ProjectID}, "")
	httpserver.Respond(w, http.StatusNoContent, nil)
}

// handleDeleteAccount logically deletes the caller's own account,
// cascading to revoke every personal access token the user owns
// (enforced in repo.Store.SetUserStatus).
func (h *Handler) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	u, ok := principal(r)
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	if err := h.users.SetUserStatus(r.Context(), u.ID, model.UserDeleted); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		h.logger.Error("deleting account", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to delete account")
		return
	}

	h.audit.LogRequest(r, &u.ID, "user.account.delete", "user", u.ID.Hex(), model.AuditSuccess, nil, "")
	httpserver.Respond(w, http.StatusNoContent, nil)
}

// adminActorID returns the acting principal's user id when one is present;
// the X-Admin-Key override path carries none.
func adminActorID(r *http.Request) *primitive.ObjectID {
	p, ok := authn.FromContext(r.Context())
	if !ok || p.User == nil {
		return nil
	}
	return &p.User.ID
}

func (h *Handler) handleAdminCreate(w http.ResponseWriter, r *http.Request) {
	var req ProvisionRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	created, err := h.users.CreateUser(r.Context(), req.Email, req.DisplayName)
	if err != nil {
		if errors.Is(err, repo.ErrConflict) {
			httpserver.RespondError(w, http.StatusConflict, "conflict", "a user with this email already exists")
			return
		}
		h.logger.Error("provisioning user", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to create user")
		return
	}

	h.audit.LogRequest(r, adminActorID(r), "user.create", "user", created.ID.Hex(), model.AuditSuccess, map[string]any{"email": created.Email}, "")
	httpserver.Respond(w, http.StatusCreated, ToResponse(created))
}

func (h *Handler) handleAdminSetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid user id")
		return
	}

	var req SetStatusRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if err := h.users.SetUserStatus(r.Context(), id, req.Status); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		h.logger.Error("setting user status", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to set user status")
		return
	}

	h.audit.LogRequest(r, adminActorID(r), "user.status.set", "user", id.Hex(), model.AuditSuccess, map[string]any{"status": req.Status}, "")
	httpserver.Respond(w, http.StatusNoContent, nil)
}
