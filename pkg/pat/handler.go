package pat

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/aiguard/proxy/internal/audit"
	"github.com/aiguard/proxy/internal/httpserver"
	"github.com/aiguard/proxy/pkg/authn"
	"github.com/aiguard/proxy/pkg/model"
	"github.com/aiguard/proxy/pkg/repo"
	"github.com/aiguard/proxy/pkg/tokenauth"
)

// Repository is the store contract the handler needs.
type Repository interface {
	CreateToken(ctx context.Context, t *model.PersonalAccessToken) error
	ListTokensByUser(ctx context.Context, userID primitive.ObjectID) ([]model.PersonalAccessToken, error)
	GetTokenByID(ctx context.Context, id, userID primitive.ObjectID) (*model.PersonalAccessToken, error)
	RevokeToken(ctx context.Context, id, userID primitive.ObjectID) error
}

// Handler exposes the /_api/users/tokens lifecycle: create, list, revoke,
// rotate.
type Handler struct {
	tokens Repository
	audit  *audit.Writer
	logger *slog.Logger
}

// NewHandler creates a token lifecycle Handler.
func NewHandler(tokens Repository, auditWriter *audit.Writer, logger *slog.Logger) *Handler {
	return &Handler{tokens: tokens, audit: auditWriter, logger: logger}
}

// Routes returns a chi.Router with token lifecycle routes mounted. The
// caller is expected to have already run authn.Middleware upstream.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Delete("/{id}", h.handleRevoke)
	r.Post("/{id}/rotate", h.handleRotate)
	return r
}

func principalUserID(r *http.Request) (primitive.ObjectID, bool) {
	p, ok := authn.FromContext(r.Context())
	if !ok || p.User == nil {
		return primitive.ObjectID{}, false
	}
	return p.User.ID, true
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := principalUserID(r)
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	projectID, err := parseProjectID(req.ProjectID)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid projectId")
		return
	}

	token, created, err := h.create(r.Context(), userID, projectID, req)
	if err != nil {
		if errors.Is(err, repo.ErrConflict) {
			httpserver.RespondError(w, http.StatusConflict, "conflict", "a token with this name already exists")
			return
		}
		h.logger.Error("creating token", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to create token")
		return
	}

	h.audit.LogRequest(r, &userID, "api_key.create", "personal_access_token", created.ID.Hex(), model.AuditSuccess, map[string]any{"name": req.Name}, "")
	httpserver.Respond(w, http.StatusCreated, CreateResponse{Response: ToResponse(created), Token: token})
}

// create mints a raw token, hashes it, and persists the record.
func (h *Handler) create(ctx context.Context, userID primitive.ObjectID, projectID *primitive.ObjectID, req CreateRequest) (string, *model.PersonalAccessToken, error) {
	gen, err := tokenauth.Generate()
	if err != nil {
		return "", nil, err
	}
	hash, err := tokenauth.Hash(gen.Raw)
	if err != nil {
		return "", nil, err
	}

	var expiresAt *time.Time
	if req.ExpiresInDays != nil {
		t := time.Now().UTC().AddDate(0, 0, *req.ExpiresInDays)
		expiresAt = &t
	}

	t := &model.PersonalAccessToken{
		ID:         primitive.NewObjectID(),
		PublicID:   gen.PublicID,
		SecretHash: hash,
		UserID:     userID,
		ProjectID:  projectID,
		Name:       req.Name,
		Scopes:     req.Scopes,
		ExpiresAt:  expiresAt,
	}
	if err := h.tokens.CreateToken(ctx, t); err != nil {
		return "", nil, err
	}
	return gen.Raw, t, nil
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := principalUserID(r)
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	tokens, err := h.tokens.ListTokensByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("listing tokens", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list tokens")
		return
	}

	out := make([]Response, 0, len(tokens))
	for i := range tokens {
		out = append(out, ToResponse(&tokens[i]))
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"tokens": out})
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	userID, ok := principalUserID(r)
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid token id")
		return
	}

	if err := h.tokens.RevokeToken(r.Context(), id, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "token not found")
			return
		}
		h.logger.Error("revoking token", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to revoke token")
		return
	}

	h.audit.LogRequest(r, &userID, "api_key.revoke", "personal_access_token", id.Hex(), model.AuditSuccess, nil, "")
	httpserver.Respond(w, http.StatusNoContent, nil)
}

// handleRotate revokes the existing token and mints a fresh one carrying
// the same scopes and project binding, named after the old token with a
// " (rotated)" suffix: the old secret dies, a new secret is issued.
func (h *Handler) handleRotate(w http.ResponseWriter, r *http.Request) {
	userID, ok := principalUserID(r)
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid token id")
		return
	}

	existing, err := h.tokens.GetTokenByID(r.Context(), id, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "token not found")
			return
		}
		h.logger.Error("looking up token for rotation", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to rotate token")
		return
	}

	if err := h.tokens.RevokeToken(r.Context(), id, userID); err != nil {
		h.logger.Error("revoking token during rotation", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to rotate token")
		return
	}

	req := CreateRequest{Name: existing.Name + " (rotated)", Scopes: existing.Scopes}
	if existing.ProjectID != nil {
		req.ProjectID = existing.ProjectID.Hex()
	}
	token, created, err := h.create(r.Context(), userID, existing.ProjectID, req)
	if err != nil {
		h.logger.Error("creating rotated token", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to rotate token")
		return
	}

	h.audit.LogRequest(r, &userID, "api_key.rotate", "personal_access_token", created.ID.Hex(), model.AuditSuccess, map[string]any{"previousTokenId": id.Hex()}, "")
	httpserver.Respond(w, http.StatusCreated, CreateResponse{Response: ToResponse(created), Token: token})
}
