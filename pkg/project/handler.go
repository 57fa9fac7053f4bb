package project

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
	"github.com/aiguard/proxy/pkg/quota"
	"github.com/aiguard/proxy/pkg/repo"
	"github.com/aiguard/proxy/pkg/vault"
)

// Repository is the store contract the handler needs.
type Repository interface {
	GetProjectByID(ctx context.Context, id primitive.ObjectID) (*model.Project, error)
	CreateProject(ctx context.Context, name string, ownerID primitive.ObjectID) (*model.Project, error)
	ListProjectsByMember(ctx context.Context, userID primitive.ObjectID) ([]model.Project, error)
	AddMember(ctx context.Context, projectID, userID primitive.ObjectID, role model.MemberRole) error
	RemoveMember(ctx context.Context, projectID, userID primitive.ObjectID) error
	AddCredential(ctx context.Context, projectID primitive.ObjectID, cred model.Credential) error
	SetCredentialActive(ctx context.Context, projectID primitive.ObjectID, provider model.Provider, keyID string, active bool) error
	RemoveCredential(ctx context.Context, projectID primitive.ObjectID, provider model.Provider, keyID string) error
	UpdateSettings(ctx context.Context, projectID primitive.ObjectID, settings model.Settings) error
}

// UsageRecordReader reads paginated usage-accounting records for a project.
// Satisfied by *repo.Store.
type UsageRecordReader interface {
	ListUsageRecordsByProjectPage(ctx context.Context, projectID primitive.ObjectID, afterTimestamp time.Time, afterID primitive.ObjectID, limit int) ([]model.UsageRecord, error)
}

// Handler exposes the /_api/projects administrative surface.
type Handler struct {
	projects Repository
	usage    UsageRecordReader
	vault    *vault.Vault
	audit    *audit.Writer
	logger   *slog.Logger
}

// NewHandler creates a project admin Handler.
func NewHandler(projects Repository, usage UsageRecordReader, v *vault.Vault, auditWriter *audit.Writer, logger *slog.Logger) *Handler {
	return &Handler{projects: projects, usage: usage, vault: v, audit: auditWriter, logger: logger}
}

// Routes returns a chi.Router with project routes mounted. The caller is
// expected to have already run authn.Middleware upstream.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/members", h.handleAddMember)
	r.Delete("/{id}/members/{userId}", h.handleRemoveMember)
	r.Post("/{id}/keys", h.handleAddCredential)
	r.Put("/{id}/keys/{provider}/{keyId}/activate", h.handleActivateCredential)
	r.Delete("/{id}/keys/{provider}/{keyId}", h.handleRemoveCredential)
	r.Put("/{id}/settings", h.handleUpdateSettings)
	r.Get("/{id}/quota", h.handleGetQuota)
	r.Put("/{id}/quota", h.handleSetQuota)
	r.Get("/{id}/usage", h.handleUsage)
	r.Get("/{id}/usage/records", h.handleUsageRecords)
	return r
}

func principalUserID(r *http.Request) (primitive.ObjectID, bool) {
	p, ok := authn.FromContext(r.Context())
	if !ok || p.User == nil {
		return primitive.ObjectID{}, false
	}
	return p.User.ID, true
}

func parseObjectID(s string) (primitive.ObjectID, error) {
	return primitive.ObjectIDFromHex(s)
}

// membership is the caller's standing within a loaded project.
type membership struct {
	project *model.Project
	isAdmin bool
}

// loadAsMember fetches a project and verifies userID belongs to it. It
// writes the appropriate error response and returns ok=false on failure.
func (h *Handler) loadAsMember(w http.ResponseWriter, r *http.Request, userID primitive.ObjectID) (membership, bool) {
	id, err := parseObjectID(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid project id")
		return membership{}, false
	}

	proj, err := h.projects.GetProjectByID(r.Context(), id)
	if err != nil {
		h.logger.Error("getting project", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to load project")
		return membership{}, false
	}
	if proj == nil {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "project not found")
		return membership{}, false
	}

	for _, m := range proj.Members {
		if m.UserID == userID {
			isAdmin := m.Role == model.RoleOwner || m.Role == model.RoleAdmin
			return membership{project: proj, isAdmin: isAdmin}, true
		}
	}
	httpserver.RespondError(w, http.StatusForbidden, "forbidden", "not a member of this project")
	return membership{}, false
}

// requireAdmin writes a 403 and returns false unless m carries admin/owner
// standing.
func requireAdmin(w http.ResponseWriter, m membership) bool {
	if !m.isAdmin {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "admin or owner role required")
		return false
	}
	return true
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

	proj, err := h.projects.CreateProject(r.Context(), req.Name, userID)
	if err != nil {
		h.logger.Error("creating project", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to create project")
		return
	}

	h.audit.LogRequest(r, &userID, "project.create", "project", proj.ID.Hex(), model.AuditSuccess, map[string]any{"name": req.Name}, "")
	httpserver.Respond(w, http.StatusCreated, ToResponse(proj))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := principalUserID(r)
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	projects, err := h.projects.ListProjectsByMember(r.Context(), userID)
	if err != nil {
		h.logger.Error("listing projects", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list projects")
		return
	}

	out := make([]Response, 0, len(projects))
	for i := range projects {
		out = append(out, ToResponse(&projects[i]))
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"projects": out})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := principalUserID(r)
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	m, ok := h.loadAsMember(w, r, userID)
	if !ok {
		return
	}
	httpserver.Respond(w, http.StatusOK, ToResponse(m.project))
}

func (h *Handler) handleAddMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := principalUserID(r)
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	m, ok := h.loadAsMember(w, r, userID)
	if !ok {
		return
	}
	if !requireAdmin(w, m) {
		return
	}
	proj := m.project

	var req AddMemberRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	memberID, err := parseObjectID(req.UserID)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid userId")
		return
	}

	if err := h.projects.AddMember(r.Context(), proj.ID, memberID, req.Role); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			httpserver.RespondError(w, http.StatusConflict, "conflict", "user is already a member")
			return
		}
		h.logger.Error("adding member", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to add member")
		return
	}

	h.audit.LogRequest(r, &userID, "project.member.add", "project", proj.ID.Hex(), model.AuditSuccess, map[string]any{"memberId": req.UserID, "role": req.Role}, "")
	httpserver.Respond(w, http.StatusNoContent, nil)
}

func (h *Handler) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := principalUserID(r)
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	m, ok := h.loadAsMember(w, r, userID)
	if !ok {
		return
	}
	if !requireAdmin(w, m) {
		return
	}
	proj := m.project

	memberID, err := parseObjectID(chi.URLParam(r, "userId"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid userId")
		return
	}

	if err := h.projects.RemoveMember(r.Context(), proj.ID, memberID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "member not found, or is the project owner")
			return
		}
		h.logger.Error("removing member", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to remove member")
		return
	}

	h.audit.LogRequest(r, &userID, "project.member.remove", "project", proj.ID.Hex(), model.AuditSuccess, map[string]any{"memberId": memberID.Hex()}, "")
	httpserver.Respond(w, http.StatusNoContent, nil)
}

func (h *Handler) handleAddCredential(w http.ResponseWriter, r *http.Request) {
	userID, ok := principalUserID(r)
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	m, ok := h.loadAsMember(w, r, userID)
	if !ok {
		return
	}
	if !requireAdmin(w, m) {
		return
	}
	proj := m.project

	var req AddCredentialRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	sealed, err := h.vault.Encrypt(req.APIKey, map[string]string{"provider": string(req.Provider)})
	if err != nil {
		h.logger.Error("sealing credential", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to seal credential")
		return
	}

	cred := model.Credential{
		Provider:    req.Provider,
		Ciphertext:  sealed.Envelope.Ciphertext,
		KeyID:       sealed.KeyID,
		MasterKeyID: sealed.Envelope.KeyID,
		Active:      true,
		AddedBy:     userID,
	}
	if err := h.projects.AddCredential(r.Context(), proj.ID, cred); err != nil {
		h.logger.Error("adding credential", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to add credential")
		return
	}

	h.audit.LogRequest(r, &userID, "project.credential.add", "project", proj.ID.Hex(), model.AuditSuccess, map[string]any{"provider": req.Provider}, "")
	httpserver.Respond(w, http.StatusCreated, CredentialResponse{Provider: string(cred.Provider), KeyID: cred.KeyID, Active: cred.Active})
}

func (h *Handler) handleActivateCredential(w http.ResponseWriter, r *http.Request) {
	userID, ok := principalUserID(r)
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	m, ok := h.loadAsMember(w, r, userID)
	if !ok {
		return
	}
	if !requireAdmin(w, m) {
		return
	}
	proj := m.project

	provider := model.Provider(chi.URLParam(r, "provider"))
	keyID := chi.URLParam(r, "keyId")

	if err := h.projects.SetCredentialActive(r.Context(), proj.ID, provider, keyID, true); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "credential not found")
			return
		}
		h.logger.Error("activating credential", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to activate credential")
		return
	}

	h.audit.LogRequest(r, &userID, "project.credential.activate", "project", proj.ID.Hex(), model.AuditSuccess, map[string]any{"provider": provider, "keyId": keyID}, "")
	httpserver.Respond(w, http.StatusNoContent, nil)
}

func (h *Handler) handleRemoveCredential(w http.ResponseWriter, r *http.Request) {
	userID, ok := principalUserID(r)
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	m, ok := h.loadAsMember(w, r, userID)
	if !ok {
		return
	}
	if !requireAdmin(w, m) {
		return
	}
	proj := m.project

	provider := model.Provider(chi.URLParam(r, "provider"))
	keyID := chi.URLParam(r, "keyId")

	if err := h.projects.RemoveCredential(r.Context(), proj.ID, provider, keyID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "credential not found")
			return
		}
		h.logger.Error("removing credential", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to remove credential")
		return
	}

	h.audit.LogRequest(r, &userID, "project.credential.remove", "project", proj.ID.Hex(), model.AuditSuccess, map[string]any{"provider": provider, "keyId": keyID}, "")
	httpserver.Respond(w, http.StatusNoContent, nil)
}

func (h *Handler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := principalUserID(r)
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	m, ok := h.loadAsMember(w, r, userID)
	if !ok {
		return
	}
	if !requireAdmin(w, m) {
		return
	}
	proj := m.project

	var req UpdateSettingsRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	settings := model.Settings{
		RateLimitOverride: req.RateLimitOverride,
		QuotaOverride:     req.QuotaOverride,
		AllowedProviders:  req.AllowedProviders,
		WebhookURL:        req.WebhookURL,
	}
	if err := h.projects.UpdateSettings(r.Context(), proj.ID, settings); err != nil {
		h.logger.Error("updating project settings", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to update settings")
		return
	}

	h.audit.LogRequest(r, &userID, "project.settings.update", "project", proj.ID.Hex(), model.AuditSuccess, nil, "")
	httpserver.Respond(w, http.StatusNoContent, nil)
}

// handleGetQuota reports the project's effective quota policy next to its
// current day/month consumption.
func (h *Handler) handleGetQuota(w http.ResponseWriter, r *http.Request) {
	userID, ok := principalUserID(r)
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	m, ok := h.loadAsMember(w, r, userID)
	if !ok {
		return
	}

	policy := quota.PolicyFor(m.project)
	httpserver.Respond(w, http.StatusOK, QuotaResponse{
		MaxRequestsPerDay:   policy.MaxRequestsPerDay,
		MaxRequestsPerMonth: policy.MaxRequestsPerMonth,
		DayUsed:             m.project.UsageCounters.CurrentDay.Requests,
		MonthUsed:           m.project.UsageCounters.CurrentMonth.Requests,
		Override:            m.project.Settings.QuotaOverride != nil,
	})
}

// handleSetQuota installs (or clears, with null limits) the project's quota
// override, leaving the rest of the settings untouched.
func (h *Handler) handleSetQuota(w http.ResponseWriter, r *http.Request) {
	userID, ok := principalUserID(r)
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	m, ok := h.loadAsMember(w, r, userID)
	if !ok {
		return
	}
	if !requireAdmin(w, m) {
		return
	}
	proj := m.project

	var req SetQuotaRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	settings := proj.Settings
	if req.MaxRequestsPerDay == nil && req.MaxRequestsPerMonth == nil {
		settings.QuotaOverride = nil
	} else {
		override := model.QuotaPolicy{}
		if proj.Settings.QuotaOverride != nil {
			override = *proj.Settings.QuotaOverride
		}
		if req.MaxRequestsPerDay != nil {
			override.MaxRequestsPerDay = *req.MaxRequestsPerDay
		}
		if req.MaxRequestsPerMonth != nil {
			override.MaxRequestsPerMonth = *req.MaxRequestsPerMonth
		}
		settings.QuotaOverride = &override
	}

	if err := h.projects.UpdateSettings(r.Context(), proj.ID, settings); err != nil {
		h.logger.Error("updating quota override", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to update quota")
		return
	}

	h.audit.LogRequest(r, &userID, "project.quota.update", "project", proj.ID.Hex(), model.AuditSuccess, nil, "")
	httpserver.Respond(w, http.StatusNoContent, nil)
}

func (h *Handler) handleUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := principalUserID(r)
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	m, ok := h.loadAsMember(w, r, userID)
	if !ok {
		return
	}
	httpserver.Respond(w, http.StatusOK, m.project.UsageCounters)
}

// handleUsageRecords lists individual usage-accounting records for a
// project, newest first, cursor-paginated per httpserver.Cursor since the
// underlying collection is unbounded and time-ordered.
func (h *Handler) handleUsageRecords(w http.ResponseWriter, r *http.Request) {
	userID, ok := principalUserID(r)
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	m, ok := h.loadAsMember(w, r, userID)
	if !ok {
		return
	}

	params, err := httpserver.ParseCursorParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	var afterTimestamp time.Time
	var afterID primitive.ObjectID
	if params.After != nil {
		afterTimestamp = params.After.CreatedAt
		afterID = params.After.ID
	}

	records, err := h.usage.ListUsageRecordsByProjectPage(r.Context(), m.project.ID, afterTimestamp, afterID, params.Limit+1)
	if err != nil {
		h.logger.Error("listing usage records", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to load usage records")
		return
	}

	page := httpserver.NewCursorPage(records, params.Limit, func(rec model.UsageRecord) httpserver.Cursor {
		return httpserver.Cursor{CreatedAt: rec.Timestamp, ID: rec.ID}
	})
	httpserver.Respond(w, http.StatusOK, page)
}
