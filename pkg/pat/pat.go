// Package pat exposes the administrative HTTP lifecycle for personal
// access tokens (create/list/revoke/rotate) under `/_api/users/tokens`,
// built over pkg/tokenauth's codec/hasher and
// pkg/repo's Mongo-backed token store.
package pat

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/aiguard/proxy/pkg/model"
)

// CreateRequest is the JSON body for POST /_api/users/tokens.
type CreateRequest struct {
	Name          string        `json:"name" validate:"required,min=1,max=100"`
	Scopes        []model.Scope `json:"scopes"`
	ProjectID     string        `json:"projectId,omitempty"`
	ExpiresInDays *int          `json:"expiresInDays,omitempty"`
}

// Response is the JSON response for a single token (secret never included).
type Response struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	PublicID   string        `json:"publicId"`
	ProjectID  string        `json:"projectId,omitempty"`
	Scopes     []model.Scope `json:"scopes"`
	Revoked    bool          `json:"revoked"`
	ExpiresAt  *time.Time    `json:"expiresAt,omitempty"`
	LastUsedAt *time.Time    `json:"lastUsedAt,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// CreateResponse includes the raw token string, shown exactly once.
type CreateResponse struct {
	Response
	Token string `json:"token"`
}

// ToResponse converts a stored PAT to its wire shape.
func ToResponse(t *model.PersonalAccessToken) Response {
	resp := Response{
		ID:         t.ID.Hex(),
		Name:       t.Name,
		PublicID:   t.PublicID,
		Scopes:     t.Scopes,
		Revoked:    t.Revoked,
		ExpiresAt:  t.ExpiresAt,
		LastUsedAt: t.LastUsedAt,
		CreatedAt:  t.CreatedAt,
	}
	if t.ProjectID != nil {
		resp.ProjectID = t.ProjectID.Hex()
	}
	return resp
}

// parseProjectID parses an optional hex project id, returning nil for an
// empty string.
func parseProjectID(s string) (*primitive.ObjectID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
