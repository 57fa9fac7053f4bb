// Package user exposes the administrative HTTP surface for the caller's own
// account: the `/_api/users/profile` and `/_api/users/account`
// endpoints, backed by pkg/repo's Mongo user store.
package user

import (
	"time"

	"github.com/aiguard/proxy/pkg/model"
)

// UpdateProfileRequest is the JSON body for PATCH /_api/users/profile.
type UpdateProfileRequest struct {
	DisplayName string `json:"displayName" validate:"required,min=1,max=200"`
}

// SetDefaultProjectRequest is the JSON body for PUT
// /_api/users/account/default-project.
type SetDefaultProjectRequest struct {
	ProjectID string `json:"projectId" validate:"required"`
}

// ProvisionRequest is the JSON body for POST /_api/admin/users: direct
// admin provisioning of an account ahead of any identity login.
type ProvisionRequest struct {
	Email       string `json:"email" validate:"required,email"`
	DisplayName string `json:"displayName,omitempty" validate:"omitempty,max=200"`
}

// SetStatusRequest is the JSON body for PUT /_api/admin/users/{id}/status.
type SetStatusRequest struct {
	Status model.UserStatus `json:"status" validate:"required,oneof=active suspended deleted"`
}

// Response is the JSON representation of the caller's own account.
type Response struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	DisplayName      string     `json:"displayName,omitempty"`
	Status           string     `json:"status"`
	DefaultProjectID string     `json:"defaultProjectId,omitempty"`
	LastLoginAt      *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// ToResponse converts a stored User to its wire shape.
func ToResponse(u *model.User) Response {
	resp := Response{
		ID:          u.ID.Hex(),
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Status:      string(u.Status),
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
	}
	if u.DefaultProjectID != nil {
		resp.DefaultProjectID = u.DefaultProjectID.Hex()
	}
	return resp
}
