package user

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/aiguard/proxy/pkg/model"
)

func TestToResponse_DefaultProjectOmittedWhenNil(t *testing.T) {
	u := &model.User{
		ID:        primitive.NewObjectID(),
		Email:     "a@example.com",
		Status:    model.UserActive,
		CreatedAt: time.Now().UTC(),
	}

	resp := ToResponse(u)

	if resp.DefaultProjectID != "" {
		t.Errorf("DefaultProjectID = %q, want empty", resp.DefaultProjectID)
	}
	if resp.Status != "active" {
		t.Errorf("Status = %q, want %q", resp.Status, "active")
	}
}

func TestToResponse_IncludesDefaultProject(t *testing.T) {
	projectID := primitive.NewObjectID()
	u := &model.User{
		ID:               primitive.NewObjectID(),
		Email:            "a@example.com",
		Status:           model.UserActive,
		DefaultProjectID: &projectID,
		CreatedAt:        time.Now().UTC(),
	}

	resp := ToResponse(u)

	if resp.DefaultProjectID != projectID.Hex() {
		t.Errorf("DefaultProjectID = %q, want %q", resp.DefaultProjectID, projectID.Hex())
	}
}
