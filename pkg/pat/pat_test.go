package pat

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/aiguard/proxy/pkg/model"
)

func TestToResponse_OmitsSecretFields(t *testing.T) {
	projectID := primitive.NewObjectID()
	tok := &model.PersonalAccessToken{
		ID:        primitive.NewObjectID(),
		PublicID:  "abc123",
		Name:      "ci deploy",
		ProjectID: &projectID,
		Scopes:    []model.Scope{model.ScopeAPIWrite},
		CreatedAt: time.Now().UTC(),
	}

	resp := ToResponse(tok)

	if resp.PublicID != "abc123" {
		t.Errorf("PublicID = %q, want %q", resp.PublicID, "abc123")
	}
	if resp.ProjectID != projectID.Hex() {
		t.Errorf("ProjectID = %q, want %q", resp.ProjectID, projectID.Hex())
	}
	if resp.Revoked {
		t.Error("Revoked = true, want false")
	}
}

func TestParseProjectID_Empty(t *testing.T) {
	id, err := parseProjectID("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != nil {
		t.Errorf("id = %v, want nil", id)
	}
}

func TestParseProjectID_Invalid(t *testing.T) {
	if _, err := parseProjectID("not-an-object-id"); err == nil {
		t.Error("expected error for invalid project id")
	}
}
