package project

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/aiguard/proxy/pkg/model"
)

func TestToResponse_OmitsCredentialCiphertext(t *testing.T) {
	owner := primitive.NewObjectID()
	p := &model.Project{
		ID:      primitive.NewObjectID(),
		Name:    "acme",
		OwnerID: owner,
		Members: []model.Member{{UserID: owner, Role: model.RoleOwner, AddedAt: time.Now().UTC()}},
		Credentials: []model.Credential{
			{Provider: model.ProviderOpenAI, Ciphertext: "c2VjcmV0LWJ5dGVz", KeyID: "v1", Active: true, AddedBy: owner, AddedAt: time.Now().UTC()},
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	resp := ToResponse(p)

	if len(resp.Credentials) != 1 {
		t.Fatalf("len(Credentials) = %d, want 1", len(resp.Credentials))
	}
	if resp.Credentials[0].Provider != string(model.ProviderOpenAI) {
		t.Errorf("Provider = %q, want %q", resp.Credentials[0].Provider, model.ProviderOpenAI)
	}
	if len(resp.Members) != 1 || resp.Members[0].UserID != owner.Hex() {
		t.Errorf("Members = %+v, want single entry for %s", resp.Members, owner.Hex())
	}
}
