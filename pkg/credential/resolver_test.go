package credential

import (
	"context"
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/aiguard/proxy/pkg/model"
	"github.com/aiguard/proxy/pkg/vault"
)

type fakeProjects struct {
	byID map[primitive.ObjectID]*model.Project
}

func (f *fakeProjects) GetProjectByID(_ context.Context, id primitive.ObjectID) (*model.Project, error) {
	p, ok := f.byID[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return p, nil
}

func sealedCredential(t *testing.T, v *vault.Vault, provider model.Provider, secret string) model.Credential {
	t.Helper()
	sealed, err := v.Encrypt(secret, nil)
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	return model.Credential{Provider: provider, Ciphertext: sealed.Envelope.Ciphertext, KeyID: sealed.KeyID, MasterKeyID: sealed.Envelope.KeyID, Active: true}
}

func TestResolveProjectTier(t *testing.T) {
	v, _ := vault.New("master-key")
	projID := primitive.NewObjectID()
	proj := &model.Project{ID: projID, Credentials: []model.Credential{sealedCredential(t, v, model.ProviderOpenAI, "sk-project")}}
	r := New(&fakeProjects{byID: map[primitive.ObjectID]*model.Project{projID: proj}}, v, nil)

	got, err := r.Resolve(context.Background(), model.ProviderOpenAI, &projID, nil)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if got.Secret != "sk-project" || got.Source != SourceProject {
		t.Errorf("Resolve() = %+v, want secret sk-project source project", got)
	}
}

func TestResolveFallsBackToUserDefaultProject(t *testing.T) {
	v, _ := vault.New("master-key")
	userProjID := primitive.NewObjectID()
	userProj := &model.Project{ID: userProjID, Credentials: []model.Credential{sealedCredential(t, v, model.ProviderAnthropic, "sk-user")}}
	r := New(&fakeProjects{byID: map[primitive.ObjectID]*model.Project{userProjID: userProj}}, v, nil)

	got, err := r.Resolve(context.Background(), model.ProviderAnthropic, nil, &userProjID)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if got.Source != SourceUser {
		t.Errorf("Source = %q, want %q", got.Source, SourceUser)
	}
}

func TestResolveFallsBackToSystemDefault(t *testing.T) {
	v, _ := vault.New("master-key")
	r := New(&fakeProjects{byID: map[primitive.ObjectID]*model.Project{}}, v, SystemDefaults{model.ProviderGemini: "sk-system"})

	got, err := r.Resolve(context.Background(), model.ProviderGemini, nil, nil)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if got.Source != SourceSystem || got.Secret != "sk-system" {
		t.Errorf("Resolve() = %+v, want secret sk-system source system", got)
	}
}

func TestResolveUnavailable(t *testing.T) {
	v, _ := vault.New("master-key")
	r := New(&fakeProjects{byID: map[primitive.ObjectID]*model.Project{}}, v, nil)

	if _, err := r.Resolve(context.Background(), model.ProviderOpenAI, nil, nil); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Resolve() error = %v, want ErrUnavailable", err)
	}
}

func TestResolveEnforcesAllowlist(t *testing.T) {
	v, _ := vault.New("master-key")
	projID := primitive.NewObjectID()
	proj := &model.Project{
		ID:          projID,
		Credentials: []model.Credential{sealedCredential(t, v, model.ProviderOpenAI, "sk-project")},
		Settings:    model.Settings{AllowedProviders: []model.Provider{model.ProviderAnthropic}},
	}
	r := New(&fakeProjects{byID: map[primitive.ObjectID]*model.Project{projID: proj}}, v, nil)

	if _, err := r.Resolve(context.Background(), model.ProviderOpenAI, &projID, nil); !errors.Is(err, ErrProviderForbidden) {
		t.Errorf("Resolve() error = %v, want ErrProviderForbidden", err)
	}
}
