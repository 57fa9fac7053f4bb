package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aiguard/proxy/pkg/model"
)

// FindPATByPublicID implements authn.TokenRepository.
func (s *Store) FindPATByPublicID(ctx context.Context, publicID string) (*model.PersonalAccessToken, error) {
	var t model.PersonalAccessToken
	err := s.Tokens.FindOne(ctx, bson.M{"publicId": publicID}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repo: finding token by public id: %w", err)
	}
	return &t, nil
}

// TouchPATLastUsed implements authn.TokenRepository.
func (s *Store) TouchPATLastUsed(ctx context.Context, id primitive.ObjectID) error {
	now := time.Now().UTC()
	_, err := s.Tokens.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"lastUsedAt": now}})
	if err != nil {
		return fmt.Errorf("repo: touching token last used: %w", err)
	}
	return nil
}

// CreateToken inserts a freshly minted PAT record. Returns ErrConflict
// if the owning user already has a live token with this name.
func (s *Store) CreateToken(ctx context.Context, t *model.PersonalAccessToken) error {
	existing, err := s.Tokens.CountDocuments(ctx, bson.M{"userId": t.UserID, "name": t.Name, "revoked": false})
	if err != nil {
		return fmt.Errorf("repo: checking token name uniqueness: %w", err)
	}
	if existing > 0 {
		return ErrConflict
	}

	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	if _, err := s.Tokens.InsertOne(ctx, t); err != nil {
		return fmt.Errorf("repo: creating token: %w", err)
	}
	return nil
}

// ListTokensByUser lists every non-deleted PAT a user owns, newest first.
func (s *Store) ListTokensByUser(ctx context.Context, userID primitive.ObjectID) ([]model.PersonalAccessToken, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cur, err := s.Tokens.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("repo: listing tokens: %w", err)
	}
	defer cur.Close(ctx)

	var tokens []model.PersonalAccessToken
	if err := cur.All(ctx, &tokens); err != nil {
		return nil, fmt.Errorf("repo: decoding tokens: %w", err)
	}
	return tokens, nil
}

// GetTokenByID looks up a single PAT scoped to its owning user.
func (s *Store) GetTokenByID(ctx context.Context, id, userID primitive.ObjectID) (*model.PersonalAccessToken, error) {
	var t model.PersonalAccessToken
	err := s.Tokens.FindOne(ctx, bson.M{"_id": id, "userId": userID}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repo: getting token: %w", err)
	}
	return &t, nil
}

// RevokeToken flips a PAT's revoked flag, scoped to its owning user.
func (s *Store) RevokeToken(ctx context.Context, id, userID primitive.ObjectID) error {
	now := time.Now().UTC()
	res, err := s.Tokens.UpdateOne(ctx,
		bson.M{"_id": id, "userId": userID},
		bson.M{"$set": bson.M{"revoked": true, "updatedAt": now}},
	)
	if err != nil {
		return fmt.Errorf("repo: revoking token: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
