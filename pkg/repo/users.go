package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aiguard/proxy/pkg/identity"
	"github.com/aiguard/proxy/pkg/model"
)

// ErrNotFound is returned by single-document lookups that find nothing.
var ErrNotFound = errors.New("repo: not found")

// GetUserByID implements authn.UserRepository.
func (s *Store) GetUserByID(ctx context.Context, id primitive.ObjectID) (*model.User, error) {
	var u model.User
	err := s.Users.FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repo: getting user by id: %w", err)
	}
	return &u, nil
}

// UpsertUserByExternalID implements authn.UserRepository: finds a user by
// external identity id, creating one on first successful verification.
func (s *Store) UpsertUserByExternalID(ctx context.Context, externalID string, profile identity.Profile) (*model.User, error) {
	now := time.Now().UTC()
	email := profile.Email

	filter := bson.M{"externalId": externalID}
	update := bson.M{
		"$setOnInsert": bson.M{
			"_id":       primitive.NewObjectID(),
			"status":    model.UserActive,
			"createdAt": now,
		},
		"$set": bson.M{
			"externalId":  externalID,
			"updatedAt":   now,
		},
	}
	if email != "" {
		update["$set"].(bson.M)["email"] = email
	}
	if profile.DisplayName != "" {
		update["$set"].(bson.M)["displayName"] = profile.DisplayName
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var u model.User
	if err := s.Users.FindOneAndUpdate(ctx, filter, update, opts).Decode(&u); err != nil {
		return nil, fmt.Errorf("repo: upserting user by external id: %w", err)
	}
	return &u, nil
}

// TouchLastLogin implements authn.UserRepository.
func (s *Store) TouchLastLogin(ctx context.Context, id primitive.ObjectID) error {
	now := time.Now().UTC()
	_, err := s.Users.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"lastLoginAt": now, "updatedAt": now}})
	if err != nil {
		return fmt.Errorf("repo: touching last login: %w", err)
	}
	return nil
}

// CreateUser provisions a user directly (admin path, ahead of any
// identity login). Returns ErrConflict if the email is already in use by
// a non-deleted user.
func (s *Store) CreateUser(ctx context.Context, email, displayName string) (*model.User, error) {
	now := time.Now().UTC()
	u := &model.User{
		ID:          primitive.NewObjectID(),
		Email:       strings.ToLower(email),
		DisplayName: displayName,
		Status:      model.UserActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.Users.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("repo: creating user: %w", err)
	}
	return u, nil
}

// UpdateUserProfile updates the caller-editable profile fields.
func (s *Store) UpdateUserProfile(ctx context.Context, id primitive.ObjectID, displayName string) (*model.User, error) {
	now := time.Now().UTC()
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var u model.User
	err := s.Users.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"displayName": displayName, "updatedAt": now}},
		opts,
	).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repo: updating user profile: %w", err)
	}
	return &u, nil
}

// SetUserStatus transitions a user's lifecycle status (admin action). A
// transition to UserDeleted additionally revokes every PAT the user
// owns: a logically deleted account must not leave usable tokens behind.
func (s *Store) SetUserStatus(ctx context.Context, id primitive.ObjectID, status model.UserStatus) error {
	now := time.Now().UTC()
	res, err := s.Users.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"status": status, "updatedAt": now}})
	if err != nil {
		return fmt.Errorf("repo: setting user status: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}

	if status == model.UserDeleted {
		if _, err := s.Tokens.UpdateMany(ctx,
			bson.M{"userId": id},
			bson.M{"$set": bson.M{"revoked": true, "updatedAt": now}},
		); err != nil {
			return fmt.Errorf("repo: revoking tokens on user delete: %w", err)
		}
	}
	return nil
}

// SetDefaultProject records the caller's default project reference.
func (s *Store) SetDefaultProject(ctx context.Context, userID, projectID primitive.ObjectID) error {
	now := time.Now().UTC()
	_, err := s.Users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": bson.M{"defaultProjectId": projectID, "updatedAt": now}})
	if err != nil {
		return fmt.Errorf("repo: setting default project: %w", err)
	}
	return nil
}
