// Package repo is the Mongo-backed data-access layer: users, personal
// access tokens, projects (with embedded credentials, members, and usage
// counters), usage records, and audit logs. A thin struct wraps one
// *mongo.Collection per entity; counters advance through atomic $inc
// updates, and every operation is context-scoped.
package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrConflict is returned when the requested write would violate a
// uniqueness invariant (email, a user's live token name), or by AddMember
// when the user is already a member (or the project is missing).
var ErrConflict = errors.New("repo: conflict")

// Store bundles the collection handles the rest of the package's files
// operate on.
type Store struct {
	Users        *mongo.Collection
	Tokens       *mongo.Collection
	Projects     *mongo.Collection
	UsageRecords *mongo.Collection
	AuditLogs    *mongo.Collection
}

// New wraps db's collections in a Store.
func New(db *mongo.Database) *Store {
	return &Store{
		Users:        db.Collection("users"),
		Tokens:       db.Collection("personalaccesstokens"),
		Projects:     db.Collection("projects"),
		UsageRecords: db.Collection("usagerecords"),
		AuditLogs:    db.Collection("auditlogs"),
	}
}

// recordTTLSeconds is the 90-day retention window for usage records and
// audit logs.
const recordTTLSeconds = int32(90 * 24 * time.Hour / time.Second)

// EnsureIndexes creates the unique/lookup indexes and the two TTL
// indexes the data model relies on. Safe to call on every startup.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if _, err := s.Users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{"status": bson.M{"$ne": "deleted"}})},
		{Keys: bson.D{{Key: "externalId", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
	}); err != nil {
		return fmt.Errorf("repo: creating user indexes: %w", err)
	}

	if _, err := s.Tokens.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "publicId", Value: 1}}, Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("repo: creating token indexes: %w", err)
	}

	if _, err := s.Projects.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "ownerId", Value: 1}},
	}); err != nil {
		return fmt.Errorf("repo: creating project indexes: %w", err)
	}

	if _, err := s.UsageRecords.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "timestamp", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(recordTTLSeconds),
	}); err != nil {
		return fmt.Errorf("repo: creating usage record TTL index: %w", err)
	}

	if _, err := s.AuditLogs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "timestamp", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(recordTTLSeconds),
	}); err != nil {
		return fmt.Errorf("repo: creating audit log TTL index: %w", err)
	}

	return nil
}
