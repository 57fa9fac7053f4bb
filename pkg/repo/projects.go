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

// GetProjectByID implements credential.ProjectRepository.
func (s *Store) GetProjectByID(ctx context.Context, id primitive.ObjectID) (*model.Project, error) {
	var p model.Project
	err := s.Projects.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repo: getting project: %w", err)
	}
	return &p, nil
}

// IncrementUsageCounters implements quota.Incrementer: a single atomic
// $inc across all three usage buckets (total/currentMonth/currentDay),
// never a read-modify-write.
func (s *Store) IncrementUsageCounters(ctx context.Context, projectID primitive.ObjectID, requests, tokens int64, cost float64) error {
	now := time.Now().UTC()
	update := bson.M{
		"$inc": bson.M{
			"usageCounters.total.requests":        requests,
			"usageCounters.total.tokens":          tokens,
			"usageCounters.total.cost":            cost,
			"usageCounters.currentMonth.requests": requests,
			"usageCounters.currentMonth.tokens":   tokens,
			"usageCounters.currentMonth.cost":     cost,
			"usageCounters.currentDay.requests":   requests,
			"usageCounters.currentDay.tokens":     tokens,
			"usageCounters.currentDay.cost":       cost,
		},
		"$set": bson.M{"usageCounters.lastUpdated": now},
	}
	res, err := s.Projects.UpdateOne(ctx, bson.M{"_id": projectID}, update)
	if err != nil {
		return fmt.Errorf("repo: incrementing usage counters: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetDailyCounters zeroes currentDay across every project. Called by
// the worker-mode rollover scheduler at local midnight.
func (s *Store) ResetDailyCounters(ctx context.Context) (int64, error) {
	res, err := s.Projects.UpdateMany(ctx, bson.M{}, bson.M{"$set": bson.M{
		"usageCounters.currentDay": model.UsageBucket{},
	}})
	if err != nil {
		return 0, fmt.Errorf("repo: resetting daily counters: %w", err)
	}
	return res.ModifiedCount, nil
}

// ResetMonthlyCounters zeroes currentMonth across every project. Called by
// the worker-mode rollover scheduler on the 1st of the month.
func (s *Store) ResetMonthlyCounters(ctx context.Context) (int64, error) {
	res, err := s.Projects.UpdateMany(ctx, bson.M{}, bson.M{"$set": bson.M{
		"usageCounters.currentMonth": model.UsageBucket{},
	}})
	if err != nil {
		return 0, fmt.Errorf("repo: resetting monthly counters: %w", err)
	}
	return res.ModifiedCount, nil
}

// CreateProject inserts a new project with its owner seated as the sole
// member (role=owner).
func (s *Store) CreateProject(ctx context.Context, name string, ownerID primitive.ObjectID) (*model.Project, error) {
	now := time.Now().UTC()
	p := &model.Project{
		ID:            primitive.NewObjectID(),
		Name:          name,
		OwnerID:       ownerID,
		Members:       []model.Member{{UserID: ownerID, Role: model.RoleOwner, AddedAt: now}},
		UsageCounters: model.UsageCounters{LastUpdated: now},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if _, err := s.Projects.InsertOne(ctx, p); err != nil {
		return nil, fmt.Errorf("repo: creating project: %w", err)
	}
	return p, nil
}

// ListProjectsByMember returns every project the given user belongs to.
func (s *Store) ListProjectsByMember(ctx context.Context, userID primitive.ObjectID) ([]model.Project, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cur, err := s.Projects.Find(ctx, bson.M{"members.userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("repo: listing projects: %w", err)
	}
	defer cur.Close(ctx)

	var projects []model.Project
	if err := cur.All(ctx, &projects); err != nil {
		return nil, fmt.Errorf("repo: decoding projects: %w", err)
	}
	return projects, nil
}

// AddMember appends a member to a project's embedded members array, unless
// the user is already a member.
func (s *Store) AddMember(ctx context.Context, projectID, userID primitive.ObjectID, role model.MemberRole) error {
	now := time.Now().UTC()
	res, err := s.Projects.UpdateOne(ctx,
		bson.M{"_id": projectID, "members.userId": bson.M{"$ne": userID}},
		bson.M{
			"$push": bson.M{"members": model.Member{UserID: userID, Role: role, AddedAt: now}},
			"$set":  bson.M{"updatedAt": now},
		},
	)
	if err != nil {
		return fmt.Errorf("repo: adding member: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrConflict // either project missing or already a member
	}
	return nil
}

// RemoveMember pulls a member from a project's embedded members array. The
// owner cannot be removed through this path.
func (s *Store) RemoveMember(ctx context.Context, projectID, userID primitive.ObjectID) error {
	now := time.Now().UTC()
	res, err := s.Projects.UpdateOne(ctx,
		bson.M{"_id": projectID, "ownerId": bson.M{"$ne": userID}},
		bson.M{
			"$pull": bson.M{"members": bson.M{"userId": userID}},
			"$set":  bson.M{"updatedAt": now},
		},
	)
	if err != nil {
		return fmt.Errorf("repo: removing member: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// AddCredential appends a sealed provider credential to a project's
// embedded credentials array.
func (s *Store) AddCredential(ctx context.Context, projectID primitive.ObjectID, cred model.Credential) error {
	now := time.Now().UTC()
	res, err := s.Projects.UpdateOne(ctx,
		bson.M{"_id": projectID},
		bson.M{
			"$push": bson.M{"credentials": cred},
			"$set":  bson.M{"updatedAt": now},
		},
	)
	if err != nil {
		return fmt.Errorf("repo: adding credential: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// SetCredentialActive flips a single embedded credential's active flag,
// matched by provider+keyId, using the positional operator so the update
// is a single atomic array-element write.
func (s *Store) SetCredentialActive(ctx context.Context, projectID primitive.ObjectID, provider model.Provider, keyID string, active bool) error {
	now := time.Now().UTC()
	res, err := s.Projects.UpdateOne(ctx,
		bson.M{"_id": projectID, "credentials.provider": provider, "credentials.keyId": keyID},
		bson.M{
			"$set": bson.M{"credentials.$.active": active, "updatedAt": now},
		},
	)
	if err != nil {
		return fmt.Errorf("repo: setting credential active: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveCredential pulls one embedded credential by provider+keyId.
func (s *Store) RemoveCredential(ctx context.Context, projectID primitive.ObjectID, provider model.Provider, keyID string) error {
	now := time.Now().UTC()
	res, err := s.Projects.UpdateOne(ctx,
		bson.M{"_id": projectID},
		bson.M{
			"$pull": bson.M{"credentials": bson.M{"provider": provider, "keyId": keyID}},
			"$set":  bson.M{"updatedAt": now},
		},
	)
	if err != nil {
		return fmt.Errorf("repo: removing credential: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateSettings replaces a project's policy overrides/allowlist/webhook.
func (s *Store) UpdateSettings(ctx context.Context, projectID primitive.ObjectID, settings model.Settings) error {
	now := time.Now().UTC()
	res, err := s.Projects.UpdateOne(ctx,
		bson.M{"_id": projectID},
		bson.M{"$set": bson.M{"settings": settings, "updatedAt": now}},
	)
	if err != nil {
		return fmt.Errorf("repo: updating project settings: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
