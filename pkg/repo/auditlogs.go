package repo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aiguard/proxy/pkg/model"
)

// InsertAuditLogs implements audit.LogRepository: a single batched
// InsertMany per flush.
func (s *Store) InsertAuditLogs(ctx context.Context, entries []model.AuditLog) error {
	if len(entries) == 0 {
		return nil
	}
	docs := make([]any, len(entries))
	for i := range entries {
		docs[i] = entries[i]
	}
	if _, err := s.AuditLogs.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("repo: inserting audit logs: %w", err)
	}
	return nil
}

// ListAuditLogs returns the most recent audit log entries, newest first,
// for the /_api/admin audit-log endpoint.
func (s *Store) ListAuditLogs(ctx context.Context, limit, offset int) ([]model.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))
	cur, err := s.AuditLogs.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("repo: listing audit logs: %w", err)
	}
	defer cur.Close(ctx)

	var entries []model.AuditLog
	if err := cur.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("repo: decoding audit logs: %w", err)
	}
	return entries, nil
}
