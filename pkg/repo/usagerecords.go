package repo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aiguard/proxy/pkg/model"
)

// InsertUsageRecords implements usage.RecordRepository: a single batched
// InsertMany per flush, same shape as the audit writer's batched writes.
func (s *Store) InsertUsageRecords(ctx context.Context, records []model.UsageRecord) error {
	if len(records) == 0 {
		return nil
	}
	docs := make([]any, len(records))
	for i := range records {
		docs[i] = records[i]
	}
	if _, err := s.UsageRecords.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("repo: inserting usage records: %w", err)
	}
	return nil
}

// ListUsageRecordsByProjectPage returns up to limit usage records for a
// project, newest first, for the cursor-paginated /_api/projects/:id/usage/records
// admin endpoint. When afterID is non-zero it resumes after the (timestamp, id)
// keyset position identified by afterTimestamp/afterID rather than an offset,
// so pagination stays stable as new records are inserted ahead of the page.
// Callers should request limit+1 and pass the result through
// httpserver.NewCursorPage to detect whether another page follows.
func (s *Store) ListUsageRecordsByProjectPage(ctx context.Context, projectID primitive.ObjectID, afterTimestamp time.Time, afterID primitive.ObjectID, limit int) ([]model.UsageRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	filter := bson.M{"projectId": projectID}
	if !afterID.IsZero() {
		filter["$or"] = []bson.M{
			{"timestamp": bson.M{"$lt": afterTimestamp}},
			{"timestamp": afterTimestamp, "_id": bson.M{"$lt": afterID}},
		}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := s.UsageRecords.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("repo: listing usage record page: %w", err)
	}
	defer cur.Close(ctx)

	var records []model.UsageRecord
	if err := cur.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("repo: decoding usage record page: %w", err)
	}
	return records, nil
}
