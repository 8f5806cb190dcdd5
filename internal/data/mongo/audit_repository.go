package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/exchange-bridge/internal/domain/audit"
)

const (
	// AuditCollectionName is the name of the audit collection in MongoDB
	AuditCollectionName = "audit_events"
)

// AuditRepository implements the audit.Repository interface for MongoDB.
// The collection is append-only: events are never updated or deleted.
type AuditRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewAuditRepository creates a new MongoDB audit repository
func NewAuditRepository(logger *slog.Logger, db *mongo.Database) *AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

var _ audit.Repository = (*AuditRepository)(nil)

// EnsureIndexes creates the unique event id index and the lookup indexes
func (r *AuditRepository) EnsureIndexes(ctx context.Context) error {
	collection := r.db.Collection(AuditCollectionName)

	_, err := collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "event_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "transaction_id", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "action", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		r.logger.Error("Failed to create audit indexes", "error", err)
		return fmt.Errorf("failed to create audit indexes: %w", err)
	}
	return nil
}

// Append stores an event. Re-appending an event with the same id is a no-op.
func (r *AuditRepository) Append(ctx context.Context, event *audit.Event) error {
	collection := r.db.Collection(AuditCollectionName)

	_, err := collection.InsertOne(ctx, event)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			r.logger.Debug("Audit event already stored", "event_id", event.EventID)
			return nil
		}
		r.logger.Error("Failed to append audit event",
			"event_id", event.EventID,
			"action", string(event.Action),
			"error", err)
		return fmt.Errorf("failed to append audit event: %w", err)
	}

	return nil
}

// ListByTransaction returns a transaction's events in the order they happened
func (r *AuditRepository) ListByTransaction(ctx context.Context, transactionID uuid.UUID, limit int) ([]*audit.Event, error) {
	collection := r.db.Collection(AuditCollectionName)

	filter := bson.M{"transaction_id": transactionID.String()}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to get audit events",
			"transaction_id", transactionID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to get audit events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []*audit.Event
	if err := cursor.All(ctx, &events); err != nil {
		r.logger.Error("Failed to decode audit events",
			"transaction_id", transactionID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to decode audit events: %w", err)
	}

	return events, nil
}

// CountByAction counts events of one kind recorded at or after since
func (r *AuditRepository) CountByAction(ctx context.Context, action audit.Action, since time.Time) (int64, error) {
	collection := r.db.Collection(AuditCollectionName)

	filter := bson.M{
		"action":     action,
		"created_at": bson.M{"$gte": since},
	}
	count, err := collection.CountDocuments(ctx, filter)
	if err != nil {
		r.logger.Error("Failed to count audit events",
			"action", string(action),
			"error", err)
		return 0, fmt.Errorf("failed to count audit events: %w", err)
	}

	return count, nil
}
