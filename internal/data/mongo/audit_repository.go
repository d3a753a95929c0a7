package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/coin-ledger/internal/domain/audit"
)

const (
	// AuditCollectionName is the MongoDB collection holding archived entries
	AuditCollectionName = "coin_ledger_audit"
)

// AuditRepository implements audit.Repository for MongoDB
type AuditRepository struct {
	collection *mongo.Collection
	logger     *slog.Logger
}

// NewAuditRepository creates a new MongoDB audit archive repository
func NewAuditRepository(logger *slog.Logger, db *mongo.Database) audit.Repository {
	return &AuditRepository{
		collection: db.Collection(AuditCollectionName),
		logger:     logger,
	}
}

// Archive upserts the record keyed by entry id. A redelivered event leaves the
// stored document untouched and reports inserted=false.
func (r *AuditRepository) Archive(ctx context.Context, record *audit.Record) (bool, error) {
	filter := bson.M{"entry_id": record.EntryID}
	update := bson.M{"$setOnInsert": record}

	result, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		r.logger.Error("Failed to archive ledger entry",
			"entry_id", record.EntryID,
			"error", err)
		return false, fmt.Errorf("failed to archive ledger entry: %w", err)
	}

	return result.UpsertedCount > 0, nil
}

// GetByEntryID retrieves an archived entry
func (r *AuditRepository) GetByEntryID(ctx context.Context, entryID string) (*audit.Record, error) {
	var rec audit.Record
	err := r.collection.FindOne(ctx, bson.M{"entry_id": entryID}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, audit.ErrRecordNotFound{EntryID: entryID}
		}
		r.logger.Error("Failed to get audit record",
			"entry_id", entryID,
			"error", err)
		return nil, fmt.Errorf("failed to get audit record: %w", err)
	}

	return &rec, nil
}

// ListByAccount returns the newest archived entries of an account
func (r *AuditRepository) ListByAccount(ctx context.Context, accountID string, limit int64) ([]*audit.Record, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "sequence", Value: -1}}).
		SetLimit(limit)

	cursor, err := r.collection.Find(ctx, bson.M{"account_id": accountID}, opts)
	if err != nil {
		r.logger.Error("Failed to list audit records",
			"account_id", accountID,
			"error", err)
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer cursor.Close(ctx)

	records := make([]*audit.Record, 0)
	if err := cursor.All(ctx, &records); err != nil {
		r.logger.Error("Failed to decode audit records",
			"account_id", accountID,
			"error", err)
		return nil, fmt.Errorf("failed to decode audit records: %w", err)
	}

	return records, nil
}

// EnsureIndexes creates the unique entry index and the account history index
func (r *AuditRepository) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "entry_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_entry_id"),
		},
		{
			Keys:    bson.D{{Key: "account_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "sequence", Value: -1}},
			Options: options.Index().SetName("account_history"),
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, models); err != nil {
		r.logger.Error("Failed to create audit indexes", "error", err)
		return fmt.Errorf("failed to create audit indexes: %w", err)
	}
	return nil
}
