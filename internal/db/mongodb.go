package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abkawan/banking-directory/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const archiveCollection = "ledger_entries"

// MongoDB keeps an audit copy of every ledger event. Documents are keyed by the
// entry reference, so replays of the same event overwrite rather than duplicate.
type MongoDB struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// creates a new MongoDB instance
func NewMongoDB(uri, dbName string) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Mongodb: %w", err)
	}

	// pinging the database
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping Mongodb: %w", err)
	}

	collection := client.Database(dbName).Collection(archiveCollection)

	indexModels := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "account_number", Value: 1}, {Key: "occurred_at", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "customer_id", Value: 1}},
		},
	}

	if _, err = collection.Indexes().CreateMany(ctx, indexModels); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return &MongoDB{
		client:     client,
		collection: collection,
	}, nil
}

// closes the mongoDB connection
func (m *MongoDB) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// ArchiveEntry upserts ev by its reference.
func (m *MongoDB) ArchiveEntry(ctx context.Context, ev models.LedgerEvent) error {
	_, err := m.collection.ReplaceOne(ctx,
		bson.M{"_id": ev.Reference},
		ev,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to archive entry %s: %w", ev.Reference, err)
	}
	return nil
}

// retrieves an archived entry by reference
func (m *MongoDB) EntryByReference(ctx context.Context, reference string) (*models.LedgerEvent, error) {
	var ev models.LedgerEvent
	err := m.collection.FindOne(ctx, bson.M{"_id": reference}).Decode(&ev)
	if err != nil {
		return nil, archiveLookupErr(reference, err)
	}
	return &ev, nil
}

func archiveLookupErr(reference string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%w: %s", models.ErrArchivedEntryNotFound, reference)
	}
	return fmt.Errorf("failed to get archived entry: %w", err)
}

// EntriesByAccount pages through the archived history of an account number,
// oldest first. The archive outlives account deletion.
func (m *MongoDB) EntriesByAccount(ctx context.Context, accountNumber int, limit, offset int) ([]models.LedgerEvent, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "occurred_at", Value: 1}, {Key: "entry_id", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	cursor, err := m.collection.Find(ctx, bson.M{"account_number": accountNumber}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find archived entries: %w", err)
	}
	defer cursor.Close(ctx)

	events := make([]models.LedgerEvent, 0)
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode archived entries: %w", err)
	}
	return events, nil
}
