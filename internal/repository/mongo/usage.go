package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/Rrens/slack-gpt/internal/config"
	"github.com/Rrens/slack-gpt/internal/domain"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type usageDocument struct {
	ID             string    `bson:"_id"`
	ActorID        string    `bson:"actor_id"`
	Tokens         int       `bson:"tokens"`
	ElapsedSeconds float64   `bson:"elapsed_seconds"`
	RecordedAt     time.Time `bson:"recorded_at"`
}

// UsageRepository implements domain.UsageRepository on a MongoDB collection
type UsageRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// Connect opens the client and verifies the server is reachable
func Connect(ctx context.Context, cfg config.MongoConfig) (*UsageRepository, error) {
	clientOpts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping: %w", err)
	}

	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "recorded_at", Value: 1}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &UsageRepository{client: client, collection: coll}, nil
}

func (r *UsageRepository) Append(ctx context.Context, record domain.UsageRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if _, err := r.collection.InsertOne(ctx, toDocument(record)); err != nil {
		return fmt.Errorf("failed to insert usage record: %w", err)
	}
	return nil
}

func (r *UsageRepository) ListBetween(ctx context.Context, from, to time.Time) ([]domain.UsageRecord, error) {
	filter := bson.M{"recorded_at": bson.M{"$gte": from.UTC(), "$lte": to.UTC()}}
	opts := options.Find().SetSort(bson.D{{Key: "recorded_at", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage records: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []usageDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode usage records: %w", err)
	}

	records := make([]domain.UsageRecord, 0, len(docs))
	for _, d := range docs {
		records = append(records, fromDocument(d))
	}
	return records, nil
}

func (r *UsageRepository) Close() error {
	return r.client.Disconnect(context.Background())
}

func toDocument(rec domain.UsageRecord) usageDocument {
	return usageDocument{
		ID:             rec.ID.String(),
		ActorID:        rec.ActorID,
		Tokens:         rec.Tokens,
		ElapsedSeconds: rec.ElapsedSeconds,
		RecordedAt:     rec.RecordedAt.UTC(),
	}
}

func fromDocument(d usageDocument) domain.UsageRecord {
	id, _ := uuid.Parse(d.ID)
	return domain.UsageRecord{
		ID:             id,
		ActorID:        d.ActorID,
		Tokens:         d.Tokens,
		ElapsedSeconds: d.ElapsedSeconds,
		RecordedAt:     d.RecordedAt.UTC(),
	}
}
