package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/farmlean/agkaizen/config"
	"github.com/farmlean/agkaizen/db/models"
)

const analysesCollection = "analyses"

// NewMongoClient connects to Mongo and pings the primary before returning.
func NewMongoClient(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongo connection uri is empty")
	}

	opts := options.Client().ApplyURI(cfg.URI)

	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(dialCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
	defer pingCancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(pingCtx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return client, nil
}

// ArchiveStore appends completed consultations to a Mongo collection for
// later review. It is write-only; nothing is ever read back into prompts.
type ArchiveStore struct {
	collection *mongo.Collection
}

func NewArchiveStore(client *mongo.Client, database string) *ArchiveStore {
	return &ArchiveStore{collection: client.Database(database).Collection(analysesCollection)}
}

func (s *ArchiveStore) SaveConsultation(ctx context.Context, record models.ConsultationRecord) error {
	if s == nil || s.collection == nil {
		return errors.New("archive store is not configured")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	insertCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if _, err := s.collection.InsertOne(insertCtx, record); err != nil {
		return fmt.Errorf("insert consultation record: %w", err)
	}
	return nil
}
