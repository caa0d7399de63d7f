package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kiranshivaraju/demolens/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements the Store interface on a MongoDB collection, one
// document per job keyed by jobId.
type MongoStore struct {
	collection *mongo.Collection
}

var _ Store = (*MongoStore)(nil)

// ConnectMongo dials and pings a MongoDB deployment.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// NewMongoStore returns a store over database/collection and ensures the unique
// jobId index exists.
func NewMongoStore(ctx context.Context, client *mongo.Client, database, collection string) (*MongoStore, error) {
	s := &MongoStore{collection: client.Database(database).Collection(collection)}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "jobId", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("jobId_unique"),
	})
	if err != nil {
		return fmt.Errorf("ensure jobId index: %w", err)
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.collection.Database().Client().Ping(ctx, nil)
}

func (s *MongoStore) CreateJob(ctx context.Context, job *models.AnalysisJob) error {
	// Mongo keeps millisecond precision; truncate so the caller's copy matches what is stored.
	prepareNewJob(job, time.Now().UTC().Truncate(time.Millisecond))

	if _, err := s.collection.InsertOne(ctx, job); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *MongoStore) GetJob(ctx context.Context, jobID string) (*models.AnalysisJob, error) {
	var j models.AnalysisJob
	err := s.collection.FindOne(ctx, bson.M{"jobId": jobID}).Decode(&j)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

// ConditionalUpdate is a single UpdateOne whose filter carries the expected
// status and version; $inc advances the version in the same write.
func (s *MongoStore) ConditionalUpdate(ctx context.Context, jobID string, expected Expected, m Mutation) (bool, error) {
	if err := m.check(expected); err != nil {
		return false, err
	}

	set := bson.M{
		"status":    m.Status,
		"updatedAt": time.Now().UTC(),
	}
	if m.Demographics != nil {
		set["demographics"] = m.Demographics
	}
	if m.CompletedAt != nil {
		set["completedAt"] = *m.CompletedAt
	}
	if m.Error != nil {
		set["error"] = *m.Error
	}

	filter := bson.M{"jobId": jobID, "status": expected.Status, "version": expected.Version}
	update := bson.M{"$set": set, "$inc": bson.M{"version": 1}}

	res, err := s.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("conditional update job: %w", err)
	}
	return res.ModifiedCount == 1, nil
}
