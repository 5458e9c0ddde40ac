package repository

import (
	"context"
	"time"

	"github.com/daureny/rag-chatbot-be/service"
	"github.com/daureny/rag-chatbot-be/types"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// sessionDoc is the persisted shape of one dialog session.
type sessionDoc struct {
	ID         string         `bson:"_id"`
	History    []types.QAPair `bson:"history"`
	LastActive time.Time      `bson:"last_active"`
}

// MongoSessionStore keeps dialog history in MongoDB so sessions survive
// restarts. Implements service.SessionStore.
type MongoSessionStore struct {
	collection *mongo.Collection
}

func NewMongoSessionStore(collection *mongo.Collection) *MongoSessionStore {
	return &MongoSessionStore{
		collection: collection,
	}
}

func (r *MongoSessionStore) History(ctx context.Context, sessionID string) ([]types.QAPair, error) {
	var doc sessionDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.History, nil
}

func (r *MongoSessionStore) Append(ctx context.Context, sessionID string, pair types.QAPair) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": sessionID},
		bson.M{
			"$push": bson.M{
				"history": bson.M{
					"$each":  []types.QAPair{pair},
					"$slice": -service.MaxHistory,
				},
			},
			"$set": bson.M{"last_active": time.Now()},
		},
		options.UpdateOne().SetUpsert(true),
	)
	return err
}

func (r *MongoSessionStore) Clear(ctx context.Context, sessionID string) (bool, error) {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": sessionID},
		bson.M{"$set": bson.M{
			"history":     []types.QAPair{},
			"last_active": time.Now(),
		}},
	)
	if err != nil {
		return false, err
	}
	return result.MatchedCount > 0, nil
}

func (r *MongoSessionStore) Touch(ctx context.Context, sessionID string) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": sessionID},
		bson.M{"$set": bson.M{"last_active": time.Now()}},
		options.UpdateOne().SetUpsert(true),
	)
	return err
}

func (r *MongoSessionStore) CleanExpired(ctx context.Context) error {
	cutoff := time.Now().Add(-service.SessionMaxAge)
	_, err := r.collection.DeleteMany(ctx, bson.M{"last_active": bson.M{"$lt": cutoff}})
	return err
}

func (r *MongoSessionStore) ActiveCount(ctx context.Context) (int, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{})
	return int(count), err
}
