package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoLog persists activity events in a single collection indexed by
// (documentId, createdAt) for the List query.
type MongoLog struct {
	col *mongo.Collection
}

func NewMongoLog(db *mongo.Database) *MongoLog {
	col := db.Collection("activity_events")
	idx := mongo.IndexModel{Keys: bson.D{{Key: "documentId", Value: 1}, {Key: "createdAt", Value: -1}}}
	col.Indexes().CreateOne(context.Background(), idx)
	return &MongoLog{col: col}
}

func (l *MongoLog) Record(ctx context.Context, ev Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	_, err := l.col.InsertOne(ctx, ev)
	return err
}

func (l *MongoLog) List(ctx context.Context, documentID string, limit int) ([]Event, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := l.col.Find(ctx, bson.M{"documentId": documentID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []Event{}
	for cur.Next(ctx) {
		var ev Event
		if err := cur.Decode(&ev); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, cur.Err()
}
