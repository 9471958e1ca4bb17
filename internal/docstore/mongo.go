package docstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements Store on MongoDB. Documents live in one collection
// keyed by _id, grants in another with a unique (documentId, userId) index.
// The compare-and-swap in Put rides on a filtered UpdateOne so concurrent
// saves against the same expected version cannot both succeed.
type MongoStore struct {
	docs   *mongo.Collection
	grants *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	grants := db.Collection("grants")
	idx := mongo.IndexModel{
		Keys:    bson.D{{Key: "documentId", Value: 1}, {Key: "userId", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	grants.Indexes().CreateOne(context.Background(), idx)
	return &MongoStore{docs: db.Collection("documents"), grants: grants}
}

func (s *MongoStore) Create(ctx context.Context, doc *Document) (string, error) {
	if doc.ID == "" {
		doc.ID = "doc_" + uuid.NewString()
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if doc.Version == 0 {
		doc.Version = 1
	}
	if _, err := s.docs.InsertOne(ctx, doc); err != nil {
		return "", err
	}
	return doc.ID, nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (*Document, error) {
	var d Document
	err := s.docs.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (s *MongoStore) Put(ctx context.Context, id, body string, expectedVersion int64) (int64, error) {
	filter := bson.M{"_id": id}
	if expectedVersion >= 0 {
		filter["version"] = expectedVersion
	}
	update := bson.M{
		"$set": bson.M{"body": body, "updatedAt": time.Now().UTC()},
		"$inc": bson.M{"version": int64(1)},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var d Document
	err := s.docs.FindOneAndUpdate(ctx, filter, update, opts).Decode(&d)
	if err == mongo.ErrNoDocuments {
		// distinguish a missing document from a failed CAS
		if _, gerr := s.Get(ctx, id); gerr != nil {
			return 0, gerr
		}
		return 0, ErrVersionConflict
	}
	if err != nil {
		return 0, err
	}
	return d.Version, nil
}

func (s *MongoStore) ListGrants(ctx context.Context, documentID string) ([]Grant, error) {
	cur, err := s.grants.Find(ctx, bson.M{"documentId": documentID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []Grant{}
	for cur.Next(ctx) {
		var g Grant
		if err := cur.Decode(&g); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, cur.Err()
}

func (s *MongoStore) GetGrant(ctx context.Context, documentID, userID string) (*Grant, error) {
	var g Grant
	err := s.grants.FindOne(ctx, bson.M{"documentId": documentID, "userId": userID}).Decode(&g)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *MongoStore) UpsertGrant(ctx context.Context, g Grant) error {
	now := time.Now().UTC()
	filter := bson.M{"documentId": g.DocumentID, "userId": g.UserID}
	update := bson.M{
		"$set":         bson.M{"tier": g.Tier, "grantedBy": g.GrantedBy, "updatedAt": now},
		"$setOnInsert": bson.M{"createdAt": now},
	}
	_, err := s.grants.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (s *MongoStore) DeleteGrant(ctx context.Context, documentID, userID string) error {
	_, err := s.grants.DeleteOne(ctx, bson.M{"documentId": documentID, "userId": userID})
	return err
}
