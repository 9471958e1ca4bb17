package invite

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepo persists invites in one collection with a unique index on the
// code. ConsumeUse rides on a filtered UpdateOne so two redeemers racing the
// last remaining use can never both succeed.
type MongoRepo struct {
	col *mongo.Collection
}

func NewMongoRepo(db *mongo.Database) *MongoRepo {
	col := db.Collection("invites")
	col.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys:    bson.D{{Key: "code", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	col.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys: bson.D{{Key: "documentId", Value: 1}},
	})
	return &MongoRepo{col: col}
}

func (r *MongoRepo) Create(ctx context.Context, inv *Invite) error {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	inv.CreatedAt = time.Now().UTC()
	_, err := r.col.InsertOne(ctx, inv)
	return err
}

func (r *MongoRepo) Get(ctx context.Context, id string) (*Invite, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoRepo) GetByCode(ctx context.Context, code string) (*Invite, error) {
	return r.findOne(ctx, bson.M{"code": code})
}

func (r *MongoRepo) findOne(ctx context.Context, filter bson.M) (*Invite, error) {
	var inv Invite
	err := r.col.FindOne(ctx, filter).Decode(&inv)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *MongoRepo) ListByDocument(ctx context.Context, documentID string) ([]*Invite, error) {
	cur, err := r.col.Find(ctx, bson.M{"documentId": documentID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*Invite{}
	for cur.Next(ctx) {
		var inv Invite
		if err := cur.Decode(&inv); err != nil {
			return nil, err
		}
		out = append(out, &inv)
	}
	return out, cur.Err()
}

func (r *MongoRepo) Deactivate(ctx context.Context, id string) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"active": false}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoRepo) ConsumeUse(ctx context.Context, id string) error {
	// increment only while active and under budget; MatchedCount==0 tells a
	// loser of the race apart from a missing invite below
	filter := bson.M{
		"_id":    id,
		"active": true,
		"$or": bson.A{
			bson.M{"maxUses": bson.M{"$exists": false}},
			bson.M{"maxUses": 0},
			bson.M{"$expr": bson.M{"$lt": bson.A{"$uses", "$maxUses"}}},
		},
	}
	res, err := r.col.UpdateOne(ctx, filter, bson.M{"$inc": bson.M{"uses": 1}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		inv, gerr := r.Get(ctx, id)
		if gerr != nil {
			return gerr
		}
		if !inv.Active {
			return ErrNotFound
		}
		return ErrExhausted
	}
	return nil
}
