package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/inkwave/inkwave/sync-engine/pkg/logger"
)

// Connect dials MongoDB and verifies a primary is reachable before
// returning the named database. Document saves go through versioned
// compare-and-swap writes, so a connection that cannot reach a primary
// is useless to the engine and is reported as an error here rather
// than on the first save. The caller owns the client and must
// Disconnect it on shutdown.
func Connect(ctx context.Context, uri, name string, timeout time.Duration) (*mongo.Client, *mongo.Database, error) {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(timeout)
	client, err := mongo.Connect(dialCtx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("dialing mongodb: %w", err)
	}
	if err := client.Ping(dialCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("mongodb primary unreachable: %w", err)
	}
	logger.Infof("mongodb ready, using database %q", name)
	return client, client.Database(name), nil
}
