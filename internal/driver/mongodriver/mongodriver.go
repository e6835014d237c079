// Package mongodriver runs one MongoDB document operation per cycle. The
// cycle's bound values form the document, or the filter for find.
//
// Parameters:
//
//	uri         connection string (required)
//	database    database name, default cyclegen
//	collection  collection name, default the activity alias
//	op          insert, find or upsert, default insert
//
// upsert replaces the document whose _id matches the binding named _id.
// A find that matches nothing succeeds with status 404.
package mongodriver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"cyclegen/internal/activity"
	"cyclegen/internal/bindings"
	"cyclegen/internal/op"
)

// Name is the driver name used in activity definitions.
const Name = "mongo"

const (
	defaultDatabase = "cyclegen"
	connectTimeout  = 10 * time.Second

	StatusOK      = 200
	StatusCreated = 201
	StatusMissing = 404
)

// Operations supported by the driver.
const (
	OpInsert = "insert"
	OpFind   = "find"
	OpUpsert = "upsert"
)

// Dispenser runs document operations against one collection.
type Dispenser struct {
	client   *mongo.Client
	coll     *mongo.Collection
	op       string
	bindings *bindings.Bindings
	maxTries int
}

// Open connects to the server and returns the dispenser.
func Open(ctx context.Context, def activity.Def, b *bindings.Bindings) (activity.Dispenser, error) {
	uri, err := def.RequireParam("uri")
	if err != nil {
		return nil, err
	}
	kind := strings.ToLower(def.Param("op", OpInsert))
	switch kind {
	case OpInsert, OpFind:
	case OpUpsert:
		if b == nil {
			return nil, errors.New("op upsert needs a binding named _id")
		}
		if _, ok := b.Lookup("_id"); !ok {
			return nil, errors.New("op upsert needs a binding named _id")
		}
	default:
		return nil, fmt.Errorf("unsupported op %q (want insert, find or upsert)", kind)
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	opts := options.Client().ApplyURI(uri).SetMaxPoolSize(uint64(max(def.Threads, 10)))
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping: %w", err)
	}

	collection := def.Param("collection", def.Alias)
	return &Dispenser{
		client:   client,
		coll:     client.Database(def.Param("database", defaultDatabase)).Collection(collection),
		op:       kind,
		bindings: b,
		maxTries: def.MaxTries,
	}, nil
}

// Dispense builds the cycle's document.
func (d *Dispenser) Dispense(cycle int64) (*op.Op, error) {
	doc := bson.M{}
	if d.bindings != nil {
		for k, v := range d.bindings.ApplyMap(cycle) {
			doc[k] = normalize(v)
		}
	}
	return op.New(cycle, doc), nil
}

func (d *Dispenser) Execute(ctx context.Context, o *op.Op) (int, error) {
	doc, _ := o.Payload.(bson.M)
	return activity.Attempt(ctx, o, d.maxTries, func(ctx context.Context) (int, error) {
		return d.do(ctx, doc)
	})
}

func (d *Dispenser) do(ctx context.Context, doc bson.M) (int, error) {
	switch d.op {
	case OpFind:
		err := d.coll.FindOne(ctx, doc).Err()
		if errors.Is(err, mongo.ErrNoDocuments) {
			return StatusMissing, nil
		}
		if err != nil {
			return 0, err
		}
		return StatusOK, nil
	case OpUpsert:
		res, err := d.coll.ReplaceOne(ctx, bson.M{"_id": doc["_id"]}, doc, options.Replace().SetUpsert(true))
		if err != nil {
			return 0, err
		}
		if res.UpsertedCount > 0 {
			return StatusCreated, nil
		}
		return StatusOK, nil
	}
	if _, err := d.coll.InsertOne(ctx, doc); err != nil {
		return 0, err
	}
	return StatusCreated, nil
}

// Close disconnects the client.
func (d *Dispenser) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	return d.client.Disconnect(ctx)
}

// normalize converts bound values bson cannot encode as intended.
func normalize(v any) any {
	switch t := v.(type) {
	case uuid.UUID:
		return t.String()
	case int:
		return int64(t)
	}
	return v
}
