// Package mongo is the durable store backend on MongoDB. Documents are
// stored as nested maps matching the case's dotted-path structure, with
// the collection's native ObjectID as _id.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/epiwatch/casestore/internal/domain"
	"github.com/epiwatch/casestore/internal/domain/caserecord"
	"github.com/epiwatch/casestore/internal/domain/caserecord/update"
	"github.com/epiwatch/casestore/internal/domain/filter"
	"github.com/epiwatch/casestore/internal/domain/schema"
	"github.com/epiwatch/casestore/internal/store"
)

// Config holds the durable backend connection settings.
type Config struct {
	URI        string
	Database   string
	Collection string
}

// Store is the MongoDB-backed implementation of store.Store.
type Store struct {
	reg    *schema.Registry
	client *mongo.Client
	coll   *mongo.Collection
	logger *zap.Logger
}

var _ store.Store = (*Store)(nil)

// New connects to MongoDB and pings it before returning.
func New(ctx context.Context, cfg Config, reg *schema.Registry, logger *zap.Logger) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w: %w", cfg.URI, domain.ErrStoreUnavailable, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return &Store{
		reg:    reg,
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
		logger: logger,
	}, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("ping: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	return nil
}

// InsertCase validates and inserts a new document.
func (s *Store) InsertCase(ctx context.Context, c *caserecord.Case) (string, error) {
	if err := c.Validate(s.reg); err != nil {
		return "", err
	}
	res, err := s.coll.InsertOne(ctx, bson.M(c.ToMap()))
	if err != nil {
		return "", wrapErr("insert", err)
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("insert: unexpected id type %T", res.InsertedID)
	}
	return oid.Hex(), nil
}

// CountCases counts documents matching the filter.
func (s *Store) CountCases(ctx context.Context, f filter.Filter) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, filterToBSON(f))
	if err != nil {
		return 0, wrapErr("count", err)
	}
	return n, nil
}

// ListCases pages through matching documents sorted by _id, which keeps
// adjacent pages free of skips and duplicates on an unmodified set.
func (s *Store) ListCases(ctx context.Context, f filter.Filter, page, pageSize int64) (store.CasePage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}

	query := filterToBSON(f)
	total, err := s.coll.CountDocuments(ctx, query)
	if err != nil {
		return store.CasePage{}, wrapErr("count", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetSkip((page - 1) * pageSize).
		SetLimit(pageSize)
	cur, err := s.coll.Find(ctx, query, opts)
	if err != nil {
		return store.CasePage{}, wrapErr("find", err)
	}
	defer func() {
		if cerr := cur.Close(ctx); cerr != nil {
			s.logger.Warn("close cursor", zap.Error(cerr))
		}
	}()

	out := store.CasePage{Total: total}
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return store.CasePage{}, wrapErr("decode", err)
		}
		out.Cases = append(out.Cases, caseFromBSON(raw))
	}
	if err := cur.Err(); err != nil {
		return store.CasePage{}, wrapErr("cursor", err)
	}

	if page*pageSize < total {
		next := page + 1
		out.NextPage = &next
	}
	return out, nil
}

// UpdateCase applies sets and unsets in a single UpdateByID, which
// MongoDB applies atomically per document.
func (s *Store) UpdateCase(ctx context.Context, id string, u *update.Update) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("case %q: %w", id, domain.ErrNotFound)
	}

	sets := bson.M{}
	u.Sets(func(path string, value any) { sets[path] = value })
	unsets := bson.M{}
	u.Unsets(func(path string) { unsets[path] = "" })

	instr := bson.M{}
	if len(sets) > 0 {
		instr["$set"] = sets
	}
	if len(unsets) > 0 {
		instr["$unset"] = unsets
	}
	if len(instr) == 0 {
		return nil
	}

	res, err := s.coll.UpdateByID(ctx, oid, instr)
	if err != nil {
		return wrapErr("update", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("case %q: %w", id, domain.ErrNotFound)
	}
	return nil
}

// BatchUpsert replaces documents matched by case-reference identity and
// inserts the rest. Per-item failures land in the outcome and never
// abort the remaining entries.
func (s *Store) BatchUpsert(ctx context.Context, entries []store.BatchEntry) (store.UpsertOutcome, error) {
	out := store.NewUpsertOutcome()

	for i, entry := range entries {
		key := entry.Key
		if key == "" {
			key = fmt.Sprintf("%d", i)
		}
		if err := entry.Case.Validate(s.reg); err != nil {
			out.Errors[key] = err.Error()
			continue
		}

		created, err := s.upsertOne(ctx, entry.Case)
		if err != nil {
			out.Errors[key] = err.Error()
			continue
		}
		if created {
			out.NumCreated++
		} else {
			out.NumUpdated++
		}
	}
	return out, nil
}

func (s *Store) upsertOne(ctx context.Context, c *caserecord.Case) (bool, error) {
	doc := bson.M(c.ToMap())

	if c.ReferenceKey() == "" {
		if _, err := s.coll.InsertOne(ctx, doc); err != nil {
			return false, wrapErr("insert", err)
		}
		return true, nil
	}

	res, err := s.coll.ReplaceOne(ctx, referenceQuery(c.Reference), doc, options.Replace().SetUpsert(true))
	if err != nil {
		return false, wrapErr("upsert", err)
	}
	return res.MatchedCount == 0, nil
}

// DeleteCase removes one document.
func (s *Store) DeleteCase(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("case %q: %w", id, domain.ErrNotFound)
	}
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return wrapErr("delete", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("case %q: %w", id, domain.ErrNotFound)
	}
	return nil
}

// wrapErr classifies driver failures: connectivity and timeout faults
// are tagged ErrStoreUnavailable so callers never mistake them for
// NotFound or ValidationError.
func wrapErr(op string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	// Server-selection failures satisfy IsTimeout or IsNetworkError.
	if errors.Is(err, context.DeadlineExceeded) || mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// referenceQuery matches a document by its upstream reference identity.
func referenceQuery(ref *caserecord.CaseReference) bson.M {
	q := bson.M{"caseReference.sourceId": ref.SourceID}
	if ref.SourceEntryID != "" {
		q["caseReference.sourceEntryId"] = ref.SourceEntryID
	} else {
		q["caseReference.sourceEntryId"] = bson.M{"$exists": false}
	}
	return q
}
