package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"hama/estate/internal/utils"
)

// MongoStore implements Store on a MongoDB database. Documents are keyed by
// string _id values.
type MongoStore struct {
	db *mongo.Database
	// hintOrdered makes ordered queries name the compound index they need, so
	// a missing index fails instead of silently sorting in memory.
	hintOrdered bool
}

// MongoStoreOption configures a MongoStore.
type MongoStoreOption func(*MongoStore)

// WithOrderedQueryHints requires an index for every ordered query.
func WithOrderedQueryHints() MongoStoreOption {
	return func(s *MongoStore) { s.hintOrdered = true }
}

// NewMongoStore wraps db as a Store.
func NewMongoStore(db *mongo.Database, opts ...MongoStoreOption) *MongoStore {
	s := &MongoStore{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MongoStore) QueryWhere(ctx context.Context, collection string, q Query, out interface{}) error {
	if err := q.validate(); err != nil {
		return err
	}
	filter := bson.M{}
	if q.Field != "" {
		// Equality on an array field matches membership in MongoDB, which
		// covers both OpEqual and OpArrayContains.
		filter[q.Field] = q.Value
	}

	opts := options.Find()
	if q.OrderBy != "" {
		dir := int(q.Direction)
		if dir == 0 {
			dir = int(Asc)
		}
		opts.SetSort(bson.D{{Key: q.OrderBy, Value: dir}, {Key: "_id", Value: dir}})
		if s.hintOrdered {
			hint := bson.D{}
			if q.Field != "" {
				hint = append(hint, bson.E{Key: q.Field, Value: 1})
			}
			hint = append(hint, bson.E{Key: q.OrderBy, Value: dir})
			opts.SetHint(hint)
		}
	}
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}

	cursor, err := s.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return classifyQueryError(collection, err)
	}
	defer cursor.Close(ctx)
	if err := cursor.All(ctx, out); err != nil {
		return classifyQueryError(collection, err)
	}
	return nil
}

func (s *MongoStore) GetByID(ctx context.Context, collection, id string, out interface{}) error {
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("error finding %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *MongoStore) AddDoc(ctx context.Context, collection string, fields Fields) (string, error) {
	coll := s.db.Collection(collection)
	values, stamped := fields.split()
	var id string
	err := Try(ctx, func() error {
		id = utils.NewDocID()
		doc := bson.M{"_id": id}
		now := time.Now().UTC()
		for k, v := range values {
			doc[k] = v
		}
		// Provisional value, replaced by the server clock below.
		for _, k := range stamped {
			doc[k] = now
		}
		_, err := coll.InsertOne(ctx, doc)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to insert into %s after retries (last id %s): %w", collection, id, err)
	}
	if len(stamped) > 0 {
		if _, err := coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$currentDate": currentDate(stamped)}); err != nil {
			return id, fmt.Errorf("failed to stamp %s/%s: %w", collection, id, err)
		}
	}
	return id, nil
}

func (s *MongoStore) UpdateDoc(ctx context.Context, collection, id string, fields Fields) error {
	res, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, updateDoc(fields))
	if err != nil {
		return fmt.Errorf("failed to update %s/%s: %w", collection, id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) SetDoc(ctx context.Context, collection, id string, fields Fields, merge bool) error {
	coll := s.db.Collection(collection)
	if merge {
		_, err := coll.UpdateOne(ctx, bson.M{"_id": id}, updateDoc(fields), options.Update().SetUpsert(true))
		if err != nil {
			return fmt.Errorf("failed to upsert %s/%s: %w", collection, id, err)
		}
		return nil
	}

	values, stamped := fields.split()
	doc := bson.M{"_id": id}
	for k, v := range values {
		doc[k] = v
	}
	now := time.Now().UTC()
	for _, k := range stamped {
		doc[k] = now
	}
	if _, err := coll.ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("failed to replace %s/%s: %w", collection, id, err)
	}
	if len(stamped) > 0 {
		if _, err := coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$currentDate": currentDate(stamped)}); err != nil {
			return fmt.Errorf("failed to stamp %s/%s: %w", collection, id, err)
		}
	}
	return nil
}

func (s *MongoStore) UpsertDoc(ctx context.Context, collection, id string, fields Fields) (bool, error) {
	coll := s.db.Collection(collection)
	opts := options.Update().SetUpsert(true)
	res, err := coll.UpdateOne(ctx, bson.M{"_id": id}, updateDoc(fields), opts)
	if IsDuplicateKeyError(err) {
		// A concurrent upsert inserted first; ours becomes a plain update.
		res, err = coll.UpdateOne(ctx, bson.M{"_id": id}, updateDoc(fields), opts)
	}
	if err != nil {
		return false, fmt.Errorf("failed to upsert %s/%s: %w", collection, id, err)
	}
	return res.UpsertedCount > 0, nil
}

func updateDoc(fields Fields) bson.M {
	values, stamped := fields.split()
	update := bson.M{}
	if len(values) > 0 {
		set := bson.M{}
		for k, v := range values {
			set[k] = v
		}
		update["$set"] = set
	}
	if len(stamped) > 0 {
		update["$currentDate"] = currentDate(stamped)
	}
	return update
}

func currentDate(keys []string) bson.M {
	m := bson.M{}
	for _, k := range keys {
		m[k] = true
	}
	return m
}

// MongoDB error codes that mean an ordered query has no usable plan.
const (
	codeBadValue              = 2
	codeIndexNotFound         = 27
	codeOperationFailed       = 96
	codeNoQueryExecutionPlans = 291
	codeQueryExceededMemLimit = 292
)

// IsIndexUnavailableError reports whether a MongoDB error means the requested
// sort cannot be served.
func IsIndexUnavailableError(err error) bool {
	var se mongo.ServerError
	if !errors.As(err, &se) {
		return false
	}
	return se.HasErrorCode(codeIndexNotFound) ||
		se.HasErrorCode(codeNoQueryExecutionPlans) ||
		se.HasErrorCode(codeQueryExceededMemLimit) ||
		se.HasErrorCodeWithMessage(codeBadValue, "hint") ||
		se.HasErrorCodeWithMessage(codeOperationFailed, "Sort")
}

func classifyQueryError(collection string, err error) error {
	if IsIndexUnavailableError(err) {
		return fmt.Errorf("%w: %s: %v", ErrIndexUnavailable, collection, err)
	}
	return fmt.Errorf("failed to query %s: %w", collection, err)
}
