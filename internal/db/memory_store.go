package db

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"hama/estate/internal/utils"
)

var errDuplicateID = errors.New("duplicate document id")

// MemoryStore is an in-process Store. Documents are kept BSON-encoded so
// decoding goes through the same struct tags as MongoStore.
type MemoryStore struct {
	mu      sync.RWMutex
	docs    map[string]map[string]bson.Raw
	indexes map[string]map[string]bool
	strict  bool
	now     func() time.Time
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithStrictIndexes makes ordered queries fail with ErrIndexUnavailable unless
// the sort field was declared with WithIndex.
func WithStrictIndexes() MemoryStoreOption {
	return func(s *MemoryStore) { s.strict = true }
}

// WithIndex declares that collection can be ordered by field.
func WithIndex(collection, field string) MemoryStoreOption {
	return func(s *MemoryStore) {
		if s.indexes[collection] == nil {
			s.indexes[collection] = map[string]bool{}
		}
		s.indexes[collection][field] = true
	}
}

// WithClock sets the clock used for ServerTimestamp fields.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		docs:    map[string]map[string]bson.Raw{},
		indexes: map[string]map[string]bool{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) QueryWhere(ctx context.Context, collection string, q Query, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := q.validate(); err != nil {
		return err
	}
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("query output must be a pointer to a slice, got %T", out)
	}
	if q.OrderBy != "" && s.strict && !s.hasIndex(collection, q.OrderBy) {
		return fmt.Errorf("%w: %s ordered by %s", ErrIndexUnavailable, collection, q.OrderBy)
	}

	want, err := normalize(q.Value)
	if err != nil {
		return fmt.Errorf("invalid query value: %w", err)
	}

	type match struct {
		raw bson.Raw
		doc bson.M
	}
	var matches []match
	s.mu.RLock()
	for _, raw := range s.docs[collection] {
		var doc bson.M
		if err := bson.Unmarshal(raw, &doc); err != nil {
			s.mu.RUnlock()
			return fmt.Errorf("corrupt document in %s: %w", collection, err)
		}
		if q.Field == "" || matchesOp(doc[q.Field], q.Op, want) {
			matches = append(matches, match{raw: raw, doc: doc})
		}
	}
	s.mu.RUnlock()

	dir := q.Direction
	if dir == 0 {
		dir = Asc
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if q.OrderBy != "" {
			if c := compareValues(matches[i].doc[q.OrderBy], matches[j].doc[q.OrderBy]); c != 0 {
				return c*int(dir) < 0
			}
		}
		c := compareValues(matches[i].doc["_id"], matches[j].doc["_id"])
		if q.OrderBy == "" {
			return c < 0
		}
		return c*int(dir) < 0
	})
	if q.Limit > 0 && int64(len(matches)) > q.Limit {
		matches = matches[:q.Limit]
	}

	sliceType := rv.Elem().Type()
	elemType := sliceType.Elem()
	result := reflect.MakeSlice(sliceType, 0, len(matches))
	for _, m := range matches {
		isPtr := elemType.Kind() == reflect.Ptr
		target := elemType
		if isPtr {
			target = elemType.Elem()
		}
		elem := reflect.New(target)
		if err := bson.Unmarshal(m.raw, elem.Interface()); err != nil {
			return fmt.Errorf("failed to decode %s document: %w", collection, err)
		}
		if isPtr {
			result = reflect.Append(result, elem)
		} else {
			result = reflect.Append(result, elem.Elem())
		}
	}
	rv.Elem().Set(result)
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, collection, id string, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	raw, ok := s.docs[collection][id]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	if err := bson.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *MemoryStore) AddDoc(ctx context.Context, collection string, fields Fields) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var id string
	err := Try(ctx, func() error {
		id = utils.NewDocID()
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, exists := s.docs[collection][id]; exists {
			return errDuplicateID
		}
		return s.putLocked(collection, id, s.apply(bson.M{}, fields))
	})
	if err != nil {
		return "", fmt.Errorf("failed to insert into %s: %w", collection, err)
	}
	return id, nil
}

func (s *MemoryStore) UpdateDoc(ctx context.Context, collection, id string, fields Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok, err := s.getLocked(collection, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return s.putLocked(collection, id, s.apply(doc, fields))
}

func (s *MemoryStore) SetDoc(ctx context.Context, collection, id string, fields Fields, merge bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := bson.M{}
	if merge {
		existing, ok, err := s.getLocked(collection, id)
		if err != nil {
			return err
		}
		if ok {
			doc = existing
		}
	}
	return s.putLocked(collection, id, s.apply(doc, fields))
}

func (s *MemoryStore) UpsertDoc(ctx context.Context, collection, id string, fields Fields) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok, err := s.getLocked(collection, id)
	if err != nil {
		return false, err
	}
	if !ok {
		doc = bson.M{}
	}
	if err := s.putLocked(collection, id, s.apply(doc, fields)); err != nil {
		return false, err
	}
	return !ok, nil
}

func (s *MemoryStore) hasIndex(collection, field string) bool {
	return s.indexes[collection][field]
}

func (s *MemoryStore) apply(doc bson.M, fields Fields) bson.M {
	values, stamped := fields.split()
	for k, v := range values {
		doc[k] = v
	}
	now := s.now().UTC()
	for _, k := range stamped {
		doc[k] = now
	}
	return doc
}

func (s *MemoryStore) getLocked(collection, id string) (bson.M, bool, error) {
	raw, ok := s.docs[collection][id]
	if !ok {
		return nil, false, nil
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, false, fmt.Errorf("corrupt document %s/%s: %w", collection, id, err)
	}
	return doc, true, nil
}

func (s *MemoryStore) putLocked(collection, id string, doc bson.M) error {
	doc["_id"] = id
	raw, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", collection, id, err)
	}
	if s.docs[collection] == nil {
		s.docs[collection] = map[string]bson.Raw{}
	}
	s.docs[collection][id] = raw
	return nil
}

// normalize round-trips v through BSON so it compares equal to stored values.
func normalize(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := bson.Marshal(bson.M{"v": v})
	if err != nil {
		return nil, err
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m["v"], nil
}

func matchesOp(v interface{}, op Op, want interface{}) bool {
	switch op {
	case OpEqual:
		return reflect.DeepEqual(v, want)
	case OpArrayContains:
		arr, ok := v.(bson.A)
		if !ok {
			return false
		}
		for _, e := range arr {
			if reflect.DeepEqual(e, want) {
				return true
			}
		}
	}
	return false
}

// compareValues orders BSON values the way the services need: missing and
// null lowest, then numbers, strings, booleans and dates.
func compareValues(a, b interface{}) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch av := a.(type) {
	case nil:
		return 0
	case string:
		bv := b.(string)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		}
		return 1
	case primitive.DateTime:
		return compareFloat(float64(av), float64(b.(primitive.DateTime)))
	default:
		return compareFloat(toFloat(a), toFloat(b))
	}
}

func typeRank(v interface{}) int {
	switch v.(type) {
	case nil:
		return 0
	case int32, int64, float64:
		return 1
	case string:
		return 2
	case bool:
		return 3
	case primitive.DateTime:
		return 4
	default:
		return 5
	}
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
