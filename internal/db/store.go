package db

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a document with the requested id does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrIndexUnavailable is returned when an ordered query cannot be served,
	// e.g. the index backing the sort is missing. Callers may retry unordered.
	ErrIndexUnavailable = errors.New("index unavailable for ordered query")
)

// Op is a query comparison operator.
type Op string

const (
	OpEqual         Op = "=="
	OpArrayContains Op = "array-contains"
)

// Direction is a sort direction for ordered queries.
type Direction int

const (
	Asc  Direction = 1
	Desc Direction = -1
)

// Query describes a single-field filter with optional ordering and limit.
// An empty Field matches every document in the collection.
type Query struct {
	Field     string
	Op        Op
	Value     interface{}
	OrderBy   string
	Direction Direction
	Limit     int64
}

// Where starts a query filtering on field.
func Where(field string, op Op, value interface{}) Query {
	return Query{Field: field, Op: op, Value: value}
}

// All matches every document of a collection.
func All() Query {
	return Query{}
}

// Order returns a copy of q sorted by field.
func (q Query) Order(field string, dir Direction) Query {
	q.OrderBy = field
	q.Direction = dir
	return q
}

// Take returns a copy of q limited to n documents.
func (q Query) Take(n int64) Query {
	q.Limit = n
	return q
}

// Unordered returns a copy of q without ordering.
func (q Query) Unordered() Query {
	q.OrderBy = ""
	q.Direction = 0
	return q
}

func (q Query) validate() error {
	if q.Field == "" {
		return nil
	}
	switch q.Op {
	case OpEqual, OpArrayContains:
		return nil
	default:
		return fmt.Errorf("unsupported query operator %q", q.Op)
	}
}

// Fields is a set of top-level document fields to write.
type Fields map[string]interface{}

type serverTimestamp struct{}

// ServerTimestamp marks a field to be set from the store's clock at write time.
var ServerTimestamp = serverTimestamp{}

// split separates literal values from fields that take the server timestamp.
func (f Fields) split() (values Fields, stamped []string) {
	values = make(Fields, len(f))
	for k, v := range f {
		if _, ok := v.(serverTimestamp); ok {
			stamped = append(stamped, k)
			continue
		}
		values[k] = v
	}
	return values, stamped
}

// Store is the document store the services are written against.
type Store interface {
	// QueryWhere decodes the matching documents into out, a pointer to a slice.
	QueryWhere(ctx context.Context, collection string, q Query, out interface{}) error
	// GetByID decodes a single document into out. Returns ErrNotFound when absent.
	GetByID(ctx context.Context, collection, id string, out interface{}) error
	// AddDoc inserts a new document under a store-generated id.
	AddDoc(ctx context.Context, collection string, fields Fields) (string, error)
	// UpdateDoc sets fields on an existing document. Returns ErrNotFound when absent.
	UpdateDoc(ctx context.Context, collection, id string, fields Fields) error
	// SetDoc writes the document, creating it if needed. With merge the given
	// fields are overlaid on the existing document, otherwise it is replaced.
	SetDoc(ctx context.Context, collection, id string, fields Fields, merge bool) error
	// UpsertDoc overlays fields on the document, creating it if needed, and
	// reports whether this call created it. Of concurrent upserts on the same
	// id exactly one reports created.
	UpsertDoc(ctx context.Context, collection, id string, fields Fields) (bool, error)
}

// QueryOrdered runs an ordered query and falls back to an unordered one when the
// store reports ErrIndexUnavailable. sortFn is applied to the result on both
// paths, so the returned order depends only on the documents.
func QueryOrdered[T any](ctx context.Context, store Store, collection string, q Query, sortFn func([]T)) ([]T, bool, error) {
	var out []T
	fellBack := false
	err := store.QueryWhere(ctx, collection, q, &out)
	if errors.Is(err, ErrIndexUnavailable) {
		fellBack = true
		out = nil
		// The limit only makes sense after sorting, so fetch everything.
		err = store.QueryWhere(ctx, collection, q.Unordered().Take(0), &out)
	}
	if err != nil {
		return nil, fellBack, err
	}
	if sortFn != nil {
		sortFn(out)
	}
	if fellBack && q.Limit > 0 && int64(len(out)) > q.Limit {
		out = out[:q.Limit]
	}
	return out, fellBack, nil
}
