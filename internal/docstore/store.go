package docstore

import (
	"context"
	"errors"
)

var (
	ErrNotFound      = errors.New("document not found")
	ErrAlreadyExists = errors.New("document already exists")
	ErrAborted       = errors.New("transaction aborted")
	ErrInvalidQuery  = errors.New("invalid query")
)

// Document is a loosely typed record. Values are one of string, bool, int64,
// float64, time.Time or nil once read back from a store.
type Document map[string]any

type serverTimestamp struct{}

// ServerTimestamp is replaced by the backend's clock when it appears as a
// field value in Add, Update or Tx.Create.
var ServerTimestamp = serverTimestamp{}

type Snapshot struct {
	ID   string
	Data Document
}

type Op string

const (
	OpEqual          Op = "=="
	OpLess           Op = "<"
	OpLessOrEqual    Op = "<="
	OpGreater        Op = ">"
	OpGreaterOrEqual Op = ">="
)

type Filter struct {
	Field string
	Op    Op
	Value any
}

type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

// Where returns a copy of q with an additional filter.
func (q Query) Where(field string, op Op, value any) Query {
	filters := make([]Filter, len(q.Filters), len(q.Filters)+1)
	copy(filters, q.Filters)
	q.Filters = append(filters, Filter{Field: field, Op: op, Value: value})
	return q
}

func (q Query) Order(field string, descending bool) Query {
	q.OrderBy = field
	q.Descending = descending
	return q
}

func (q Query) Take(n int) Query {
	q.Limit = n
	return q
}

// Collection starts a query over every document of a collection.
func Collection(name string) Query {
	return Query{Collection: name}
}

// Store is the document database the engine is written against.
type Store interface {
	Get(ctx context.Context, collection, id string) (*Snapshot, error)
	Query(ctx context.Context, q Query) ([]*Snapshot, error)
	Add(ctx context.Context, collection string, doc Document) (string, error)
	Update(ctx context.Context, collection, id string, fields Document) error
	Delete(ctx context.Context, collection, id string) error

	// RunTransaction runs fn as one atomic unit: either every write made
	// through tx is committed or none is. All reads must precede the first
	// write. fn may be invoked more than once and must not call the Store
	// directly.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the transactional read/write handle passed to RunTransaction.
type Tx interface {
	Get(collection, id string) (*Snapshot, error)
	Query(q Query) ([]*Snapshot, error)
	Create(collection, id string, doc Document) error
	Update(collection, id string, fields Document) error
	Delete(collection, id string) error
}

func validOp(op Op) bool {
	switch op {
	case OpEqual, OpLess, OpLessOrEqual, OpGreater, OpGreaterOrEqual:
		return true
	}
	return false
}
