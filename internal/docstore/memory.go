package docstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var errReadAfterWrite = errors.New("transaction reads must happen before writes")

// MemoryStore keeps documents in process memory. A transaction holds the
// store lock until it commits, so transactions never conflict.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]map[string]Document
	now         func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]Document),
		now:         time.Now,
	}
}

// SetClock replaces the clock used to resolve ServerTimestamp.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(collection, id)
}

func (s *MemoryStore) Query(ctx context.Context, q Query) ([]*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query(q)
}

func (s *MemoryStore) Add(ctx context.Context, collection string, doc Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	s.put(collection, id, s.resolve(doc))
	return id, nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, fields Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(collection, id, s.resolve(fields))
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections[collection], id)
	return nil
}

func (s *MemoryStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memoryTx{store: s, created: make(map[string]bool)}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	// Validate every write before applying any of them.
	for _, w := range tx.writes {
		if w.kind == writeUpdate {
			if _, err := s.get(w.collection, w.id); err != nil && !tx.created[key(w.collection, w.id)] {
				return err
			}
		}
	}
	for _, w := range tx.writes {
		switch w.kind {
		case writeCreate:
			s.put(w.collection, w.id, w.doc)
		case writeUpdate:
			if err := s.update(w.collection, w.id, w.doc); err != nil {
				return err
			}
		case writeDelete:
			delete(s.collections[w.collection], w.id)
		}
	}
	return nil
}

func (s *MemoryStore) get(collection, id string) (*Snapshot, error) {
	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return &Snapshot{ID: id, Data: cloneDoc(doc)}, nil
}

func (s *MemoryStore) query(q Query) ([]*Snapshot, error) {
	if q.Collection == "" {
		return nil, fmt.Errorf("%w: collection is required", ErrInvalidQuery)
	}
	for _, f := range q.Filters {
		if !validOp(f.Op) {
			return nil, fmt.Errorf("%w: unsupported operator %q", ErrInvalidQuery, f.Op)
		}
	}

	var out []*Snapshot
	for id, doc := range s.collections[q.Collection] {
		keep := true
		for _, f := range q.Filters {
			if !matches(doc, f) {
				keep = false
				break
			}
		}
		if _, hasOrderField := doc[q.OrderBy]; q.OrderBy != "" && !hasOrderField {
			keep = false
		}
		if keep {
			out = append(out, &Snapshot{ID: id, Data: cloneDoc(doc)})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if q.OrderBy != "" {
			c, _ := compare(out[i].Data[q.OrderBy], out[j].Data[q.OrderBy])
			if c != 0 {
				if q.Descending {
					return c > 0
				}
				return c < 0
			}
		}
		return out[i].ID < out[j].ID
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemoryStore) put(collection, id string, doc Document) {
	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string]Document)
		s.collections[collection] = docs
	}
	docs[id] = cloneDoc(doc)
}

func (s *MemoryStore) update(collection, id string, fields Document) error {
	doc, ok := s.collections[collection][id]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	for k, v := range fields {
		doc[k] = v
	}
	return nil
}

func (s *MemoryStore) resolve(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		if _, isSentinel := v.(serverTimestamp); isSentinel {
			out[k] = s.now().UTC()
			continue
		}
		out[k] = normalize(v)
	}
	return out
}

type writeKind int

const (
	writeCreate writeKind = iota
	writeUpdate
	writeDelete
)

type memoryWrite struct {
	kind       writeKind
	collection string
	id         string
	doc        Document
}

type memoryTx struct {
	store   *MemoryStore
	writes  []memoryWrite
	created map[string]bool
}

func (t *memoryTx) Get(collection, id string) (*Snapshot, error) {
	if len(t.writes) > 0 {
		return nil, errReadAfterWrite
	}
	return t.store.get(collection, id)
}

func (t *memoryTx) Query(q Query) ([]*Snapshot, error) {
	if len(t.writes) > 0 {
		return nil, errReadAfterWrite
	}
	return t.store.query(q)
}

func (t *memoryTx) Create(collection, id string, doc Document) error {
	if _, err := t.store.get(collection, id); err == nil || t.created[key(collection, id)] {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrAlreadyExists)
	}
	t.created[key(collection, id)] = true
	t.writes = append(t.writes, memoryWrite{kind: writeCreate, collection: collection, id: id, doc: t.store.resolve(doc)})
	return nil
}

func (t *memoryTx) Update(collection, id string, fields Document) error {
	t.writes = append(t.writes, memoryWrite{kind: writeUpdate, collection: collection, id: id, doc: t.store.resolve(fields)})
	return nil
}

func (t *memoryTx) Delete(collection, id string) error {
	t.writes = append(t.writes, memoryWrite{kind: writeDelete, collection: collection, id: id})
	return nil
}

func key(collection, id string) string {
	return collection + "/" + id
}

func cloneDoc(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
