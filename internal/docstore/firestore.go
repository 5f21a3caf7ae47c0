package docstore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore adapts a Cloud Firestore client to Store.
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func (s *FirestoreStore) Get(ctx context.Context, collection, id string) (*Snapshot, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		return nil, firestoreErr(collection, id, err)
	}
	return fromFirestore(snap), nil
}

func (s *FirestoreStore) Query(ctx context.Context, q Query) ([]*Snapshot, error) {
	fq, err := s.buildQuery(q)
	if err != nil {
		return nil, err
	}

	snaps, err := fq.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", q.Collection, err)
	}
	return fromFirestoreAll(snaps), nil
}

func (s *FirestoreStore) Add(ctx context.Context, collection string, doc Document) (string, error) {
	ref, _, err := s.client.Collection(collection).Add(ctx, toFirestore(doc))
	if err != nil {
		return "", fmt.Errorf("failed to add to %s: %w", collection, err)
	}
	return ref.ID, nil
}

func (s *FirestoreStore) Update(ctx context.Context, collection, id string, fields Document) error {
	_, err := s.client.Collection(collection).Doc(id).Update(ctx, toFirestoreUpdates(fields))
	if err != nil {
		return firestoreErr(collection, id, err)
	}
	return nil
}

func (s *FirestoreStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.client.Collection(collection).Doc(id).Delete(ctx); err != nil {
		return firestoreErr(collection, id, err)
	}
	return nil
}

// RunTransaction delegates to Firestore, which retries fn on contention.
func (s *FirestoreStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	err := s.client.RunTransaction(ctx, func(ctx context.Context, t *firestore.Transaction) error {
		return fn(ctx, &firestoreTx{store: s, tx: t})
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyExists) {
		return err
	}
	switch status.Code(err) {
	case codes.Aborted:
		return fmt.Errorf("%w: %v", ErrAborted, err)
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %v", ErrAlreadyExists, err)
	}
	return err
}

func (s *FirestoreStore) buildQuery(q Query) (firestore.Query, error) {
	if q.Collection == "" {
		return firestore.Query{}, fmt.Errorf("%w: collection is required", ErrInvalidQuery)
	}

	fq := s.client.Collection(q.Collection).Query
	for _, f := range q.Filters {
		if !validOp(f.Op) {
			return firestore.Query{}, fmt.Errorf("%w: unsupported operator %q", ErrInvalidQuery, f.Op)
		}
		fq = fq.Where(f.Field, string(f.Op), f.Value)
	}
	if q.OrderBy != "" {
		dir := firestore.Asc
		if q.Descending {
			dir = firestore.Desc
		}
		fq = fq.OrderBy(q.OrderBy, dir)
	}
	if q.Limit > 0 {
		fq = fq.Limit(q.Limit)
	}
	return fq, nil
}

type firestoreTx struct {
	store *FirestoreStore
	tx    *firestore.Transaction
}

func (t *firestoreTx) Get(collection, id string) (*Snapshot, error) {
	snap, err := t.tx.Get(t.store.client.Collection(collection).Doc(id))
	if err != nil {
		return nil, firestoreErr(collection, id, err)
	}
	return fromFirestore(snap), nil
}

func (t *firestoreTx) Query(q Query) ([]*Snapshot, error) {
	fq, err := t.store.buildQuery(q)
	if err != nil {
		return nil, err
	}
	snaps, err := t.tx.Documents(fq).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", q.Collection, err)
	}
	return fromFirestoreAll(snaps), nil
}

func (t *firestoreTx) Create(collection, id string, doc Document) error {
	return t.tx.Create(t.store.client.Collection(collection).Doc(id), toFirestore(doc))
}

func (t *firestoreTx) Update(collection, id string, fields Document) error {
	return t.tx.Update(t.store.client.Collection(collection).Doc(id), toFirestoreUpdates(fields))
}

func (t *firestoreTx) Delete(collection, id string) error {
	return t.tx.Delete(t.store.client.Collection(collection).Doc(id))
}

func firestoreErr(collection, id string, err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	case codes.AlreadyExists:
		return fmt.Errorf("%s/%s: %w", collection, id, ErrAlreadyExists)
	}
	return fmt.Errorf("firestore %s/%s: %w", collection, id, err)
}

func toFirestore(doc Document) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		if _, ok := v.(serverTimestamp); ok {
			out[k] = firestore.ServerTimestamp
			continue
		}
		out[k] = v
	}
	return out
}

func toFirestoreUpdates(fields Document) []firestore.Update {
	updates := make([]firestore.Update, 0, len(fields))
	for k, v := range toFirestore(fields) {
		updates = append(updates, firestore.Update{Path: k, Value: v})
	}
	return updates
}

func fromFirestore(snap *firestore.DocumentSnapshot) *Snapshot {
	data := snap.Data()
	doc := make(Document, len(data))
	for k, v := range data {
		doc[k] = normalize(v)
	}
	return &Snapshot{ID: snap.Ref.ID, Data: doc}
}

func fromFirestoreAll(snaps []*firestore.DocumentSnapshot) []*Snapshot {
	out := make([]*Snapshot, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, fromFirestore(snap))
	}
	return out
}
