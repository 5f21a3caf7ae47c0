package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	maxTxAttempts          = 3
	serializationFailure   = "40001"
	deadlockDetected       = "40P01"
	postgresDocumentsTable = `
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT        NOT NULL,
		id         TEXT        NOT NULL,
		data       JSONB       NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (collection, id)
	)
	`
)

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// pgExecutor is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps every collection in one JSONB table.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, postgresDocumentsTable); err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string) (*Snapshot, error) {
	return pgGet(ctx, s.db, collection, id, false)
}

func (s *PostgresStore) Query(ctx context.Context, q Query) ([]*Snapshot, error) {
	return pgQuery(ctx, s.db, q)
}

func (s *PostgresStore) Add(ctx context.Context, collection string, doc Document) (string, error) {
	id := uuid.New().String()
	if err := pgCreate(ctx, s.db, collection, id, doc); err != nil {
		return "", err
	}
	return id, nil
}

func (s *PostgresStore) Update(ctx context.Context, collection, id string, fields Document) error {
	return pgUpdate(ctx, s.db, collection, id, fields)
}

func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *PostgresStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	var lastErr error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err := s.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
		log.Printf("PostgresStore: transaction conflict on attempt %d/%d: %v", attempt, maxTxAttempts, err)
	}
	return fmt.Errorf("%w: %v", ErrAborted, lastErr)
}

func (s *PostgresStore) runOnce(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	handle := &postgresTx{ctx: ctx, tx: tx}
	if err := fn(ctx, handle); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type postgresTx struct {
	ctx   context.Context
	tx    pgx.Tx
	wrote bool
}

func (t *postgresTx) Get(collection, id string) (*Snapshot, error) {
	if t.wrote {
		return nil, errReadAfterWrite
	}
	return pgGet(t.ctx, t.tx, collection, id, true)
}

func (t *postgresTx) Query(q Query) ([]*Snapshot, error) {
	if t.wrote {
		return nil, errReadAfterWrite
	}
	return pgQuery(t.ctx, t.tx, q)
}

func (t *postgresTx) Create(collection, id string, doc Document) error {
	t.wrote = true
	return pgCreate(t.ctx, t.tx, collection, id, doc)
}

func (t *postgresTx) Update(collection, id string, fields Document) error {
	t.wrote = true
	return pgUpdate(t.ctx, t.tx, collection, id, fields)
}

func (t *postgresTx) Delete(collection, id string) error {
	t.wrote = true
	_, err := t.tx.Exec(t.ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func pgGet(ctx context.Context, db pgExecutor, collection, id string, forUpdate bool) (*Snapshot, error) {
	query := `SELECT data FROM documents WHERE collection = $1 AND id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var raw []byte
	err := db.QueryRow(ctx, query, collection, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}

	doc, err := decodeDocument(raw)
	if err != nil {
		return nil, err
	}
	return &Snapshot{ID: id, Data: doc}, nil
}

func pgQuery(ctx context.Context, db pgExecutor, q Query) ([]*Snapshot, error) {
	sql, args, err := buildSelect(q)
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", q.Collection, err)
	}
	defer rows.Close()

	var out []*Snapshot
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", q.Collection, err)
		}
		doc, err := decodeDocument(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, &Snapshot{ID: id, Data: doc})
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

func pgCreate(ctx context.Context, db pgExecutor, collection, id string, doc Document) error {
	now, err := serverNow(ctx, db, doc)
	if err != nil {
		return err
	}
	raw, err := encodeDocument(doc, now)
	if err != nil {
		return err
	}

	tag, err := db.Exec(ctx, `
	INSERT INTO documents (collection, id, data)
	VALUES ($1, $2, $3::jsonb)
	ON CONFLICT (collection, id) DO NOTHING
	`, collection, id, string(raw))
	if err != nil {
		return fmt.Errorf("failed to insert %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrAlreadyExists)
	}
	return nil
}

func pgUpdate(ctx context.Context, db pgExecutor, collection, id string, fields Document) error {
	now, err := serverNow(ctx, db, fields)
	if err != nil {
		return err
	}
	raw, err := encodeDocument(fields, now)
	if err != nil {
		return err
	}

	tag, err := db.Exec(ctx, `
	UPDATE documents
	SET data = data || $3::jsonb, updated_at = NOW()
	WHERE collection = $1 AND id = $2
	`, collection, id, string(raw))
	if err != nil {
		return fmt.Errorf("failed to update %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

// serverNow asks the database for the time, but only when doc holds a
// ServerTimestamp.
func serverNow(ctx context.Context, db pgExecutor, doc Document) (time.Time, error) {
	needed := false
	for _, v := range doc {
		if _, ok := v.(serverTimestamp); ok {
			needed = true
			break
		}
	}
	if !needed {
		return time.Time{}, nil
	}

	var now time.Time
	if err := db.QueryRow(ctx, `SELECT clock_timestamp()`).Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("failed to read server time: %w", err)
	}
	return now, nil
}

func buildSelect(q Query) (string, []any, error) {
	if q.Collection == "" {
		return "", nil, fmt.Errorf("%w: collection is required", ErrInvalidQuery)
	}

	var sb strings.Builder
	args := []any{q.Collection}
	sb.WriteString(`SELECT id, data FROM documents WHERE collection = $1`)

	for _, f := range q.Filters {
		if !fieldNamePattern.MatchString(f.Field) {
			return "", nil, fmt.Errorf("%w: bad field name %q", ErrInvalidQuery, f.Field)
		}
		if !validOp(f.Op) {
			return "", nil, fmt.Errorf("%w: unsupported operator %q", ErrInvalidQuery, f.Op)
		}
		op := string(f.Op)
		if f.Op == OpEqual {
			op = "="
		}

		args = append(args, f.Field)
		fieldArg := len(args)

		switch v := f.Value.(type) {
		case time.Time:
			args = append(args, FormatTime(v))
			fmt.Fprintf(&sb, ` AND data->>$%d::text %s $%d`, fieldArg, op, len(args))
		case bool:
			args = append(args, v)
			fmt.Fprintf(&sb, ` AND (data->>$%d::text)::boolean %s $%d`, fieldArg, op, len(args))
		case string:
			args = append(args, v)
			fmt.Fprintf(&sb, ` AND data->>$%d::text %s $%d`, fieldArg, op, len(args))
		default:
			n, ok := toFloat64(v)
			if !ok {
				return "", nil, fmt.Errorf("%w: unsupported filter value %T", ErrInvalidQuery, v)
			}
			args = append(args, n)
			fmt.Fprintf(&sb, ` AND jsonb_typeof(data->$%d::text) = 'number' AND (data->>$%d::text)::numeric %s $%d::numeric`, fieldArg, fieldArg, op, len(args))
		}
	}

	if q.OrderBy != "" {
		if !fieldNamePattern.MatchString(q.OrderBy) {
			return "", nil, fmt.Errorf("%w: bad order field %q", ErrInvalidQuery, q.OrderBy)
		}
		args = append(args, q.OrderBy)
		dir := "ASC"
		if q.Descending {
			dir = "DESC"
		}
		fmt.Fprintf(&sb, ` AND data ? $%d::text ORDER BY data->$%d::text %s, id`, len(args), len(args), dir)
	} else {
		sb.WriteString(` ORDER BY id`)
	}

	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, ` LIMIT $%d`, len(args))
	}

	return sb.String(), args, nil
}

func encodeDocument(doc Document, now time.Time) ([]byte, error) {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		switch val := v.(type) {
		case serverTimestamp:
			out[k] = FormatTime(now)
		case time.Time:
			out[k] = FormatTime(val)
		default:
			out[k] = v
		}
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return raw, nil
}

func decodeDocument(raw []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	for k, v := range doc {
		doc[k] = normalize(v)
	}
	return doc, nil
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == serializationFailure || pgErr.Code == deadlockDetected
	}
	return false
}
