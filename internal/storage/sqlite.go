package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "nightbot/pkg/logx"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	path       TEXT PRIMARY KEY,
	collection TEXT NOT NULL,
	group_name TEXT NOT NULL,
	doc_id     TEXT NOT NULL,
	data       TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS documents_collection ON documents(collection);
CREATE INDEX IF NOT EXISTS documents_group ON documents(group_name);
`

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	now func() time.Time
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer; it also keeps ":memory:" on one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info("sqlite store opened", logx.String("path", path))
	return &sqliteStore{db: db, log: log, now: time.Now}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Get(ctx context.Context, path string) (Snapshot, error) {
	k, err := parseDocPath(path)
	if err != nil {
		return Snapshot{}, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT path, collection, doc_id, data, created_at, updated_at FROM documents WHERE path = ?`, k.path)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err == nil && snap.Err != nil {
		return Snapshot{}, snap.Err
	}
	return snap, err
}

func (s *sqliteStore) Set(ctx context.Context, path string, data Doc, opts ...SetOption) error {
	k, err := parseDocPath(path)
	if err != nil {
		return err
	}
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var prev Doc
	if o.merge {
		var raw string
		err := tx.QueryRowContext(ctx, `SELECT data FROM documents WHERE path = ?`, k.path).Scan(&raw)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return err
		default:
			if prev, err = decodeDoc([]byte(raw)); err != nil {
				return err
			}
		}
	}
	if err := s.upsert(ctx, tx, k, resolve(prev, data, o.merge, s.now())); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) upsert(ctx context.Context, tx *sql.Tx, k docKey, d Doc) error {
	body, err := encodeDoc(d)
	if err != nil {
		return err
	}
	now := s.now().UTC().Format(time.RFC3339Nano)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents(path, collection, group_name, doc_id, data, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?)
		 ON CONFLICT(path) DO UPDATE SET data=excluded.data, updated_at=excluded.updated_at`,
		k.path, k.collection, k.group, k.id, string(body), now, now,
	)
	return err
}

func (s *sqliteStore) Add(ctx context.Context, collection string, data Doc) (string, error) {
	c, err := parseCollectionPath(collection)
	if err != nil {
		return "", err
	}
	id := newID()
	k, err := parseDocPath(c + "/" + id)
	if err != nil {
		return "", err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()
	if err := s.upsert(ctx, tx, k, resolve(nil, data, false, s.now())); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

func (s *sqliteStore) Delete(ctx context.Context, path string) error {
	k, err := parseDocPath(path)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, k.path)
	return err
}

func (s *sqliteStore) List(ctx context.Context, collection string) ([]Snapshot, error) {
	c, err := parseCollectionPath(collection)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, collection, doc_id, data, created_at, updated_at FROM documents WHERE collection = ? ORDER BY path`, c)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Snapshot, 0)
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// CollectionGroup streams rows. The single connection is held until
// iteration ends, so the caller must not write to the store from inside the loop.
func (s *sqliteStore) CollectionGroup(ctx context.Context, group string) iter.Seq2[Snapshot, error] {
	return func(yield func(Snapshot, error) bool) {
		rows, err := s.db.QueryContext(ctx,
			`SELECT path, collection, doc_id, data, created_at, updated_at FROM documents WHERE group_name = ? ORDER BY path`, group)
		if err != nil {
			yield(Snapshot{}, err)
			return
		}
		defer rows.Close()
		for rows.Next() {
			snap, err := scanSnapshot(rows)
			if !yield(snap, err) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Snapshot{}, err)
		}
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(r rowScanner) (Snapshot, error) {
	var (
		snap             Snapshot
		raw              string
		created, updated string
	)
	if err := r.Scan(&snap.Path, &snap.Collection, &snap.ID, &raw, &created, &updated); err != nil {
		return Snapshot{}, err
	}
	snap.Data, snap.Err = decodeBody(snap.Path, []byte(raw))
	snap.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	snap.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return snap, nil
}
