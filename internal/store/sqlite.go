package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/i474232898/gdelt-news-cache/internal/logging"
	"github.com/i474232898/gdelt-news-cache/internal/news"
	"github.com/i474232898/gdelt-news-cache/internal/table"
)

// SQLite keeps namespaces, entries and datasets in one database file.
type SQLite struct {
	readDB  *sql.DB
	writeDB *sql.DB
	logger  *slog.Logger
}

var _ news.Backend = (*SQLite)(nil)

// OpenSQLite opens or creates the database at dbPath.
func OpenSQLite(dbPath string, logger *slog.Logger) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), dirPerm); err != nil {
		return nil, fmt.Errorf("creating database dir: %w", err)
	}

	writeDB, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening write db: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	readDB, err := sql.Open("sqlite", dbPath+"?mode=ro&_pragma=busy_timeout(5000)")
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("opening read db: %w", err)
	}

	s := &SQLite{readDB: readDB, writeDB: writeDB, logger: logging.OrNop(logger)}
	if err := s.init(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) init() error {
	_, err := s.writeDB.Exec(`
		CREATE TABLE IF NOT EXISTS namespaces (
			hash       TEXT PRIMARY KEY,
			metadata   TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS entries (
			namespace TEXT NOT NULL,
			key       TEXT NOT NULL,
			body      TEXT NOT NULL,
			stored_at DATETIME NOT NULL,
			PRIMARY KEY (namespace, key)
		);

		CREATE TABLE IF NOT EXISTS datasets (
			namespace TEXT NOT NULL,
			name      TEXT NOT NULL,
			body      BLOB NOT NULL,
			stored_at DATETIME NOT NULL,
			PRIMARY KEY (namespace, name)
		);
	`)
	if err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

// Close releases both connections.
func (s *SQLite) Close() error {
	return errors.Join(s.readDB.Close(), s.writeDB.Close())
}

func (s *SQLite) CreateNamespace(ctx context.Context, hash string, meta news.Metadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	_, err = s.writeDB.ExecContext(ctx, `
		INSERT INTO namespaces (hash, metadata, created_at) VALUES (?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET metadata = excluded.metadata
	`, hash, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: create namespace %s: %w", news.ErrStorageIO, hash, err)
	}
	return nil
}

func (s *SQLite) Put(ctx context.Context, namespace, key string, entry *news.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = s.writeDB.ExecContext(ctx, `
		INSERT INTO entries (namespace, key, body, stored_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET
			body = excluded.body,
			stored_at = excluded.stored_at
	`, namespace, key, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: put %s/%s: %w", news.ErrStorageIO, namespace, key, err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, namespace, key string) (*news.Entry, bool, error) {
	var body string
	err := s.readDB.QueryRowContext(ctx,
		`SELECT body FROM entries WHERE namespace = ? AND key = ?`, namespace, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: get %s/%s: %w", news.ErrStorageIO, namespace, key, err)
	}
	entry, err := news.DecodeEntry([]byte(body), key)
	if err != nil {
		s.logger.Warn("ignoring corrupt entry", "namespace", namespace, "key", key, "err", err)
		return nil, false, nil
	}
	return entry, true, nil
}

// List reads namespaces in creation order.
func (s *SQLite) List(ctx context.Context) iter.Seq2[news.Metadata, error] {
	return func(yield func(news.Metadata, error) bool) {
		rows, err := s.readDB.QueryContext(ctx, `SELECT hash, metadata FROM namespaces ORDER BY created_at, hash`)
		if err != nil {
			yield(news.Metadata{}, fmt.Errorf("%w: list namespaces: %w", news.ErrStorageIO, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var hash, data string
			if err := rows.Scan(&hash, &data); err != nil {
				yield(news.Metadata{}, fmt.Errorf("%w: scan namespace: %w", news.ErrStorageIO, err))
				return
			}
			meta, err := decodeMetadata([]byte(data))
			if err != nil {
				s.logger.Warn("ignoring unreadable metadata", "namespace", hash, "err", err)
				continue
			}
			if !yield(meta, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(news.Metadata{}, fmt.Errorf("%w: list namespaces: %w", news.ErrStorageIO, err))
		}
	}
}

func (s *SQLite) SaveDataset(ctx context.Context, namespace, name string, t *table.Table) error {
	data, err := table.EncodeParquet(t)
	if err != nil {
		return fmt.Errorf("encode dataset %s: %w", name, err)
	}
	_, err = s.writeDB.ExecContext(ctx, `
		INSERT INTO datasets (namespace, name, body, stored_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace, name) DO UPDATE SET
			body = excluded.body,
			stored_at = excluded.stored_at
	`, namespace, name, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: save dataset %s/%s: %w", news.ErrStorageIO, namespace, name, err)
	}
	return nil
}

func (s *SQLite) LoadDataset(ctx context.Context, namespace, name string) (*table.Table, error) {
	var data []byte
	err := s.readDB.QueryRowContext(ctx,
		`SELECT body FROM datasets WHERE namespace = ? AND name = ?`, namespace, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("dataset %s/%s: %w", namespace, name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load dataset %s/%s: %w", news.ErrStorageIO, namespace, name, err)
	}
	t, err := table.DecodeParquet(data)
	if err != nil {
		return nil, fmt.Errorf("%w: dataset %s/%s: %v", news.ErrStorageCorrupt, namespace, name, err)
	}
	return t, nil
}
