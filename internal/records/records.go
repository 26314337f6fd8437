package records

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"locker/internal/assets"

	_ "github.com/mattn/go-sqlite3"
)

var (
	//go:embed migrations
	migrationsFS embed.FS
)

// ErrNotFound is returned when no record matches.
var ErrNotFound = errors.New("record not found")

// Asset is the persisted description of a committed asset.
type Asset struct {
	ID           int64     `json:"id"`
	EntityType   string    `json:"entityType"`
	EntityID     string    `json:"entityId"`
	DocumentType string    `json:"documentType"`
	FilePath     string    `json:"filePath"`
	FileURL      string    `json:"fileUrl"`
	FileSize     int64     `json:"fileSize"`
	MimeType     string    `json:"mimeType"`
	OriginalName string    `json:"originalName"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Store keeps asset records and the entity registry in sqlite.
type Store struct {
	db *sql.DB
}

// initSchema applies every SQL file in the embedded migrations directory in
// lexicographical order. Migrations must be idempotent.
func initSchema(ctx context.Context, db *sql.DB) error {
	return fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		content, readError := migrationsFS.ReadFile(path)
		if readError != nil {
			return fmt.Errorf("error reading SQL file: %w", readError)
		}

		slog.Debug("Running migration", "path", path)
		if _, execError := db.ExecContext(ctx, string(content)); execError != nil {
			return fmt.Errorf("migration %s: %w", path, execError)
		}
		return nil
	})
}

// Open opens (creating if needed) the sqlite database at dbPath and applies
// the schema.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, errors.New("database path must not be empty")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// sqlite serializes writers anyway; a single connection avoids
	// SQLITE_BUSY under concurrent uploads.
	db.SetMaxOpenConns(1)

	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Insert persists a record and returns it with ID and CreatedAt set.
func (s *Store) Insert(ctx context.Context, a Asset) (Asset, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO assets (entity_type, entity_id, document_type, file_path, file_url, file_size, mime_type, original_name, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.EntityType, a.EntityID, a.DocumentType, a.FilePath, a.FileURL, a.FileSize, a.MimeType, a.OriginalName, a.CreatedAt,
	)
	if err != nil {
		return Asset{}, fmt.Errorf("insert asset record: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Asset{}, fmt.Errorf("insert asset record: %w", err)
	}
	a.ID = id
	return a, nil
}

// ListByEntity returns the records owned by ref, oldest first.
func (s *Store) ListByEntity(ctx context.Context, ref assets.EntityRef) ([]Asset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, entity_type, entity_id, document_type, file_path, file_url, file_size, mime_type, original_name, created_at
		 FROM assets WHERE entity_type = ? AND entity_id = ? ORDER BY created_at, id`,
		string(ref.Kind), ref.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("list asset records: %w", err)
	}
	defer rows.Close()

	out := []Asset{}
	for rows.Next() {
		var a Asset
		if err := rows.Scan(&a.ID, &a.EntityType, &a.EntityID, &a.DocumentType, &a.FilePath, &a.FileURL, &a.FileSize, &a.MimeType, &a.OriginalName, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan asset record: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list asset records: %w", err)
	}
	return out, nil
}

// GetByPath returns the record for a committed relative path.
func (s *Store) GetByPath(ctx context.Context, filePath string) (Asset, error) {
	var a Asset
	err := s.db.QueryRowContext(ctx,
		`SELECT id, entity_type, entity_id, document_type, file_path, file_url, file_size, mime_type, original_name, created_at
		 FROM assets WHERE file_path = ?`,
		filePath,
	).Scan(&a.ID, &a.EntityType, &a.EntityID, &a.DocumentType, &a.FilePath, &a.FileURL, &a.FileSize, &a.MimeType, &a.OriginalName, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Asset{}, ErrNotFound
	}
	if err != nil {
		return Asset{}, fmt.Errorf("lookup asset record: %w", err)
	}
	return a, nil
}

// DeleteByPath removes the record for filePath. Deleting a path without a
// record is not an error; files may predate the record store.
func (s *Store) DeleteByPath(ctx context.Context, filePath string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM assets WHERE file_path = ?`, filePath); err != nil {
		return fmt.Errorf("delete asset record: %w", err)
	}
	return nil
}

// RegisterEntity records that an entity exists. Registering an existing
// entity updates its display name.
func (s *Store) RegisterEntity(ctx context.Context, ref assets.EntityRef, displayName string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entities (kind, id, display_name) VALUES (?, ?, ?)
		 ON CONFLICT (kind, id) DO UPDATE SET display_name = excluded.display_name`,
		string(ref.Kind), ref.ID, displayName,
	)
	if err != nil {
		return fmt.Errorf("register entity: %w", err)
	}
	return nil
}

// Exists reports whether ref has been registered.
func (s *Store) Exists(ctx context.Context, ref assets.EntityRef) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entities WHERE kind = ? AND id = ?`,
		string(ref.Kind), ref.ID,
	).Scan(&count); err != nil {
		return false, fmt.Errorf("lookup entity: %w", err)
	}
	return count > 0, nil
}
