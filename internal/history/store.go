package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultLimit caps Recent when the caller asks for nothing specific.
const DefaultLimit = 20

var ErrNotFound = errors.New("detection not found")

// Fixed-width so that created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Entry is one persisted detection.
type Entry struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Label       string    `json:"label"`
	Probability float32   `json:"probability"`
	Smile       bool      `json:"smile"`
	ImageSHA1   string    `json:"image_sha1"`
	ModelDigest string    `json:"model_digest"`
	Preview     []byte    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS detections (
	id TEXT PRIMARY KEY,
	source TEXT,
	label TEXT NOT NULL,
	probability REAL NOT NULL,
	smile INTEGER NOT NULL,
	image_sha1 TEXT,
	model_digest TEXT,
	preview BLOB,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_detections_created_at ON detections(created_at);
CREATE INDEX IF NOT EXISTS idx_detections_image_sha1 ON detections(image_sha1);`

// Store keeps detections in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema. Use
// ":memory:" for a throwaway store.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// sqlite serialises writers anyway, and a single connection keeps an
	// in-memory database alive for the lifetime of the store.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to migrate history: %w", err), db.Close())
	}
	return &Store{db: db}, nil
}

func (s *Store) Save(ctx context.Context, e *Entry) error {
	if e == nil || e.ID == "" {
		return errors.New("history entry needs an id")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO detections (id, source, label, probability, smile, image_sha1, model_digest, preview, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Source, e.Label, e.Probability, e.Smile, e.ImageSHA1, e.ModelDigest, e.Preview,
		e.CreatedAt.UTC().Format(timeLayout))
	return err
}

func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, label, probability, smile, image_sha1, model_digest, preview, created_at
		 FROM detections WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// Recent lists the newest detections first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, label, probability, smile, image_sha1, model_digest, preview, created_at
		 FROM detections ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var (
		e                   Entry
		source, sha, digest sql.NullString
		createdAt           string
	)
	if err := row.Scan(&e.ID, &source, &e.Label, &e.Probability, &e.Smile, &sha, &digest, &e.Preview, &createdAt); err != nil {
		return nil, err
	}
	e.Source, e.ImageSHA1, e.ModelDigest = source.String, sha.String, digest.String

	created, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("bad created_at %q: %w", createdAt, err)
	}
	e.CreatedAt = created
	return &e, nil
}
