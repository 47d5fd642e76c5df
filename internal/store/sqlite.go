// Package store persists submissions and their samples to SQLite.
// Structured payloads are stored as JSON blobs next to the queryable
// identity columns.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/seqbench/lab-intake/internal/domain"
)

var (
	// ErrNotFound reports a lookup for a submission that does not exist.
	ErrNotFound = errors.New("submission not found")

	// ErrDuplicateHash reports an insert that collides with the content
	// hash of an existing non-forced submission.
	ErrDuplicateHash = errors.New("submission with identical content already exists")
)

const schema = `
CREATE TABLE IF NOT EXISTS submissions (
	id             TEXT PRIMARY KEY,
	content_hash   TEXT NOT NULL,
	force_imported INTEGER NOT NULL DEFAULT 0,
	metadata       BLOB NOT NULL,
	source         BLOB NOT NULL,
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_submissions_content_hash
	ON submissions(content_hash) WHERE force_imported = 0;

CREATE TABLE IF NOT EXISTS samples (
	id            TEXT PRIMARY KEY,
	submission_id TEXT NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
	position      INTEGER NOT NULL,
	payload       BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_samples_submission
	ON samples(submission_id);
`

// Store is a SQLite-backed submission repository. A single pooled
// connection keeps pragma state consistent and serializes writers.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens (and if needed creates) the database at path. Pass
// ":memory:" for an ephemeral store.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "lab-intake.db"
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
				return nil, fmt.Errorf("create dirs: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// SaveSubmission writes a submission and all of its samples in one
// transaction, replacing any previous sample set. Inserting a second
// non-forced submission with the same content hash fails with
// ErrDuplicateHash.
func (s *Store) SaveSubmission(ctx context.Context, submission *domain.Submission) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	metadata, err := json.Marshal(submission.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	source, err := json.Marshal(submission.Source)
	if err != nil {
		return fmt.Errorf("encode source: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	forceImported := 0
	if submission.ForceImported {
		forceImported = 1
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO submissions(id, content_hash, force_imported, metadata, source, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			content_hash = excluded.content_hash,
			force_imported = excluded.force_imported,
			metadata = excluded.metadata,
			source = excluded.source,
			updated_at = excluded.updated_at`,
		submission.ID, submission.Source.ContentHash, forceImported,
		metadata, source,
		submission.CreatedAt.UTC().Format(time.RFC3339Nano),
		submission.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		if isUniqueViolation(err) {
			retErr = ErrDuplicateHash
			return retErr
		}
		retErr = fmt.Errorf("upsert submission: %w", err)
		return retErr
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM samples WHERE submission_id = ?`, submission.ID); err != nil {
		retErr = fmt.Errorf("clear samples: %w", err)
		return retErr
	}

	for position, sample := range submission.Samples {
		payload, err := json.Marshal(sample)
		if err != nil {
			retErr = fmt.Errorf("encode sample %s: %w", sample.ID, err)
			return retErr
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO samples(id, submission_id, position, payload) VALUES(?,?,?,?)`,
			sample.ID, submission.ID, position, payload); err != nil {
			retErr = fmt.Errorf("insert sample %s: %w", sample.ID, err)
			return retErr
		}
	}

	return tx.Commit()
}

// GetSubmission loads one submission with its samples.
func (s *Store) GetSubmission(ctx context.Context, id string) (*domain.Submission, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content_hash, force_imported, metadata, source, created_at, updated_at
		FROM submissions WHERE id = ?`, id)
	return s.scanSubmission(ctx, row)
}

// FindByContentHash locates the canonical (non-forced) submission for
// a document hash, used for idempotent re-ingestion.
func (s *Store) FindByContentHash(ctx context.Context, hash string) (*domain.Submission, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content_hash, force_imported, metadata, source, created_at, updated_at
		FROM submissions WHERE content_hash = ? AND force_imported = 0`, hash)
	return s.scanSubmission(ctx, row)
}

// ListQuery narrows and pages a submission listing. The zero value
// lists everything: no filter, no limit.
type ListQuery struct {
	// Search is a case-insensitive substring match against the stored
	// identifier and requester.
	Search string
	Limit  int
	Offset int
}

// ListSubmissions returns submissions with samples, newest first,
// narrowed and paged by query.
func (s *Store) ListSubmissions(ctx context.Context, query ListQuery) ([]*domain.Submission, error) {
	stmt := `
		SELECT id, content_hash, force_imported, metadata, source, created_at, updated_at
		FROM submissions`
	var args []any
	if query.Search != "" {
		stmt += `
		WHERE json_extract(metadata, '$.identifier') LIKE ?
		   OR json_extract(metadata, '$.requester') LIKE ?`
		pattern := "%" + query.Search + "%"
		args = append(args, pattern, pattern)
	}
	stmt += `
		ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	limit := query.Limit
	if limit <= 0 {
		limit = -1 // no limit
	}
	args = append(args, limit, query.Offset)

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select submissions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var submissions []*domain.Submission
	for rows.Next() {
		submission, err := scanSubmissionRow(rows)
		if err != nil {
			return nil, err
		}
		submissions = append(submissions, submission)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, submission := range submissions {
		if err := s.loadSamples(ctx, submission); err != nil {
			return nil, err
		}
	}
	return submissions, nil
}

// DeleteSubmission removes a submission; the samples go with it via
// the cascade.
func (s *Store) DeleteSubmission(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM submissions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete submission: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountSubmissions returns the number of stored submissions.
func (s *Store) CountSubmissions(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM submissions`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count submissions: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanSubmission(ctx context.Context, row *sql.Row) (*domain.Submission, error) {
	submission, err := scanSubmissionRow(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadSamples(ctx, submission); err != nil {
		return nil, err
	}
	return submission, nil
}

func scanSubmissionRow(row rowScanner) (*domain.Submission, error) {
	var (
		submission    domain.Submission
		contentHash   string
		forceImported int
		metadata      []byte
		source        []byte
		createdAt     string
		updatedAt     string
	)
	err := row.Scan(&submission.ID, &contentHash, &forceImported,
		&metadata, &source, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan submission: %w", err)
	}

	if err := json.Unmarshal(metadata, &submission.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if err := json.Unmarshal(source, &submission.Source); err != nil {
		return nil, fmt.Errorf("decode source: %w", err)
	}
	submission.ForceImported = forceImported != 0

	if submission.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if submission.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &submission, nil
}

func (s *Store) loadSamples(ctx context.Context, submission *domain.Submission) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM samples WHERE submission_id = ? ORDER BY position`,
		submission.ID)
	if err != nil {
		return fmt.Errorf("select samples: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return fmt.Errorf("scan sample: %w", err)
		}
		var sample domain.Sample
		if err := json.Unmarshal(payload, &sample); err != nil {
			return fmt.Errorf("decode sample: %w", err)
		}
		submission.Samples = append(submission.Samples, &sample)
	}
	return rows.Err()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
