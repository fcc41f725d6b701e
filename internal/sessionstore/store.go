package sessionstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

var (
	// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
	ErrSchemaMismatch = errors.New("schema version mismatch")
	// ErrLocked reports that another process is transferring the same fingerprint.
	ErrLocked = errors.New("upload session locked by another transfer")
)

// Record is the local resume entry for one upload session.
type Record struct {
	Fingerprint string
	UploadURL   string
	Endpoint    string
	Bucket      string
	Object      string
	ContentType string
	SourcePath  string
	Size        int64
	Offset      int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Store indexes resumable upload sessions by fingerprint in SQLite and guards
// each fingerprint with a cross-process file lock.
type Store struct {
	db      *sql.DB
	path    string
	lockDir string
}

// Open initializes or connects to the session database at dbPath. Lock files
// live in lockDir.
func Open(dbPath, lockDir string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, errors.New("session db path required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure state directory: %w", err)
	}
	if lockDir == "" {
		lockDir = filepath.Join(filepath.Dir(dbPath), "locks")
	}
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure lock directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath, lockDir: lockDir}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (run 'callingest sessions prune --all' or delete %s)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

const recordColumns = "fingerprint, upload_url, endpoint, bucket, object_name, content_type, source_path, size_bytes, offset_bytes, created_at, updated_at"

// FindSession returns the record for fingerprint, or nil when none exists.
func (s *Store) FindSession(ctx context.Context, fingerprint string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM upload_sessions WHERE fingerprint = ?",
		fingerprint,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	return rec, nil
}

// SaveSession inserts or replaces the record keyed by its fingerprint.
func (s *Store) SaveSession(ctx context.Context, rec Record) error {
	if strings.TrimSpace(rec.Fingerprint) == "" {
		return errors.New("save session: fingerprint required")
	}
	if strings.TrimSpace(rec.UploadURL) == "" {
		return errors.New("save session: upload url required")
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO upload_sessions (`+recordColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(fingerprint) DO UPDATE SET
            upload_url = excluded.upload_url,
            endpoint = excluded.endpoint,
            bucket = excluded.bucket,
            object_name = excluded.object_name,
            content_type = excluded.content_type,
            source_path = excluded.source_path,
            size_bytes = excluded.size_bytes,
            offset_bytes = excluded.offset_bytes,
            updated_at = excluded.updated_at`,
		rec.Fingerprint,
		rec.UploadURL,
		rec.Endpoint,
		rec.Bucket,
		rec.Object,
		nullableString(rec.ContentType),
		nullableString(rec.SourcePath),
		rec.Size,
		rec.Offset,
		rec.CreatedAt.UTC().Format(timeLayout),
		now.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// UpdateOffset records the last acknowledged byte offset for fingerprint.
func (s *Store) UpdateOffset(ctx context.Context, fingerprint string, offset int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE upload_sessions SET offset_bytes = ?, updated_at = ? WHERE fingerprint = ?",
		offset,
		time.Now().UTC().Format(timeLayout),
		fingerprint,
	)
	if err != nil {
		return fmt.Errorf("update offset: %w", err)
	}
	return nil
}

// DeleteSession removes the record for fingerprint. Missing records are not an error.
func (s *Store) DeleteSession(ctx context.Context, fingerprint string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM upload_sessions WHERE fingerprint = ?", fingerprint); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// List returns every record, most recently updated first.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+recordColumns+" FROM upload_sessions ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return records, nil
}

// PruneBefore deletes records not updated since cutoff and returns how many were removed.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM upload_sessions WHERE updated_at < ?",
		cutoff.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	return res.RowsAffected()
}

// Lock acquires the cross-process transfer lock for fingerprint. It returns
// ErrLocked when another process holds it. The returned func releases the lock.
func (s *Store) Lock(fingerprint string) (func(), error) {
	name := sanitizeLockName(fingerprint)
	if name == "" {
		return nil, errors.New("lock: fingerprint required")
	}
	lock := flock.New(filepath.Join(s.lockDir, name+".lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, fingerprint)
	}
	return func() { _ = lock.Unlock() }, nil
}

func sanitizeLockName(fingerprint string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(fingerprint) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		rec         Record
		contentType sql.NullString
		sourcePath  sql.NullString
		createdRaw  string
		updatedRaw  string
	)
	if err := scanner.Scan(
		&rec.Fingerprint,
		&rec.UploadURL,
		&rec.Endpoint,
		&rec.Bucket,
		&rec.Object,
		&contentType,
		&sourcePath,
		&rec.Size,
		&rec.Offset,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	rec.ContentType = contentType.String
	rec.SourcePath = sourcePath.String
	rec.CreatedAt = parseTime(createdRaw)
	rec.UpdatedAt = parseTime(updatedRaw)
	return &rec, nil
}

func parseTime(raw string) time.Time {
	ts, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return ts
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
