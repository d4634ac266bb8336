package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/codespace/internal/domain"
	"github.com/ashureev/codespace/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	appendRetries   = 3
	appendBaseDelay = 50 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL for concurrent readers; immediate transactions so appenders
	// take the write lock up front instead of failing on upgrade.
	dsn := "file:" + dbPath +
		"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS session_meta (
		session_id TEXT PRIMARY KEY,
		current_version INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS versions (
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		content_hash TEXT NOT NULL,
		source_ref TEXT NOT NULL,
		compiled_ref TEXT NOT NULL,
		html_ref TEXT NOT NULL,
		css_ref TEXT NOT NULL,
		compile_error TEXT,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, seq)
	) WITHOUT ROWID;
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// AppendVersion stores rec as the next version of its session.
func (s *SQLiteStore) AppendVersion(ctx context.Context, rec *VersionRecord, expectedPrev int64) (int64, error) {
	var seq int64
	err := shared.Retry(ctx, appendRetries, appendBaseDelay, "append_version", func() error {
		var err error
		seq, err = s.appendOnce(ctx, rec, expectedPrev)
		return err
	})
	if err != nil {
		return 0, err
	}
	return seq, nil
}

func (s *SQLiteStore) appendOnce(ctx context.Context, rec *VersionRecord, expectedPrev int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin append: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.Warn("Failed to roll back append", "session_id", rec.SessionID, "error", rbErr)
		}
	}()

	var current int64
	err = tx.QueryRowContext(ctx,
		`SELECT current_version FROM session_meta WHERE session_id = ?`, rec.SessionID,
	).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("read current version: %w", err)
	}
	if current != expectedPrev {
		slog.Warn("Version append rejected", "session_id", rec.SessionID, "expected", expectedPrev, "current", current)
		return 0, fmt.Errorf("%w: expected %d, current %d", ErrVersionConflict, expectedPrev, current)
	}

	next := current + 1
	refs, err := encodeRefs(rec.Refs)
	if err != nil {
		return 0, err
	}
	var compileErr interface{}
	if rec.CompileError != nil {
		compileErr = rec.CompileError.Diagnostics
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO versions (session_id, seq, content_hash, source_ref, compiled_ref, html_ref, css_ref, compile_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, next, rec.Hash, refs[0], refs[1], refs[2], refs[3], compileErr, createdAt.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert version: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO session_meta (session_id, current_version, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			current_version = excluded.current_version,
			updated_at = excluded.updated_at`,
		rec.SessionID, next, createdAt.UnixNano(), createdAt.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("advance current version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit append: %w", err)
	}
	return next, nil
}

// GetVersion retrieves one version record.
func (s *SQLiteStore) GetVersion(ctx context.Context, sessionID string, seq int64) (*VersionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, seq, content_hash, source_ref, compiled_ref, html_ref, css_ref, compile_error, created_at
		FROM versions WHERE session_id = ? AND seq = ?`, sessionID, seq)
	return scanVersion(row)
}

// LatestVersion retrieves the record named by the current pointer.
func (s *SQLiteStore) LatestVersion(ctx context.Context, sessionID string) (*VersionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT v.session_id, v.seq, v.content_hash, v.source_ref, v.compiled_ref, v.html_ref, v.css_ref, v.compile_error, v.created_at
		FROM session_meta m
		JOIN versions v ON v.session_id = m.session_id AND v.seq = m.current_version
		WHERE m.session_id = ?`, sessionID)
	return scanVersion(row)
}

// GetSessionMeta retrieves the current pointer for a session.
func (s *SQLiteStore) GetSessionMeta(ctx context.Context, sessionID string) (*SessionMeta, error) {
	var meta SessionMeta
	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, current_version, created_at, updated_at FROM session_meta WHERE session_id = ?`,
		sessionID,
	).Scan(&meta.SessionID, &meta.CurrentVersion, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session meta: %w", err)
	}
	meta.CreatedAt = time.Unix(0, createdAt)
	meta.UpdatedAt = time.Unix(0, updatedAt)
	return &meta, nil
}

func scanVersion(row *sql.Row) (*VersionRecord, error) {
	var rec VersionRecord
	var refs [4]string
	var compileErr sql.NullString
	var createdAt int64

	err := row.Scan(
		&rec.SessionID, &rec.Seq, &rec.Hash,
		&refs[0], &refs[1], &refs[2], &refs[3],
		&compileErr, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan version row: %w", err)
	}

	rec.Refs, err = decodeRefs(refs)
	if err != nil {
		return nil, err
	}
	if compileErr.Valid {
		rec.CompileError = &domain.CompileError{Diagnostics: compileErr.String}
	}
	rec.CreatedAt = time.Unix(0, createdAt)
	return &rec, nil
}

func encodeRefs(a domain.Artifacts) ([4]string, error) {
	var out [4]string
	for i, ref := range []domain.ArtifactRef{a.Source, a.Compiled, a.HTML, a.CSS} {
		data, err := json.Marshal(ref)
		if err != nil {
			return out, fmt.Errorf("encode artifact ref: %w", err)
		}
		out[i] = string(data)
	}
	return out, nil
}

func decodeRefs(raw [4]string) (domain.Artifacts, error) {
	var refs [4]domain.ArtifactRef
	for i := range raw {
		if err := json.Unmarshal([]byte(raw[i]), &refs[i]); err != nil {
			return domain.Artifacts{}, fmt.Errorf("decode artifact ref: %w", err)
		}
	}
	return domain.Artifacts{Source: refs[0], Compiled: refs[1], HTML: refs[2], CSS: refs[3]}, nil
}
