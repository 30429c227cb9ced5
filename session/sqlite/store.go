// Package sqlite implements session.Store on a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/MrEthical07/goOnboard/internal/sqlitemigrate"
	"github.com/MrEthical07/goOnboard/session"
	"github.com/MrEthical07/goOnboard/session/sqlite/migrations"
	_ "modernc.org/sqlite"
)

const updateMaxRetries = 4

const selectColumns = `
id, display_name, email, created_at, updated_at, completed_at, origin, data_consent,
verification_code, verification_attempts, max_verification_attempts, verification_expires_at,
is_email_verified, resend_attempts, max_resend_attempts, last_resend_at, version`

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store persists onboarding sessions in the onboarding_sessions table.
type Store struct {
	sqlDB *sql.DB
}

var _ session.Store = (*Store)(nil)

// Open opens (or creates) the database at path and applies bundled migrations.
// The special path ":memory:" opens a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("storage path is required")
	}

	dsn := ":memory:"
	if path != ":memory:" {
		dsn = "file:" + filepath.Clean(path) +
			"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer keeps immediate transactions from tripping over SQLITE_BUSY
	// and keeps :memory: databases on a single connection.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlitemigrate.Apply(ctx, sqlDB, migrations.FS, "."); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{sqlDB: sqlDB}, nil
}

// DB returns the raw database handle.
func (s *Store) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.sqlDB
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Create inserts rec unless a row with the same id already exists.
func (s *Store) Create(ctx context.Context, rec *session.Record) error {
	if err := rec.CheckInvariants(); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO onboarding_sessions (`+selectColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
ON CONFLICT(id) DO NOTHING`, recordArgs(rec)...)
	if err != nil {
		return fmt.Errorf("%w: %v", session.ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", session.ErrUnavailable, err)
	}
	if n == 0 {
		return session.ErrExists
	}
	rec.Version = 1
	return nil
}

// Get loads the record for id.
func (s *Store) Get(ctx context.Context, id string) (*session.Record, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM onboarding_sessions WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, session.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", session.ErrUnavailable, err)
	}
	return rec, nil
}

// Exists reports whether a row is stored for id.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var found int
	err := s.sqlDB.QueryRowContext(ctx, `SELECT 1 FROM onboarding_sessions WHERE id = ?`, id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", session.ErrUnavailable, err)
	}
	return true, nil
}

// Update reads the row inside a write transaction, applies fn, and commits
// with a version check.
func (s *Store) Update(ctx context.Context, id string, fn session.UpdateFunc) (*session.Record, error) {
	for attempt := 0; attempt < updateMaxRetries; attempt++ {
		rec, retry, err := s.updateOnce(ctx, id, fn)
		if retry {
			continue
		}
		return rec, err
	}
	return nil, session.ErrConflict
}

func (s *Store) updateOnce(ctx context.Context, id string, fn session.UpdateFunc) (*session.Record, bool, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", session.ErrUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanRecord(tx.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM onboarding_sessions WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, session.ErrNotFound
		}
		return nil, false, fmt.Errorf("%w: %v", session.ErrUnavailable, err)
	}

	working := current.Clone()
	action, err := fn(working)
	if err != nil {
		return nil, false, err
	}

	var res sql.Result
	switch action {
	case session.ActionNone:
		return current, false, nil
	case session.ActionDelete:
		res, err = tx.ExecContext(ctx, `DELETE FROM onboarding_sessions WHERE id = ? AND version = ?`, id, current.Version)
		working = nil
	case session.ActionSave:
		working.ID = current.ID
		working.Version = current.Version + 1
		if err := working.CheckInvariants(); err != nil {
			return nil, false, err
		}
		res, err = tx.ExecContext(ctx, `
UPDATE onboarding_sessions SET
    display_name = ?, email = ?, updated_at = ?, completed_at = ?, origin = ?, data_consent = ?,
    verification_code = ?, verification_attempts = ?, max_verification_attempts = ?,
    verification_expires_at = ?, is_email_verified = ?, resend_attempts = ?,
    max_resend_attempts = ?, last_resend_at = ?, version = ?
WHERE id = ? AND version = ?`,
			working.DisplayName, nullString(working.Email), toMillis(working.UpdatedAt),
			nullMillis(working.CompletedAt), working.Origin, working.DataConsent,
			nullString(working.VerificationCode), working.VerificationAttempts,
			working.MaxVerificationAttempts, nullMillis(working.VerificationExpiresAt),
			working.EmailVerified, working.ResendAttempts, working.MaxResendAttempts,
			nullMillis(working.LastResendAt), working.Version,
			id, current.Version,
		)
	default:
		return nil, false, fmt.Errorf("unknown update action %d", action)
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", session.ErrUnavailable, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", session.ErrUnavailable, err)
	}
	if n == 0 {
		return nil, true, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("%w: %v", session.ErrUnavailable, err)
	}
	return working, false, nil
}

// Delete removes the row for id. Deleting a missing row is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM onboarding_sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("%w: %v", session.ErrUnavailable, err)
	}
	return nil
}

// SweepExpired clears verification codes whose expiry is before now and
// returns how many rows were touched.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.sqlDB.ExecContext(ctx, `
UPDATE onboarding_sessions
SET verification_code = NULL, verification_expires_at = NULL, updated_at = ?, version = version + 1
WHERE verification_expires_at IS NOT NULL AND verification_expires_at < ?`,
		toMillis(now), toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", session.ErrUnavailable, err)
	}
	return res.RowsAffected()
}

// PurgeAbandoned deletes unfinished sessions created before cutoff.
func (s *Store) PurgeAbandoned(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM onboarding_sessions WHERE completed_at IS NULL AND created_at < ?`, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", session.ErrUnavailable, err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*session.Record, error) {
	var (
		rec                                session.Record
		email, code                        sql.NullString
		createdAt, updatedAt               int64
		completedAt, expiresAt, lastResend sql.NullInt64
	)
	err := row.Scan(
		&rec.ID, &rec.DisplayName, &email, &createdAt, &updatedAt, &completedAt, &rec.Origin,
		&rec.DataConsent, &code, &rec.VerificationAttempts, &rec.MaxVerificationAttempts,
		&expiresAt, &rec.EmailVerified, &rec.ResendAttempts, &rec.MaxResendAttempts,
		&lastResend, &rec.Version,
	)
	if err != nil {
		return nil, err
	}
	rec.Email = email.String
	rec.VerificationCode = code.String
	rec.CreatedAt = fromMillis(createdAt)
	rec.UpdatedAt = fromMillis(updatedAt)
	rec.CompletedAt = fromNullMillis(completedAt)
	rec.VerificationExpiresAt = fromNullMillis(expiresAt)
	rec.LastResendAt = fromNullMillis(lastResend)
	return &rec, nil
}

func recordArgs(rec *session.Record) []any {
	return []any{
		rec.ID, rec.DisplayName, nullString(rec.Email), toMillis(rec.CreatedAt), toMillis(rec.UpdatedAt),
		nullMillis(rec.CompletedAt), rec.Origin, rec.DataConsent, nullString(rec.VerificationCode),
		rec.VerificationAttempts, rec.MaxVerificationAttempts, nullMillis(rec.VerificationExpiresAt),
		rec.EmailVerified, rec.ResendAttempts, rec.MaxResendAttempts, nullMillis(rec.LastResendAt),
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullMillis(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(t), Valid: true}
}

func fromNullMillis(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return fromMillis(v.Int64)
}
