package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"consentry/internal/consent/models"
	"consentry/internal/sentinel"
	id "consentry/pkg/domain"
)

// PostgresStore persists the consent version ledger in PostgreSQL. Rows are
// append-only; the (consent_id, version) primary key backs the optimistic
// concurrency check.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

// NewPostgres constructs a PostgreSQL-backed consent store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresTx constructs a PostgreSQL-backed consent store bound to a transaction.
func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{tx: tx}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer() dbExecutor {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

const consentColumns = `consent_id, subject_id, consent_type, purposes, status,
	guardian_required, parent_guardian_id, granted_by, granted_at, expires_at,
	verification_method, verified_at, revoked_at, revoked_by, revocation_reason,
	denial_reason, version, created_at`

func (s *PostgresStore) Append(ctx context.Context, rec *models.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO consent_records (` + consentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			(SELECT COALESCE(MAX(version), 0) + 1 FROM consent_records
			 WHERE subject_id = $2 AND consent_type = $3),
			$17)
		RETURNING version
	`
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	err := s.execer().QueryRowContext(ctx, query,
		string(rec.ID),
		string(rec.SubjectID),
		string(rec.Type),
		joinPurposes(rec.Purposes),
		string(rec.Status),
		rec.GuardianRequired,
		nullString(string(rec.ParentGuardianID)),
		nullString(string(rec.GrantedBy)),
		rec.GrantedAt,
		rec.ExpiresAt,
		nullString(string(rec.VerificationMethod)),
		rec.VerifiedAt,
		rec.RevokedAt,
		nullString(string(rec.RevokedBy)),
		nullString(rec.RevocationReason),
		nullString(rec.DenialReason),
		rec.CreatedAt,
	).Scan(&rec.Version)
	if err != nil {
		return fmt.Errorf("append consent: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendVersion(ctx context.Context, rec *models.Record, expectedVersion int) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	// The insert only fires when the latest stored version still matches the
	// caller's expectation; zero rows means a concurrent writer won. Versions
	// are numbered over the whole (subject, type) history, matching Append.
	query := `
		INSERT INTO consent_records (` + consentColumns + `)
		SELECT $1, subject_id, consent_type, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16,
			(SELECT MAX(version) + 1 FROM consent_records
			 WHERE subject_id = $2 AND consent_type = $3),
			$17
		FROM consent_records
		WHERE consent_id = $1 AND version = $18
		  AND version = (SELECT MAX(version) FROM consent_records
		                 WHERE subject_id = $2 AND consent_type = $3 AND consent_id = $1)
		RETURNING version
	`
	err := s.execer().QueryRowContext(ctx, query,
		string(rec.ID),
		string(rec.SubjectID),
		string(rec.Type),
		joinPurposes(rec.Purposes),
		string(rec.Status),
		rec.GuardianRequired,
		nullString(string(rec.ParentGuardianID)),
		nullString(string(rec.GrantedBy)),
		rec.GrantedAt,
		rec.ExpiresAt,
		nullString(string(rec.VerificationMethod)),
		rec.VerifiedAt,
		rec.RevokedAt,
		nullString(string(rec.RevokedBy)),
		nullString(rec.RevocationReason),
		nullString(rec.DenialReason),
		time.Now(),
		expectedVersion,
	).Scan(&rec.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.classifyVersionMiss(ctx, rec.ID)
		}
		if isUniqueViolation(err) {
			// Both racers passed the guard; the primary key let one through.
			return sentinel.ErrConflict
		}
		return fmt.Errorf("append consent version: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is PostgreSQL class 23505, raised
// here when a concurrent appender claimed the (consent_id, version) slot.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// classifyVersionMiss distinguishes a missing record from a lost CAS race.
func (s *PostgresStore) classifyVersionMiss(ctx context.Context, consentID id.ConsentID) error {
	var n int
	err := s.execer().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM consent_records WHERE consent_id = $1`, string(consentID),
	).Scan(&n)
	if err != nil {
		return fmt.Errorf("classify version miss: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrConflict
}

func (s *PostgresStore) FindByID(ctx context.Context, consentID id.ConsentID) (*models.Record, error) {
	query := `
		SELECT ` + consentColumns + `
		FROM consent_records
		WHERE consent_id = $1
		ORDER BY version DESC
		LIMIT 1
	`
	return scanConsent(s.execer().QueryRowContext(ctx, query, string(consentID)))
}

func (s *PostgresStore) FindLatest(ctx context.Context, subjectID id.SubjectID, t models.Type) (*models.Record, error) {
	query := `
		SELECT ` + consentColumns + `
		FROM consent_records
		WHERE subject_id = $1 AND consent_type = $2
		ORDER BY version DESC
		LIMIT 1
	`
	return scanConsent(s.execer().QueryRowContext(ctx, query, string(subjectID), string(t)))
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subjectID id.SubjectID, filter *models.RecordFilter) ([]*models.Record, error) {
	query := `
		SELECT DISTINCT ON (consent_type) ` + consentColumns + `
		FROM consent_records
		WHERE subject_id = $1
		ORDER BY consent_type, version DESC
	`
	rows, err := s.execer().QueryContext(ctx, query, string(subjectID))
	if err != nil {
		return nil, fmt.Errorf("list consents: %w", err)
	}
	defer rows.Close()

	now := time.Now()
	var result []*models.Record
	for rows.Next() {
		rec, err := scanConsentRow(rows)
		if err != nil {
			return nil, err
		}
		if filter != nil {
			if filter.Type != nil && rec.Type != *filter.Type {
				continue
			}
			if filter.Status != nil && rec.ComputeStatus(now) != *filter.Status {
				continue
			}
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *PostgresStore) ListVersions(ctx context.Context, subjectID id.SubjectID, t models.Type) ([]*models.Record, error) {
	query := `
		SELECT ` + consentColumns + `
		FROM consent_records
		WHERE subject_id = $1 AND consent_type = $2
		ORDER BY version ASC
	`
	rows, err := s.execer().QueryContext(ctx, query, string(subjectID), string(t))
	if err != nil {
		return nil, fmt.Errorf("list consent versions: %w", err)
	}
	defer rows.Close()

	var result []*models.Record
	for rows.Next() {
		rec, err := scanConsentRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConsent(row *sql.Row) (*models.Record, error) {
	rec, err := scanConsentRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

func scanConsentRow(row rowScanner) (*models.Record, error) {
	var rec models.Record
	var purposes string
	var guardianID, grantedBy, method, revokedBy, revocationReason, denialReason sql.NullString
	err := row.Scan(
		&rec.ID,
		&rec.SubjectID,
		&rec.Type,
		&purposes,
		&rec.Status,
		&rec.GuardianRequired,
		&guardianID,
		&grantedBy,
		&rec.GrantedAt,
		&rec.ExpiresAt,
		&method,
		&rec.VerifiedAt,
		&rec.RevokedAt,
		&revokedBy,
		&revocationReason,
		&denialReason,
		&rec.Version,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Purposes = splitPurposes(purposes)
	rec.ParentGuardianID = id.ActorID(guardianID.String)
	rec.GrantedBy = id.ActorID(grantedBy.String)
	rec.VerificationMethod = models.VerificationMethod(method.String)
	rec.RevokedBy = id.ActorID(revokedBy.String)
	rec.RevocationReason = revocationReason.String
	rec.DenialReason = denialReason.String
	return &rec, nil
}

func joinPurposes(purposes []models.Purpose) string {
	parts := make([]string, len(purposes))
	for i, p := range purposes {
		parts[i] = string(p)
	}
	return strings.Join(parts, ",")
}

func splitPurposes(raw string) []models.Purpose {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	purposes := make([]models.Purpose, len(parts))
	for i, p := range parts {
		purposes[i] = models.Purpose(p)
	}
	return purposes
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
