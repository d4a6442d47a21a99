package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"consentry/internal/dsr/models"
	"consentry/internal/sentinel"
	id "consentry/pkg/domain"
)

// PostgresStore persists data subject requests in PostgreSQL so in-flight
// requests survive a restart. Status transitions go through UpdateFrom,
// which guards on the stored status.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed request store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const requestColumns = `request_id, request_type, subject_id, requester_id, status,
	notes, corrections, submitted_at, due_date, completed_at, last_warned_at,
	attempts, result, rejection_reason`

func (s *PostgresStore) Save(ctx context.Context, req *models.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	corrections, result, err := marshalRequestJSON(req)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO dsr_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = s.db.ExecContext(ctx, query,
		string(req.ID),
		string(req.Type),
		string(req.SubjectID),
		string(req.RequesterID),
		string(req.Status),
		req.Notes,
		corrections,
		req.SubmittedAt,
		req.DueDate,
		req.CompletedAt,
		req.LastWarnedAt,
		req.Attempts,
		result,
		req.RejectionReason,
	)
	if err != nil {
		if isRequestIDTaken(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("save request: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, req *models.Request) error {
	res, err := s.exec(ctx, req, updateRequestQuery, nil)
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateFrom(ctx context.Context, req *models.Request, expected models.Status) error {
	res, err := s.exec(ctx, req, updateRequestQuery+` AND status = $10`, []any{string(expected)})
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	if n == 0 {
		return s.classifyUpdateMiss(ctx, req.ID)
	}
	return nil
}

const updateRequestQuery = `
	UPDATE dsr_requests
	SET status = $2, notes = $3, corrections = $4, completed_at = $5,
		last_warned_at = $6, attempts = $7, result = $8, rejection_reason = $9
	WHERE request_id = $1`

func (s *PostgresStore) exec(ctx context.Context, req *models.Request, query string, extra []any) (sql.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	corrections, result, err := marshalRequestJSON(req)
	if err != nil {
		return nil, err
	}
	args := []any{
		string(req.ID),
		string(req.Status),
		req.Notes,
		corrections,
		req.CompletedAt,
		req.LastWarnedAt,
		req.Attempts,
		result,
		req.RejectionReason,
	}
	return s.db.ExecContext(ctx, query, append(args, extra...)...)
}

// classifyUpdateMiss distinguishes a missing request from a lost status race.
func (s *PostgresStore) classifyUpdateMiss(ctx context.Context, requestID id.RequestID) error {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dsr_requests WHERE request_id = $1`, string(requestID),
	).Scan(&n)
	if err != nil {
		return fmt.Errorf("classify update miss: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrConflict
}

func (s *PostgresStore) FindByID(ctx context.Context, requestID id.RequestID) (*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM dsr_requests WHERE request_id = $1`
	req, err := scanRequest(s.db.QueryRowContext(ctx, query, string(requestID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, err
	}
	return req, nil
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subjectID id.SubjectID) ([]*models.Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM dsr_requests
		WHERE subject_id = $1
		ORDER BY submitted_at ASC, request_id ASC
	`
	return s.list(ctx, query, string(subjectID))
}

func (s *PostgresStore) ListOpen(ctx context.Context) ([]*models.Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM dsr_requests
		WHERE status IN ($1, $2)
		ORDER BY submitted_at ASC, request_id ASC
	`
	return s.list(ctx, query, string(models.StatusPending), string(models.StatusProcessing))
}

func (s *PostgresStore) ListPending(ctx context.Context, limit int) ([]*models.Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM dsr_requests
		WHERE status = $1
		ORDER BY submitted_at ASC, request_id ASC
	`
	args := []any{string(models.StatusPending)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	return s.list(ctx, query, args...)
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.Request, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var out []*models.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

type requestScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row requestScanner) (*models.Request, error) {
	var req models.Request
	var corrections, result []byte
	err := row.Scan(
		&req.ID,
		&req.Type,
		&req.SubjectID,
		&req.RequesterID,
		&req.Status,
		&req.Notes,
		&corrections,
		&req.SubmittedAt,
		&req.DueDate,
		&req.CompletedAt,
		&req.LastWarnedAt,
		&req.Attempts,
		&result,
		&req.RejectionReason,
	)
	if err != nil {
		return nil, err
	}
	if len(corrections) > 0 {
		if err := json.Unmarshal(corrections, &req.Corrections); err != nil {
			return nil, fmt.Errorf("decode corrections: %w", err)
		}
	}
	if len(result) > 0 {
		if err := json.Unmarshal(result, &req.Result); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
	}
	return &req, nil
}

// marshalRequestJSON encodes the two document-shaped fields; both columns
// stay NULL when unset.
func marshalRequestJSON(req *models.Request) ([]byte, []byte, error) {
	var corrections, result []byte
	var err error
	if req.Corrections != nil {
		if corrections, err = json.Marshal(req.Corrections); err != nil {
			return nil, nil, fmt.Errorf("encode corrections: %w", err)
		}
	}
	if req.Result != nil {
		if result, err = json.Marshal(req.Result); err != nil {
			return nil, nil, fmt.Errorf("encode result: %w", err)
		}
	}
	return corrections, result, nil
}

// isRequestIDTaken reports PostgreSQL class 23505 on the primary key.
func isRequestIDTaken(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
