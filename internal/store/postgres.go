package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/labubify/pkg/models"
)

const transformationColumns = `id, prediction_id, status, output_url, error_message, content_type, input_bytes, polls, created_at, completed_at`

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) CreateTransformation(ctx context.Context, t *models.Transformation) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO transformations (`+transformationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.PredictionID, t.Status, t.OutputURL, t.ErrorMessage, t.ContentType,
		t.InputBytes, t.Polls, t.CreatedAt, t.CompletedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create transformation: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTransformation(ctx context.Context, id uuid.UUID) (*models.Transformation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+transformationColumns+` FROM transformations WHERE id = $1`, id)

	t, err := scanTransformation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transformation: %w", err)
	}
	return t, nil
}

// ListTransformations returns the most recent transformations first.
func (s *PostgresStore) ListTransformations(ctx context.Context, limit int) ([]*models.Transformation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+transformationColumns+` FROM transformations ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list transformations: %w", err)
	}
	defer rows.Close()

	out := []*models.Transformation{}
	for rows.Next() {
		t, err := scanTransformation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transformation: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransformation(row pgx.Row) (*models.Transformation, error) {
	var t models.Transformation
	err := row.Scan(&t.ID, &t.PredictionID, &t.Status, &t.OutputURL, &t.ErrorMessage,
		&t.ContentType, &t.InputBytes, &t.Polls, &t.CreatedAt, &t.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

var _ Store = (*PostgresStore)(nil)
