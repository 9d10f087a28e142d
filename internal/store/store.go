package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/labubify/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface for transformation history.
type Store interface {
	Ping(ctx context.Context) error
	CreateTransformation(ctx context.Context, t *models.Transformation) error
	GetTransformation(ctx context.Context, id uuid.UUID) (*models.Transformation, error)
	ListTransformations(ctx context.Context, limit int) ([]*models.Transformation, error)
}
