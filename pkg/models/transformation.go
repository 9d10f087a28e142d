package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	TransformationSucceeded = "succeeded"
	TransformationFailed    = "failed"
)

// Transformation is the history record of one relay invocation.
// Only the outcome is kept; the uploaded image is never stored.
type Transformation struct {
	ID           uuid.UUID  `db:"id"            json:"id"`
	PredictionID string     `db:"prediction_id" json:"prediction_id,omitempty"`
	Status       string     `db:"status"        json:"status"`
	OutputURL    *string    `db:"output_url"    json:"output_url,omitempty"`
	ErrorMessage *string    `db:"error_message" json:"error_message,omitempty"`
	ContentType  string     `db:"content_type"  json:"content_type"`
	InputBytes   int64      `db:"input_bytes"   json:"input_bytes"`
	Polls        int        `db:"polls"         json:"polls"`
	CreatedAt    time.Time  `db:"created_at"    json:"created_at"`
	CompletedAt  *time.Time `db:"completed_at"  json:"completed_at,omitempty"`
}
