package transform

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration means the relay has no Replicate credential.
	ErrConfiguration = errors.New("replicate credential not configured")
	// ErrNoImage means the request carried no image bytes.
	ErrNoImage = errors.New("no image supplied")
	// ErrPollTimeout means the prediction did not finish within the poll budget.
	ErrPollTimeout = errors.New("prediction did not finish in time")

	ErrUnknownPrediction = errors.New("unknown prediction")
	ErrStatusDisabled    = errors.New("prediction status cache disabled")
	ErrHistoryDisabled   = errors.New("transformation history disabled")

	ErrUnknownTransformation = errors.New("unknown transformation")
)

const (
	defaultUpstreamMessage   = "Replicate error"
	defaultGenerationMessage = "Image generation failed"
)

// UpstreamRejectedError is returned when Replicate refuses to create the
// prediction. StatusCode is Replicate's own status.
type UpstreamRejectedError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamRejectedError) Error() string {
	return fmt.Sprintf("upstream rejected prediction (status %d): %s", e.StatusCode, e.Message)
}

// GenerationFailedError is returned when a prediction reaches a terminal
// state other than succeeded, or succeeds without output.
type GenerationFailedError struct {
	PredictionID string
	Status       string
	Message      string
}

func (e *GenerationFailedError) Error() string {
	return fmt.Sprintf("prediction %s ended %s: %s", e.PredictionID, e.Status, e.Message)
}
