// Package models contains shared data models used across the labubify codebase.
package models

import "time"

// PredictionStatus is the lifecycle state of a remote prediction.
type PredictionStatus string

const (
	PredictionStarting   PredictionStatus = "starting"
	PredictionProcessing PredictionStatus = "processing"
	PredictionSucceeded  PredictionStatus = "succeeded"
	PredictionFailed     PredictionStatus = "failed"
	PredictionCanceled   PredictionStatus = "canceled"
)

// Terminal reports whether no further transitions can occur from s.
// Unknown values are treated as terminal so a poll loop never spins on them.
func (s PredictionStatus) Terminal() bool {
	switch s {
	case PredictionStarting, PredictionProcessing:
		return false
	default:
		return true
	}
}

// Prediction is a unit of asynchronous work on the remote image-generation
// service. It is created by the create call and only ever mutated remotely.
type Prediction struct {
	ID          string           `json:"id"`
	Version     string           `json:"version,omitempty"`
	Status      PredictionStatus `json:"status"`
	Output      []string         `json:"output,omitempty"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   *time.Time       `json:"created_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// FirstOutput returns the first output reference, or "" when there is none.
func (p *Prediction) FirstOutput() string {
	if p == nil || len(p.Output) == 0 {
		return ""
	}
	return p.Output[0]
}
