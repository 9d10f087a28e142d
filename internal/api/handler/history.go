package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/labubify/internal/api/middleware"
	"github.com/kiranshivaraju/labubify/internal/api/response"
	"github.com/kiranshivaraju/labubify/internal/transform"
	"github.com/kiranshivaraju/labubify/pkg/models"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// StatusReader looks up the last known status of a prediction.
type StatusReader interface {
	PredictionStatus(ctx context.Context, predictionID string) (string, error)
}

// HistoryLister lists recent transformations.
type HistoryLister interface {
	History(ctx context.Context, limit int) ([]*models.Transformation, error)
}

// TransformationGetter fetches one recorded transformation.
type TransformationGetter interface {
	Transformation(ctx context.Context, id uuid.UUID) (*models.Transformation, error)
}

// NewPredictionStatusHandler returns an http.HandlerFunc for
// GET /api/transform/predictions/{predictionID}.
func NewPredictionStatusHandler(svc StatusReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "predictionID")
		if id == "" {
			response.Error(w, http.StatusBadRequest, "prediction id is required")
			return
		}

		status, err := svc.PredictionStatus(r.Context(), id)
		if err != nil {
			switch {
			case errors.Is(err, transform.ErrUnknownPrediction):
				response.Error(w, http.StatusNotFound, "Prediction not found")
			case errors.Is(err, transform.ErrStatusDisabled):
				response.Error(w, http.StatusNotImplemented, "Prediction status tracking is disabled")
			default:
				slog.Error("reading prediction status", "error", err, "request_id", mw.GetRequestID(r))
				response.Error(w, http.StatusInternalServerError, msgUnexpected)
			}
			return
		}

		response.JSON(w, map[string]string{"id": id, "status": status})
	}
}

// NewHistoryHandler returns an http.HandlerFunc for GET /api/transformations.
func NewHistoryHandler(svc HistoryLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultHistoryLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				response.Error(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = min(n, maxHistoryLimit)
		}

		items, err := svc.History(r.Context(), limit)
		if err != nil {
			if errors.Is(err, transform.ErrHistoryDisabled) {
				response.Error(w, http.StatusNotImplemented, "Transformation history is disabled")
				return
			}
			slog.Error("listing transformations", "error", err, "request_id", mw.GetRequestID(r))
			response.Error(w, http.StatusInternalServerError, msgUnexpected)
			return
		}

		response.JSON(w, map[string]any{"transformations": items, "limit": limit})
	}
}

// NewTransformationHandler returns an http.HandlerFunc for
// GET /api/transformations/{transformationID}.
func NewTransformationHandler(svc TransformationGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "transformationID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "transformation id must be a UUID")
			return
		}

		item, err := svc.Transformation(r.Context(), id)
		if err != nil {
			switch {
			case errors.Is(err, transform.ErrUnknownTransformation):
				response.Error(w, http.StatusNotFound, "Transformation not found")
			case errors.Is(err, transform.ErrHistoryDisabled):
				response.Error(w, http.StatusNotImplemented, "Transformation history is disabled")
			default:
				slog.Error("reading transformation", "error", err, "id", id, "request_id", mw.GetRequestID(r))
				response.Error(w, http.StatusInternalServerError, msgUnexpected)
			}
			return
		}

		response.JSON(w, item)
	}
}
