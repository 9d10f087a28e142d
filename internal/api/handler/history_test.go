package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/labubify/internal/transform"
	"github.com/kiranshivaraju/labubify/pkg/models"
)

type mockStatusReader struct {
	fn func(id string) (string, error)
}

func (m *mockStatusReader) PredictionStatus(_ context.Context, id string) (string, error) {
	return m.fn(id)
}

type mockHistoryLister struct {
	gotLimit int
	items    []*models.Transformation
	err      error
}

func (m *mockHistoryLister) History(_ context.Context, limit int) ([]*models.Transformation, error) {
	m.gotLimit = limit
	return m.items, m.err
}

func withPredictionID(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("predictionID", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestPredictionStatusHandler_Found(t *testing.T) {
	h := NewPredictionStatusHandler(&mockStatusReader{fn: func(id string) (string, error) {
		if id != "pred-1" {
			t.Errorf("unexpected id %q", id)
		}
		return "processing", nil
	}})
	rec := httptest.NewRecorder()
	r := withPredictionID(httptest.NewRequest(http.MethodGet, "/api/transform/predictions/pred-1", nil), "pred-1")

	h.ServeHTTP(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["id"] != "pred-1" || body["status"] != "processing" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestPredictionStatusHandler_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"unknown", transform.ErrUnknownPrediction, http.StatusNotFound},
		{"disabled", transform.ErrStatusDisabled, http.StatusNotImplemented},
		{"cache down", errors.New("redis: connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewPredictionStatusHandler(&mockStatusReader{fn: func(string) (string, error) {
				return "", tt.err
			}})
			rec := httptest.NewRecorder()
			r := withPredictionID(httptest.NewRequest(http.MethodGet, "/", nil), "pred-x")

			h.ServeHTTP(rec, r)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestPredictionStatusHandler_MissingID(t *testing.T) {
	h := NewPredictionStatusHandler(&mockStatusReader{fn: func(string) (string, error) {
		t.Fatal("reader should not be called")
		return "", nil
	}})
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHistoryHandler_DefaultLimit(t *testing.T) {
	url := "https://example/result.png"
	lister := &mockHistoryLister{items: []*models.Transformation{{
		ID:           uuid.New(),
		PredictionID: "pred-1",
		Status:       models.TransformationSucceeded,
		OutputURL:    &url,
		CreatedAt:    time.Now().UTC(),
	}}}
	h := NewHistoryHandler(lister)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/transformations", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if lister.gotLimit != defaultHistoryLimit {
		t.Errorf("expected limit %d, got %d", defaultHistoryLimit, lister.gotLimit)
	}

	var body struct {
		Transformations []models.Transformation `json:"transformations"`
		Limit           int                     `json:"limit"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Transformations) != 1 || body.Transformations[0].PredictionID != "pred-1" {
		t.Errorf("unexpected transformations: %+v", body.Transformations)
	}
	if body.Limit != defaultHistoryLimit {
		t.Errorf("unexpected limit in body: %d", body.Limit)
	}
}

func TestHistoryHandler_LimitParsing(t *testing.T) {
	tests := []struct {
		query      string
		wantStatus int
		wantLimit  int
	}{
		{"?limit=5", http.StatusOK, 5},
		{"?limit=1000", http.StatusOK, maxHistoryLimit},
		{"?limit=0", http.StatusBadRequest, 0},
		{"?limit=-3", http.StatusBadRequest, 0},
		{"?limit=abc", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			lister := &mockHistoryLister{items: []*models.Transformation{}}
			h := NewHistoryHandler(lister)
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/transformations"+tt.query, nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			if lister.gotLimit != tt.wantLimit {
				t.Errorf("expected limit %d, got %d", tt.wantLimit, lister.gotLimit)
			}
		})
	}
}

func TestHistoryHandler_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"disabled", transform.ErrHistoryDisabled, http.StatusNotImplemented},
		{"db down", errors.New("pool closed"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHistoryHandler(&mockHistoryLister{err: tt.err})
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/transformations", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

type mockTransformationGetter struct {
	gotID uuid.UUID
	item  *models.Transformation
	err   error
}

func (m *mockTransformationGetter) Transformation(_ context.Context, id uuid.UUID) (*models.Transformation, error) {
	m.gotID = id
	return m.item, m.err
}

func withTransformationID(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("transformationID", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestTransformationHandler_Found(t *testing.T) {
	id := uuid.New()
	getter := &mockTransformationGetter{item: &models.Transformation{
		ID:           id,
		PredictionID: "pred-1",
		Status:       models.TransformationSucceeded,
		CreatedAt:    time.Now().UTC(),
	}}
	h := NewTransformationHandler(getter)
	rec := httptest.NewRecorder()
	r := withTransformationID(httptest.NewRequest(http.MethodGet, "/api/transformations/"+id.String(), nil), id.String())

	h.ServeHTTP(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if getter.gotID != id {
		t.Errorf("expected id %s, got %s", id, getter.gotID)
	}
	var body models.Transformation
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ID != id || body.PredictionID != "pred-1" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestTransformationHandler_BadID(t *testing.T) {
	getter := &mockTransformationGetter{}
	h := NewTransformationHandler(getter)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, withTransformationID(httptest.NewRequest(http.MethodGet, "/", nil), "not-a-uuid"))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if getter.gotID != uuid.Nil {
		t.Error("getter should not be called")
	}
}

func TestTransformationHandler_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"unknown", transform.ErrUnknownTransformation, http.StatusNotFound},
		{"disabled", transform.ErrHistoryDisabled, http.StatusNotImplemented},
		{"db down", errors.New("pool closed"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewTransformationHandler(&mockTransformationGetter{err: tt.err})
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, withTransformationID(httptest.NewRequest(http.MethodGet, "/", nil), uuid.NewString()))

			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}
