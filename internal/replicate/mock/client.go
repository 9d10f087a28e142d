package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/kiranshivaraju/labubify/internal/replicate"
	"github.com/kiranshivaraju/labubify/pkg/models"
)

// MockClient satisfies replicate.Client for testing. Calls are counted and
// safe for concurrent use.
type MockClient struct {
	CreateFunc func(ctx context.Context, req replicate.CreatePredictionRequest) (*models.Prediction, error)
	GetFunc    func(ctx context.Context, id string) (*models.Prediction, error)
	CancelFunc func(ctx context.Context, id string) error

	mu      sync.Mutex
	creates []replicate.CreatePredictionRequest
	gets    int
	cancels []string
}

func (m *MockClient) CreatePrediction(ctx context.Context, req replicate.CreatePredictionRequest) (*models.Prediction, error) {
	m.mu.Lock()
	m.creates = append(m.creates, req)
	m.mu.Unlock()
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, req)
	}
	return &models.Prediction{ID: "mock-prediction", Status: models.PredictionStarting}, nil
}

func (m *MockClient) GetPrediction(ctx context.Context, id string) (*models.Prediction, error) {
	m.mu.Lock()
	m.gets++
	m.mu.Unlock()
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return &models.Prediction{ID: id, Status: models.PredictionSucceeded}, nil
}

func (m *MockClient) CancelPrediction(ctx context.Context, id string) error {
	m.mu.Lock()
	m.cancels = append(m.cancels, id)
	m.mu.Unlock()
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, id)
	}
	return nil
}

// Creates returns the create requests received so far.
func (m *MockClient) Creates() []replicate.CreatePredictionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]replicate.CreatePredictionRequest(nil), m.creates...)
}

// Polls returns how many GetPrediction calls were made.
func (m *MockClient) Polls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets
}

// Cancels returns the prediction ids passed to CancelPrediction.
func (m *MockClient) Cancels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.cancels...)
}

// NewSequenceClient returns a MockClient whose create call yields the first
// status and whose polls walk through the rest. The last status repeats once
// the sequence is exhausted. A succeeded status carries output; a failed one
// carries errMsg.
func NewSequenceClient(output []string, errMsg string, statuses ...models.PredictionStatus) *MockClient {
	if len(statuses) == 0 {
		statuses = []models.PredictionStatus{models.PredictionSucceeded}
	}
	var (
		mu   sync.Mutex
		next = 1
	)
	build := func(s models.PredictionStatus) *models.Prediction {
		p := &models.Prediction{ID: "pred-1", Status: s}
		switch s {
		case models.PredictionSucceeded:
			p.Output = output
		case models.PredictionFailed:
			p.Error = errMsg
		}
		return p
	}
	return &MockClient{
		CreateFunc: func(_ context.Context, _ replicate.CreatePredictionRequest) (*models.Prediction, error) {
			return build(statuses[0]), nil
		},
		GetFunc: func(_ context.Context, id string) (*models.Prediction, error) {
			if id != "pred-1" {
				return nil, fmt.Errorf("unknown prediction %q", id)
			}
			mu.Lock()
			defer mu.Unlock()
			i := next
			if i >= len(statuses) {
				i = len(statuses) - 1
			}
			next++
			return build(statuses[i]), nil
		},
	}
}

// NewRejectingClient returns a MockClient whose create call fails with an
// upstream APIError.
func NewRejectingClient(status int, detail string) *MockClient {
	return &MockClient{
		CreateFunc: func(_ context.Context, _ replicate.CreatePredictionRequest) (*models.Prediction, error) {
			return nil, &replicate.APIError{StatusCode: status, Detail: detail}
		},
	}
}

// Compile-time check that MockClient implements replicate.Client.
var _ replicate.Client = (*MockClient)(nil)
