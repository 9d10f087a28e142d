package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/kiranshivaraju/labubify/pkg/models"
)

// Sentinel errors for transport-level failures.
var (
	ErrUnreachable     = errors.New("replicate unreachable")
	ErrTimeout         = errors.New("replicate request timeout")
	ErrInvalidResponse = errors.New("replicate returned invalid response")
)

// APIError is returned when Replicate answers with a non-success status.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("replicate: status %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("replicate: status %d", e.StatusCode)
}

// Client is the capability the relay needs from the prediction service.
type Client interface {
	CreatePrediction(ctx context.Context, req CreatePredictionRequest) (*models.Prediction, error)
	GetPrediction(ctx context.Context, id string) (*models.Prediction, error)
	CancelPrediction(ctx context.Context, id string) error
}

// CreatePredictionRequest is the body of POST /v1/predictions.
type CreatePredictionRequest struct {
	Version string `json:"version"`
	Input   Input  `json:"input"`
}

// Input carries the image and the generation parameters.
type Input struct {
	Image             string  `json:"image"`
	Prompt            string  `json:"prompt"`
	NegativePrompt    string  `json:"negative_prompt"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	GuidanceScale     float64 `json:"guidance_scale"`
	Strength          float64 `json:"strength"`
}

// HTTPClient implements Client using Replicate's HTTP API.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a new Replicate HTTP client. The timeout bounds each
// individual request, not the lifetime of a prediction.
func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) CreatePrediction(ctx context.Context, req CreatePredictionRequest) (*models.Prediction, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding prediction request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/predictions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.setHeaders(httpReq)

	return c.do(httpReq)
}

func (c *HTTPClient) GetPrediction(ctx context.Context, id string) (*models.Prediction, error) {
	u := fmt.Sprintf("%s/v1/predictions/%s", c.baseURL, url.PathEscape(id))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	return c.do(httpReq)
}

func (c *HTTPClient) CancelPrediction(ctx context.Context, id string) error {
	u := fmt.Sprintf("%s/v1/predictions/%s/cancel", c.baseURL, url.PathEscape(id))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode}
	}
	return nil
}

// do sends req and decodes a prediction. Non-2xx statuses become *APIError
// carrying Replicate's "detail" field when the body has one.
func (c *HTTPClient) do(req *http.Request) (*models.Prediction, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiErrorBody
		_ = json.Unmarshal(raw, &apiErr)
		return nil, &APIError{StatusCode: resp.StatusCode, Detail: apiErr.Detail}
	}

	var p predictionBody
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if p.ID == "" {
		return nil, fmt.Errorf("%w: missing prediction id", ErrInvalidResponse)
	}

	return p.toModel(), nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Accept", "application/json")
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// --- Replicate response types ---

type apiErrorBody struct {
	Detail string `json:"detail"`
}

// predictionBody mirrors the wire format. Output is polymorphic across
// models: a list of URLs, a single URL, or null.
type predictionBody struct {
	ID          string          `json:"id"`
	Version     string          `json:"version"`
	Status      string          `json:"status"`
	Output      json.RawMessage `json:"output"`
	Error       any             `json:"error"`
	CreatedAt   *time.Time      `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at"`
}

func (p predictionBody) toModel() *models.Prediction {
	return &models.Prediction{
		ID:          p.ID,
		Version:     p.Version,
		Status:      models.PredictionStatus(p.Status),
		Output:      parseOutput(p.Output),
		Error:       errorString(p.Error),
		CreatedAt:   p.CreatedAt,
		CompletedAt: p.CompletedAt,
	}
}

func parseOutput(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return []string{single}
	}
	return nil
}

func errorString(v any) string {
	switch e := v.(type) {
	case nil:
		return ""
	case string:
		return e
	default:
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Sprint(e)
		}
		return string(b)
	}
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
