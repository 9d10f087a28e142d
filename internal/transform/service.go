package transform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/labubify/internal/cache"
	"github.com/kiranshivaraju/labubify/internal/replicate"
	"github.com/kiranshivaraju/labubify/internal/store"
	"github.com/kiranshivaraju/labubify/pkg/models"
)

const (
	statusTTL     = 30 * time.Minute
	cancelTimeout = 5 * time.Second
)

// Params are the fixed generation parameters sent with every prediction.
type Params struct {
	Version           string
	Prompt            string
	NegativePrompt    string
	NumInferenceSteps int
	GuidanceScale     float64
	Strength          float64
}

// DefaultParams returns the Labubu style parameters for the given model version.
func DefaultParams(version string) Params {
	return Params{
		Version:           version,
		Prompt:            "cute kawaii Labubu character style, big round eyes, pointed ears, pastel colors, adorable expression, toy-like appearance, Pop Mart style figure, soft lighting, high quality, detailed",
		NegativePrompt:    "realistic, human, photograph, dark, scary, ugly, low quality, blurry",
		NumInferenceSteps: 30,
		GuidanceScale:     7.5,
		Strength:          0.8,
	}
}

// Upload is one image submitted for transformation.
type Upload struct {
	Data        []byte
	ContentType string
	Filename    string
}

// Result is the outcome of a successful transformation.
type Result struct {
	URL          string
	PredictionID string
	Polls        int
}

// Options configures a Service.
type Options struct {
	Token           string
	Params          Params
	PollInterval    time.Duration
	MaxPollAttempts int
}

// Service relays uploads to Replicate and waits for the prediction to finish.
// Cache and store are optional; a nil value disables status mirroring or
// history respectively.
type Service struct {
	client replicate.Client
	cache  cache.Cache
	store  store.Store
	opts   Options
}

// NewService creates a new Service.
func NewService(client replicate.Client, ca cache.Cache, st store.Store, opts Options) *Service {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.MaxPollAttempts <= 0 {
		opts.MaxPollAttempts = 150
	}
	return &Service{
		client: client,
		cache:  ca,
		store:  st,
		opts:   opts,
	}
}

// CheckConfigured reports ErrConfiguration when no credential is set.
func (s *Service) CheckConfigured() error {
	if s.opts.Token == "" {
		slog.Error("missing REPLICATE_API_TOKEN")
		return ErrConfiguration
	}
	return nil
}

// Transform submits the upload and polls until the prediction is terminal,
// the poll budget runs out or ctx is done. Polls are strictly sequential.
func (s *Service) Transform(ctx context.Context, up Upload) (*Result, error) {
	if err := s.CheckConfigured(); err != nil {
		return nil, err
	}
	if len(up.Data) == 0 {
		return nil, ErrNoImage
	}

	contentType := DetectContentType(up.ContentType, up.Data)
	rec := &models.Transformation{
		ID:          uuid.New(),
		ContentType: contentType,
		InputBytes:  int64(len(up.Data)),
		CreatedAt:   time.Now().UTC(),
	}

	res, err := s.run(ctx, up.Data, contentType, rec)
	s.record(ctx, rec, res, err)
	return res, err
}

func (s *Service) run(ctx context.Context, data []byte, contentType string, rec *models.Transformation) (*Result, error) {
	p := s.opts.Params
	pred, err := s.client.CreatePrediction(ctx, replicate.CreatePredictionRequest{
		Version: p.Version,
		Input: replicate.Input{
			Image:             DataURI(contentType, data),
			Prompt:            p.Prompt,
			NegativePrompt:    p.NegativePrompt,
			NumInferenceSteps: p.NumInferenceSteps,
			GuidanceScale:     p.GuidanceScale,
			Strength:          p.Strength,
		},
	})
	if err != nil {
		var apiErr *replicate.APIError
		if errors.As(err, &apiErr) {
			msg := apiErr.Detail
			if msg == "" {
				msg = defaultUpstreamMessage
			}
			slog.Error("replicate start error", "status", apiErr.StatusCode, "detail", apiErr.Detail)
			return nil, &UpstreamRejectedError{StatusCode: apiErr.StatusCode, Message: msg}
		}
		return nil, fmt.Errorf("creating prediction: %w", err)
	}

	rec.PredictionID = pred.ID
	slog.Info("prediction created", "prediction_id", pred.ID, "status", pred.Status)
	s.mirrorStatus(ctx, pred)

	for !pred.Status.Terminal() {
		if rec.Polls >= s.opts.MaxPollAttempts {
			slog.Warn("poll budget exhausted", "prediction_id", pred.ID, "polls", rec.Polls)
			s.cancel(ctx, pred.ID)
			return nil, fmt.Errorf("%w: %d polls", ErrPollTimeout, rec.Polls)
		}

		if err := sleep(ctx, s.opts.PollInterval); err != nil {
			s.cancel(ctx, pred.ID)
			return nil, fmt.Errorf("waiting for prediction %s: %w", pred.ID, err)
		}

		next, err := s.client.GetPrediction(ctx, pred.ID)
		rec.Polls++
		if err != nil {
			if ctx.Err() != nil {
				s.cancel(ctx, pred.ID)
				return nil, fmt.Errorf("polling prediction %s: %w", pred.ID, err)
			}
			var apiErr *replicate.APIError
			if errors.As(err, &apiErr) {
				if apiErr.StatusCode != http.StatusNotFound {
					s.cancel(ctx, pred.ID)
				}
				msg := apiErr.Detail
				if msg == "" {
					msg = defaultGenerationMessage
				}
				slog.Error("replicate poll rejected", "prediction_id", pred.ID, "status", apiErr.StatusCode, "detail", apiErr.Detail)
				return nil, &GenerationFailedError{PredictionID: pred.ID, Status: string(pred.Status), Message: msg}
			}
			return nil, fmt.Errorf("polling prediction %s: %w", pred.ID, err)
		}
		pred = next
		slog.Debug("polling status", "prediction_id", pred.ID, "status", pred.Status, "poll", rec.Polls)
		s.mirrorStatus(ctx, pred)
	}

	if pred.Status != models.PredictionSucceeded || pred.FirstOutput() == "" {
		msg := pred.Error
		if msg == "" {
			msg = defaultGenerationMessage
		}
		slog.Error("replicate failed", "prediction_id", pred.ID, "status", pred.Status, "error", pred.Error)
		return nil, &GenerationFailedError{PredictionID: pred.ID, Status: string(pred.Status), Message: msg}
	}

	return &Result{URL: pred.FirstOutput(), PredictionID: pred.ID, Polls: rec.Polls}, nil
}

// PredictionStatus returns the last status mirrored for a prediction.
func (s *Service) PredictionStatus(ctx context.Context, predictionID string) (string, error) {
	if s.cache == nil {
		return "", ErrStatusDisabled
	}
	status, found, err := s.cache.GetPredictionStatus(ctx, predictionID)
	if err != nil {
		return "", fmt.Errorf("reading prediction status: %w", err)
	}
	if !found {
		return "", ErrUnknownPrediction
	}
	return status, nil
}

// History returns the most recent transformations, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]*models.Transformation, error) {
	if s.store == nil {
		return nil, ErrHistoryDisabled
	}
	return s.store.ListTransformations(ctx, limit)
}

// Transformation returns one recorded transformation by id.
func (s *Service) Transformation(ctx context.Context, id uuid.UUID) (*models.Transformation, error) {
	if s.store == nil {
		return nil, ErrHistoryDisabled
	}
	t, err := s.store.GetTransformation(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnknownTransformation
	}
	return t, err
}

// cancel asks Replicate to stop the prediction. It runs detached from ctx
// because ctx is usually already done at this point.
func (s *Service) cancel(ctx context.Context, predictionID string) {
	cctx, done := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer done()
	if err := s.client.CancelPrediction(cctx, predictionID); err != nil {
		slog.Warn("cancel prediction failed", "prediction_id", predictionID, "error", err)
		return
	}
	slog.Info("prediction cancelled", "prediction_id", predictionID)
}

func (s *Service) mirrorStatus(ctx context.Context, pred *models.Prediction) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetPredictionStatus(context.WithoutCancel(ctx), pred.ID, string(pred.Status), statusTTL); err != nil {
		slog.Warn("cache prediction status failed", "prediction_id", pred.ID, "error", err)
	}
}

func (s *Service) record(ctx context.Context, rec *models.Transformation, res *Result, runErr error) {
	if s.store == nil {
		return
	}
	now := time.Now().UTC()
	rec.CompletedAt = &now
	if runErr == nil {
		rec.Status = models.TransformationSucceeded
		rec.OutputURL = &res.URL
	} else {
		rec.Status = models.TransformationFailed
		msg := runErr.Error()
		rec.ErrorMessage = &msg
	}
	if err := s.store.CreateTransformation(context.WithoutCancel(ctx), rec); err != nil {
		slog.Warn("record transformation failed", "id", rec.ID, "error", err)
	}
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
