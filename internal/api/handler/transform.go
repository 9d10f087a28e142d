package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	mw "github.com/kiranshivaraju/labubify/internal/api/middleware"
	"github.com/kiranshivaraju/labubify/internal/api/response"
	"github.com/kiranshivaraju/labubify/internal/transform"
)

// multipartOverhead leaves room for boundaries and part headers on top of
// the image itself.
const multipartOverhead = 1 << 20

const (
	msgMisconfigured = "Server mis-configuration. Contact support."
	msgNoImage       = "No image supplied"
	msgTimeout       = "Image generation timed out. Try again later."
	msgUnexpected    = "Unexpected server error. Try again later."
)

// Transformer defines the relay operations the handler depends on.
type Transformer interface {
	CheckConfigured() error
	Transform(ctx context.Context, up transform.Upload) (*transform.Result, error)
}

type transformResponse struct {
	TransformedURL string `json:"transformedUrl"`
}

// tooLargeMessage renders the upload cap in whole MB or KB when it divides
// evenly, and in bytes otherwise.
func tooLargeMessage(limit int64) string {
	var size string
	switch {
	case limit >= 1<<20 && limit%(1<<20) == 0:
		size = fmt.Sprintf("%dMB", limit>>20)
	case limit >= 1<<10 && limit%(1<<10) == 0:
		size = fmt.Sprintf("%dKB", limit>>10)
	default:
		size = fmt.Sprintf("%d bytes", limit)
	}
	return "Image must be " + size + " or smaller"
}

// NewTransformHandler returns an http.HandlerFunc for POST /api/transform.
// The multipart field "image" carries the photo.
func NewTransformHandler(svc Transformer, maxUploadBytes int64) http.HandlerFunc {
	msgTooLarge := tooLargeMessage(maxUploadBytes)

	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.CheckConfigured(); err != nil {
			response.Error(w, http.StatusInternalServerError, msgMisconfigured)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+multipartOverhead)
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				response.Error(w, http.StatusRequestEntityTooLarge, msgTooLarge)
				return
			}
			response.Error(w, http.StatusBadRequest, msgNoImage)
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("image")
		if err != nil {
			response.Error(w, http.StatusBadRequest, msgNoImage)
			return
		}
		defer file.Close()

		if header.Size > maxUploadBytes {
			response.Error(w, http.StatusRequestEntityTooLarge, msgTooLarge)
			return
		}

		data, err := io.ReadAll(file)
		if err != nil {
			slog.Error("reading upload", "error", err, "request_id", mw.GetRequestID(r))
			response.Error(w, http.StatusInternalServerError, msgUnexpected)
			return
		}

		result, err := svc.Transform(r.Context(), transform.Upload{
			Data:        data,
			ContentType: header.Header.Get("Content-Type"),
			Filename:    header.Filename,
		})
		if err != nil {
			writeTransformError(w, r, err)
			return
		}

		response.JSON(w, transformResponse{TransformedURL: result.URL})
	}
}

func writeTransformError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		rejected *transform.UpstreamRejectedError
		failed   *transform.GenerationFailedError
	)
	switch {
	case errors.Is(err, transform.ErrConfiguration):
		response.Error(w, http.StatusInternalServerError, msgMisconfigured)
	case errors.Is(err, transform.ErrNoImage):
		response.Error(w, http.StatusBadRequest, msgNoImage)
	case errors.As(err, &rejected):
		response.Error(w, upstreamStatus(rejected.StatusCode), rejected.Message)
	case errors.As(err, &failed):
		response.Error(w, http.StatusInternalServerError, failed.Message)
	case errors.Is(err, transform.ErrPollTimeout):
		response.Error(w, http.StatusGatewayTimeout, msgTimeout)
	default:
		slog.Error("unexpected error", "error", err, "request_id", mw.GetRequestID(r))
		response.Error(w, http.StatusInternalServerError, msgUnexpected)
	}
}

// upstreamStatus passes Replicate's status through, replacing anything that
// is not an error status with 502.
func upstreamStatus(code int) int {
	if code < 400 || code > 599 {
		return http.StatusBadGateway
	}
	return code
}
