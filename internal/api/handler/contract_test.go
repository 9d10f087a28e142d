package handler_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kiranshivaraju/labubify/internal/api"
	"github.com/kiranshivaraju/labubify/internal/api/handler"
	"github.com/kiranshivaraju/labubify/internal/replicate"
	"github.com/kiranshivaraju/labubify/internal/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── fake Replicate ─────────────────────────────────────────────────────────

type fakeReplicate struct {
	polls      atomic.Int32
	cancels    atomic.Int32
	createCode int
	createBody string
	statuses   []string
	final      string
	pollCode   int
}

func (f *fakeReplicate) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/predictions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Token r8_contract", r.Header.Get("Authorization"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		input, _ := body["input"].(map[string]any)
		image, _ := input["image"].(string)
		assert.True(t, strings.HasPrefix(image, "data:image/png;base64,"), "image should be a png data URI")

		if f.createCode != 0 {
			w.WriteHeader(f.createCode)
			w.Write([]byte(f.createBody))
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"pred-c","status":"starting"}`))
	})

	mux.HandleFunc("GET /v1/predictions/pred-c", func(w http.ResponseWriter, r *http.Request) {
		n := int(f.polls.Add(1))
		if f.pollCode != 0 {
			w.WriteHeader(f.pollCode)
			w.Write([]byte(f.final))
			return
		}
		if n <= len(f.statuses) {
			w.Write([]byte(`{"id":"pred-c","status":"` + f.statuses[n-1] + `"}`))
			return
		}
		w.Write([]byte(f.final))
	})

	mux.HandleFunc("POST /v1/predictions/pred-c/cancel", func(w http.ResponseWriter, r *http.Request) {
		f.cancels.Add(1)
		w.Write([]byte(`{"id":"pred-c","status":"canceled"}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// ─── helpers ────────────────────────────────────────────────────────────────

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func newContractRouter(t *testing.T, fake *fakeReplicate, token string, maxPolls int) http.Handler {
	t.Helper()
	srv := fake.server(t)
	client := replicate.NewHTTPClient(srv.URL, token, 5*time.Second)
	svc := transform.NewService(client, nil, nil, transform.Options{
		Token:           token,
		Params:          transform.DefaultParams("contract-version"),
		PollInterval:    time.Millisecond,
		MaxPollAttempts: maxPolls,
	})
	return api.NewRouter(api.Dependencies{
		TransformHandler: handler.NewTransformHandler(svc, 10<<20),
	})
}

func uploadRequest(t *testing.T, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mpw := multipart.NewWriter(&buf)
	if data != nil {
		part, err := mpw.CreateFormFile("image", "photo.png")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mpw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/transform", &buf)
	req.Header.Set("Content-Type", mpw.FormDataContentType())
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

// ─── contract tests ─────────────────────────────────────────────────────────

func TestContract_TransformSuccess(t *testing.T) {
	fake := &fakeReplicate{
		statuses: []string{"processing"},
		final:    `{"id":"pred-c","status":"succeeded","output":["https://example/result.png"]}`,
	}
	router := newContractRouter(t, fake, "r8_contract", 10)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, pngHeader))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, map[string]string{"transformedUrl": "https://example/result.png"}, decode(t, w))
	assert.Equal(t, int32(2), fake.polls.Load())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestContract_MissingImage(t *testing.T) {
	router := newContractRouter(t, &fakeReplicate{}, "r8_contract", 10)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No image supplied", decode(t, w)["error"])
}

func TestContract_MissingToken(t *testing.T) {
	fake := &fakeReplicate{}
	router := newContractRouter(t, fake, "", 10)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, pngHeader))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Server mis-configuration. Contact support.", decode(t, w)["error"])
	assert.Zero(t, fake.polls.Load())
}

func TestContract_UpstreamRejected(t *testing.T) {
	fake := &fakeReplicate{createCode: http.StatusUnprocessableEntity, createBody: `{"detail":"Invalid version"}`}
	router := newContractRouter(t, fake, "r8_contract", 10)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, pngHeader))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "Invalid version", decode(t, w)["error"])
}

func TestContract_UpstreamRejectedWithoutDetail(t *testing.T) {
	fake := &fakeReplicate{createCode: http.StatusUnauthorized, createBody: `{}`}
	router := newContractRouter(t, fake, "r8_contract", 10)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, pngHeader))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Replicate error", decode(t, w)["error"])
}

func TestContract_GenerationFailed(t *testing.T) {
	fake := &fakeReplicate{final: `{"id":"pred-c","status":"failed","error":"X"}`}
	router := newContractRouter(t, fake, "r8_contract", 10)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, pngHeader))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "X", decode(t, w)["error"])
}

func TestContract_ExpiredPrediction(t *testing.T) {
	fake := &fakeReplicate{pollCode: http.StatusNotFound, final: `{"detail":"Not found."}`}
	router := newContractRouter(t, fake, "r8_contract", 10)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, pngHeader))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Not found.", decode(t, w)["error"])
	assert.Equal(t, int32(1), fake.polls.Load())
	assert.Zero(t, fake.cancels.Load())
}

func TestContract_PollTimeout(t *testing.T) {
	fake := &fakeReplicate{final: `{"id":"pred-c","status":"processing"}`}
	router := newContractRouter(t, fake, "r8_contract", 3)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, pngHeader))

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Equal(t, "Image generation timed out. Try again later.", decode(t, w)["error"])
	assert.Equal(t, int32(3), fake.polls.Load())
	assert.Equal(t, int32(1), fake.cancels.Load())
}
