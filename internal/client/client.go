// Package client is the user-facing side of the relay: it checks a local
// photo, submits it to /api/transform and downloads the result.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// MaxFileBytes is the largest photo the client will submit.
const MaxFileBytes = 10 << 20

// ResultFilename is the fixed name of every downloaded result.
const ResultFilename = "labubu-transformation.png"

// Errors returned to callers. Upstream detail is logged, never surfaced.
var (
	ErrFileTooLarge    = errors.New("file too large")
	ErrNoSelection     = errors.New("no image selected")
	ErrNoResult        = errors.New("no transformed image")
	ErrBusy            = errors.New("transformation in progress")
	ErrTransformFailed = errors.New("transformation failed")
	ErrDownloadFailed  = errors.New("download failed")
)

// Notice returns the user-visible notification for an error from Client.
func Notice(err error) string {
	switch {
	case errors.Is(err, ErrFileTooLarge):
		return "Please select an image smaller than 10MB"
	case errors.Is(err, ErrTransformFailed):
		return "Transformation failed. Please try again with a different image"
	case errors.Is(err, ErrDownloadFailed):
		return "Download failed. Please try again"
	case errors.Is(err, ErrNoSelection):
		return "Please select an image first"
	case errors.Is(err, ErrNoResult):
		return "Nothing to download yet"
	default:
		return "Something went wrong. Please try again"
	}
}

// State is a step of the client workflow.
type State string

const (
	StateIdle       State = "idle"
	StateSelecting  State = "selecting"
	StateReady      State = "ready"
	StateSubmitting State = "submitting"
	StateDisplaying State = "displaying"
	StateError      State = "error"
)

// Client drives one photo at a time through the relay. It is safe for
// concurrent use but only one submission runs at a time.
type Client struct {
	relayURL string
	http     *http.Client

	mu        sync.Mutex
	state     State
	path      string
	size      int64
	resultURL string
}

// New creates a Client talking to the relay at relayURL. The timeout bounds
// each HTTP exchange and must cover the relay's whole poll budget.
func New(relayURL string, timeout time.Duration) *Client {
	return &Client{
		relayURL: strings.TrimRight(relayURL, "/"),
		http:     &http.Client{Timeout: timeout},
		state:    StateIdle,
	}
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ResultURL is the last transformed image reference, empty until a
// transformation succeeds.
func (c *Client) ResultURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resultURL
}

// Select checks the photo at path. A file over MaxFileBytes is rejected
// without touching the network and leaves the previous selection in place.
// A new selection clears any earlier result.
func (c *Client) Select(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateSubmitting {
		return ErrBusy
	}
	prev := c.state
	c.state = StateSelecting

	info, err := os.Stat(path)
	if err != nil {
		c.state = prev
		return fmt.Errorf("select %s: %w", path, err)
	}
	if info.IsDir() {
		c.state = prev
		return fmt.Errorf("select %s: is a directory", path)
	}
	if info.Size() > MaxFileBytes {
		c.state = prev
		slog.Warn("file too large", "path", path, "bytes", info.Size())
		return ErrFileTooLarge
	}

	c.path = path
	c.size = info.Size()
	c.resultURL = ""
	c.state = StateReady
	return nil
}

type transformResponse struct {
	TransformedURL string `json:"transformedUrl"`
	Error          string `json:"error"`
}

// Transform submits the selected photo and waits for the single relay
// response. Every failure collapses into ErrTransformFailed. Each submission
// needs a fresh Select, including a retry after an error.
func (c *Client) Transform(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.state != StateReady {
		err := ErrNoSelection
		if c.state == StateSubmitting {
			err = ErrBusy
		}
		c.mu.Unlock()
		return "", err
	}
	path := c.path
	c.state = StateSubmitting
	c.mu.Unlock()

	url, err := c.submit(ctx, path)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		slog.Error("transform failed", "path", path, "error", err)
		c.state = StateError
		return "", fmt.Errorf("%w: %w", ErrTransformFailed, err)
	}
	c.resultURL = url
	c.state = StateDisplaying
	return url, nil
}

func (c *Client) submit(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	// Stream the multipart body so the photo is never buffered twice.
	pr, pw := io.Pipe()
	mpw := multipart.NewWriter(pw)
	go func() {
		part, err := mpw.CreateFormFile("image", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mpw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.relayURL+"/api/transform", pr)
	if err != nil {
		pr.Close()
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mpw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("post image: %w", err)
	}
	defer resp.Body.Close()

	var body transformResponse
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("relay status %d: %s", resp.StatusCode, body.Error)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode response: %w", decodeErr)
	}
	if body.TransformedURL == "" {
		return "", errors.New("response has no transformedUrl")
	}
	return body.TransformedURL, nil
}

// Download fetches the current result into dir/ResultFilename. The data is
// written to a temporary file first, which is removed on any failure.
func (c *Client) Download(ctx context.Context, dir string) (string, error) {
	resultURL := c.ResultURL()
	if resultURL == "" {
		return "", ErrNoResult
	}

	dest, err := c.fetch(ctx, resultURL, dir)
	if err != nil {
		slog.Error("download failed", "url", resultURL, "error", err)
		return "", fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	return dest, nil
}

func (c *Client) fetch(ctx context.Context, resultURL, dir string) (dest string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("get result: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("result status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(dir, ".labubu-*.part")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, resp.Body); err != nil {
		return "", fmt.Errorf("write result: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}

	dest = filepath.Join(dir, ResultFilename)
	if err = os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("rename result: %w", err)
	}
	return dest, nil
}
