// Package landmarks defines the landmark detection boundary for the morph
// pipeline and the geometry helpers built on detected points.
//
// The concrete detector is an external collaborator (a face-mesh sidecar);
// this package specifies its interface and ships an HTTP client plus a no-op
// fallback. Detection failure is never fatal for a job: the sequencer
// degrades to an unweighted blend instead.
package landmarks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"time"

	"github.com/xaimorph/morphd/internal/imaging"
)

// Point is one landmark coordinate in frame pixel space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Detector locates correspondence landmarks in a single image.
// An empty slice with a nil error means "nothing usable found".
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Point, error)
}

// NopDetector never finds landmarks. It is the default when no detector
// sidecar is configured and drives the blend fallback.
type NopDetector struct{}

func (NopDetector) Detect(ctx context.Context, img image.Image) ([]Point, error) {
	return nil, nil
}

// HTTPDetector posts frames to a detection sidecar and parses its response.
type HTTPDetector struct {
	baseURL string
	client  *http.Client
}

// NewHTTPDetector builds a detector client for the given sidecar base URL.
func NewHTTPDetector(baseURL string) *HTTPDetector {
	return &HTTPDetector{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type detectResponse struct {
	Points []Point `json:"points"`
}

// Detect sends the image as JPEG and returns the detected landmark set.
func (d *HTTPDetector) Detect(ctx context.Context, img image.Image) ([]Point, error) {
	payload, err := imaging.EncodeJPEG(img)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/detect", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build detect request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detector request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detector returned status %d", resp.StatusCode)
	}

	var body detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode detector response: %w", err)
	}
	return body.Points, nil
}
