// Package gradcam orchestrates per-frame classifier attention: an external
// classifier returns the top-1 prediction plus a saliency grid, and the
// annotator renders that grid as a heatmap overlay on the frame.
//
// The classifier's label taxonomy is allowed to disagree with the subject
// domain (faces classified as generic objects is expected, not a defect), and
// a per-frame classifier failure degrades to an "unknown" annotation instead
// of failing the job.
package gradcam

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"time"

	"github.com/xaimorph/morphd/internal/imaging"
	"github.com/xaimorph/morphd/internal/log"
	"github.com/xaimorph/morphd/internal/metrics"
)

// UnknownLabel marks frames whose annotation failed.
const UnknownLabel = "unknown"

// Prediction is the classifier's output for one frame.
type Prediction struct {
	Label      string      `json:"label"`
	Confidence float64     `json:"confidence"`
	Saliency   [][]float64 `json:"saliency"` // row-major attention grid, values in [0,1]
}

// Classifier is the external inference collaborator.
type Classifier interface {
	Classify(ctx context.Context, img image.Image) (Prediction, error)
}

// Annotation is the attention result for one frame. One Annotation exists per
// produced frame, including frames whose classification failed.
type Annotation struct {
	FrameIndex int
	Label      string
	Confidence float64
	Overlay    *image.RGBA
}

// Annotator turns frames into annotations, degrading gracefully on
// classifier failure.
type Annotator struct {
	Classifier Classifier
}

// Annotate classifies a single frame and renders its attention overlay.
// It never fails: classifier errors yield an "unknown" annotation with the
// unmodified frame as overlay, so already-computed frames are never lost.
func (a *Annotator) Annotate(ctx context.Context, index int, frame *image.RGBA) Annotation {
	pred, err := a.Classifier.Classify(ctx, frame)
	if err != nil {
		logger := log.WithComponentFromContext(ctx, "gradcam")
		logger.Warn().
			Err(err).
			Int(log.FieldFrame, index).
			Msg("frame annotation failed, degrading to unknown")
		metrics.AnnotationFailuresTotal.Inc()
		return Annotation{
			FrameIndex: index,
			Label:      UnknownLabel,
			Confidence: 0,
			Overlay:    imaging.Clone(frame),
		}
	}

	if pred.Confidence < 0 {
		pred.Confidence = 0
	}
	if pred.Confidence > 1 {
		pred.Confidence = 1
	}
	if pred.Label == "" {
		pred.Label = UnknownLabel
	}

	metrics.FramesAnnotatedTotal.Inc()
	return Annotation{
		FrameIndex: index,
		Label:      pred.Label,
		Confidence: pred.Confidence,
		Overlay:    Overlay(frame, pred.Saliency),
	}
}

// HTTPClassifier posts frames to an inference sidecar.
type HTTPClassifier struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClassifier builds a classifier client for the given sidecar base URL.
func NewHTTPClassifier(baseURL string) *HTTPClassifier {
	return &HTTPClassifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// Classify sends the frame as JPEG and parses the prediction.
func (c *HTTPClassifier) Classify(ctx context.Context, img image.Image) (Prediction, error) {
	payload, err := imaging.EncodeJPEG(img)
	if err != nil {
		return Prediction{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/classify", bytes.NewReader(payload))
	if err != nil {
		return Prediction{}, fmt.Errorf("build classify request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := c.client.Do(req)
	if err != nil {
		return Prediction{}, fmt.Errorf("classifier request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Prediction{}, fmt.Errorf("classifier returned status %d", resp.StatusCode)
	}

	var pred Prediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return Prediction{}, fmt.Errorf("decode classifier response: %w", err)
	}
	return pred, nil
}

// StubClassifier stands in when no inference sidecar is configured. Every
// frame comes back as "unknown" with zero confidence, which keeps the
// pipeline exercisable end to end without model weights.
type StubClassifier struct{}

func (StubClassifier) Classify(ctx context.Context, img image.Image) (Prediction, error) {
	return Prediction{Label: UnknownLabel, Confidence: 0}, nil
}
