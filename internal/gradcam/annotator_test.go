package gradcam

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeClassifier struct {
	pred Prediction
	err  error
}

func (f fakeClassifier) Classify(ctx context.Context, img image.Image) (Prediction, error) {
	return f.pred, f.err
}

func grayFrame(size int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	return img
}

func TestAnnotateSuccess(t *testing.T) {
	sal := [][]float64{{0, 0.5}, {1, 0.25}}
	a := &Annotator{Classifier: fakeClassifier{pred: Prediction{Label: "tabby", Confidence: 0.91, Saliency: sal}}}

	ann := a.Annotate(context.Background(), 3, grayFrame(16))
	require.Equal(t, 3, ann.FrameIndex)
	require.Equal(t, "tabby", ann.Label)
	require.InDelta(t, 0.91, ann.Confidence, 1e-9)
	require.Equal(t, 16, ann.Overlay.Bounds().Dx())
}

func TestAnnotateDegradesOnClassifierError(t *testing.T) {
	frame := grayFrame(16)
	a := &Annotator{Classifier: fakeClassifier{err: errors.New("inference backend down")}}

	ann := a.Annotate(context.Background(), 0, frame)
	require.Equal(t, UnknownLabel, ann.Label)
	require.Zero(t, ann.Confidence)
	require.Equal(t, frame.Pix, ann.Overlay.Pix, "failed frame keeps its unmodified image")
}

func TestAnnotateClampsConfidence(t *testing.T) {
	a := &Annotator{Classifier: fakeClassifier{pred: Prediction{Label: "x", Confidence: 1.7}}}
	ann := a.Annotate(context.Background(), 0, grayFrame(8))
	require.Equal(t, 1.0, ann.Confidence)

	a = &Annotator{Classifier: fakeClassifier{pred: Prediction{Label: "x", Confidence: -3}}}
	ann = a.Annotate(context.Background(), 0, grayFrame(8))
	require.Zero(t, ann.Confidence)
}

func TestAnnotateEmptyLabelBecomesUnknown(t *testing.T) {
	a := &Annotator{Classifier: fakeClassifier{pred: Prediction{Confidence: 0.4}}}
	ann := a.Annotate(context.Background(), 0, grayFrame(8))
	require.Equal(t, UnknownLabel, ann.Label)
}

func TestOverlayEmptySaliencyReturnsFrame(t *testing.T) {
	frame := grayFrame(8)
	out := Overlay(frame, nil)
	require.Equal(t, frame.Pix, out.Pix)

	out = Overlay(frame, [][]float64{{0.1, 0.2}, {0.3}}) // ragged grid
	require.Equal(t, frame.Pix, out.Pix)
}

func TestOverlayAppliesHeatmap(t *testing.T) {
	frame := grayFrame(8)
	out := Overlay(frame, [][]float64{{1}})
	require.NotEqual(t, frame.Pix, out.Pix)
	// Saturated saliency is red-dominant under jet.
	require.Greater(t, out.Pix[0], out.Pix[2])
}

func TestJetEndpoints(t *testing.T) {
	r, _, b := jet(0)
	require.Zero(t, r)
	require.Greater(t, b, uint8(100))

	r, _, b = jet(1)
	require.Greater(t, r, uint8(100))
	require.Zero(t, b)
}

func TestHTTPClassifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/classify", r.URL.Path)
		_ = json.NewEncoder(w).Encode(Prediction{Label: "goldfish", Confidence: 0.33})
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL)
	pred, err := c.Classify(context.Background(), grayFrame(8))
	require.NoError(t, err)
	require.Equal(t, "goldfish", pred.Label)
	require.InDelta(t, 0.33, pred.Confidence, 1e-9)
}

func TestHTTPClassifierErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL)
	_, err := c.Classify(context.Background(), grayFrame(8))
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 503")
}
