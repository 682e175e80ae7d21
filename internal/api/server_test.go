package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/xaimorph/morphd/internal/config"
	"github.com/xaimorph/morphd/internal/gradcam"
	"github.com/xaimorph/morphd/internal/landmarks"
	"github.com/xaimorph/morphd/internal/library"
	"github.com/xaimorph/morphd/internal/pipeline"
	"github.com/xaimorph/morphd/internal/session"
)

// resultOnlyAssembler skips video encoding so handler tests need no ffmpeg.
type resultOnlyAssembler struct{}

func (resultOnlyAssembler) Assemble(_ context.Context, sessionID, mode string, _ []float64, frames, _ []*image.RGBA, _ []gradcam.Annotation) (*session.Result, error) {
	return &session.Result{
		SessionID:  sessionID,
		MorphMode:  mode,
		FrameCount: len(frames),
		MorphVideo: "/videos/" + sessionID + "_morph.mp4",
	}, nil
}

func writeTestPNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 24, 24))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func newTestServer(t *testing.T) (*Server, config.Config) {
	t.Helper()
	imagesDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(imagesDir, "cats"), 0o755))
	writeTestPNG(t, filepath.Join(imagesDir, "cats", "a.png"))
	writeTestPNG(t, filepath.Join(imagesDir, "cats", "b.png"))

	cfg := config.Config{
		OutputDir:         t.TempDir(),
		ImagesDir:         imagesDir,
		FrameCount:        3,
		FPS:               30,
		BaseSize:          16,
		MinLandmarks:      3,
		MaxJobs:           2,
		SessionTTL:        time.Minute,
		RequestsPerMinute: 0, // disabled for tests
		JobStartPerMinute: 600,
	}

	reg := session.NewRegistry(cfg.SessionTTL)
	tracer := noop.NewTracerProvider().Tracer("test")
	seq := pipeline.NewSequencer(context.Background(), reg, landmarks.NopDetector{}, gradcam.StubClassifier{}, resultOnlyAssembler{}, tracer, pipeline.Config{
		FrameCount:   cfg.FrameCount,
		BaseSize:     cfg.BaseSize,
		MinLandmarks: cfg.MinLandmarks,
		MaxJobs:      cfg.MaxJobs,
	})

	lib := library.New(imagesDir, "/images")
	require.NoError(t, lib.Scan())

	return NewServer(cfg, seq, reg, lib), cfg
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)
	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestCategories(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/categories", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Categories []string `json:"categories"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, []string{"cats"}, body.Categories)
}

func TestRandomImages(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/random-images", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Success  bool   `json:"success"`
		Category string `json:"category"`
		Image1   string `json:"image1"`
		Image2   string `json:"image2"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Success)
	require.Equal(t, "cats", body.Category)
	require.NotEqual(t, body.Image1, body.Image2)
	require.True(t, strings.HasPrefix(body.Image1, "/images/cats/"))
}

func TestRandomImagesUnknownCategory(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/random-images?category=dogs", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartMorphValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	cases := []struct {
		name string
		body string
		code int
	}{
		{"bad json", "{", http.StatusBadRequest},
		{"missing fields", `{"image1_url":"/images/cats/a.png"}`, http.StatusBadRequest},
		{"nonexistent file", `{"image1_url":"/images/cats/a.png","image2_url":"/images/cats/zzz.png"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/morph", strings.NewReader(tc.body))
			srv.Router().ServeHTTP(rec, req)
			require.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestStartMorphAndFetchSession(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	body := `{"image1_url":"/images/cats/a.png","image2_url":"/images/cats/b.png"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/morph", strings.NewReader(body)))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted struct {
		Success   bool   `json:"success"`
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	require.True(t, accepted.Success)
	require.NotEmpty(t, accepted.SessionID)

	require.Eventually(t, func() bool {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/session/"+accepted.SessionID, nil))
		if rec.Code != http.StatusOK {
			return false
		}
		var view session.View
		if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
			return false
		}
		return view.State == session.StateComplete
	}, 10*time.Second, 50*time.Millisecond)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/session/"+accepted.SessionID, nil))
	var view session.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.NotNil(t, view.Result)
	require.Equal(t, 3, view.Result.FrameCount)
	require.Equal(t, "blend", view.Result.MorphMode)
}

func TestSessionNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/session/unknown", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProgressNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/progress/unknown", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProgressStreamsUntilTerminal(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body := `{"image1_url":"/images/cats/a.png","image2_url":"/images/cats/b.png"}`
	resp, err := http.Post(ts.URL+"/api/morph", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	var accepted struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
	require.NoError(t, resp.Body.Close())

	stream, err := http.Get(ts.URL + "/api/progress/" + accepted.SessionID)
	require.NoError(t, err)
	defer stream.Body.Close() //nolint:errcheck
	require.Equal(t, "text/event-stream", stream.Header.Get("Content-Type"))

	var events []session.Event
	scanner := bufio.NewScanner(stream.Body)
	for scanner.Scan() {
		line := scanner.Bytes()
		if !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}
		var ev session.Event
		require.NoError(t, json.Unmarshal(bytes.TrimPrefix(line, []byte("data: ")), &ev))
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())

	require.NotEmpty(t, events, "stream must carry at least the terminal event")
	last := events[len(events)-1]
	require.Equal(t, session.EventComplete, last.Kind)
	require.NotNil(t, last.Result)
	for _, ev := range events[:len(events)-1] {
		require.Equal(t, session.EventStage, ev.Kind)
	}
}

func TestArtifactServerNoListings(t *testing.T) {
	srv, cfg := newTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.OutputDir, "x_morph.mp4"), []byte("mp4"), 0o644))

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/videos/x_morph.mp4", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/videos/", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobRateLimit(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.jobLimiter.SetLimit(0) // exhaust immediately after the initial burst
	router := srv.Router()

	body := `{"image1_url":"/images/cats/a.png","image2_url":"/images/cats/b.png"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/morph", strings.NewReader(body)))
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/morph", strings.NewReader(body)))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestJobRateLimitSparedByRejectedRequests(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.jobLimiter.SetLimit(0) // only the initial burst token is available
	router := srv.Router()

	// A request for a missing image is rejected without spending the token.
	bad := `{"image1_url":"/images/cats/nope.png","image2_url":"/images/cats/b.png"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/morph", strings.NewReader(bad)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	good := `{"image1_url":"/images/cats/a.png","image2_url":"/images/cats/b.png"}`
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/morph", strings.NewReader(good)))
	require.Equal(t, http.StatusAccepted, rec.Code)
}
