package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/xaimorph/morphd/internal/imaging"
	"github.com/xaimorph/morphd/internal/library"
	"github.com/xaimorph/morphd/internal/log"
	"github.com/xaimorph/morphd/internal/pipeline"
)

type morphRequest struct {
	Image1URL string `json:"image1_url"`
	Image2URL string `json:"image2_url"`
}

func (s *Server) handleStartMorph(w http.ResponseWriter, r *http.Request) {
	var req morphRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Image1URL == "" || req.Image2URL == "" {
		writeError(w, http.StatusBadRequest, "image1_url and image2_url are required")
		return
	}
	source := s.resolveImageRef(req.Image1URL)
	target := s.resolveImageRef(req.Image2URL)
	if err := imaging.ValidateRef(source); err != nil {
		writeError(w, http.StatusBadRequest, "image1_url: "+err.Error())
		return
	}
	if err := imaging.ValidateRef(target); err != nil {
		writeError(w, http.StatusBadRequest, "image2_url: "+err.Error())
		return
	}

	// The token is taken last so rejected requests never burn quota.
	if !s.jobLimiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "job rate limit exceeded")
		return
	}

	id, err := s.sequencer.Start(r.Context(), source, target)
	if err != nil {
		if errors.Is(err, pipeline.ErrBusy) {
			writeError(w, http.StatusTooManyRequests, "all job slots are busy")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Info().
		Str(log.FieldSessionID, id).
		Msg("morph job accepted")
	writeJSON(w, http.StatusAccepted, map[string]any{
		"success":    true,
		"session_id": id,
	})
}

// resolveImageRef maps corpus URLs back to their on-disk paths. Anything
// else (absolute paths, http URLs) passes through for the loader to judge.
func (s *Server) resolveImageRef(ref string) string {
	if rest, ok := strings.CutPrefix(ref, "/images/"); ok {
		return filepath.Join(s.cfg.ImagesDir, filepath.FromSlash(rest))
	}
	return ref
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	view, err := s.registry.Get(id)
	if err != nil {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"categories": s.library.Categories(),
	})
}

func (s *Server) handleRandomImages(w http.ResponseWriter, r *http.Request) {
	a, b, err := s.library.RandomPair(r.URL.Query().Get("category"))
	if err != nil {
		code := http.StatusNotFound
		if errors.Is(err, library.ErrUnknownCategory) {
			code = http.StatusBadRequest
		}
		writeError(w, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"category": a.Category,
		"image1":   a.URL,
		"image2":   b.URL,
	})
}

// artifactServer serves generated videos and corpus images. Directory
// listings are disabled.
func artifactServer(root string) http.Handler {
	fs := http.FileServer(http.Dir(root))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") || r.URL.Path == "" {
			writeNotFound(w)
			return
		}
		fs.ServeHTTP(w, r)
	})
}
