package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xaimorph/morphd/internal/log"
	"github.com/xaimorph/morphd/internal/session"
)

// handleProgress streams a session's progress as server-sent events. The
// stream ends after the terminal event, or when the client disconnects.
// A client attaching after completion receives only the terminal event.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	reader, err := s.registry.Attach(id)
	if err != nil {
		writeNotFound(w)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger := log.WithComponentFromContext(r.Context(), "api").With().
		Str(log.FieldSessionID, id).Logger()

	ctx := r.Context()
	for {
		ev, err := reader.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, session.ErrEndOfStream):
			case errors.Is(err, ctx.Err()):
				logger.Debug().Msg("progress client disconnected")
			default:
				logger.Warn().Err(err).Msg("progress stream aborted")
			}
			return
		}

		data, err := json.Marshal(ev)
		if err != nil {
			logger.Error().Err(err).Msg("could not encode progress event")
			return
		}
		if _, err := w.Write([]byte("data: ")); err != nil {
			return
		}
		if _, err := w.Write(data); err != nil {
			return
		}
		if _, err := w.Write([]byte("\n\n")); err != nil {
			return
		}
		flusher.Flush()

		if ev.IsTerminal() {
			return
		}
	}
}
