// Package pipeline drives a morph job through its stages: load the image
// pair, detect landmarks, interpolate frames, annotate classifier attention,
// and assemble the final artifacts. One Sequencer instance serves the whole
// process; each job runs on its own goroutine with its own session handle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/xaimorph/morphd/internal/gradcam"
	"github.com/xaimorph/morphd/internal/imaging"
	"github.com/xaimorph/morphd/internal/landmarks"
	"github.com/xaimorph/morphd/internal/log"
	"github.com/xaimorph/morphd/internal/metrics"
	"github.com/xaimorph/morphd/internal/morph"
	"github.com/xaimorph/morphd/internal/session"
)

// ErrBusy is returned when the concurrent job limit is reached. Callers
// should surface it as backpressure, not as a job failure.
var ErrBusy = errors.New("pipeline: job limit reached")

// Assembler is the final stage's contract, satisfied by assemble.Assembler.
type Assembler interface {
	Assemble(ctx context.Context, sessionID, mode string, alphas []float64, frames, overlays []*image.RGBA, anns []gradcam.Annotation) (*session.Result, error)
}

// Config bounds one job's work.
type Config struct {
	FrameCount   int
	BaseSize     int
	MinLandmarks int
	MaxJobs      int64
}

// Sequencer owns job admission and execution.
type Sequencer struct {
	registry  *session.Registry
	detector  landmarks.Detector
	annotator *gradcam.Annotator
	assembler Assembler
	tracer    trace.Tracer
	cfg       Config
	sem       *semaphore.Weighted

	// baseCtx is the daemon's root context. Jobs derive from it, not from
	// the submitting request: shutdown cancels jobs, disconnects do not.
	baseCtx context.Context
}

// NewSequencer wires the pipeline's collaborators. Jobs run under baseCtx.
func NewSequencer(baseCtx context.Context, reg *session.Registry, det landmarks.Detector, cls gradcam.Classifier, asm Assembler, tracer trace.Tracer, cfg Config) *Sequencer {
	if cfg.MaxJobs <= 0 {
		cfg.MaxJobs = 1
	}
	return &Sequencer{
		registry:  reg,
		detector:  det,
		annotator: &gradcam.Annotator{Classifier: cls},
		assembler: asm,
		tracer:    tracer,
		cfg:       cfg,
		sem:       semaphore.NewWeighted(cfg.MaxJobs),
		baseCtx:   baseCtx,
	}
}

// Start admits a new job and returns its session id. The job itself runs in
// the background and outlives the caller's context: a client that fires a
// request and disconnects still gets a completed session.
func (s *Sequencer) Start(ctx context.Context, source, target string) (string, error) {
	if err := imaging.ValidateRef(source); err != nil {
		return "", fmt.Errorf("source: %w", err)
	}
	if err := imaging.ValidateRef(target); err != nil {
		return "", fmt.Errorf("target: %w", err)
	}
	if !s.sem.TryAcquire(1) {
		return "", ErrBusy
	}

	h := s.registry.Create(source, target)
	metrics.JobsStartedTotal.Inc()

	jobCtx := log.ContextWithSessionID(s.baseCtx, h.ID())
	if id := log.RequestIDFromContext(ctx); id != "" {
		jobCtx = log.ContextWithRequestID(jobCtx, id)
	}
	logger := log.WithComponentFromContext(jobCtx, "pipeline")
	logger.Info().
		Str(log.FieldSource, source).
		Str(log.FieldTarget, target).
		Msg("job admitted")

	go func() {
		defer s.sem.Release(1)
		s.run(jobCtx, h)
	}()
	return h.ID(), nil
}

func (s *Sequencer) run(ctx context.Context, h *session.Handle) {
	logger := log.WithComponentFromContext(ctx, "pipeline")
	ctx, span := s.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(attribute.String("session.id", h.ID())))
	defer span.End()

	start := time.Now()
	res, stage, err := s.execute(ctx, h)
	if err != nil {
		logger.Error().Err(err).Str(log.FieldStage, stage).Msg("job failed")
		metrics.IncJobFailed(stage)
		span.RecordError(err)
		span.SetStatus(codes.Error, stage)
		if ferr := h.Fail(err.Error()); ferr != nil {
			logger.Error().Err(ferr).Msg("could not record job failure")
		}
		return
	}

	if err := h.Complete(res); err != nil {
		logger.Error().Err(err).Msg("could not record job completion")
		return
	}
	metrics.JobsCompletedTotal.Inc()
	logger.Info().
		Str(log.FieldMorphMode, res.MorphMode).
		Int(log.FieldFrames, res.FrameCount).
		Dur("elapsed", time.Since(start)).
		Msg("job complete")
}

// execute runs the stages in order. It returns the result on success, or
// the failing stage name and error. Detection never fails a job: it governs
// only which interpolation mode the morph stage uses.
func (s *Sequencer) execute(ctx context.Context, h *session.Handle) (*session.Result, string, error) {
	logger := log.WithComponentFromContext(ctx, "pipeline")

	var src, dst *image.RGBA
	err := s.runStage(ctx, h, session.StateLoading, "loading", func(ctx context.Context) error {
		var err error
		if src, err = imaging.Load(ctx, h.Source(), s.cfg.BaseSize); err != nil {
			return fmt.Errorf("load source: %w", err)
		}
		if dst, err = imaging.Load(ctx, h.Target(), s.cfg.BaseSize); err != nil {
			return fmt.Errorf("load target: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, "loading", err
	}

	mode := morph.ModeBlend
	var ptsA, ptsB []landmarks.Point
	var tris []landmarks.Triangle
	err = s.runStage(ctx, h, session.StateDetecting, "detecting", func(ctx context.Context) error {
		a, errA := s.detector.Detect(ctx, src)
		b, errB := s.detector.Detect(ctx, dst)
		if errA != nil || errB != nil || len(a) < s.cfg.MinLandmarks || len(b) < s.cfg.MinLandmarks || len(a) != len(b) {
			metrics.DetectorFallbackTotal.Inc()
			logger.Warn().
				AnErr("source_err", errA).
				AnErr("target_err", errB).
				Int("source_points", len(a)).
				Int("target_points", len(b)).
				Msg("unusable landmarks, falling back to blend")
			return nil
		}

		w, hg := src.Bounds().Dx(), src.Bounds().Dy()
		a = landmarks.WithBoundary(a, w, hg)
		b = landmarks.WithBoundary(b, w, hg)
		t, terr := landmarks.Triangulate(landmarks.Average(a, b))
		if terr != nil {
			metrics.DetectorFallbackTotal.Inc()
			logger.Warn().Err(terr).Msg("triangulation failed, falling back to blend")
			return nil
		}
		ptsA, ptsB, tris = a, b, t
		mode = morph.ModeLandmarkWarp
		return nil
	})
	if err != nil {
		return nil, "detecting", err
	}

	var frames []morph.Frame
	err = s.runStage(ctx, h, session.StateMorphing, "morphing", func(ctx context.Context) error {
		progress := func(done, total int) {
			if err := h.Progress("morph", done, total); err != nil {
				logger.Warn().Err(err).Msg("dropping morph progress event")
			}
		}
		var merr error
		if mode == morph.ModeLandmarkWarp {
			frames, merr = morph.Warp(ctx, src, dst, ptsA, ptsB, tris, s.cfg.FrameCount, progress)
		} else {
			frames, merr = morph.Blend(ctx, src, dst, s.cfg.FrameCount, progress)
		}
		if merr != nil {
			return merr
		}
		metrics.FramesMorphedTotal.WithLabelValues(mode).Add(float64(len(frames)))
		return nil
	})
	if err != nil {
		return nil, "morphing", err
	}

	var res *session.Result
	err = s.runStage(ctx, h, session.StateExplaining, "explaining", func(ctx context.Context) error {
		alphas := make([]float64, len(frames))
		images := make([]*image.RGBA, len(frames))
		overlays := make([]*image.RGBA, len(frames))
		anns := make([]gradcam.Annotation, len(frames))
		for i, f := range frames {
			anns[i] = s.annotator.Annotate(ctx, f.Index, f.Image)
			alphas[i] = f.Alpha
			images[i] = f.Image
			overlays[i] = anns[i].Overlay
			if err := h.Progress("gradcam", i+1, len(frames)); err != nil {
				logger.Warn().Err(err).Msg("dropping annotation progress event")
			}
		}

		var aerr error
		res, aerr = s.assembler.Assemble(ctx, h.ID(), mode, alphas, images, overlays, anns)
		return aerr
	})
	if err != nil {
		return nil, "explaining", err
	}
	return res, "", nil
}

// runStage advances the session state, emits the stage marker event, and
// records the stage's span and duration.
func (s *Sequencer) runStage(ctx context.Context, h *session.Handle, st session.State, name string, fn func(context.Context) error) error {
	from := h.State()
	if err := h.Transition(st); err != nil {
		return err
	}
	logger := log.WithComponentFromContext(ctx, "pipeline")
	logger.Info().
		Str(log.FieldOldState, string(from)).
		Str(log.FieldNewState, string(st)).
		Msg("stage transition")
	if err := h.Progress(name, 0, 0); err != nil {
		return err
	}

	ctx, span := s.tracer.Start(ctx, "stage."+name)
	defer span.End()

	t0 := time.Now()
	err := fn(ctx)
	metrics.ObserveStage(name, time.Since(t0).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, name)
	}
	return err
}
