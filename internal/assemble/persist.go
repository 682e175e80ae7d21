// SPDX-License-Identifier: MIT
package assemble

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"github.com/xaimorph/morphd/internal/gradcam"
	"github.com/xaimorph/morphd/internal/session"
)

// Assembler produces a session's final artifacts under OutputDir. Video
// files are named by session id so /videos URLs map directly to disk.
type Assembler struct {
	Encoder   *Encoder
	OutputDir string
}

// Assemble encodes both videos, persists the analysis document, and returns
// the immutable result. Any persistence failure fails the whole job.
func (a *Assembler) Assemble(ctx context.Context, sessionID, mode string, alphas []float64, frames, overlays []*image.RGBA, anns []gradcam.Annotation) (*session.Result, error) {
	if err := os.MkdirAll(a.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("assemble: %w", err)
	}

	morphName := sessionID + "_morph.mp4"
	attnName := sessionID + "_gradcam.mp4"

	if err := a.Encoder.Encode(ctx, frames, filepath.Join(a.OutputDir, morphName)); err != nil {
		return nil, err
	}
	if err := a.Encoder.Encode(ctx, overlays, filepath.Join(a.OutputDir, attnName)); err != nil {
		return nil, err
	}

	timeline := Timeline(alphas, anns)
	res := &session.Result{
		SessionID:      sessionID,
		MorphVideo:     "/videos/" + morphName,
		AttentionVideo: "/videos/" + attnName,
		MorphMode:      mode,
		FrameCount:     len(frames),
		Timeline:       timeline,
		Summary:        Summarize(timeline),
	}

	if err := writeAnalysis(filepath.Join(a.OutputDir, sessionID+"_analysis.json"), res); err != nil {
		return nil, err
	}
	return res, nil
}

// writeAnalysis persists the analysis document atomically. Readers either
// see the previous file or the complete new one, never a torn write.
func writeAnalysis(path string, res *session.Result) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("assemble: marshal analysis: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("assemble: write analysis: %w", err)
	}
	return nil
}
