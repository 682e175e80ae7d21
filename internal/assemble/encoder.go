// Package assemble turns the pipeline's per-frame outputs into the final
// session artifacts: two encoded videos, the analysis timeline, and the
// persisted analysis document.
package assemble

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xaimorph/morphd/internal/log"
)

// Encoder runs ffmpeg to encode a frame sequence into an MP4 file. Frames
// are streamed over stdin as raw RGBA so no intermediate files are written.
type Encoder struct {
	BinPath string
	FPS     int
}

// NewEncoder builds an encoder around the given ffmpeg binary.
func NewEncoder(binPath string, fps int) *Encoder {
	if binPath == "" {
		binPath = "ffmpeg"
	}
	return &Encoder{BinPath: binPath, FPS: fps}
}

// args builds the ffmpeg invocation for a raw RGBA pipe of the given
// geometry. yuv420p output keeps the files playable in browsers.
func (e *Encoder) args(w, h int, out string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", w, h),
		"-r", strconv.Itoa(e.FPS),
		"-i", "-",
		"-an",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		out,
	}
}

// Encode writes the frame sequence to path. The file appears atomically:
// ffmpeg writes a temporary sibling which is renamed only on success, so a
// failed encode never leaves a partial artifact behind.
func (e *Encoder) Encode(ctx context.Context, frames []*image.RGBA, path string) error {
	if len(frames) == 0 {
		return fmt.Errorf("encode %s: no frames", filepath.Base(path))
	}
	b := frames[0].Bounds()
	w, h := b.Dx(), b.Dy()
	for i, f := range frames {
		if f.Bounds().Dx() != w || f.Bounds().Dy() != h {
			return fmt.Errorf("encode %s: frame %d geometry mismatch", filepath.Base(path), i)
		}
	}

	tmp := path + ".part"
	cmd := exec.CommandContext(ctx, e.BinPath, e.args(w, h, tmp)...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("encode %s: stdin pipe: %w", filepath.Base(path), err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("encode %s: start %s: %w", filepath.Base(path), e.BinPath, err)
	}

	writeErr := func() error {
		defer stdin.Close() //nolint:errcheck
		for _, f := range frames {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := stdin.Write(f.Pix); err != nil {
				return err
			}
		}
		return nil
	}()

	if err := cmd.Wait(); err != nil {
		_ = os.Remove(tmp)
		logger := log.WithComponent("assemble")
		logger.Error().
			Err(err).
			Str(log.FieldPath, path).
			Str("stderr", tail(stderr.String(), 512)).
			Msg("ffmpeg encode failed")
		return fmt.Errorf("encode %s: ffmpeg: %w", filepath.Base(path), err)
	}
	if writeErr != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("encode %s: write frames: %w", filepath.Base(path), writeErr)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return nil
}

// tail returns the last n bytes of s, trimmed for log output.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
