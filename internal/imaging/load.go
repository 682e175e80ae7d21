// Package imaging loads source images from local paths or HTTP URLs and
// normalizes them to the pipeline's working resolution.
package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register PNG decoding
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// maxImageBytes caps remote downloads; anything larger is rejected rather
// than decoded.
const maxImageBytes = 32 << 20

var httpClient = &http.Client{Timeout: 15 * time.Second}

// ValidateRef checks an image reference synchronously without fetching it.
// Local paths must exist; URLs must be well-formed http(s).
func ValidateRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("image reference is empty")
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		u, err := url.Parse(ref)
		if err != nil || u.Host == "" {
			return fmt.Errorf("invalid image URL %q", ref)
		}
		return nil
	}
	info, err := os.Stat(ref)
	if err != nil {
		return fmt.Errorf("image not found: %s", ref)
	}
	if info.IsDir() {
		return fmt.Errorf("image reference is a directory: %s", ref)
	}
	return nil
}

// Load fetches and decodes an image reference and resizes it to a square
// working resolution. The result is always an *image.RGBA of size x size.
func Load(ctx context.Context, ref string, size int) (*image.RGBA, error) {
	data, err := fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", ref, err)
	}
	return Normalize(img, size), nil
}

func fetch(ctx context.Context, ref string) ([]byte, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
		if err != nil {
			return nil, fmt.Errorf("build request for %s: %w", ref, err)
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch image %s: %w", ref, err)
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch image %s: unexpected status %d", ref, resp.StatusCode)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
		if err != nil {
			return nil, fmt.Errorf("read image body %s: %w", ref, err)
		}
		if len(data) > maxImageBytes {
			return nil, fmt.Errorf("image %s exceeds %d byte limit", ref, maxImageBytes)
		}
		return data, nil
	}

	data, err := os.ReadFile(ref) // #nosec G304 -- refs are validated at job start
	if err != nil {
		return nil, fmt.Errorf("read image file %s: %w", ref, err)
	}
	return data, nil
}

// EncodeJPEG serializes an image for transport to external collaborators.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
