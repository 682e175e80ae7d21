// Package library indexes the corpus of sample images the UI offers for
// morphing. Images live in category subdirectories under one root; the
// index is rebuilt on demand and kept fresh by a filesystem watcher.
package library

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/xaimorph/morphd/internal/log"
)

var (
	// ErrUnknownCategory is returned when the requested category has no images.
	ErrUnknownCategory = errors.New("library: unknown category")
	// ErrNotEnoughImages is returned when a category cannot yield a distinct pair.
	ErrNotEnoughImages = errors.New("library: category needs at least two images")
)

// Image is one corpus entry. Path is the on-disk location usable as a
// pipeline image reference; URL is where the static file server exposes it.
type Image struct {
	Category string `json:"category"`
	Name     string `json:"name"`
	Path     string `json:"-"`
	URL      string `json:"url"`
}

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
}

// Library is the scanned image corpus. Safe for concurrent use; Scan swaps
// the index atomically under the write lock.
type Library struct {
	root    string
	baseURL string

	mu         sync.RWMutex
	categories map[string][]Image
}

// New builds an unscanned library over root. baseURL is the URL prefix the
// static handler serves the root under, e.g. "/images".
func New(root, baseURL string) *Library {
	return &Library{
		root:       root,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		categories: make(map[string][]Image),
	}
}

// Scan rebuilds the index from disk. Each immediate subdirectory of the
// root is a category; unreadable entries are skipped, not fatal.
func (l *Library) Scan() error {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		return fmt.Errorf("library: read root %s: %w", l.root, err)
	}

	logger := log.WithComponent("library")
	fresh := make(map[string][]Image)
	total := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		cat := e.Name()
		files, err := os.ReadDir(filepath.Join(l.root, cat))
		if err != nil {
			logger.Warn().Err(err).Str("category", cat).Msg("skipping unreadable category")
			continue
		}
		var imgs []Image
		for _, f := range files {
			if f.IsDir() || !imageExts[strings.ToLower(filepath.Ext(f.Name()))] {
				continue
			}
			imgs = append(imgs, Image{
				Category: cat,
				Name:     f.Name(),
				Path:     filepath.Join(l.root, cat, f.Name()),
				URL:      l.baseURL + "/" + cat + "/" + f.Name(),
			})
		}
		if len(imgs) > 0 {
			sort.Slice(imgs, func(i, j int) bool { return imgs[i].Name < imgs[j].Name })
			fresh[cat] = imgs
			total += len(imgs)
		}
	}

	l.mu.Lock()
	l.categories = fresh
	l.mu.Unlock()

	logger.Info().Int("categories", len(fresh)).Int("images", total).Msg("library scanned")
	return nil
}

// Categories lists the indexed category names in sorted order.
func (l *Library) Categories() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.categories))
	for c := range l.categories {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Len reports the total number of indexed images.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, imgs := range l.categories {
		n += len(imgs)
	}
	return n
}

// RandomPair picks two distinct images from the same category. An empty
// category means any category with at least two images.
func (l *Library) RandomPair(category string) (Image, Image, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if category == "" {
		eligible := make([]string, 0, len(l.categories))
		for c, imgs := range l.categories {
			if len(imgs) >= 2 {
				eligible = append(eligible, c)
			}
		}
		if len(eligible) == 0 {
			return Image{}, Image{}, ErrNotEnoughImages
		}
		sort.Strings(eligible)
		category = eligible[rand.IntN(len(eligible))]
	}

	imgs, ok := l.categories[category]
	if !ok {
		return Image{}, Image{}, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}
	if len(imgs) < 2 {
		return Image{}, Image{}, fmt.Errorf("%w: %s", ErrNotEnoughImages, category)
	}

	i := rand.IntN(len(imgs))
	j := rand.IntN(len(imgs) - 1)
	if j >= i {
		j++
	}
	return imgs[i], imgs[j], nil
}
