package library

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func seedCorpus(t *testing.T, cats map[string][]string) string {
	t.Helper()
	root := t.TempDir()
	for cat, names := range cats {
		require.NoError(t, os.MkdirAll(filepath.Join(root, cat), 0o755))
		for _, n := range names {
			require.NoError(t, os.WriteFile(filepath.Join(root, cat, n), []byte("img"), 0o644))
		}
	}
	return root
}

func TestScanIndexesCategories(t *testing.T) {
	root := seedCorpus(t, map[string][]string{
		"cats":  {"a.jpg", "b.png", "notes.txt"},
		"dogs":  {"c.jpeg"},
		"empty": {"readme.md"},
	})
	lib := New(root, "/images/")
	require.NoError(t, lib.Scan())

	require.Equal(t, []string{"cats", "dogs"}, lib.Categories(), "extension filter and empty-category pruning")
	require.Equal(t, 3, lib.Len())
}

func TestScanBuildsURLs(t *testing.T) {
	root := seedCorpus(t, map[string][]string{"cats": {"a.jpg", "b.jpg"}})
	lib := New(root, "/images")
	require.NoError(t, lib.Scan())

	a, b, err := lib.RandomPair("cats")
	require.NoError(t, err)
	require.Contains(t, []string{"/images/cats/a.jpg", "/images/cats/b.jpg"}, a.URL)
	require.FileExists(t, a.Path)
	require.FileExists(t, b.Path)
}

func TestRandomPairDistinct(t *testing.T) {
	root := seedCorpus(t, map[string][]string{"cats": {"a.jpg", "b.jpg", "c.jpg"}})
	lib := New(root, "/images")
	require.NoError(t, lib.Scan())

	for i := 0; i < 50; i++ {
		a, b, err := lib.RandomPair("cats")
		require.NoError(t, err)
		require.NotEqual(t, a.Name, b.Name)
		require.Equal(t, "cats", a.Category)
		require.Equal(t, "cats", b.Category)
	}
}

func TestRandomPairAnyCategory(t *testing.T) {
	root := seedCorpus(t, map[string][]string{
		"solo": {"only.jpg"},
		"cats": {"a.jpg", "b.jpg"},
	})
	lib := New(root, "/images")
	require.NoError(t, lib.Scan())

	for i := 0; i < 20; i++ {
		a, b, err := lib.RandomPair("")
		require.NoError(t, err)
		require.Equal(t, "cats", a.Category, "single-image categories are never paired")
		require.Equal(t, a.Category, b.Category)
	}
}

func TestRandomPairErrors(t *testing.T) {
	root := seedCorpus(t, map[string][]string{"solo": {"only.jpg"}})
	lib := New(root, "/images")
	require.NoError(t, lib.Scan())

	_, _, err := lib.RandomPair("nope")
	require.ErrorIs(t, err, ErrUnknownCategory)

	_, _, err = lib.RandomPair("solo")
	require.ErrorIs(t, err, ErrNotEnoughImages)

	_, _, err = lib.RandomPair("")
	require.ErrorIs(t, err, ErrNotEnoughImages)
}

func TestScanMissingRoot(t *testing.T) {
	lib := New(filepath.Join(t.TempDir(), "absent"), "/images")
	require.Error(t, lib.Scan())
}

func TestWatchPicksUpNewImages(t *testing.T) {
	root := seedCorpus(t, map[string][]string{"cats": {"a.jpg", "b.jpg"}})
	lib := New(root, "/images")
	require.NoError(t, lib.Scan())
	require.Equal(t, 2, lib.Len())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = lib.Watch(ctx)
	}()

	time.Sleep(100 * time.Millisecond) // let the watcher register
	require.NoError(t, os.WriteFile(filepath.Join(root, "cats", "c.jpg"), []byte("img"), 0o644))

	require.Eventually(t, func() bool { return lib.Len() == 3 }, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}
