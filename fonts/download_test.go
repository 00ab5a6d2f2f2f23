package fonts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"
)

func TestEmptyCacheDirDefaultsToTempDir(t *testing.T) {
	d := NewDownloader("http://example.invalid/fonts", "")
	assert.True(t, filepath.IsAbs(d.cacheDir))
	assert.True(t, strings.HasPrefix(d.cacheDir, os.TempDir()))
}

func TestFetchNeverWritesToWorkingDirectory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(goregular.TTF)
	}))
	defer srv.Close()

	d := NewDownloader(srv.URL, "")
	d.cacheDir = filepath.Join(t.TempDir(), "cache")

	path, ok, err := d.Fetch(context.Background(), "Some Family")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, d.cacheDir, filepath.Dir(path), "fetched fonts stay inside the cache dir")

	if _, statErr := os.Stat(filepath.Base(path)); statErr == nil {
		t.Fatalf("fetched font %s leaked into the working directory", filepath.Base(path))
	}
}

func TestFetchMissReportedWithoutError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	d := NewDownloader(srv.URL, t.TempDir())
	_, ok, err := d.Fetch(context.Background(), "Nope Sans")
	require.NoError(t, err)
	assert.False(t, ok)
}
