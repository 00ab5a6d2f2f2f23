package fonts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/flanksource/commons/logger"

	"github.com/flanksource/docmorph/errors"
)

// Downloader fetches font files by family name from a configured HTTP
// endpoint into a local cache directory. A failed fetch is reported to the
// caller as a miss, not an error; only local I/O failures raise.
type Downloader struct {
	baseURL  string
	cacheDir string
	client   *http.Client
}

// NewDownloader creates a downloader. baseURL is the endpoint serving
// {base}/{family}.ttf; empty disables downloading entirely. An empty
// cacheDir falls back to a directory under the system temp dir so fetched
// fonts never land in the working directory.
func NewDownloader(baseURL, cacheDir string) *Downloader {
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "docmorph-fonts")
	}
	return &Downloader{
		baseURL:  baseURL,
		cacheDir: cacheDir,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Enabled reports whether a download endpoint is configured.
func (d *Downloader) Enabled() bool { return d != nil && d.baseURL != "" }

// Fetch downloads the family's TTF into the cache dir. The boolean reports
// whether the font was obtained; a 404 or network failure returns (_, false,
// nil). A cache-dir write failure is a FONT_STORE_ERROR.
func (d *Downloader) Fetch(ctx context.Context, family string) (string, bool, error) {
	if !d.Enabled() {
		return "", false, nil
	}

	target := filepath.Join(d.cacheDir, normalizeFontName(family)+".ttf")
	if _, err := os.Stat(target); err == nil {
		return target, true, nil
	}

	fontURL := fmt.Sprintf("%s/%s.ttf", d.baseURL, url.PathEscape(family))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fontURL, nil)
	if err != nil {
		logger.Debugf("font download request for %q invalid: %v", family, err)
		return "", false, nil
	}

	resp, err := d.client.Do(req)
	if err != nil {
		logger.Debugf("font download for %q failed: %v", family, err)
		return "", false, nil
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		logger.Debugf("font download for %q returned %d", family, resp.StatusCode)
		return "", false, nil
	}

	if err := os.MkdirAll(d.cacheDir, 0o755); err != nil {
		return "", false, errors.Wrap(errors.ErrCodeFontStore, err, "create font cache dir")
	}
	out, err := os.Create(target)
	if err != nil {
		return "", false, errors.Wrap(errors.ErrCodeFontStore, err, "create %s", target)
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = os.Remove(target)
		return "", false, errors.Wrap(errors.ErrCodeFontStore, err, "write %s", target)
	}

	logger.Infof("downloaded font %q to %s", family, target)
	return target, true, nil
}
