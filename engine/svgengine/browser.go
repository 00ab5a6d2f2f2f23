package svgengine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/flanksource/docmorph/errors"
)

// BrowserConverter renders SVG in headless Chromium through playwright,
// giving full CSS, filter and font support. The browser starts lazily on the
// first conversion and is reused until Close.
type BrowserConverter struct {
	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
}

func NewBrowserConverter() *BrowserConverter { return &BrowserConverter{} }

func (c *BrowserConverter) Name() string { return "browser" }

// Available checks for an installed playwright driver without starting it.
// Environments without node never get the browser converter.
func (c *BrowserConverter) Available() bool {
	if os.Getenv("DOCMORPH_DISABLE_BROWSER") != "" {
		return false
	}
	_, err := exec.LookPath("node")
	return err == nil
}

func (c *BrowserConverter) Formats() []string { return []string{"png", "jpg", "jpeg", "pdf"} }

func (c *BrowserConverter) Convert(ctx context.Context, svgPath, outPath string, opts ConvertOptions) error {
	svgContent, err := os.ReadFile(svgPath)
	if err != nil {
		return errors.Wrap(errors.ErrCodeRendering, err, "read %s", svgPath)
	}

	page, err := c.newPage()
	if err != nil {
		return err
	}
	defer page.Close() //nolint:errcheck

	html := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><style>body{margin:0;padding:0}svg{display:block}</style></head>
<body>%s</body>
</html>`, string(svgContent))

	if err := page.SetContent(html); err != nil {
		return errors.Wrap(errors.ErrCodeRendering, err, "load svg into browser")
	}
	if opts.Width > 0 && opts.Height > 0 {
		if err := page.SetViewportSize(opts.Width, opts.Height); err != nil {
			return errors.Wrap(errors.ErrCodeRendering, err, "set viewport")
		}
	}

	switch format := strings.ToLower(opts.Format); format {
	case "png", "":
		_, err = page.Screenshot(playwright.PageScreenshotOptions{
			Path: &outPath,
			Type: playwright.ScreenshotTypePng,
		})
	case "jpg", "jpeg":
		_, err = page.Screenshot(playwright.PageScreenshotOptions{
			Path: &outPath,
			Type: playwright.ScreenshotTypeJpeg,
		})
	case "pdf":
		_, err = page.PDF(playwright.PagePdfOptions{Path: &outPath})
	default:
		return errors.New(errors.ErrCodeRendering, "browser converter does not support format %q", format)
	}
	if err != nil {
		return errors.Wrap(errors.ErrCodeRendering, err, "capture %s", outPath)
	}
	return nil
}

func (c *BrowserConverter) newPage() (playwright.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browser == nil {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			return nil, errors.Wrap(errors.ErrCodeEngineInit, err, "install chromium")
		}
		pw, err := playwright.Run()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeEngineInit, err, "start playwright")
		}
		browser, err := pw.Chromium.Launch()
		if err != nil {
			_ = pw.Stop()
			return nil, errors.Wrap(errors.ErrCodeEngineInit, err, "launch chromium")
		}
		c.pw = pw
		c.browser = browser
	}
	page, err := c.browser.NewPage()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeRendering, err, "open browser page")
	}
	return page, nil
}

// Close shuts the shared browser down.
func (c *BrowserConverter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browser != nil {
		if err := c.browser.Close(); err != nil {
			return err
		}
		c.browser = nil
	}
	if c.pw != nil {
		if err := c.pw.Stop(); err != nil {
			return err
		}
		c.pw = nil
	}
	return nil
}
