package render

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// ChromeRenderer prints HTML to PDF using headless Chrome.
type ChromeRenderer struct {
	timeout time.Duration
	logger  *slog.Logger
}

func NewChromeRenderer(timeout time.Duration, logger *slog.Logger) *ChromeRenderer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChromeRenderer{timeout: timeout, logger: logger}
}

// Available reports whether a chromium binary can be found.
func (r *ChromeRenderer) Available() bool {
	for _, name := range []string{"chromium-browser", "chromium", "google-chrome"} {
		if _, err := exec.LookPath(name); err == nil {
			return true
		}
	}
	return false
}

func (r *ChromeRenderer) Render(ctx context.Context, req Request) (Artifact, error) {
	if strings.TrimSpace(req.MainContent) == "" {
		return Artifact{}, ErrEmptyContent
	}
	if !r.Available() {
		return Artifact{}, ErrChromeMissing
	}
	started := time.Now()

	html, err := renderHTML(req)
	if err != nil {
		return Artifact{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	var pdfData []byte
	err = chromedp.Run(taskCtx,
		chromedp.Navigate("data:text/html;charset=utf-8,"+percentEncodeForDataURL(html)),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdfData, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(8.27). // A4
				WithPaperHeight(11.69).
				WithPreferCSSPageSize(true).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return Artifact{}, fmt.Errorf("chrome pdf generation failed: %w", err)
	}

	words := CountWords(req.MainContent)
	artifact := Artifact{
		Data:      pdfData,
		FileName:  FileName(req),
		MimeType:  "application/pdf",
		SizeBytes: int64(len(pdfData)),
		WordCount: words,
		PageCount: EstimatePages(words),
		Duration:  time.Since(started),
	}
	r.logger.Debug("rendered pdf", "file", artifact.FileName, "bytes", artifact.SizeBytes, "duration", artifact.Duration)
	return artifact, nil
}
