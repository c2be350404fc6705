package export

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const pdfTimeout = 30 * time.Second

// chromiumBinaries are tried in order when looking for a headless browser.
var chromiumBinaries = []string{"chromium-browser", "chromium", "google-chrome"}

var lookPath = exec.LookPath

// pdfLayout is the printed page of a documentation export, in inches.
type pdfLayout struct {
	Width, Height float64
	Margin        float64
}

// A4 portrait with a 2 cm margin.
var documentationLayout = pdfLayout{Width: 8.27, Height: 11.69, Margin: 0.79}

func findChromium() (string, error) {
	for _, name := range chromiumBinaries {
		if path, err := lookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: no chromium binary in PATH", ErrPDFDependencyMissing)
}

// exportPDF prints the rendered documentation page with headless Chrome.
func exportPDF(parent context.Context, html, title string) (*Result, error) {
	browser, err := findChromium()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(parent, pdfTimeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(browser),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	layout := documentationLayout
	var data []byte
	err = chromedp.Run(browserCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return fmt.Errorf("frame tree: %w", err)
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			data, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(layout.Width).
				WithPaperHeight(layout.Height).
				WithMarginTop(layout.Margin).
				WithMarginBottom(layout.Margin).
				WithMarginLeft(layout.Margin).
				WithMarginRight(layout.Margin).
				WithDisplayHeaderFooter(false).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("print documentation pdf: %w", err)
	}

	return &Result{
		Data:     data,
		Filename: sanitizeFilename(title) + ".pdf",
		MimeType: "application/pdf",
	}, nil
}

const maxFilenameLength = 50

// sanitizeFilename turns a project name into a download file stem. Spaces
// become dashes; anything outside [A-Za-z0-9_-] is dropped.
func sanitizeFilename(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('-')
		}
		if b.Len() == maxFilenameLength {
			break
		}
	}
	if b.Len() == 0 {
		return "documentation"
	}
	return b.String()
}
