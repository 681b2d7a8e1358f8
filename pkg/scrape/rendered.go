package scrape

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/0x0shephard/h200/pkg/config"
	"github.com/0x0shephard/h200/pkg/logging"
)

const (
	renderedLoadTimeout = 60 * time.Second

	// The pipeline has no control over the target page's load lifecycle, so
	// a fixed settle delay stands in for an event-driven ready signal.
	renderedSettleDelay = 5 * time.Second
)

// RenderedStrategy loads the provider page in a headless browser, waits a
// fixed settle delay for client-side rendering, and scans the resulting body
// text. It is the fallback for pages whose pricing table only exists after a
// client render step.
type RenderedStrategy struct {
	logger *logging.Logger

	settleDelay time.Duration
}

// NewRenderedStrategy creates the rendered fetch strategy.
func NewRenderedStrategy(logger *logging.Logger) *RenderedStrategy {
	return &RenderedStrategy{
		logger:      logger,
		settleDelay: renderedSettleDelay,
	}
}

// Name returns the strategy name.
func (s *RenderedStrategy) Name() string { return "rendered" }

// Attempt renders the provider page and scans its visible text.
func (s *RenderedStrategy) Attempt(ctx context.Context, cfg config.ProviderConfig) (RawExtraction, error) {
	ctx, cancel := context.WithTimeout(ctx, renderedLoadTimeout)
	defer cancel()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.WindowSize(1920, 1080),
		)...,
	)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	s.logger.Debug("Loading page in headless browser", "provider", cfg.Name, "url", cfg.URL)

	var bodyText string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(cfg.URL),
		chromedp.Sleep(s.settleDelay),
		chromedp.Evaluate(`document.body.innerText`, &bodyText),
	)
	if err != nil {
		return RawExtraction{}, fmt.Errorf("rendered fetch failed: %w", err)
	}

	s.logger.Debug("Rendered page", "provider", cfg.Name, "strategy", s.Name(), "content_length", len(bodyText))

	return extractFromText(bodyText, cfg, s.Name())
}
