// -----------------------------------------------------------------------
// Chrome page driver - everything the capture session asks of the browser
// -----------------------------------------------------------------------

package capture

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/common"
)

// PageDriver is the capture code's view of the rendered page. The chromedp
// implementation is the only production driver; tests substitute a fake.
type PageDriver interface {
	Start(ctx context.Context) error
	Stop()
	Navigate(ctx context.Context, targetURL string) error
	AcceptConsent(ctx context.Context) (bool, error)
	InstallMutationObserver(ctx context.Context) error
	MutationGeneration(ctx context.Context) (int64, error)
	FeedHTML(ctx context.Context) (string, error)
	ScrollFeed(ctx context.Context) (atEnd bool, err error)
	DetailHTML(ctx context.Context) (string, error)
	CurrentURL(ctx context.Context) (string, error)
	PageTitle(ctx context.Context) (string, error)
}

const defaultOpTimeout = 30 * time.Second

// mutationObserverJS installs a counter-based observer on the results feed.
// The session polls the generation counter instead of receiving callbacks,
// which keeps the browser boundary pull-only.
const mutationObserverJS = `(() => {
	if (window.__mutationGen !== undefined && window.__mutationObserver) {
		return true;
	}
	window.__mutationGen = 0;
	const target = document.querySelector('div[role="feed"]') || document.body;
	window.__mutationObserver = new MutationObserver(() => { window.__mutationGen++; });
	window.__mutationObserver.observe(target, { childList: true, subtree: true, attributes: true });
	return true;
})()`

// consentJS clicks the cookie-consent button when the interstitial is
// shown. Returns whether a button was clicked.
const consentJS = `(() => {
	const labels = /accept all|i agree|reject all|alle akzeptieren/i;
	const button = [...document.querySelectorAll('button')].find(b =>
		labels.test(b.textContent || '') || labels.test(b.getAttribute('aria-label') || ''));
	if (button) { button.click(); return true; }
	return false;
})()`

// scrollFeedJS advances the results feed one viewport and reports whether
// the end-of-list marker is visible.
const scrollFeedJS = `(() => {
	const feed = document.querySelector('div[role="feed"]');
	if (!feed) { return true; }
	feed.scrollBy(0, feed.scrollHeight);
	return /reached the end of the list/i.test(feed.innerText || '');
})()`

const feedHTMLJS = `(() => {
	const feed = document.querySelector('div[role="feed"]');
	return feed ? feed.outerHTML : (document.body ? document.body.outerHTML : '');
})()`

const detailHTMLJS = `(() => {
	const panel = document.querySelector('div[role="main"]');
	return panel ? panel.outerHTML : '';
})()`

// stealthJS masks the most common headless-automation fingerprints before
// any page script runs a detection pass.
const stealthJS = `(() => {
	Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
	Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
	Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3] });
	window.chrome = window.chrome || { runtime: {} };
})()`

// ChromeDriver drives a single headless Chrome instance via chromedp.
type ChromeDriver struct {
	cfg    common.CaptureConfig
	logger arbor.ILogger

	browserCtx      context.Context
	browserCancel   context.CancelFunc
	allocatorCancel context.CancelFunc
}

// NewChromeDriver creates an unstarted driver.
func NewChromeDriver(cfg common.CaptureConfig, logger arbor.ILogger) *ChromeDriver {
	return &ChromeDriver{cfg: cfg, logger: logger}
}

// Start launches the browser process and verifies it responds.
func (d *ChromeDriver) Start(ctx context.Context) error {
	if d.browserCtx != nil {
		return fmt.Errorf("browser already started")
	}

	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("headless", d.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("excludeSwitches", "enable-automation"),
		chromedp.Flag("useAutomationExtension", false),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(d.cfg.UserAgent),
	)

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	startCtx, cancel := context.WithTimeout(browserCtx, defaultOpTimeout)
	defer cancel()

	if err := chromedp.Run(startCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocatorCancel()
		return fmt.Errorf("browser failed startup test: %w", err)
	}

	headers := network.Headers{"Accept-Language": "en-US,en;q=0.9"}
	if err := chromedp.Run(startCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(headers),
	); err != nil {
		browserCancel()
		allocatorCancel()
		return fmt.Errorf("failed to configure network domain: %w", err)
	}

	d.browserCtx = browserCtx
	d.browserCancel = browserCancel
	d.allocatorCancel = allocatorCancel

	d.logger.Info().
		Bool("headless", d.cfg.Headless).
		Msg("Browser started")
	return nil
}

// Stop tears the browser process down.
func (d *ChromeDriver) Stop() {
	if d.browserCancel != nil {
		d.browserCancel()
	}
	if d.allocatorCancel != nil {
		d.allocatorCancel()
	}
	d.browserCtx = nil
	d.logger.Debug().Msg("Browser stopped")
}

// Navigate loads the target URL and applies the stealth script.
func (d *ChromeDriver) Navigate(ctx context.Context, targetURL string) error {
	return d.run(ctx,
		chromedp.Navigate(targetURL),
		chromedp.Evaluate(stealthJS, nil),
	)
}

func (d *ChromeDriver) AcceptConsent(ctx context.Context) (bool, error) {
	var clicked bool
	err := d.run(ctx, chromedp.Evaluate(consentJS, &clicked))
	return clicked, err
}

func (d *ChromeDriver) InstallMutationObserver(ctx context.Context) error {
	var ok bool
	return d.run(ctx, chromedp.Evaluate(mutationObserverJS, &ok))
}

func (d *ChromeDriver) MutationGeneration(ctx context.Context) (int64, error) {
	var gen int64
	err := d.run(ctx, chromedp.Evaluate(`window.__mutationGen || 0`, &gen))
	return gen, err
}

func (d *ChromeDriver) FeedHTML(ctx context.Context) (string, error) {
	var html string
	err := d.run(ctx, chromedp.Evaluate(feedHTMLJS, &html))
	return html, err
}

func (d *ChromeDriver) ScrollFeed(ctx context.Context) (bool, error) {
	var atEnd bool
	err := d.run(ctx, chromedp.Evaluate(scrollFeedJS, &atEnd))
	return atEnd, err
}

func (d *ChromeDriver) DetailHTML(ctx context.Context) (string, error) {
	var html string
	err := d.run(ctx, chromedp.Evaluate(detailHTMLJS, &html))
	return html, err
}

func (d *ChromeDriver) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	err := d.run(ctx, chromedp.Location(&loc))
	return loc, err
}

func (d *ChromeDriver) PageTitle(ctx context.Context) (string, error) {
	var title string
	err := d.run(ctx, chromedp.Title(&title))
	return title, err
}

// run executes actions on the browser context, bounded by the caller's
// deadline when present.
func (d *ChromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	if d.browserCtx == nil {
		return fmt.Errorf("browser not started")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	timeout := defaultOpTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	opCtx, cancel := context.WithTimeout(d.browserCtx, timeout)
	defer cancel()
	return chromedp.Run(opCtx, actions...)
}

// SearchURL builds the map search URL for a niche and location.
func SearchURL(baseURL, niche, location string) string {
	base := strings.TrimRight(baseURL, "/")
	query := strings.TrimSpace(niche)
	if loc := strings.TrimSpace(location); loc != "" {
		query += " in " + loc
	}
	return base + "/search/" + url.PathEscape(query)
}
