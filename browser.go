package cfbypass

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"runtime"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// HeadlessBrowser loads a page, allowing any challenge JavaScript on it to
// execute, and returns the final HTML. The timeout is a hard cutoff enforced
// by the browser itself, not by callers.
type HeadlessBrowser interface {
	Load(ctx context.Context, pageURL string, timeout time.Duration) (string, error)
}

// BrowserOptions configures a PlaywrightBrowser.
type BrowserOptions struct {
	Headless  bool
	UserAgent string
	ProxyURL  string // same egress as the transport, so clearance tokens match the IP
}

// PlaywrightBrowser drives a real browser through Playwright. The engine is
// chosen by platform at startup: WebKit on darwin, Chromium everywhere else,
// matching the cookie-extraction variant in extractor.go.
//
// Each Load runs in a fresh browser context; the cookies the page ends up
// with are snapshotted per host before the context is closed, so the
// extractor can read them after the fact.
type PlaywrightBrowser struct {
	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
	opts    BrowserOptions
	cookies map[string][]playwright.Cookie // keyed by host
	started bool
}

func NewPlaywrightBrowser(opts BrowserOptions) *PlaywrightBrowser {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	return &PlaywrightBrowser{
		opts:    opts,
		cookies: make(map[string][]playwright.Cookie),
	}
}

// start lazily installs and launches the browser. Callers must hold b.mu.
func (b *PlaywrightBrowser) start() error {
	if b.started {
		return nil
	}

	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	if err := playwright.Install(runOpts); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}
	pw, err := playwright.Run(runOpts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	engine := pw.Chromium
	if runtime.GOOS == "darwin" {
		engine = pw.WebKit
	}

	browser, err := engine.Launch(launchOptions(b.opts))
	if err != nil {
		pw.Stop()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	b.pw = pw
	b.browser = browser
	b.started = true
	return nil
}

func launchOptions(opts BrowserOptions) playwright.BrowserTypeLaunchOptions {
	launch := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	}
	if opts.ProxyURL != "" {
		launch.Proxy = &playwright.Proxy{Server: opts.ProxyURL}
	}
	return launch
}

func (b *PlaywrightBrowser) newContext() (playwright.BrowserContext, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.start(); err != nil {
		return nil, err
	}
	return b.browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(b.opts.UserAgent),
		Viewport:  &playwright.Size{Width: 1280, Height: 800},
	})
}

// Load navigates to pageURL, waits for any challenge on it to settle, and
// returns the resulting HTML. The page is considered settled as soon as the
// clearance cookie appears or the document stops looking like a challenge
// interstitial; the full timeout is only consumed when neither happens.
func (b *PlaywrightBrowser) Load(ctx context.Context, pageURL string, timeout time.Duration) (string, error) {
	bctx, err := b.newContext()
	if err != nil {
		return "", err
	}
	defer bctx.Close()

	page, err := bctx.NewPage()
	if err != nil {
		return "", err
	}

	if _, err := page.Goto(pageURL, playwright.PageGotoOptions{
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return "", fmt.Errorf("navigation failed: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		cleared, err := contextHasClearance(bctx, pageURL)
		if err != nil {
			return "", err
		}
		if cleared {
			break
		}

		title, err := page.Title()
		if err != nil {
			return "", err
		}
		if !challengeTitleRe.MatchString("<title>" + title + "</title>") {
			break
		}

		if time.Now().After(deadline) {
			break
		}
		page.WaitForTimeout(500)
	}

	html, err := page.Content()
	if err != nil {
		return "", err
	}

	if err := b.snapshotCookies(bctx, pageURL); err != nil {
		return "", err
	}
	return html, nil
}

// LoadInteractive opens a visible window on pageURL and blocks until the
// clearance cookie appears, the user closes the window, or ctx is done.
// There is no timeout: this path is user-paced. Returns the final cookie
// snapshot availability via the usual CookiesFor path.
func (b *PlaywrightBrowser) LoadInteractive(ctx context.Context, pageURL string) error {
	bctx, err := b.newContext()
	if err != nil {
		return err
	}
	defer bctx.Close()

	page, err := bctx.NewPage()
	if err != nil {
		return err
	}

	if _, err := page.Goto(pageURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if page.IsClosed() {
			break
		}

		cleared, err := contextHasClearance(bctx, pageURL)
		if err != nil {
			return err
		}
		if cleared {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}

	return b.snapshotCookies(bctx, pageURL)
}

func contextHasClearance(bctx playwright.BrowserContext, pageURL string) (bool, error) {
	cookies, err := bctx.Cookies(pageURL)
	if err != nil {
		return false, err
	}
	for _, c := range cookies {
		if c.Name == ClearanceCookieName {
			return true, nil
		}
	}
	return false, nil
}

func (b *PlaywrightBrowser) snapshotCookies(bctx playwright.BrowserContext, pageURL string) error {
	u, err := url.Parse(pageURL)
	if err != nil {
		return err
	}
	cookies, err := bctx.Cookies(pageURL)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.cookies[u.Hostname()] = cookies
	b.mu.Unlock()
	return nil
}

// CookiesFor returns the cookie snapshot captured by the most recent load of
// any page on pageURL's host.
func (b *PlaywrightBrowser) CookiesFor(pageURL string) ([]playwright.Cookie, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cookies[u.Hostname()], nil
}

// Close shuts the browser and the Playwright driver down.
func (b *PlaywrightBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		return nil
	}
	b.started = false
	if err := b.browser.Close(); err != nil {
		b.pw.Stop()
		return err
	}
	return b.pw.Stop()
}
