package cfbypass

import (
	"context"
	"sync"
)

// ManualResult is what the user-facing challenge surface reports back.
type ManualResult struct {
	Success bool
	Cookies string
}

// ManualHandler presents an interactive browser surface for pageURL and
// returns the resolved cookies, or Success=false when the user dismissed the
// challenge. There is no timeout on this path; it is user-paced.
type ManualHandler func(ctx context.Context, pageURL string) (*ManualResult, error)

// ManualCoordinator is the escalation chain's last resort. It delegates to a
// registered external handler, usually the UI layer. At most one handler may
// be registered at a time.
type ManualCoordinator struct {
	mu      sync.Mutex
	handler ManualHandler
}

func NewManualCoordinator() *ManualCoordinator {
	return &ManualCoordinator{}
}

// Register installs the handler, replacing any previous one. A nil handler
// unregisters.
func (c *ManualCoordinator) Register(handler ManualHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Resolve invokes the registered handler for pageURL. With no handler
// registered it fails immediately with ErrNoManualHandler.
func (c *ManualCoordinator) Resolve(ctx context.Context, pageURL string) (*ManualResult, error) {
	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()

	if handler == nil {
		return nil, ErrNoManualHandler
	}
	return handler(ctx, pageURL)
}

// InteractiveHandler builds a ManualHandler that opens a visible browser
// window on the challenged page and resolves once the user completes the
// challenge (clearance cookie appears) or closes the window.
func InteractiveHandler(browser *PlaywrightBrowser, extractor CookieExtractor) ManualHandler {
	return func(ctx context.Context, pageURL string) (*ManualResult, error) {
		if err := browser.LoadInteractive(ctx, pageURL); err != nil {
			return nil, err
		}

		cleared, err := extractor.HasClearanceCookie(pageURL)
		if err != nil {
			return nil, err
		}
		if !cleared {
			return &ManualResult{Success: false}, nil
		}

		cookies, err := extractor.CookieString(pageURL)
		if err != nil {
			return nil, err
		}
		if err := extractor.SyncToJar(pageURL); err != nil {
			return nil, err
		}
		return &ManualResult{Success: true, Cookies: cookies}, nil
	}
}
