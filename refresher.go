package cfbypass

import (
	"context"
	"net/url"
	"time"
)

// DefaultRefreshTimeout bounds the silent page load. Background refresh is a
// cheap first swing, not a full solve; it gets one short window.
const DefaultRefreshTimeout = 15 * time.Second

// BackgroundRefresher attempts a silent, low-friction token renewal before
// the escalation chain reaches for a full solve. Empirically, many challenge
// responses are caused by server-side invalidation of an old token rather
// than an unsolved puzzle; a plain page load often yields a fresh valid
// token with no visible challenge UI.
type BackgroundRefresher struct {
	browser   HeadlessBrowser
	extractor CookieExtractor
	cookies   *CookieStore
	timeout   time.Duration
	logger    Logger
}

func NewBackgroundRefresher(browser HeadlessBrowser, extractor CookieExtractor, cookies *CookieStore, timeout time.Duration, logger Logger) *BackgroundRefresher {
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &BackgroundRefresher{
		browser:   browser,
		extractor: extractor,
		cookies:   cookies,
		timeout:   timeout,
		logger:    logger,
	}
}

// Attempt loads pageURL silently and reports whether it produced a usable
// new token: the resulting cookie string must carry the clearance marker AND
// differ from oldCookie. An identical string means the load was a stale
// no-op, which counts as failure. Failure here is never fatal; callers fall
// through to the auto solver.
func (r *BackgroundRefresher) Attempt(ctx context.Context, pageURL, oldCookie string) bool {
	u, err := url.Parse(pageURL)
	if err != nil {
		return false
	}

	if _, err := r.browser.Load(ctx, pageURL, r.timeout); err != nil {
		r.logger.Log("background refresh load failed for %s: %v", u.Hostname(), err)
		return false
	}

	newCookie, err := r.extractor.CookieString(pageURL)
	if err != nil {
		r.logger.Log("background refresh cookie read failed for %s: %v", u.Hostname(), err)
		return false
	}

	if !containsClearanceMarker(newCookie) || newCookie == oldCookie {
		return false
	}

	if err := r.extractor.SyncToJar(pageURL); err != nil {
		r.logger.Log("background refresh jar sync failed for %s: %v", u.Hostname(), err)
		return false
	}
	r.cookies.Set(u.Hostname(), newCookie)
	r.logger.Log("background refresh renewed token for %s", u.Hostname())
	return true
}
