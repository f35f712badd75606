package cfbypass

import (
	"fmt"
	"net/url"
	"runtime"
	"sort"
	"strings"
	"time"

	http "github.com/bogdanfinn/fhttp"
	"github.com/playwright-community/playwright-go"
)

// CookieExtractor reads the cookies a browser solve produced and pushes them
// into the transport's cookie jar. There is one variant per browser engine;
// the right one is picked at startup by platform detection, the same switch
// that picks the engine itself.
type CookieExtractor interface {
	// HasClearanceCookie reports whether the engine holds a clearance
	// cookie for pageURL's host.
	HasClearanceCookie(pageURL string) (bool, error)
	// CookieString returns the engine's cookies for pageURL's host as a
	// Cookie-header value, names sorted for stable comparison.
	CookieString(pageURL string) (string, error)
	// SyncToJar copies the engine's cookies for pageURL into the
	// transport's cookie jar so replayed requests carry them.
	SyncToJar(pageURL string) error
}

// BrowserCookieSource is the slice of PlaywrightBrowser the extractors need.
type BrowserCookieSource interface {
	CookiesFor(pageURL string) ([]playwright.Cookie, error)
}

// NewCookieExtractor returns the extractor variant matching the browser
// engine in use on this platform: WebKit semantics on darwin, Chromium
// semantics everywhere else.
func NewCookieExtractor(source BrowserCookieSource, jar Transport) CookieExtractor {
	if runtime.GOOS == "darwin" {
		return &webkitExtractor{source: source, jar: jar}
	}
	return &chromiumExtractor{source: source, jar: jar}
}

// =============================================================================
// Chromium variant
// =============================================================================

// chromiumExtractor reads cookies as Chromium reports them. Chromium emits
// cookies for parent registrable domains with a leading dot, which the jar
// expects verbatim.
type chromiumExtractor struct {
	source BrowserCookieSource
	jar    Transport
}

func (e *chromiumExtractor) HasClearanceCookie(pageURL string) (bool, error) {
	return hasClearance(e.source, pageURL)
}

func (e *chromiumExtractor) CookieString(pageURL string) (string, error) {
	cookies, err := e.source.CookiesFor(pageURL)
	if err != nil {
		return "", err
	}
	return cookieHeaderValue(cookies), nil
}

func (e *chromiumExtractor) SyncToJar(pageURL string) error {
	cookies, err := e.source.CookiesFor(pageURL)
	if err != nil {
		return err
	}
	return syncCookies(e.jar, pageURL, cookies, func(c playwright.Cookie) *http.Cookie {
		return &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expiryTime(c.Expires),
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
	})
}

// =============================================================================
// WebKit variant
// =============================================================================

// webkitExtractor reads cookies as WebKit reports them. WebKit does not use
// the leading-dot convention and reports session cookies with a negative
// expiry, both of which need normalizing before the jar accepts them.
type webkitExtractor struct {
	source BrowserCookieSource
	jar    Transport
}

func (e *webkitExtractor) HasClearanceCookie(pageURL string) (bool, error) {
	return hasClearance(e.source, pageURL)
}

func (e *webkitExtractor) CookieString(pageURL string) (string, error) {
	cookies, err := e.source.CookiesFor(pageURL)
	if err != nil {
		return "", err
	}
	return cookieHeaderValue(cookies), nil
}

func (e *webkitExtractor) SyncToJar(pageURL string) error {
	cookies, err := e.source.CookiesFor(pageURL)
	if err != nil {
		return err
	}
	return syncCookies(e.jar, pageURL, cookies, func(c playwright.Cookie) *http.Cookie {
		domain := c.Domain
		if !strings.HasPrefix(domain, ".") && strings.Count(domain, ".") > 1 {
			domain = "." + domain
		}
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
		if c.Expires > 0 {
			hc.Expires = expiryTime(c.Expires)
		}
		return hc
	})
}

// =============================================================================
// Shared helpers
// =============================================================================

func hasClearance(source BrowserCookieSource, pageURL string) (bool, error) {
	cookies, err := source.CookiesFor(pageURL)
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

// cookieHeaderValue renders cookies as "name=value; name=value", sorted by
// name so that two snapshots of the same state compare equal.
func cookieHeaderValue(cookies []playwright.Cookie) string {
	byName := make(map[string]string, len(cookies))
	for _, c := range cookies {
		byName[c.Name] = c.Value
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%s", name, byName[name]))
	}
	return strings.Join(parts, "; ")
}

func syncCookies(jar Transport, pageURL string, cookies []playwright.Cookie, convert func(playwright.Cookie) *http.Cookie) error {
	u, err := url.Parse(pageURL)
	if err != nil {
		return err
	}

	converted := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		converted = append(converted, convert(c))
	}
	jar.SetCookies(u, converted)
	return nil
}

func expiryTime(expires float64) time.Time {
	if expires <= 0 {
		return time.Time{}
	}
	return time.Unix(int64(expires), 0)
}
