package cfbypass

import (
	"net/url"
	"sync"
	"testing"
	"time"

	http "github.com/bogdanfinn/fhttp"
	"github.com/playwright-community/playwright-go"
)

type fakeCookieSource struct {
	cookies []playwright.Cookie
	err     error
}

func (s *fakeCookieSource) CookiesFor(pageURL string) ([]playwright.Cookie, error) {
	return s.cookies, s.err
}

// recordingJar captures SetCookies calls so tests can inspect what an
// extractor pushed into the transport.
type recordingJar struct {
	mu      sync.Mutex
	url     *url.URL
	cookies []*http.Cookie
}

func (j *recordingJar) Do(*http.Request) (*http.Response, error) { return nil, nil }
func (j *recordingJar) GetCookies(*url.URL) []*http.Cookie       { return nil }

func (j *recordingJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.url = u
	j.cookies = cookies
}

func TestCookieHeaderValue(t *testing.T) {
	cookies := []playwright.Cookie{
		{Name: "session", Value: "9"},
		{Name: "cf_clearance", Value: "tok"},
		{Name: "zz", Value: "last"},
	}

	want := "cf_clearance=tok; session=9; zz=last"
	if got := cookieHeaderValue(cookies); got != want {
		t.Fatalf("cookieHeaderValue = %q, want sorted %q", got, want)
	}

	// Two snapshots of the same cookies compare equal regardless of order.
	shuffled := []playwright.Cookie{cookies[2], cookies[0], cookies[1]}
	if cookieHeaderValue(shuffled) != want {
		t.Fatal("order-dependent output breaks stale-token comparison")
	}

	if cookieHeaderValue(nil) != "" {
		t.Fatal("no cookies should render as empty string")
	}
}

func TestHasClearance(t *testing.T) {
	source := &fakeCookieSource{cookies: []playwright.Cookie{
		{Name: "session", Value: "1"},
		{Name: "cf_clearance", Value: "tok"},
	}}

	got, err := hasClearance(source, "https://example.com/")
	if err != nil || !got {
		t.Fatalf("hasClearance = %v, %v", got, err)
	}

	source.cookies = []playwright.Cookie{{Name: "session", Value: "1"}}
	got, err = hasClearance(source, "https://example.com/")
	if err != nil || got {
		t.Fatalf("hasClearance without marker = %v, %v", got, err)
	}
}

func TestChromiumExtractorSync(t *testing.T) {
	source := &fakeCookieSource{cookies: []playwright.Cookie{
		{Name: "cf_clearance", Value: "tok", Domain: ".example.com", Path: "/", Expires: 1900000000, Secure: true, HttpOnly: true},
	}}
	jar := &recordingJar{}

	e := &chromiumExtractor{source: source, jar: jar}
	if err := e.SyncToJar("https://example.com/page"); err != nil {
		t.Fatal(err)
	}

	if jar.url.Hostname() != "example.com" {
		t.Fatalf("jar url = %v", jar.url)
	}
	if len(jar.cookies) != 1 {
		t.Fatalf("jar got %d cookies", len(jar.cookies))
	}
	c := jar.cookies[0]
	if c.Name != "cf_clearance" || c.Value != "tok" {
		t.Fatalf("cookie = %s=%s", c.Name, c.Value)
	}
	// Chromium's leading-dot domain passes through untouched.
	if c.Domain != ".example.com" {
		t.Fatalf("domain = %q", c.Domain)
	}
	if !c.Secure || !c.HttpOnly {
		t.Fatal("flags lost in conversion")
	}
	if c.Expires != time.Unix(1900000000, 0) {
		t.Fatalf("expires = %v", c.Expires)
	}
}

func TestWebkitExtractorSync(t *testing.T) {
	source := &fakeCookieSource{cookies: []playwright.Cookie{
		{Name: "cf_clearance", Value: "tok", Domain: "www.example.com", Path: "/", Expires: -1},
		{Name: "session", Value: "9", Domain: "example.com", Path: "/", Expires: 1900000000},
	}}
	jar := &recordingJar{}

	e := &webkitExtractor{source: source, jar: jar}
	if err := e.SyncToJar("https://www.example.com/page"); err != nil {
		t.Fatal(err)
	}
	if len(jar.cookies) != 2 {
		t.Fatalf("jar got %d cookies", len(jar.cookies))
	}

	// WebKit domains gain the leading dot the jar expects for subdomains.
	if jar.cookies[0].Domain != ".www.example.com" {
		t.Fatalf("subdomain = %q", jar.cookies[0].Domain)
	}
	// Registrable domain with a single dot stays as-is.
	if jar.cookies[1].Domain != "example.com" {
		t.Fatalf("apex domain = %q", jar.cookies[1].Domain)
	}
	// WebKit's negative expiry means session cookie: zero time, not 1969.
	if !jar.cookies[0].Expires.IsZero() {
		t.Fatalf("session cookie expires = %v", jar.cookies[0].Expires)
	}
	if jar.cookies[1].Expires != time.Unix(1900000000, 0) {
		t.Fatalf("expires = %v", jar.cookies[1].Expires)
	}
}

func TestExpiryTime(t *testing.T) {
	if !expiryTime(-1).IsZero() {
		t.Fatal("negative expiry should map to zero time")
	}
	if !expiryTime(0).IsZero() {
		t.Fatal("zero expiry should map to zero time")
	}
	if expiryTime(1900000000) != time.Unix(1900000000, 0) {
		t.Fatal("positive expiry should map to unix time")
	}
}
