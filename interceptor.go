package cfbypass

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"strconv"

	http "github.com/bogdanfinn/fhttp"
)

// Transport is the narrow slice of an HTTP client the interceptor needs.
// tls_client.HttpClient satisfies it.
type Transport interface {
	Do(req *http.Request) (*http.Response, error)
	GetCookies(u *url.URL) []*http.Cookie
	SetCookies(u *url.URL, cookies []*http.Cookie)
}

// challengeRefresher and challengeSolver are the strategy contracts the
// orchestrator drives. Production implementations are BackgroundRefresher
// and AutoSolver.
type challengeRefresher interface {
	Attempt(ctx context.Context, pageURL, oldCookie string) bool
}

type challengeSolver interface {
	Solve(ctx context.Context, pageURL string, attempt int) (*SolveResult, error)
}

// Interceptor wraps a Transport and transparently resolves anti-bot
// challenges on its responses. Ordinary callers keep seeing a clean
// request/response cycle; challenged responses are escalated through
// background refresh, automated solve, and finally a user-facing manual
// surface, then the original request is replayed with the fresh token.
//
// All mutable state lives on the instance: handler registration and retry
// reset go through Interceptor methods, not package globals.
type Interceptor struct {
	transport Transport
	cookies   *CookieStore
	ledger    *RetryLedger
	refresher challengeRefresher
	solver    challengeSolver
	manual    *ManualCoordinator
	logger    Logger
}

// Option customizes an Interceptor at install time.
type Option func(*Interceptor)

func WithLogger(logger Logger) Option {
	return func(i *Interceptor) { i.logger = logger }
}

// WithMaxRetries overrides the automatic-solve budget per request key.
func WithMaxRetries(n int) Option {
	return func(i *Interceptor) { i.ledger = NewRetryLedger(n) }
}

// WithRefresher replaces the background-refresh strategy.
func WithRefresher(r challengeRefresher) Option {
	return func(i *Interceptor) { i.refresher = r }
}

// WithSolver replaces the automated solve strategy.
func WithSolver(s challengeSolver) Option {
	return func(i *Interceptor) { i.solver = s }
}

// Install wraps transport with challenge-bypass behavior. The returned
// Interceptor satisfies Transport itself, so callers use it wherever the
// bare client went; every request through it gets bypass behavior.
//
// With no strategy options, a headless Playwright browser and the
// platform-appropriate cookie extractor are constructed from cfg.
func Install(transport Transport, cfg Config, opts ...Option) *Interceptor {
	i := &Interceptor{
		transport: transport,
		cookies:   NewCookieStore(),
		ledger:    NewRetryLedger(cfg.MaxRetries),
		manual:    NewManualCoordinator(),
		logger:    noopLogger{},
	}
	for _, opt := range opts {
		opt(i)
	}

	if i.refresher == nil || i.solver == nil {
		browser := NewPlaywrightBrowser(BrowserOptions{
			Headless:  true,
			UserAgent: cfg.UserAgent,
			ProxyURL:  cfg.ProxyURL,
		})
		extractor := NewCookieExtractor(browser, transport)
		if i.refresher == nil {
			i.refresher = NewBackgroundRefresher(browser, extractor, i.cookies, cfg.RefreshTimeout, i.logger)
		}
		if i.solver == nil {
			solver := NewAutoSolver(browser, extractor, i.cookies, i.logger)
			solver.SetTimeouts(cfg.SolveBaseTimeout, cfg.SolveTimeoutStep)
			i.solver = solver
		}
	}
	return i
}

// RegisterManualHandler installs the user-facing challenge handler. At most
// one handler is active; nil unregisters.
func (i *Interceptor) RegisterManualHandler(handler ManualHandler) {
	i.manual.Register(handler)
}

// ResetRetryState clears retry and dedup bookkeeping for a request key, for
// manual-retry UX flows. A solve already in flight is not cancelled; it may
// still finish and install a valid cookie, which is harmless. Calling this
// for a key with no entry is a no-op.
func (i *Interceptor) ResetRetryState(method, rawURL string) {
	i.ledger.Clear(RequestKey{Method: method, URL: rawURL})
}

// CookieStore exposes the interceptor's resolved-cookie cache.
func (i *Interceptor) CookieStore() *CookieStore {
	return i.cookies
}

// GetCookies passes through to the wrapped transport.
func (i *Interceptor) GetCookies(u *url.URL) []*http.Cookie {
	return i.transport.GetCookies(u)
}

// SetCookies passes through to the wrapped transport.
func (i *Interceptor) SetCookies(u *url.URL, cookies []*http.Cookie) {
	i.transport.SetCookies(u, cookies)
}

// Do executes the request, intercepting challenge interstitials. Responses
// that are not challenges pass through untouched, including non-2xx errors.
func (i *Interceptor) Do(req *http.Request) (*http.Response, error) {
	if err := ensureReplayableBody(req); err != nil {
		return nil, err
	}

	resp, err := i.transport.Do(req)
	if err != nil {
		return nil, err
	}

	// The status gate keeps inspection off the hot path: only 403/503
	// can carry a challenge, so only those get their body read.
	if !challengeStatusCodes[resp.StatusCode] {
		return resp, nil
	}

	body, err := readResponseBody(resp)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}

	if !IsChallenge(resp.StatusCode, resp.Header, string(body)) {
		restoreBody(resp, body)
		return resp, nil
	}

	return i.resolve(req)
}

// resolve drives the escalation state machine:
//
//	Detected -> BackgroundRefreshing -> replay
//	         -> AutoSolving (budgeted, dedup'd) -> replay
//	         -> ManualResolving -> replay
//	         -> ChallengeError
func (i *Interceptor) resolve(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	pageURL := req.URL.String()
	domain := req.URL.Hostname()
	key := RequestKey{Method: req.Method, URL: pageURL}

	i.logger.Log("challenge detected: %s %s", req.Method, pageURL)

	// Capture the current token first so the refresher can tell a fresh
	// token apart from a stale replay of the rejected one.
	oldCookie, _ := i.cookies.Get(domain)
	if i.refresher.Attempt(ctx, pageURL, oldCookie) {
		i.ledger.Clear(key)
		return i.replay(req, "")
	}

	if i.ledger.IncrementAndCheck(key) {
		attempt := i.ledger.Attempts(key)
		result, err := i.ledger.GetOrStartSolve(key, func() (*SolveResult, error) {
			// The 403 is evidence the old token is dead server-side;
			// drop it so the solve's own traffic doesn't resend it.
			i.cookies.Invalidate(domain)
			return i.solver.Solve(ctx, pageURL, attempt)
		})
		if err == nil {
			i.ledger.Clear(key)
			return i.replay(req, result.Cookies)
		}
		i.logger.Log("auto solve failed for %s: %v", pageURL, err)
	} else {
		i.logger.Log("retry budget exhausted for %s %s, escalating", req.Method, pageURL)
	}

	result, err := i.manual.Resolve(ctx, pageURL)
	if err == nil && result.Success {
		i.cookies.Set(domain, result.Cookies)
		i.ledger.Clear(key)
		return i.replay(req, result.Cookies)
	}
	if err != nil {
		i.logger.Log("manual resolution unavailable for %s: %v", pageURL, err)
	}

	attempts := i.ledger.SolveAttempts(key)
	i.ledger.Clear(key)
	return nil, &ChallengeError{URL: pageURL, Domain: domain, Attempts: attempts}
}

// replay resubmits the original request with only the Cookie header
// rewritten; method, URL, body, and all other headers are preserved. An
// empty cookieHeader leaves the jar's now-updated cookie state in charge.
func (i *Interceptor) replay(req *http.Request, cookieHeader string) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		clone.Body = body
	}
	if cookieHeader != "" {
		clone.Header.Set("Cookie", cookieHeader)
	}
	return i.transport.Do(clone)
}

// ensureReplayableBody buffers a request body that cannot rewind itself, so
// a challenged request can be replayed with the same bytes. Requests built
// from bytes or strings readers already carry GetBody and are left alone.
func ensureReplayableBody(req *http.Request) error {
	if req.Body == nil || req.GetBody != nil {
		return nil
	}

	buf, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return err
	}

	req.Body = io.NopCloser(bytes.NewReader(buf))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(buf)), nil
	}
	return nil
}

// restoreBody puts an already-read body back on a pass-through response.
// The bytes are the decompressed form, so the encoding headers go.
func restoreBody(resp *http.Response, body []byte) {
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.Header.Del("Content-Encoding")
	resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
	resp.ContentLength = int64(len(body))
}
