package cfbypass

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultSolveBaseTimeout is the browser window granted to a first
	// solve attempt.
	DefaultSolveBaseTimeout = 30 * time.Second

	// DefaultSolveTimeoutStep is added per additional attempt. Challenge
	// JavaScript execution time is variable; later attempts get more room.
	DefaultSolveTimeoutStep = 20 * time.Second

	// defaultMaxConcurrentSolves caps simultaneous browser solves.
	defaultMaxConcurrentSolves = 3
)

// AutoSolver drives the headless browser through a full challenge execution
// and persists the resulting clearance cookie.
type AutoSolver struct {
	browser   HeadlessBrowser
	extractor CookieExtractor
	cookies   *CookieStore
	limiter   *solveLimiter
	logger    Logger

	baseTimeout time.Duration
	timeoutStep time.Duration
}

func NewAutoSolver(browser HeadlessBrowser, extractor CookieExtractor, cookies *CookieStore, logger Logger) *AutoSolver {
	if logger == nil {
		logger = noopLogger{}
	}
	return &AutoSolver{
		browser:     browser,
		extractor:   extractor,
		cookies:     cookies,
		limiter:     newSolveLimiter(defaultMaxConcurrentSolves),
		logger:      logger,
		baseTimeout: DefaultSolveBaseTimeout,
		timeoutStep: DefaultSolveTimeoutStep,
	}
}

// SetTimeouts overrides the growing timeout budget. Zero values keep the
// current setting.
func (s *AutoSolver) SetTimeouts(base, step time.Duration) {
	if base > 0 {
		s.baseTimeout = base
	}
	if step > 0 {
		s.timeoutStep = step
	}
}

// timeoutFor computes the browser window for the given attempt number
// (1-based). First attempt gets the baseline; each later attempt gets
// progressively more.
func (s *AutoSolver) timeoutFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return s.baseTimeout + time.Duration(attempt-1)*s.timeoutStep
}

// Solve fully loads pageURL in the browser, letting the challenge
// JavaScript execute and resolve, then extracts the clearance cookie and
// syncs it into the transport jar and the cookie store. Returns
// ErrNoClearance when the load finished without producing one.
func (s *AutoSolver) Solve(ctx context.Context, pageURL string, attempt int) (*SolveResult, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}

	solveID := uuid.New().String()[:8]
	timeout := s.timeoutFor(attempt)

	s.limiter.Acquire()
	defer s.limiter.Release()

	s.logger.Log("[solve %s] attempt %d for %s (window %v)", solveID, attempt, u.Hostname(), timeout)

	html, err := s.browser.Load(ctx, pageURL, timeout)
	if err != nil {
		s.logger.Log("[solve %s] browser load failed: %v", solveID, err)
		return nil, err
	}

	cleared, err := s.extractor.HasClearanceCookie(pageURL)
	if err != nil {
		return nil, err
	}
	if !cleared {
		s.logger.Log("[solve %s] challenge did not resolve within window", solveID)
		return nil, ErrNoClearance
	}

	cookieString, err := s.extractor.CookieString(pageURL)
	if err != nil {
		return nil, err
	}
	if err := s.extractor.SyncToJar(pageURL); err != nil {
		return nil, err
	}
	s.cookies.Set(u.Hostname(), cookieString)

	s.logger.Log("[solve %s] clearance obtained for %s", solveID, u.Hostname())
	return &SolveResult{HTML: html, Cookies: cookieString}, nil
}
