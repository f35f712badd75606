package cfbypass

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrNoClearance indicates a browser solve completed without producing a
// clearance cookie. The challenge either failed or demanded interaction.
var ErrNoClearance = errors.New("no clearance obtained")

// ErrNoManualHandler indicates escalation reached the manual step with no
// handler registered to present a challenge surface to the user.
var ErrNoManualHandler = errors.New("no manual challenge handler registered")

// =============================================================================
// Challenge Errors
// =============================================================================

// ChallengeError is the terminal failure of the escalation chain: every
// strategy, including manual resolution, failed for the request. The
// application layer is expected to catch it and present a retry affordance.
type ChallengeError struct {
	URL      string
	Domain   string
	Attempts int
}

func (e *ChallengeError) Error() string {
	return fmt.Sprintf("challenge bypass failed for %s after %d attempt(s)", e.URL, e.Attempts)
}

// IsChallengeError checks whether err is a terminal challenge failure.
func IsChallengeError(err error) bool {
	if err == nil {
		return false
	}
	var ce *ChallengeError
	return errors.As(err, &ce)
}

// =============================================================================
// Retryable Errors
// =============================================================================

// retryableErrorPatterns contains error message substrings that indicate
// transient transport errors, as opposed to challenges or real failures.
var retryableErrorPatterns = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"i/o timeout",
	"context deadline exceeded",
	"TLS handshake timeout",
	"EOF",
	"malformed HTTP response",
	"transport connection broken",
	"use of closed network connection",
}

// IsRetryableError checks if the error is temporary and worth retrying,
// typically after rotating to a new proxy. Challenge failures are never
// retryable this way; they already exhausted the escalation chain.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if IsChallengeError(err) {
		return false
	}

	if isNetworkTimeout(err) {
		return true
	}

	return containsRetryablePattern(err.Error())
}

func isNetworkTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func containsRetryablePattern(errStr string) bool {
	for _, pattern := range retryableErrorPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
