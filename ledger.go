package cfbypass

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// RequestKey identifies a logical request for retry and deduplication
// bookkeeping. Keys are not persisted across process restarts.
type RequestKey struct {
	Method string
	URL    string
}

func (k RequestKey) String() string {
	return k.Method + " " + k.URL
}

// SolveResult is the outcome of a successful automated solve.
type SolveResult struct {
	HTML    string
	Cookies string
}

// RetryLedger tracks per-RequestKey automatic-retry attempts against a small
// fixed budget, and deduplicates concurrent solve operations so that N
// challenged requests to the same key share a single browser solve.
//
// Entries are created lazily on first challenge and must be cleared on
// terminal success or terminal failure so the ledger never grows unbounded
// over the process lifetime.
type RetryLedger struct {
	mu       sync.Mutex
	attempts map[RequestKey]int
	solves   singleflight.Group
	budget   int
}

// NewRetryLedger creates a ledger with the given retry budget. The budget is
// intentionally small (usually 1): automatic solves are expensive real
// browser page loads, so the system prefers fast escalation to manual
// intervention over long automatic spinning.
func NewRetryLedger(budget int) *RetryLedger {
	if budget < 1 {
		budget = 1
	}
	return &RetryLedger{
		attempts: make(map[RequestKey]int),
		budget:   budget,
	}
}

// IncrementAndCheck reports whether retry budget remained for key before
// this call, incrementing the attempt counter as a side effect. The entry is
// created on first use.
func (l *RetryLedger) IncrementAndCheck(key RequestKey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	remaining := l.attempts[key] < l.budget
	l.attempts[key]++
	return remaining
}

// Attempts returns the number of attempts recorded for key.
func (l *RetryLedger) Attempts(key RequestKey) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attempts[key]
}

// SolveAttempts reports how many automatic solves were actually started for
// key. Increments past the budget are refused a solve, so the raw counter is
// capped at the budget.
func (l *RetryLedger) SolveAttempts(key RequestKey) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.attempts[key]
	if n > l.budget {
		n = l.budget
	}
	return n
}

// Clear removes all bookkeeping for key: the attempt counter and any tracked
// in-flight solve handle. A solve already running is not cancelled; it is
// allowed to finish and its result is simply orphaned. Clearing a key with
// no entry is a no-op.
func (l *RetryLedger) Clear(key RequestKey) {
	l.mu.Lock()
	delete(l.attempts, key)
	l.mu.Unlock()
	l.solves.Forget(key.String())
}

// GetOrStartSolve returns the result of the in-flight solve for key if one
// exists, otherwise invokes factory to start one. All concurrent callers for
// the same key observe the outcome of a single factory invocation. The
// in-flight handle is dropped once the solve settles, success or failure, so
// a later challenge on the same key starts fresh.
func (l *RetryLedger) GetOrStartSolve(key RequestKey, factory func() (*SolveResult, error)) (*SolveResult, error) {
	v, err, _ := l.solves.Do(key.String(), func() (any, error) {
		return factory()
	})
	if err != nil {
		return nil, err
	}
	return v.(*SolveResult), nil
}
