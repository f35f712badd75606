package cfbypass

import (
	"sync"
	"time"
)

// CookieRecord is the last-known resolved cookie string for a domain.
// Records are overwritten wholesale on every confirmed resolution, never
// merged field-by-field.
type CookieRecord struct {
	Domain       string
	CookieString string
	ResolvedAt   time.Time
}

// CookieStore is a domain-keyed cache of resolved cookie strings. It is read
// by every strategy and written only when a strategy reports success, so a
// failed or inconclusive solve attempt never clobbers a working token.
//
// Records are keyed by domain, not full URL: a clearance cookie is valid for
// the whole site. Safe for concurrent use.
type CookieStore struct {
	mu      sync.RWMutex
	records map[string]CookieRecord
}

func NewCookieStore() *CookieStore {
	return &CookieStore{records: make(map[string]CookieRecord)}
}

// Get returns the cookie string for domain and whether a record exists.
func (s *CookieStore) Get(domain string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[domain]
	return rec.CookieString, ok
}

// Set replaces the record for domain. Callers must only invoke this after a
// strategy confirmed success.
func (s *CookieStore) Set(domain, cookieString string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[domain] = CookieRecord{
		Domain:       domain,
		CookieString: cookieString,
		ResolvedAt:   time.Now(),
	}
}

// Invalidate drops the record for domain. Called before a fresh solve
// attempt: a 403 on the old token is evidence the server already rejected
// it, and re-sending a dead credential during the solve's own network
// activity only hurts.
func (s *CookieStore) Invalidate(domain string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, domain)
}
