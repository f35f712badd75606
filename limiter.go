package cfbypass

// solveLimiter caps concurrent browser solves. Each solve is a full browser
// page load with JavaScript execution; letting every challenged request
// launch one would exhaust memory long before it exhausted patience.
type solveLimiter struct {
	sem chan struct{}
}

func newSolveLimiter(maxConcurrent int) *solveLimiter {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &solveLimiter{sem: make(chan struct{}, maxConcurrent)}
}

func (l *solveLimiter) Acquire() {
	l.sem <- struct{}{}
}

func (l *solveLimiter) Release() {
	<-l.sem
}
