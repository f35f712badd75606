package cfbypass

// Logger is the minimal logging surface the interceptor needs. Callers
// usually adapt their own logger; the default is silent.
type Logger interface {
	Log(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Log(string, ...any) {}

// PrefixLogger wraps a base logger, tagging every line. Useful to tell the
// interceptor's lines apart from the application's.
type PrefixLogger struct {
	Prefix string
	Base   Logger
}

func (p *PrefixLogger) Log(format string, args ...any) {
	p.Base.Log("["+p.Prefix+"] "+format, args...)
}
