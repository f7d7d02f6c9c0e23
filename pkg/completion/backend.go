package completion

import "context"

// Request is a single chat-style generation call.
type Request struct {
	System      string
	User        string
	Model       string
	Temperature float64
}

// Backend performs one generation call against a provider.
// Implementations must not retry on their own.
type Backend interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f BackendFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
