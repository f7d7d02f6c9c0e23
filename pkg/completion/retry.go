package completion

import (
	"context"
	"fmt"

	"github.com/aretw0/anamnesis/pkg/domain"
)

// DefaultAttempts is the total number of tries per checkpoint.
const DefaultAttempts = 3

// RetryError is returned when every attempt failed.
// It unwraps to both the last underlying error and domain.ErrGenerationFailed.
type RetryError struct {
	Attempts int
	Last     error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("generation failed after %d attempt(s): %v", e.Attempts, e.Last)
}

func (e *RetryError) Unwrap() []error {
	return []error{domain.ErrGenerationFailed, e.Last}
}

// Retry calls fn up to attempts times with no delay and returns the first success.
// Every error is retried; a cancelled context stops further attempts.
func Retry(ctx context.Context, attempts int, fn func(context.Context) (string, error)) (string, error) {
	if attempts < 1 {
		attempts = 1
	}

	var last error
	tried := 0
	for tried < attempts {
		if err := ctx.Err(); err != nil {
			if last == nil {
				last = err
			}
			break
		}
		tried++

		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		last = err
	}
	return "", &RetryError{Attempts: tried, Last: last}
}
