package ports

import (
	"context"
)

// Interim is the parsed result of the first checkpoint.
type Interim struct {
	Reply    string
	FollowUp string
}

// Generator produces the two checkpoint narratives from captured session data.
type Generator interface {
	GenerateInterim(ctx context.Context, data map[string]string) (Interim, error)
	GenerateFinal(ctx context.Context, data map[string]string) (string, error)
}

// TextExtractor returns the text found in an image.
// A failure is reported as an error; the caller decides how to degrade.
type TextExtractor interface {
	ExtractText(ctx context.Context, image []byte, mimeType string) (string, error)
}
