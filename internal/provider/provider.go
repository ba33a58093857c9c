// Package provider abstracts the external text-generation service. Both
// implementations distinguish transport/provider failures from empty or
// degenerate completions, because the tier pipeline treats the two
// differently: provider errors consume a retry attempt, empty output is
// a generation result the verifier gets to judge.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmptyCompletion is returned when the provider answered successfully
// but produced no text.
var ErrEmptyCompletion = errors.New("provider returned empty completion")

// APIError is a provider-side failure (5xx, rate limit, malformed
// response). An empty completion is not an APIError; see
// ErrEmptyCompletion.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider error: %s", e.Message)
}

// IsAPIError reports whether err is a provider-side failure.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// Options controls one completion call.
type Options struct {
	MaxTokens   int
	Temperature float64
}

// Client defines the interface for text-generation providers.
type Client interface {
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string, opts Options) (string, error)
}
