package ai

import "context"

// CompletionRequest is one chat completion call to the model.
type CompletionRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// LLMService is the external AI model collaborator. Implementations may fail
// (network, quota, malformed output); callers decide how to degrade.
type LLMService interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
