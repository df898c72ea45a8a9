// Package inference provides the boundary to the upstream generative-language
// backend.
//
// A Provider issues one chat completion against a single credential. The
// Keyring holds the ordered credential pool shared by all requests, and the
// Caller wraps the two into one logical call that rotates credentials on
// quota exhaustion.
//
// Example usage:
//
//	ring, _ := inference.NewKeyring(creds)
//	caller := inference.NewCaller(ring,
//	    inference.WithModel("gemini-2.0-flash"),
//	    inference.WithSystemPrompt(prompt),
//	)
//	defer caller.Close()
//
//	resp, _ := caller.Invoke(ctx, &inference.ChatRequest{
//	    Messages: []inference.Message{inference.NewUserMessage("Hello!")},
//	})
package inference

import (
	"context"
)

// Provider is the chat-completion interface for a single credential.
// All implementations must satisfy this interface.
type Provider interface {
	// Chat generates a response from a sequence of messages.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// ChatRequest for chat completions.
type ChatRequest struct {
	// Messages is the conversation history.
	Messages []Message

	// Model overrides the default model.
	Model string

	// MaxTokens limits the response length.
	MaxTokens int

	// Temperature controls randomness (0.0-2.0).
	Temperature float64

	// TopP controls nucleus sampling.
	TopP float64

	// TopK limits sampling to the K most likely tokens.
	TopK int
}

// ChatResponse from chat completion.
type ChatResponse struct {
	// Message is the assistant's response.
	Message Message

	// FinishReason indicates why generation stopped.
	FinishReason string

	// Model used for generation.
	Model string

	// LatencyMs is the response time in milliseconds.
	LatencyMs int64
}
