package inference

import (
	"context"
	"errors"
	"testing"
)

// recordingFactory builds mocks whose behavior depends on the credential used,
// and records which credentials were tried in order.
func recordingFactory(tried *[]string, behavior map[string]error) Factory {
	return func(cred Credential) (Provider, error) {
		*tried = append(*tried, cred.Name)
		err := behavior[cred.Name]
		if err == nil {
			return NewMock(), nil
		}
		return WithChatError(err), nil
	}
}

func quotaErr() error {
	return &APIError{StatusCode: 429, Status: "RESOURCE_EXHAUSTED", Message: "quota exceeded", Provider: "gemini"}
}

func TestCallerSuccessNoRotation(t *testing.T) {
	ring, _ := NewKeyring(testCredentials(3))
	var tried []string
	caller := NewCallerWithFactory(ring, recordingFactory(&tried, nil))

	resp, err := caller.Invoke(context.Background(), &ChatRequest{
		Messages: []Message{NewUserMessage("hello")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Message.Content != "mock reply" {
		t.Errorf("unexpected reply: %s", resp.Message.Content)
	}

	if len(tried) != 1 || tried[0] != "key-1" {
		t.Errorf("expected exactly one attempt on key-1, got %v", tried)
	}
	if ring.Rotations() != 0 {
		t.Errorf("expected no rotation on success, got %d", ring.Rotations())
	}
}

func TestCallerRotatesOnQuota(t *testing.T) {
	ring, _ := NewKeyring(testCredentials(3))
	var tried []string
	caller := NewCallerWithFactory(ring, recordingFactory(&tried, map[string]error{
		"key-1": quotaErr(),
	}))

	resp, err := caller.Invoke(context.Background(), &ChatRequest{
		Messages: []Message{NewUserMessage("hello")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp == nil {
		t.Fatal("expected response from second credential")
	}

	if len(tried) != 2 || tried[0] != "key-1" || tried[1] != "key-2" {
		t.Errorf("expected attempts [key-1 key-2], got %v", tried)
	}
	if ring.Rotations() != 1 {
		t.Errorf("expected exactly one rotation, got %d", ring.Rotations())
	}
}

func TestCallerAbortsOnNonQuotaFailure(t *testing.T) {
	ring, _ := NewKeyring(testCredentials(3))
	upstream := &APIError{StatusCode: 400, Message: "invalid argument", Provider: "gemini"}
	var tried []string
	caller := NewCallerWithFactory(ring, recordingFactory(&tried, map[string]error{
		"key-1": upstream,
	}))

	_, err := caller.Invoke(context.Background(), &ChatRequest{
		Messages: []Message{NewUserMessage("hello")},
	})
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 400 {
		t.Errorf("expected the upstream error propagated verbatim, got %v", err)
	}

	// No further attempts, no rotation
	if len(tried) != 1 {
		t.Errorf("expected 1 attempt, got %d (%v)", len(tried), tried)
	}
	if ring.Rotations() != 0 {
		t.Errorf("expected no rotation, got %d", ring.Rotations())
	}
}

func TestCallerExhaustsAllCredentials(t *testing.T) {
	ring, _ := NewKeyring(testCredentials(3))
	var tried []string
	caller := NewCallerWithFactory(ring, recordingFactory(&tried, map[string]error{
		"key-1": quotaErr(),
		"key-2": quotaErr(),
		"key-3": quotaErr(),
	}))

	_, err := caller.Invoke(context.Background(), &ChatRequest{
		Messages: []Message{NewUserMessage("hello")},
	})
	if err == nil {
		t.Fatal("expected error")
	}

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %T: %v", err, err)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", exhausted.Attempts)
	}
	if exhausted.Last == nil {
		t.Error("expected last underlying error for diagnostics")
	}

	// Every credential tried exactly once before giving up
	if len(tried) != 3 || tried[0] != "key-1" || tried[1] != "key-2" || tried[2] != "key-3" {
		t.Errorf("expected each credential tried once in order, got %v", tried)
	}
}

func TestCallerAttemptOverride(t *testing.T) {
	ring, _ := NewKeyring(testCredentials(5))
	var tried []string
	caller := NewCallerWithFactory(ring, recordingFactory(&tried, map[string]error{
		"key-1": quotaErr(),
		"key-2": quotaErr(),
		"key-3": quotaErr(),
		"key-4": quotaErr(),
		"key-5": quotaErr(),
	}), WithMaxAttempts(2))

	if caller.Attempts() != 2 {
		t.Fatalf("expected attempt cap 2, got %d", caller.Attempts())
	}

	_, err := caller.Invoke(context.Background(), &ChatRequest{
		Messages: []Message{NewUserMessage("hello")},
	})
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if len(tried) != 2 {
		t.Errorf("expected 2 attempts, got %d", len(tried))
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want outcome
	}{
		{"typed 429", &APIError{StatusCode: 429, Provider: "gemini"}, outcomeQuota},
		{"typed resource exhausted", &APIError{StatusCode: 200, Status: "RESOURCE_EXHAUSTED", Provider: "gemini"}, outcomeQuota},
		{"quota text", errors.New("Quota exceeded for model"), outcomeQuota},
		{"rate text", errors.New("rate exceeded"), outcomeQuota},
		{"limit text", errors.New("request limit reached"), outcomeQuota},
		{"429 text", errors.New("backend returned 429"), outcomeQuota},
		{"resource text", errors.New("Resource has been exhausted"), outcomeQuota},
		{"invalid argument", &APIError{StatusCode: 400, Message: "bad prompt", Provider: "gemini"}, outcomeOther},
		{"server error", &APIError{StatusCode: 503, Message: "unavailable", Provider: "gemini"}, outcomeOther},
		{"plain error", errors.New("connection refused"), outcomeOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err); got != tt.want {
				t.Errorf("classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
