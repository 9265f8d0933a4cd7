package llm

import (
	"context"
	"sync"
)

// MockClient is a test double for the LLM Client interface. When Respond is
// set it computes the reply from the prompt; otherwise Response and Err are
// returned as-is.
type MockClient struct {
	Response *Response
	Err      error
	Respond  func(prompt string) (*Response, error)

	mu    sync.Mutex
	Calls []string // records prompts sent
}

// Complete records the call and returns the mock response.
func (m *MockClient) Complete(ctx context.Context, prompt string) (*Response, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, prompt)
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Respond != nil {
		return m.Respond(prompt)
	}
	return m.Response, m.Err
}
