package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/questlog/internal/config"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LLMConfig
		want    any
		wantErr bool
	}{
		{"claude cli", config.LLMConfig{Provider: "claude-cli", Model: "haiku"}, &ClaudeCLI{}, false},
		{"anthropic", config.LLMConfig{Provider: "anthropic", AnthropicKey: "test-key"}, &Anthropic{}, false},
		{"anthropic missing key", config.LLMConfig{Provider: "anthropic"}, nil, true},
		{"ollama", config.LLMConfig{Provider: "ollama", OllamaModel: "llama3.2"}, &Ollama{}, false},
		{"unknown", config.LLMConfig{Provider: "gpt"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, client)
		})
	}
}

func TestNewClientNone(t *testing.T) {
	client, err := NewClient(config.LLMConfig{Provider: "none"})
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestAnthropicComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "claude-test", body["model"])
		assert.NotEmpty(t, body["system"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"type":"text","text":"{\"nodes\":"},{"type":"text","text":" {}}"}],"usage":{"input_tokens":10,"output_tokens":5}}`))
	}))
	defer srv.Close()

	client, err := NewClient(config.LLMConfig{Provider: "anthropic", AnthropicKey: "test-key", Model: "claude-test", AnthropicURL: srv.URL})
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, `{"nodes": {}}`, resp.Content)
	assert.Equal(t, 15, resp.TokensUsed)
	assert.Equal(t, "anthropic", resp.Provider)
}

func TestAnthropicErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := NewAnthropic("k", "m", time.Second)
	a.url = srv.URL
	_, err := a.Complete(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestOllamaComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "json", body["format"])
		assert.Equal(t, false, body["stream"])
		w.Write([]byte(`{"response":"{\"nodes\": {}}","prompt_eval_count":7,"eval_count":3}`))
	}))
	defer srv.Close()

	resp, err := NewOllama(srv.URL+"/", "llama3.2", time.Second).Complete(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, `{"nodes": {}}`, resp.Content)
	assert.Equal(t, 10, resp.TokensUsed)
}

func TestFilterEnv(t *testing.T) {
	env := []string{
		"HOME=/home/user",
		"CLAUDE_SESSION_ID=abc123",
		"CLAUDE_TRANSCRIPT=/tmp/t.jsonl",
		"CLAUDECODE=1",
		"QUESTLOG_INTERNAL=1",
		"PATH=/usr/bin",
	}
	assert.Equal(t, []string{"HOME=/home/user", "PATH=/usr/bin"}, filterEnv(env))
}

func TestParseCLIOutput(t *testing.T) {
	resp, err := parseCLIOutput([]byte(`{"type":"result","subtype":"success","is_error":false,
		"result":"  {\"nodes\": {}}\n","usage":{"input_tokens":12,"output_tokens":5}}`))
	require.NoError(t, err)
	assert.Equal(t, `{"nodes": {}}`, resp.Content)
	assert.Equal(t, "claude-cli", resp.Provider)
	assert.Equal(t, 17, resp.TokensUsed)

	tests := []struct {
		name string
		out  string
	}{
		{"not json", "Sorry, I can't help with that."},
		{"error run", `{"type":"result","subtype":"error_max_turns","is_error":true,"result":""}`},
		{"empty result", `{"type":"result","subtype":"success","result":"  "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseCLIOutput([]byte(tt.out))
			assert.Error(t, err)
		})
	}
}

// fakeClaude writes a shell script standing in for the claude binary.
func fakeClaude(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "claude")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func TestClaudeCLIComplete(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	stdinFile := filepath.Join(dir, "stdin")
	t.Setenv("CLAUDE_SESSION_ID", "parent")

	c := NewClaudeCLI("haiku", 5*time.Second)
	c.bin = fakeClaude(t, `echo "$@" > `+argsFile+`
cat > `+stdinFile+`
echo "session=${CLAUDE_SESSION_ID:-unset} internal=$QUESTLOG_INTERNAL" >> `+argsFile+`
printf '{"type":"result","subtype":"success","is_error":false,"result":"{}","usage":{"input_tokens":3,"output_tokens":4}}'
`)

	resp, err := c.Complete(context.Background(), "entry text")
	require.NoError(t, err)
	assert.Equal(t, "{}", resp.Content)
	assert.Equal(t, 7, resp.TokensUsed)

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Contains(t, string(args), "--output-format json")
	assert.Contains(t, string(args), "--model haiku")
	assert.Contains(t, string(args), "session=unset internal=1")

	stdin, err := os.ReadFile(stdinFile)
	require.NoError(t, err)
	assert.Equal(t, "entry text", string(stdin))
}

func TestClaudeCLIFailureIncludesStderr(t *testing.T) {
	c := NewClaudeCLI("haiku", 5*time.Second)
	c.bin = fakeClaude(t, "echo 'not logged in' >&2\nexit 3\n")

	_, err := c.Complete(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")
}

func TestAnalysisPrompt(t *testing.T) {
	p := AnalysisPrompt("Ran 5k", nil)
	assert.True(t, strings.HasPrefix(p, InternalSentinel))
	assert.Contains(t, p, "Ran 5k")
	assert.Contains(t, p, "(none yet)")

	known := make([]string, maxKnownLabels+10)
	for i := range known {
		known[i] = "L"
	}
	known[maxKnownLabels] = "Overflow"
	p = AnalysisPrompt("x", known)
	assert.NotContains(t, p, "Overflow")
}

func TestMockClient(t *testing.T) {
	mock := &MockClient{Response: &Response{Content: "test response", Provider: "mock"}}

	resp, err := mock.Complete(context.Background(), "test prompt")
	require.NoError(t, err)
	assert.Equal(t, "test response", resp.Content)
	assert.Equal(t, []string{"test prompt"}, mock.Calls)
}
