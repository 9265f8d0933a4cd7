package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// EnvInternal is set on every claude subprocess questlog starts, so hooks in
// the user's claude setup can tell analysis runs apart from real sessions.
const EnvInternal = "QUESTLOG_INTERNAL"

const maxStderr = 512

// ClaudeCLI runs analysis prompts through `claude -p` with JSON output.
type ClaudeCLI struct {
	bin     string
	model   string
	timeout time.Duration
}

// NewClaudeCLI returns a client invoking the claude binary on PATH.
func NewClaudeCLI(model string, timeout time.Duration) *ClaudeCLI {
	return &ClaudeCLI{bin: "claude", model: model, timeout: timeout}
}

// cliResult is the envelope printed by `claude -p --output-format json`.
type cliResult struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
	IsError bool   `json:"is_error"`
	Result  string `json:"result"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (c *ClaudeCLI) args() []string {
	return []string{
		"-p",
		"--model", c.model,
		"--max-turns", "1",
		"--output-format", "json",
		"--append-system-prompt", analysisSystem,
	}
}

// Complete pipes the prompt to the CLI and returns the model's reply from
// the result envelope.
func (c *ClaudeCLI) Complete(ctx context.Context, prompt string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.bin, c.args()...)
	cmd.Stdin = strings.NewReader(prompt)
	cmd.Env = append(filterEnv(os.Environ()), EnvInternal+"=1")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("claude cli: %w", ctx.Err())
		}
		return nil, fmt.Errorf("claude cli: %w (stderr: %s)", err, excerpt(stderr.Bytes()))
	}
	return parseCLIOutput(stdout.Bytes())
}

func parseCLIOutput(out []byte) (*Response, error) {
	var res cliResult
	if err := json.Unmarshal(bytes.TrimSpace(out), &res); err != nil {
		return nil, fmt.Errorf("claude cli: decode output: %w (output: %s)", err, excerpt(out))
	}
	if res.IsError || (res.Subtype != "" && res.Subtype != "success") {
		return nil, fmt.Errorf("claude cli: run ended with %q: %s", res.Subtype, excerpt([]byte(res.Result)))
	}
	content := strings.TrimSpace(res.Result)
	if content == "" {
		return nil, fmt.Errorf("claude cli: empty result")
	}
	return &Response{
		Content:    content,
		Provider:   "claude-cli",
		TokensUsed: res.Usage.InputTokens + res.Usage.OutputTokens,
	}, nil
}

func excerpt(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxStderr {
		s = s[:maxStderr] + "..."
	}
	return s
}

// filterEnv drops CLAUDE_* and CLAUDECODE so the child starts a fresh
// session instead of attaching to the one that may be running questlog.
func filterEnv(env []string) []string {
	filtered := make([]string, 0, len(env))
	for _, e := range env {
		if strings.HasPrefix(e, "CLAUDE_") || strings.HasPrefix(e, "CLAUDECODE=") || strings.HasPrefix(e, EnvInternal+"=") {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered
}
