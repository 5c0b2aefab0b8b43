package cancel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"unicode/utf8"

	"github.com/ppiankov/egresswatch/internal/redact"
)

// Strategy names, used in outcomes, metrics and audit entries.
const (
	StrategyScript = "script"
	StrategyGitHub = "github"
	StrategyGitLab = "gitlab"
	StrategyNone   = "none"
)

// maxDetail bounds command output and response bodies kept in a detail.
const maxDetail = 512

// Outcome is the result of one cancellation attempt. Attempts lists every
// strategy tried, in order, on the outcome returned by Controller.Cancel.
type Outcome struct {
	Strategy  string    `json:"strategy"`
	Succeeded bool      `json:"succeeded"`
	Detail    string    `json:"detail"`
	Attempts  []Outcome `json:"attempts,omitempty"`
}

// Strategy is one way of halting the pipeline.
type Strategy interface {
	Name() string
	// Applicable reports whether the strategy should be tried at all.
	Applicable(env Environment) bool
	Attempt(ctx context.Context, reason string, env Environment) Outcome
}

// ScriptStrategy runs an operator-supplied script with the reason as its
// only argument. It needs no credentials in this process.
type ScriptStrategy struct {
	Runner Runner
}

func (ScriptStrategy) Name() string { return StrategyScript }

// Applicable reports whether the script file exists.
func (ScriptStrategy) Applicable(env Environment) bool {
	if env.ScriptPath == "" {
		return false
	}
	info, err := os.Stat(env.ScriptPath)
	return err == nil && !info.IsDir()
}

func (s ScriptStrategy) Attempt(ctx context.Context, reason string, env Environment) Outcome {
	out, err := s.Runner.Run(ctx, "bash", env.ScriptPath, reason)
	if err != nil {
		return failed(StrategyScript, fmt.Sprintf("script %s failed: %s", env.ScriptPath, describe(err, out)))
	}
	return Outcome{Strategy: StrategyScript, Succeeded: true, Detail: "cancelled via " + env.ScriptPath}
}

// GitHubStrategy cancels the current workflow run with the gh CLI.
type GitHubStrategy struct {
	Runner Runner
}

func (GitHubStrategy) Name() string { return StrategyGitHub }

func (GitHubStrategy) Applicable(env Environment) bool {
	return env.Provider == ProviderGitHub
}

func (s GitHubStrategy) Attempt(ctx context.Context, reason string, env Environment) Outcome {
	if env.GitHubRunID == "" || env.GitHubRepository == "" {
		return failed(StrategyGitHub, "missing "+EnvGitHubRunID+" or "+EnvGitHubRepo)
	}
	out, err := s.Runner.Run(ctx, "gh", "run", "cancel", env.GitHubRunID, "--repo", env.GitHubRepository)
	if err != nil {
		return failed(StrategyGitHub, fmt.Sprintf("gh run cancel %s: %s", env.GitHubRunID, describe(err, out)))
	}
	return Outcome{
		Strategy:  StrategyGitHub,
		Succeeded: true,
		Detail:    fmt.Sprintf("cancelled run %s in %s", env.GitHubRunID, env.GitHubRepository),
	}
}

// GitLabStrategy cancels the current pipeline through the GitLab API.
type GitLabStrategy struct {
	Client *http.Client
}

func (GitLabStrategy) Name() string { return StrategyGitLab }

func (GitLabStrategy) Applicable(env Environment) bool {
	return env.Provider == ProviderGitLab
}

func (s GitLabStrategy) Attempt(ctx context.Context, reason string, env Environment) Outcome {
	if env.GitLabProjectID == "" || env.GitLabPipelineID == "" || env.GitLabToken == "" {
		return failed(StrategyGitLab, "missing "+EnvGitLabProject+", "+EnvGitLabPipeline+" or "+EnvGitLabToken)
	}

	endpoint := fmt.Sprintf("%s/projects/%s/pipelines/%s/cancel",
		env.GitLabAPIURL, url.PathEscape(env.GitLabProjectID), url.PathEscape(env.GitLabPipelineID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return failed(StrategyGitLab, fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("PRIVATE-TOKEN", env.GitLabToken)

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return failed(StrategyGitLab, fmt.Sprintf("POST %s: %v", endpoint, err))
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxDetail+1))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text := clip(redact.Literals(redact.Secrets(strings.TrimSpace(string(body))), env.GitLabToken))
		return failed(StrategyGitLab, fmt.Sprintf("POST %s: HTTP %d: %s", endpoint, resp.StatusCode, text))
	}
	return Outcome{
		Strategy:  StrategyGitLab,
		Succeeded: true,
		Detail:    fmt.Sprintf("cancelled pipeline %s in project %s", env.GitLabPipelineID, env.GitLabProjectID),
	}
}

func failed(strategy, detail string) Outcome {
	return Outcome{Strategy: strategy, Detail: detail}
}

// describe renders a command failure with its exit code and trimmed output.
func describe(err error, out []byte) string {
	msg := err.Error()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		msg = fmt.Sprintf("exit code %d", exitErr.ExitCode())
	}
	text := clip(redact.Secrets(strings.TrimSpace(string(out))))
	if text == "" {
		return msg
	}
	return msg + ": " + text
}

// clip cuts text to at most maxDetail bytes on a rune boundary.
func clip(text string) string {
	if len(text) <= maxDetail {
		return text
	}
	cut := maxDetail
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
