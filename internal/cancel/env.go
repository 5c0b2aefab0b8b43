// Package cancel halts the enclosing CI pipeline through an ordered chain of
// strategies: an operator-supplied script, then the GitHub Actions CLI, then
// the GitLab pipelines API.
package cancel

import (
	"os"
	"path/filepath"
	"strings"
)

// Environment variables read by DetectEnvironment.
const (
	EnvScript         = "EGRESSWATCH_CANCEL_SCRIPT"
	EnvHome           = "HOME"
	EnvGitHubActions  = "GITHUB_ACTIONS"
	EnvGitHubRunID    = "GITHUB_RUN_ID"
	EnvGitHubRepo     = "GITHUB_REPOSITORY"
	EnvGitLabCI       = "GITLAB_CI"
	EnvGitLabProject  = "CI_PROJECT_ID"
	EnvGitLabPipeline = "CI_PIPELINE_ID"
	EnvGitLabToken    = "GITLAB_TOKEN"
	EnvGitLabAPI      = "CI_API_V4_URL"
)

// DefaultScriptName is looked up in $HOME when no script override is set.
const DefaultScriptName = "cancel_pipeline.sh"

// homeFallback stands in for an unset or empty $HOME.
const homeFallback = "/tmp"

// DefaultGitLabAPI is used when CI_API_V4_URL is unset.
const DefaultGitLabAPI = "https://gitlab.com/api/v4"

// Provider is the CI system the process runs under.
type Provider string

const (
	ProviderNone   Provider = "none"
	ProviderGitHub Provider = "github"
	ProviderGitLab Provider = "gitlab"
)

// Environment is a snapshot of everything the strategies need.
type Environment struct {
	Provider   Provider
	ScriptPath string

	GitHubRunID      string
	GitHubRepository string

	GitLabProjectID  string
	GitLabPipelineID string
	GitLabToken      string
	GitLabAPIURL     string
}

// DetectEnvironment derives the CI environment from a variable snapshot.
// A provider marker counts when it is set, even to an empty value. GitHub
// wins when both markers are present.
func DetectEnvironment(env map[string]string) Environment {
	e := Environment{
		Provider:         ProviderNone,
		ScriptPath:       strings.TrimSpace(env[EnvScript]),
		GitHubRunID:      env[EnvGitHubRunID],
		GitHubRepository: env[EnvGitHubRepo],
		GitLabProjectID:  env[EnvGitLabProject],
		GitLabPipelineID: env[EnvGitLabPipeline],
		GitLabToken:      env[EnvGitLabToken],
		GitLabAPIURL:     strings.TrimRight(env[EnvGitLabAPI], "/"),
	}
	if e.ScriptPath == "" {
		home := env[EnvHome]
		if home == "" {
			home = homeFallback
		}
		e.ScriptPath = filepath.Join(home, DefaultScriptName)
	}
	if e.GitLabAPIURL == "" {
		e.GitLabAPIURL = DefaultGitLabAPI
	}

	_, github := env[EnvGitHubActions]
	_, gitlab := env[EnvGitLabCI]
	switch {
	case github:
		e.Provider = ProviderGitHub
	case gitlab:
		e.Provider = ProviderGitLab
	}
	return e
}

// OSEnviron snapshots the process environment.
func OSEnviron() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			out[k] = v
		}
	}
	return out
}
