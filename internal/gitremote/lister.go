package gitremote

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Runner executes a command and returns its standard output
type Runner interface {
	Run(ctx context.Context, env []string, cmd string, args ...string) ([]byte, error)
}

// ExecRunner runs commands on the local host
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, env []string, cmd string, args ...string) ([]byte, error) {
	command := exec.CommandContext(ctx, cmd, args...)
	command.Env = append(os.Environ(), env...)

	var stderr bytes.Buffer
	command.Stderr = &stderr

	out, err := command.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%w: %s", err, msg)
		}
		return out, err
	}
	return out, nil
}

// GitCLI lists remote refs with the git binary
type GitCLI struct {
	Runner Runner
	// Binary defaults to "git"
	Binary string
}

func NewGitCLI() *GitCLI {
	return &GitCLI{Runner: ExecRunner{}, Binary: "git"}
}

// ListRemote runs `git ls-remote <url> <ref>`. Credential prompts are disabled so
// an auth failure surfaces as an error instead of blocking.
func (g *GitCLI) ListRemote(ctx context.Context, url, ref string) (string, error) {
	binary := g.Binary
	if binary == "" {
		binary = "git"
	}

	out, err := g.Runner.Run(ctx, []string{"GIT_TERMINAL_PROMPT=0"}, binary, "ls-remote", url, ref)
	if err != nil {
		return "", fmt.Errorf("git ls-remote: %w", err)
	}
	return string(out), nil
}
