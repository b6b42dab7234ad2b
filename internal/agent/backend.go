// Package agent drives the external code-generation CLI. A Backend knows how
// to turn a prompt into an argv for its CLI; the Runner executes that argv in
// a working directory with a timeout. Nothing here interprets agent output;
// success heuristics belong to the callers.
package agent

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/maestro/internal/config"
)

// BackendName identifies a supported agent backend.
type BackendName string

const (
	BackendClaude BackendName = "claude"
	BackendCodex  BackendName = "codex"
)

// Backend provides backend-specific command construction.
type Backend interface {
	Name() BackendName
	DisplayName() string
	// BuildCommand returns the full argv for a one-shot, non-interactive
	// invocation with the given prompt. argv[0] is the binary.
	BuildCommand(prompt string) []string
}

// ErrUnknownBackend is returned when the configured backend is unsupported.
var ErrUnknownBackend = fmt.Errorf("unknown agent backend")

// NewFromConfig builds a Backend from configuration.
func NewFromConfig(cfg config.AgentConfig) (Backend, error) {
	switch strings.ToLower(cfg.Backend) {
	case string(BackendClaude), "":
		return NewClaudeBackend(cfg.ClaudeBinary, cfg.SkipPermissions), nil
	case string(BackendCodex):
		return NewCodexBackend(cfg.CodexBinary, cfg.SkipPermissions), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, cfg.Backend)
	}
}

// DefaultBackend returns a Claude backend with default settings.
func DefaultBackend() Backend {
	return NewClaudeBackend("claude", true)
}

// ClaudeBackend implements Backend for the claude CLI.
type ClaudeBackend struct {
	binary          string
	skipPermissions bool
}

// NewClaudeBackend creates a Claude backend.
func NewClaudeBackend(binary string, skipPermissions bool) *ClaudeBackend {
	if binary == "" {
		binary = "claude"
	}
	return &ClaudeBackend{
		binary:          binary,
		skipPermissions: skipPermissions,
	}
}

func (c *ClaudeBackend) Name() BackendName { return BackendClaude }

func (c *ClaudeBackend) DisplayName() string { return "Claude" }

func (c *ClaudeBackend) BuildCommand(prompt string) []string {
	args := []string{c.binary, "--print"}
	if c.skipPermissions {
		args = append(args, "--dangerously-skip-permissions")
	}
	return append(args, prompt)
}

// CodexBackend implements Backend for the codex CLI.
type CodexBackend struct {
	binary          string
	skipPermissions bool
}

// NewCodexBackend creates a Codex backend.
func NewCodexBackend(binary string, skipPermissions bool) *CodexBackend {
	if binary == "" {
		binary = "codex"
	}
	return &CodexBackend{
		binary:          binary,
		skipPermissions: skipPermissions,
	}
}

func (c *CodexBackend) Name() BackendName { return BackendCodex }

func (c *CodexBackend) DisplayName() string { return "Codex" }

func (c *CodexBackend) BuildCommand(prompt string) []string {
	args := []string{c.binary, "exec"}
	if c.skipPermissions {
		args = append(args, "--full-auto")
	} else {
		args = append(args, "--sandbox", "workspace-write")
	}
	return append(args, prompt)
}
