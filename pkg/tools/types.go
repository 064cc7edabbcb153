// Package tools maps tool namespaces to directory layouts under the project
// root. A tool owns each installed resource and decides where it lands.
package tools

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/agpm-dev/agpm/pkg/resource"
)

// Tool represents an AI coding tool namespace that resources install under.
type Tool int

const (
	// ClaudeCode installs under .claude/
	ClaudeCode Tool = iota
	// OpenCode installs under .opencode/
	OpenCode
	// Agpm is the tool-agnostic namespace under .agpm/, used by snippets
	// and other resources consumed only through templating.
	Agpm
)

// String returns the namespace name used in lockfiles and manifests.
func (t Tool) String() string {
	switch t {
	case ClaudeCode:
		return "claude-code"
	case OpenCode:
		return "opencode"
	case Agpm:
		return "agpm"
	default:
		return "unknown"
	}
}

// Parse converts a namespace name to a Tool.
func Parse(s string) (Tool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "claude-code", "claude":
		return ClaudeCode, nil
	case "opencode":
		return OpenCode, nil
	case "agpm":
		return Agpm, nil
	default:
		return -1, fmt.Errorf("unknown tool: %s (must be: claude-code, opencode, or agpm)", s)
	}
}

// Root returns the tool's directory prefix within the project.
func (t Tool) Root() string {
	switch t {
	case ClaudeCode:
		return ".claude"
	case OpenCode:
		return ".opencode"
	case Agpm:
		return ".agpm"
	default:
		return ".claude"
	}
}

// ResourceDir returns the project-relative default directory for a resource
// type under this tool, e.g. ".claude/agents" for agents on claude-code.
func (t Tool) ResourceDir(rt resource.Type) string {
	return filepath.ToSlash(filepath.Join(t.Root(), rt.SubDir()))
}

// CleanupCeiling returns the directory at which the empty-parent walk of
// artifact cleanup must stop for this tool. Cleanup never removes the tool
// root itself.
func (t Tool) CleanupCeiling() string {
	return t.Root()
}

// All returns every supported tool.
func All() []Tool {
	return []Tool{ClaudeCode, OpenCode, Agpm}
}
