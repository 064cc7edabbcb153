// Package resource defines the closed set of resource kinds the installer
// understands. Path-layout decisions dispatch over this enumeration; adding
// a kind requires touching every switch that maps types to directories.
package resource

import (
	"fmt"
	"strings"
)

// Type identifies a kind of installable resource.
type Type int

const (
	// Agent is a Markdown agent definition.
	Agent Type = iota
	// Snippet is a reusable content fragment consumed by templates.
	Snippet
	// Command is a slash-command definition.
	Command
	// Script is an executable helper script.
	Script
	// Hook is a lifecycle hook configuration.
	Hook
	// McpServer is an MCP server configuration.
	McpServer
)

// All returns every resource type in canonical order. The order is
// significant: batch installs sort by it so context checksums are
// deterministic.
func All() []Type {
	return []Type{Agent, Snippet, Command, Script, Hook, McpServer}
}

// String returns the singular name used in logs and error messages.
func (t Type) String() string {
	switch t {
	case Agent:
		return "agent"
	case Snippet:
		return "snippet"
	case Command:
		return "command"
	case Script:
		return "script"
	case Hook:
		return "hook"
	case McpServer:
		return "mcp-server"
	default:
		return "unknown"
	}
}

// Plural returns the lockfile section name and patch-lookup key for the
// type.
func (t Type) Plural() string {
	switch t {
	case Agent:
		return "agents"
	case Snippet:
		return "snippets"
	case Command:
		return "commands"
	case Script:
		return "scripts"
	case Hook:
		return "hooks"
	case McpServer:
		return "mcp-servers"
	default:
		return "unknown"
	}
}

// SubDir returns the directory name for the type under a tool's resource
// root.
func (t Type) SubDir() string {
	return t.Plural()
}

// DefaultTool returns the tool namespace a resource of this type installs
// under when the lockfile entry does not name one. Snippets are not
// tool-specific; they live under the agpm namespace and are consumed by
// templates.
func (t Type) DefaultTool() string {
	if t == Snippet {
		return "agpm"
	}
	return "claude-code"
}

// Parse converts a singular or plural name to a Type.
func Parse(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "agent", "agents":
		return Agent, nil
	case "snippet", "snippets":
		return Snippet, nil
	case "command", "commands":
		return Command, nil
	case "script", "scripts":
		return Script, nil
	case "hook", "hooks":
		return Hook, nil
	case "mcp-server", "mcp-servers", "mcpserver":
		return McpServer, nil
	default:
		return -1, fmt.Errorf("unknown resource type: %s (must be one of: agent, snippet, command, script, hook, mcp-server)", s)
	}
}
