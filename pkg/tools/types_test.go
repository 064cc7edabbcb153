package tools

import (
	"path/filepath"
	"testing"

	"github.com/agpm-dev/agpm/pkg/resource"
)

func TestParseTool(t *testing.T) {
	tests := []struct {
		input   string
		want    Tool
		wantErr bool
	}{
		{"claude-code", ClaudeCode, false},
		{"claude", ClaudeCode, false},
		{"opencode", OpenCode, false},
		{"agpm", Agpm, false},
		{"AGPM", Agpm, false},
		{"unknown-tool", -1, true},
	}
	for _, tt := range tests {
		got, err := Parse(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("Parse(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
		if err == nil && got != tt.want {
			t.Errorf("Parse(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestResourceDir(t *testing.T) {
	tests := []struct {
		tool Tool
		typ  resource.Type
		want string
	}{
		{ClaudeCode, resource.Agent, ".claude/agents"},
		{ClaudeCode, resource.Command, ".claude/commands"},
		{ClaudeCode, resource.McpServer, ".claude/mcp-servers"},
		{OpenCode, resource.Agent, ".opencode/agents"},
		{Agpm, resource.Snippet, ".agpm/snippets"},
	}
	for _, tt := range tests {
		if got := tt.tool.ResourceDir(tt.typ); filepath.ToSlash(got) != tt.want {
			t.Errorf("%v.ResourceDir(%v) = %q, want %q", tt.tool, tt.typ, got, tt.want)
		}
	}
}

func TestCleanupCeiling(t *testing.T) {
	if ClaudeCode.CleanupCeiling() != ".claude" {
		t.Errorf("ClaudeCode ceiling = %q", ClaudeCode.CleanupCeiling())
	}
	if Agpm.CleanupCeiling() != ".agpm" {
		t.Errorf("Agpm ceiling = %q", Agpm.CleanupCeiling())
	}
}
