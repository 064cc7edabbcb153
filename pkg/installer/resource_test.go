package installer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/agpm-dev/agpm/pkg/cache"
	"github.com/agpm-dev/agpm/pkg/fsutil"
	"github.com/agpm-dev/agpm/pkg/lockfile"
	"github.com/agpm-dev/agpm/pkg/patch"
	"github.com/agpm-dev/agpm/pkg/resource"
	"github.com/agpm-dev/agpm/pkg/template"
)

// newTestContext builds an install context over fresh temp dirs with a
// local-file lockfile entry layout (no git required).
func newTestContext(t *testing.T) *Context {
	t.Helper()
	projectDir := t.TempDir()
	c, err := cache.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return &Context{
		ProjectDir:         projectDir,
		Cache:              c,
		Lockfile:           lockfile.New(),
		GitignoreMu:        &sync.Mutex{},
		ContextBuilder:     template.NewDefaultContextBuilder(projectDir),
		Renderer:           template.NewRenderer(projectDir, DefaultMaxContentFileSize),
		MaxContentFileSize: DefaultMaxContentFileSize,
	}
}

// writeProjectFile creates a source file inside the project tree.
func writeProjectFile(t *testing.T, projectDir, rel, content string) {
	t.Helper()
	path := filepath.Join(projectDir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func localEntry(name, srcRel, destRel string) *lockfile.LockedResource {
	return &lockfile.LockedResource{
		Name:         name,
		Path:         srcRel,
		InstalledAt:  destRel,
		ResourceType: resource.Agent,
		Tool:         "claude-code",
	}
}

func TestInstallLocalResource(t *testing.T) {
	ic := newTestContext(t)
	content := "---\nmodel: sonnet\n---\nDo the review.\n"
	writeProjectFile(t, ic.ProjectDir, "resources/reviewer.md", content)

	entry := localEntry("reviewer", "resources/reviewer.md", ".claude/agents/reviewer.md")
	outcome, err := InstallResource(context.Background(), entry, ic)
	if err != nil {
		t.Fatalf("InstallResource() error = %v", err)
	}
	if !outcome.Installed {
		t.Error("first install must write")
	}

	dest := filepath.Join(ic.ProjectDir, ".claude/agents/reviewer.md")
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("destination missing: %v", err)
	}
	if string(data) != content {
		t.Errorf("installed bytes differ:\n%q\n%q", data, content)
	}

	// The checksum matches the installed bytes.
	wantSum := lockfile.FormatChecksum(fsutil.ChecksumBytes(data))
	if outcome.Checksum != wantSum {
		t.Errorf("checksum = %s, want %s", outcome.Checksum, wantSum)
	}

	// .gitignore carries the destination.
	gi, err := os.ReadFile(filepath.Join(ic.ProjectDir, ".gitignore"))
	if err != nil {
		t.Fatalf(".gitignore missing: %v", err)
	}
	if !strings.Contains(string(gi), ".claude/agents/reviewer.md") {
		t.Errorf(".gitignore = %q", gi)
	}
}

func TestReinstallIsNoop(t *testing.T) {
	ic := newTestContext(t)
	writeProjectFile(t, ic.ProjectDir, "resources/reviewer.md", "---\nmodel: sonnet\n---\nBody\n")

	entry := localEntry("reviewer", "resources/reviewer.md", ".claude/agents/reviewer.md")
	first, err := InstallResource(context.Background(), entry, ic)
	if err != nil {
		t.Fatal(err)
	}

	// Second run with the prior lockfile set: early exit, no write.
	old := lockfile.New()
	prior := *entry
	prior.Checksum = first.Checksum
	old.AddResource(&prior)
	ic.OldLockfile = old

	entry.Checksum = first.Checksum
	second, err := InstallResource(context.Background(), entry, ic)
	if err != nil {
		t.Fatal(err)
	}
	if second.Installed {
		t.Error("unchanged reinstall must not write")
	}
	if second.Checksum != first.Checksum {
		t.Errorf("checksums diverged: %s vs %s", second.Checksum, first.Checksum)
	}
}

func TestInstallFalseWritesNothing(t *testing.T) {
	ic := newTestContext(t)
	writeProjectFile(t, ic.ProjectDir, "snippets/tip.md", "---\nkind: tip\n---\nUseful tip\n")

	no := false
	entry := &lockfile.LockedResource{
		Name:         "tip",
		Path:         "snippets/tip.md",
		InstalledAt:  ".agpm/snippets/tip.md",
		Install:      &no,
		ResourceType: resource.Snippet,
		Tool:         "agpm",
	}

	outcome, err := InstallResource(context.Background(), entry, ic)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Installed {
		t.Error("install=false must not report installed")
	}
	if outcome.Checksum == "" {
		t.Error("install=false must still record a checksum")
	}
	if _, err := os.Stat(filepath.Join(ic.ProjectDir, ".agpm/snippets/tip.md")); !os.IsNotExist(err) {
		t.Error("install=false must not create the destination")
	}
}

func TestInstallAppliesPatches(t *testing.T) {
	ic := newTestContext(t)
	writeProjectFile(t, ic.ProjectDir, "resources/reviewer.md", "---\nmodel: sonnet\n---\nBody\n")

	ic.ProjectPatches = patch.Patches{
		"agents": {"reviewer": {"model": "haiku"}},
	}
	ic.PrivatePatches = patch.Patches{
		"agents": {"reviewer": {"temperature": 0.2}},
	}

	entry := localEntry("reviewer", "resources/reviewer.md", ".claude/agents/reviewer.md")
	outcome, err := InstallResource(context.Background(), entry, ic)
	if err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(filepath.Join(ic.ProjectDir, ".claude/agents/reviewer.md"))
	if !strings.Contains(string(data), "model: haiku") {
		t.Errorf("project patch not applied: %q", data)
	}
	if !strings.Contains(string(data), "temperature: 0.2") {
		t.Errorf("private patch not applied: %q", data)
	}
	if outcome.AppliedPatches["model"] != "haiku" {
		t.Errorf("applied patches = %+v", outcome.AppliedPatches)
	}
}

func TestPatchLookupHonorsManifestAlias(t *testing.T) {
	ic := newTestContext(t)
	writeProjectFile(t, ic.ProjectDir, "resources/gen-a.md", "---\nmodel: sonnet\n---\nBody\n")

	// The patch is keyed by the manifest's dotted key, not the expanded
	// per-match name.
	ic.ProjectPatches = patch.Patches{
		"agents": {"all-agents": {"model": "haiku"}},
	}

	entry := localEntry("gen-a", "resources/gen-a.md", ".claude/agents/gen-a.md")
	entry.ManifestAlias = "all-agents"

	outcome, err := InstallResource(context.Background(), entry, ic)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.AppliedPatches["model"] != "haiku" {
		t.Errorf("alias lookup failed: %+v", outcome.AppliedPatches)
	}
}

func TestTemplatingOptIn(t *testing.T) {
	ic := newTestContext(t)
	content := "---\nagpm:\n  templating: true\n---\nAgent {{.name}} reporting.\n"
	writeProjectFile(t, ic.ProjectDir, "resources/templated.md", content)

	entry := localEntry("templated", "resources/templated.md", ".claude/agents/templated.md")
	outcome, err := InstallResource(context.Background(), entry, ic)
	if err != nil {
		t.Fatalf("InstallResource() error = %v", err)
	}

	data, _ := os.ReadFile(filepath.Join(ic.ProjectDir, ".claude/agents/templated.md"))
	if !strings.Contains(string(data), "Agent templated reporting.") {
		t.Errorf("body not rendered: %q", data)
	}
	if outcome.ContextChecksum == "" {
		t.Error("opted-in templating must record a context checksum")
	}
}

func TestTemplatingNotOptedIn(t *testing.T) {
	ic := newTestContext(t)
	// Body contains template syntax but frontmatter does not opt in: the
	// body must survive verbatim.
	content := "---\ntitle: plain\n---\nLiteral {{.name}} stays.\n"
	writeProjectFile(t, ic.ProjectDir, "resources/plain.md", content)

	entry := localEntry("plain", "resources/plain.md", ".claude/agents/plain.md")
	outcome, err := InstallResource(context.Background(), entry, ic)
	if err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(filepath.Join(ic.ProjectDir, ".claude/agents/plain.md"))
	if !strings.Contains(string(data), "Literal {{.name}} stays.") {
		t.Errorf("body was rendered without opt-in: %q", data)
	}
	if outcome.ContextChecksum != "" {
		t.Error("no context checksum without full templating")
	}
}

func TestDestPathDefault(t *testing.T) {
	entry := &lockfile.LockedResource{
		Name:         "helper",
		ResourceType: resource.Command,
		Tool:         "claude-code",
	}
	got, err := destPath("/project", entry)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join("/project", ".claude", "commands", "helper.md")
	if got != want {
		t.Errorf("destPath() = %q, want %q", got, want)
	}
}

func TestDestPathRejectsEscape(t *testing.T) {
	entry := &lockfile.LockedResource{
		Name:         "evil",
		InstalledAt:  "../outside.md",
		ResourceType: resource.Agent,
	}
	if _, err := destPath("/project", entry); err == nil {
		t.Error("installed_at escaping the project root must fail")
	}
}

func TestInvalidSHAFailsBeforeGit(t *testing.T) {
	ic := newTestContext(t)
	entry := &lockfile.LockedResource{
		Name:           "remote",
		Source:         "community",
		URL:            "https://example.invalid/repo.git",
		Path:           "agents/remote.md",
		ResolvedCommit: "not-a-sha",
		InstalledAt:    ".claude/agents/remote.md",
		ResourceType:   resource.Agent,
	}
	_, err := InstallResource(context.Background(), entry, ic)
	if err == nil {
		t.Fatal("invalid SHA must fail")
	}
	if !strings.Contains(err.Error(), "invalid SHA") {
		t.Errorf("error = %v", err)
	}
}

func TestLocalDirectorySource(t *testing.T) {
	ic := newTestContext(t)

	// A source with a URL but empty resolved_commit is a local directory.
	srcDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(srcDir, "agents"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(srcDir, "agents", "dev.md"), []byte("---\nx: 1\n---\nDev\n"), 0644); err != nil {
		t.Fatal(err)
	}

	entry := &lockfile.LockedResource{
		Name:         "dev",
		Source:       "local-dir",
		URL:          srcDir,
		Path:         "agents/dev.md",
		InstalledAt:  ".claude/agents/dev.md",
		ResourceType: resource.Agent,
	}
	outcome, err := InstallResource(context.Background(), entry, ic)
	if err != nil {
		t.Fatalf("InstallResource() error = %v", err)
	}
	if !outcome.Installed {
		t.Error("local directory source must install")
	}
}
