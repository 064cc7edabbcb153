package installer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInstallResourcesBatch(t *testing.T) {
	ic := newTestContext(t)

	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("agent-%d", i)
		writeProjectFile(t, ic.ProjectDir, "resources/"+name+".md",
			fmt.Sprintf("---\nindex: %d\n---\nAgent %d\n", i, i))
		ic.Lockfile.AddResource(localEntry(name, "resources/"+name+".md", ".claude/agents/"+name+".md"))
	}

	result, err := InstallResources(context.Background(), Filter{}, ic, 4, nil)
	if err != nil {
		t.Fatalf("InstallResources() error = %v", err)
	}
	if result.InstalledCount != 8 {
		t.Errorf("InstalledCount = %d, want 8", result.InstalledCount)
	}
	if len(result.Checksums) != 8 {
		t.Errorf("Checksums has %d entries, want 8", len(result.Checksums))
	}

	for i := 0; i < 8; i++ {
		dest := filepath.Join(ic.ProjectDir, fmt.Sprintf(".claude/agents/agent-%d.md", i))
		if _, err := os.Stat(dest); err != nil {
			t.Errorf("destination %s missing", dest)
		}
	}
}

func TestInstallResourcesAggregatesErrors(t *testing.T) {
	ic := newTestContext(t)

	writeProjectFile(t, ic.ProjectDir, "resources/good.md", "---\nx: 1\n---\nGood\n")
	ic.Lockfile.AddResource(localEntry("good", "resources/good.md", ".claude/agents/good.md"))
	// Two entries whose source files are missing.
	ic.Lockfile.AddResource(localEntry("missing-one", "resources/missing-one.md", ".claude/agents/missing-one.md"))
	ic.Lockfile.AddResource(localEntry("missing-two", "resources/missing-two.md", ".claude/agents/missing-two.md"))

	_, err := InstallResources(context.Background(), Filter{}, ic, 2, nil)
	if err == nil {
		t.Fatal("expected combined error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "missing-one") || !strings.Contains(msg, "missing-two") {
		t.Errorf("combined error must name every failure: %v", msg)
	}

	// The healthy peer still installed.
	if _, statErr := os.Stat(filepath.Join(ic.ProjectDir, ".claude/agents/good.md")); statErr != nil {
		t.Error("per-resource failure aborted a healthy peer")
	}
}

func TestInstallResourcesOnlyFilter(t *testing.T) {
	ic := newTestContext(t)

	for _, name := range []string{"alpha", "beta", "gamma"} {
		writeProjectFile(t, ic.ProjectDir, "resources/"+name+".md", "---\nx: 1\n---\n"+name+"\n")
		ic.Lockfile.AddResource(localEntry(name, "resources/"+name+".md", ".claude/agents/"+name+".md"))
	}

	result, err := InstallResources(context.Background(), Filter{Only: []string{"alph*"}}, ic, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.InstalledCount != 1 {
		t.Errorf("InstalledCount = %d, want 1", result.InstalledCount)
	}
	if _, err := os.Stat(filepath.Join(ic.ProjectDir, ".claude/agents/beta.md")); !os.IsNotExist(err) {
		t.Error("filtered-out resource was installed")
	}
}

func TestInstallResourcesUpdatesFilter(t *testing.T) {
	ic := newTestContext(t)

	for _, name := range []string{"one", "two"} {
		writeProjectFile(t, ic.ProjectDir, "resources/"+name+".md", "---\nx: 1\n---\n"+name+"\n")
		ic.Lockfile.AddResource(localEntry(name, "resources/"+name+".md", ".claude/agents/"+name+".md"))
	}

	result, err := InstallResources(context.Background(),
		Filter{Updates: []UpdateRef{{Name: "two", Source: ""}}}, ic, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.InstalledCount != 1 {
		t.Errorf("InstalledCount = %d, want 1", result.InstalledCount)
	}
}

func TestSecondBatchInstallIsNoop(t *testing.T) {
	ic := newTestContext(t)

	for i := 0; i < 4; i++ {
		name := fmt.Sprintf("agent-%d", i)
		writeProjectFile(t, ic.ProjectDir, "resources/"+name+".md",
			fmt.Sprintf("---\nindex: %d\n---\nBody %d\n", i, i))
		ic.Lockfile.AddResource(localEntry(name, "resources/"+name+".md", ".claude/agents/"+name+".md"))
	}

	first, err := InstallResources(context.Background(), Filter{}, ic, 4, nil)
	if err != nil {
		t.Fatal(err)
	}
	if first.InstalledCount != 4 {
		t.Fatalf("first InstalledCount = %d", first.InstalledCount)
	}

	// Stamp checksums and rerun against the prior state.
	for _, entry := range ic.Lockfile.AllResources() {
		entry.Checksum = first.Checksums[entry.ID().String()]
	}
	ic.OldLockfile = ic.Lockfile

	second, err := InstallResources(context.Background(), Filter{}, ic, 4, nil)
	if err != nil {
		t.Fatal(err)
	}
	if second.InstalledCount != 0 {
		t.Errorf("second InstalledCount = %d, want 0", second.InstalledCount)
	}
}

func TestBatchDeterministicChecksums(t *testing.T) {
	run := func() map[string]string {
		ic := newTestContext(t)
		for _, name := range []string{"zeta", "alpha", "mid"} {
			writeProjectFile(t, ic.ProjectDir, "resources/"+name+".md", "---\nn: "+name+"\n---\nB\n")
			ic.Lockfile.AddResource(localEntry(name, "resources/"+name+".md", ".claude/agents/"+name+".md"))
		}
		result, err := InstallResources(context.Background(), Filter{}, ic, 3, nil)
		if err != nil {
			t.Fatal(err)
		}
		return result.Checksums
	}

	first := run()
	second := run()
	if len(first) != len(second) {
		t.Fatalf("runs differ in size: %d vs %d", len(first), len(second))
	}
	for id, sum := range first {
		if second[id] != sum {
			t.Errorf("checksum for %s differs across identical runs", id)
		}
	}
}

func TestGitignoreDeduplication(t *testing.T) {
	ic := newTestContext(t)
	writeProjectFile(t, ic.ProjectDir, "resources/a.md", "---\nx: 1\n---\nA\n")

	entry := localEntry("a", "resources/a.md", ".claude/agents/a.md")
	if _, err := InstallResource(context.Background(), entry, ic); err != nil {
		t.Fatal(err)
	}

	// Force a second write of the same path.
	writeProjectFile(t, ic.ProjectDir, "resources/a.md", "---\nx: 2\n---\nA2\n")
	if _, err := InstallResource(context.Background(), entry, ic); err != nil {
		t.Fatal(err)
	}

	gi, err := os.ReadFile(filepath.Join(ic.ProjectDir, ".gitignore"))
	if err != nil {
		t.Fatal(err)
	}
	count := strings.Count(string(gi), ".claude/agents/a.md")
	if count != 1 {
		t.Errorf(".gitignore has %d copies of the path, want 1:\n%s", count, gi)
	}
}
