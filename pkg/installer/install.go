package installer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gobwas/glob"
	"golang.org/x/sync/semaphore"

	"github.com/agpm-dev/agpm/pkg/gitcmd"
	"github.com/agpm-dev/agpm/pkg/lockfile"
	"github.com/agpm-dev/agpm/pkg/progress"
)

// Filter selects which lockfile entries a batch install targets.
type Filter struct {
	// Updates restricts the batch to entries matching (name, source); nil
	// means all entries.
	Updates []UpdateRef

	// Only further restricts by glob patterns over resource names; empty
	// means no restriction.
	Only []string
}

// UpdateRef identifies one resource selected for reinstall.
type UpdateRef struct {
	Name   string
	Source string
}

// Result aggregates a batch install: per-resource checksums, context
// checksums, and applied patches, keyed by each resource's stable
// identifier.
type Result struct {
	InstalledCount   int
	Checksums        map[string]string
	ContextChecksums map[string]string
	AppliedPatches   map[string]map[string]interface{}
}

// collectEntries gathers and filters the lockfile entries for a batch.
func collectEntries(lf *lockfile.LockFile, filter Filter) ([]*lockfile.LockedResource, error) {
	var entries []*lockfile.LockedResource

	if filter.Updates == nil {
		entries = lf.AllResources()
	} else {
		for _, ref := range filter.Updates {
			for _, r := range lf.AllResources() {
				if r.Name == ref.Name && r.Source == ref.Source {
					entries = append(entries, r)
				}
			}
		}
	}

	if len(filter.Only) > 0 {
		globs := make([]glob.Glob, 0, len(filter.Only))
		for _, pattern := range filter.Only {
			g, err := glob.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("invalid filter pattern %q: %w", pattern, err)
			}
			globs = append(globs, g)
		}
		filtered := entries[:0]
		for _, r := range entries {
			for _, g := range globs {
				if g.Match(r.Name) {
					filtered = append(filtered, r)
					break
				}
			}
		}
		entries = filtered
	}

	return entries, nil
}

// InstallResources installs the selected entries with at most
// maxConcurrency in flight. Results are aggregated in sorted input order so
// context checksums are deterministic regardless of the lockfile's on-disk
// order. Per-resource failures never abort peers: the batch returns a
// combined error naming every failure.
func InstallResources(ctx context.Context, filter Filter, ic *Context, maxConcurrency int, reporter progress.Reporter) (*Result, error) {
	entries, err := collectEntries(ic.Lockfile, filter)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Checksums:        make(map[string]string),
		ContextChecksums: make(map[string]string),
		AppliedPatches:   make(map[string]map[string]interface{}),
	}
	if len(entries) == 0 {
		return result, nil
	}

	// Deterministic processing order: context checksums depend on it.
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].ResourceType != entries[j].ResourceType {
			return entries[i].ResourceType < entries[j].ResourceType
		}
		return entries[i].Name < entries[j].Name
	})

	prewarmWorktrees(ctx, entries, ic)

	if reporter == nil {
		reporter = progress.Noop{}
	}
	reporter.StartPhase("Installing resources", len(entries))
	defer reporter.Finish()

	if maxConcurrency < 1 {
		maxConcurrency = len(entries)
	}

	outcomes := make([]Outcome, len(entries))
	errs := make([]error, len(entries))

	sem := semaphore.NewWeighted(int64(maxConcurrency))
	var wg sync.WaitGroup
	for i, entry := range entries {
		if err := sem.Acquire(ctx, 1); err != nil {
			for j := i; j < len(entries); j++ {
				errs[j] = err
			}
			break
		}
		wg.Add(1)
		go func(i int, entry *lockfile.LockedResource) {
			defer wg.Done()
			defer sem.Release(1)
			outcomes[i], errs[i] = InstallResource(ctx, entry, ic)
			reporter.Increment(entry.Name)
		}(i, entry)
	}
	wg.Wait()

	var failures []string
	for i, entry := range entries {
		if errs[i] != nil {
			failures = append(failures, fmt.Sprintf("  %s: %v", entry.Name, errs[i]))
			continue
		}
		id := entry.ID().String()
		if outcomes[i].Installed {
			result.InstalledCount++
		}
		result.Checksums[id] = outcomes[i].Checksum
		if outcomes[i].ContextChecksum != "" {
			result.ContextChecksums[id] = outcomes[i].ContextChecksum
		}
		if len(outcomes[i].AppliedPatches) > 0 {
			result.AppliedPatches[id] = outcomes[i].AppliedPatches
		}
	}

	if len(failures) > 0 {
		return nil, fmt.Errorf("failed to install %d resource(s):\n%s", len(failures), strings.Join(failures, "\n"))
	}

	return result, nil
}

// prewarmWorktrees creates every needed worktree up front, in parallel and
// unbounded: creation is serialized per bare repo by the admin file lock
// anyway, and doing it before the install fan-out avoids burst contention
// on that lock. Errors are ignored here; they resurface per-resource.
func prewarmWorktrees(ctx context.Context, entries []*lockfile.LockedResource, ic *Context) {
	type triple struct{ source, url, sha string }
	unique := make(map[triple]bool)
	for _, e := range entries {
		if e.Source != "" && e.URL != "" && gitcmd.IsValidSHA(e.ResolvedCommit) {
			unique[triple{e.Source, e.URL, e.ResolvedCommit}] = true
		}
	}
	if len(unique) == 0 {
		return
	}

	var wg sync.WaitGroup
	for t := range unique {
		wg.Add(1)
		go func(t triple) {
			defer wg.Done()
			_, _ = ic.Cache.GetOrCreateWorktreeForSHA(ctx, t.source, t.url, t.sha, "pre-warm")
		}(t)
	}
	wg.Wait()
}
