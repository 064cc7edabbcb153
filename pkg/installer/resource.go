package installer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/agpm-dev/agpm/pkg/errors"
	"github.com/agpm-dev/agpm/pkg/fsutil"
	"github.com/agpm-dev/agpm/pkg/gitcmd"
	"github.com/agpm-dev/agpm/pkg/lockfile"
	"github.com/agpm-dev/agpm/pkg/markdown"
	"github.com/agpm-dev/agpm/pkg/patch"
	"github.com/agpm-dev/agpm/pkg/tools"
)

// destPath computes the on-disk destination for a resource: an explicit
// installed_at when present, else the owning tool's default directory plus
// "{name}.md".
func destPath(projectDir string, entry *lockfile.LockedResource) (string, error) {
	if entry.InstalledAt != "" {
		if !fsutil.IsSafePath(projectDir, entry.InstalledAt) {
			return "", errors.Validation(fmt.Errorf("resource %s: installed_at %q escapes the project root", entry.Name, entry.InstalledAt), "")
		}
		return filepath.Join(projectDir, entry.InstalledAt), nil
	}

	toolName := entry.Tool
	if toolName == "" {
		toolName = entry.ResourceType.DefaultTool()
	}
	tool, err := tools.Parse(toolName)
	if err != nil {
		return "", fmt.Errorf("resource %s: %w", entry.Name, err)
	}
	return filepath.Join(projectDir, tool.ResourceDir(entry.ResourceType), entry.Name+".md"), nil
}

// InstallResource runs the per-resource algorithm: early exit, source
// fetch, patching, templating, checksum, and an atomic write when the
// content changed. It never writes when entry.install is false; the
// resource still contributes to other resources' template contexts.
func InstallResource(ctx context.Context, entry *lockfile.LockedResource, ic *Context) (Outcome, error) {
	dest, err := destPath(ic.ProjectDir, entry)
	if err != nil {
		return Outcome{}, err
	}

	existingChecksum := ""
	if _, statErr := os.Stat(dest); statErr == nil {
		hex, err := fsutil.CalculateChecksum(dest)
		if err != nil {
			return Outcome{}, fmt.Errorf("checksumming existing %s: %w", dest, err)
		}
		existingChecksum = lockfile.FormatChecksum(hex)
	}

	// Fast path: identical inputs and an on-disk file matching the prior
	// checksum mean no further I/O at all.
	if !ic.ForceRefresh && ic.OldLockfile != nil && existingChecksum != "" {
		if old := ic.OldLockfile.FindResource(entry.Name, entry.ResourceType); old != nil {
			if old.SameInputs(entry) && existingChecksum == old.Checksum {
				slog.Debug("skipping unchanged resource", "name", entry.Name, "type", entry.ResourceType)
				return Outcome{
					Installed:       false,
					Checksum:        old.Checksum,
					ContextChecksum: old.ContextChecksum,
					AppliedPatches:  old.AppliedPatches,
				}, nil
			}
		}
	}

	content, err := fetchSource(ctx, entry, ic)
	if err != nil {
		return Outcome{}, err
	}

	// Markdown validation: invalid frontmatter is a warning, not a
	// failure.
	if doc, parseErr := markdown.Parse(content); parseErr == nil && doc.Warning != "" {
		slog.Warn("resource has invalid frontmatter", "name", entry.Name, "detail", doc.Warning)
	}

	patchedContent, appliedPatches, err := applyPatches(content, entry, ic)
	if err != nil {
		return Outcome{}, err
	}

	finalContent, contextChecksum, err := applyTemplating(ctx, patchedContent, entry, ic)
	if err != nil {
		return Outcome{}, err
	}

	finalChecksum := lockfile.FormatChecksum(fsutil.ChecksumBytes([]byte(finalContent)))
	contentChanged := existingChecksum != finalChecksum

	outcome := Outcome{
		Checksum:        finalChecksum,
		ContextChecksum: contextChecksum,
		AppliedPatches:  appliedPatches,
	}

	if !entry.ShouldInstall() {
		slog.Debug("content-only dependency, skipping write", "name", entry.Name)
		return outcome, nil
	}

	if !contentChanged {
		return outcome, nil
	}

	if err := fsutil.EnsureParentDir(dest); err != nil {
		return Outcome{}, err
	}

	if ic.GitignoreMu != nil {
		rel, relErr := filepath.Rel(ic.ProjectDir, dest)
		if relErr != nil {
			rel = dest
		}
		if err := addToGitignore(ic.ProjectDir, rel, ic.GitignoreMu); err != nil {
			return Outcome{}, fmt.Errorf("adding %s to .gitignore: %w", rel, err)
		}
	}

	if err := fsutil.AtomicWrite(dest, []byte(finalContent)); err != nil {
		return Outcome{}, fmt.Errorf("installing resource %s: %w", entry.Name, err)
	}

	outcome.Installed = true
	return outcome, nil
}

// fetchSource resolves a resource to its content bytes: a worktree read for
// Git sources, a direct read for local-directory sources, and a
// project-tree read for sourceless (local file) resources.
func fetchSource(ctx context.Context, entry *lockfile.LockedResource, ic *Context) (string, error) {
	if entry.Source == "" {
		sourcePath := entry.Path
		if !filepath.IsAbs(sourcePath) {
			sourcePath = filepath.Join(ic.ProjectDir, sourcePath)
		}
		data, err := os.ReadFile(sourcePath)
		if err != nil {
			return "", errors.Resource(fmt.Errorf("local file %q not found for resource %s: %w", entry.Path, entry.Name, err), "")
		}
		return string(data), nil
	}

	if entry.URL == "" {
		return "", fmt.Errorf("resource %s names source %s but has no URL", entry.Name, entry.Source)
	}

	if entry.ResolvedCommit == "" {
		// Local directory source: the URL is the directory.
		sourcePath := filepath.Join(strings.TrimPrefix(entry.URL, "file://"), entry.Path)
		data, err := os.ReadFile(sourcePath)
		if err != nil {
			return "", fmt.Errorf("reading %s from local source %s: %w", entry.Path, entry.Source, err)
		}
		return string(data), nil
	}

	if !gitcmd.IsValidSHA(entry.ResolvedCommit) {
		return "", errors.Validation(fmt.Errorf("invalid SHA %q for resource %s: expected 40 hex characters (run 'agpm update' to regenerate the lockfile)", entry.ResolvedCommit, entry.Name), "")
	}

	worktree, err := ic.Cache.GetOrCreateWorktreeForSHA(ctx, entry.Source, entry.URL, entry.ResolvedCommit, entry.Name)
	if err != nil {
		return "", err
	}

	if ic.ForceRefresh {
		if err := ic.Cache.CleanupWorktree(ctx, worktree); err != nil {
			slog.Debug("force-refresh cleanup failed", "worktree", worktree, "error", err)
		}
		worktree, err = ic.Cache.GetOrCreateWorktreeForSHA(ctx, entry.Source, entry.URL, entry.ResolvedCommit, entry.Name)
		if err != nil {
			return "", err
		}
	}

	if !fsutil.IsSafePath(worktree, entry.Path) {
		return "", fmt.Errorf("resource %s: path %q escapes its source", entry.Name, entry.Path)
	}

	return fsutil.ReadTextFileWithRetry(ctx, filepath.Join(worktree, entry.Path))
}

// applyPatches looks up and applies the project and private overrides for
// the resource. The lookup key honors manifest_alias: pattern expansion
// generates per-match names that do not match the manifest's dotted key.
func applyPatches(content string, entry *lockfile.LockedResource, ic *Context) (string, map[string]interface{}, error) {
	if ic.ProjectPatches == nil && ic.PrivatePatches == nil {
		return content, nil, nil
	}

	plural := entry.ResourceType.Plural()
	lookup := entry.LookupName()

	project := ic.ProjectPatches.Get(plural, lookup)
	private := ic.PrivatePatches.Get(plural, lookup)
	if len(project) == 0 && len(private) == 0 {
		return content, nil, nil
	}

	patched, applied, err := patch.Apply(content, entry.InstalledAt, project, private)
	if err != nil {
		return "", nil, fmt.Errorf("failed to apply patches to resource %s: %w", entry.Name, err)
	}

	appliedMap := make(map[string]interface{}, len(applied))
	for _, f := range applied {
		appliedMap[f.Name] = f.Value
	}
	return patched, appliedMap, nil
}

// applyTemplating implements the frontmatter-first rendering strategy:
// frontmatter is always rendered because it is declarative and
// author-controlled; the body is rendered only when the rendered
// frontmatter opts in with agpm.templating: true, so prose containing
// template syntax is never accidentally interpreted.
func applyTemplating(ctx context.Context, content string, entry *lockfile.LockedResource, ic *Context) (string, string, error) {
	if !strings.HasSuffix(entry.Path, ".md") || ic.ContextBuilder == nil || ic.Renderer == nil {
		return content, "", nil
	}

	doc, err := markdown.Parse(content)
	if err != nil || !doc.HasFrontmatter() {
		return content, "", nil
	}

	templateCtx, contextChecksum, buildErr := ic.ContextBuilder.BuildContext(ctx, entry.ID(), entry.VariantInputs)
	if buildErr != nil {
		// Falling back preserves the original bytes; context failures
		// must not fail the install.
		slog.Debug("template context unavailable, skipping templating",
			"name", entry.Name, "error", buildErr)
		return content, "", nil
	}

	renderedFrontmatter, err := ic.Renderer.Render(doc.Raw, templateCtx)
	if err != nil {
		return "", "", fmt.Errorf("rendering frontmatter of %s (%s): %w", entry.Name, entry.Path, err)
	}

	renderedDoc, parseErr := markdown.Parse(doc.Splice(renderedFrontmatter))
	if parseErr == nil && renderedDoc.GetBool("agpm.templating") {
		fullyRendered, err := ic.Renderer.Render(content, templateCtx)
		if err != nil {
			return "", "", fmt.Errorf("rendering %s (%s): %w", entry.Name, entry.Path, err)
		}
		return fullyRendered, contextChecksum, nil
	}

	return doc.Splice(renderedFrontmatter), "", nil
}
