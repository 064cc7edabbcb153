// Package installer turns locked resources into files in the project tree:
// it materializes source bytes through the cache, applies patches, renders
// templates, and writes outputs atomically, in parallel with backpressure.
// It also removes artifacts whose lockfile entry disappeared or moved.
package installer

import (
	"sync"

	"github.com/agpm-dev/agpm/pkg/cache"
	"github.com/agpm-dev/agpm/pkg/lockfile"
	"github.com/agpm-dev/agpm/pkg/patch"
	"github.com/agpm-dev/agpm/pkg/template"
)

// DefaultMaxContentFileSize bounds content files a template context may
// embed.
const DefaultMaxContentFileSize = 1 << 20

// Context carries the per-run inputs shared by every resource install.
type Context struct {
	// ProjectDir is the project root all destinations are relative to.
	ProjectDir string

	// Cache is borrowed, not owned; handles are cheap aliases.
	Cache *cache.Cache

	// ForceRefresh recreates worktrees and skips the early-exit check.
	ForceRefresh bool

	// OldLockfile enables the unchanged-resource fast path; may be nil.
	OldLockfile *lockfile.LockFile

	// Lockfile is the resolved lockfile being installed.
	Lockfile *lockfile.LockFile

	// ProjectPatches and PrivatePatches are the manifest's field override
	// maps; private overlays project.
	ProjectPatches patch.Patches
	PrivatePatches patch.Patches

	// GitignoreMu serializes .gitignore updates. When nil, gitignore
	// maintenance is disabled.
	GitignoreMu *sync.Mutex

	// ContextBuilder supplies template contexts; when nil, no templating
	// is attempted.
	ContextBuilder template.ContextBuilder

	// Renderer renders frontmatter and opted-in full documents.
	Renderer *template.Renderer

	// MaxContentFileSize bounds embeddable content files.
	MaxContentFileSize int64

	Verbose bool
}

// Outcome is the result of one per-resource install.
type Outcome struct {
	// Installed is true only when bytes were written to disk.
	Installed bool

	// Checksum is the sha256:-prefixed digest of the final content.
	Checksum string

	// ContextChecksum digests the template-context inputs; empty when
	// templating was not applied.
	ContextChecksum string

	// AppliedPatches records every overridden field and its final value.
	AppliedPatches map[string]interface{}
}
