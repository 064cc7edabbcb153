package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/agpm-dev/agpm/pkg/fsutil"
)

// registryFileName is the persisted worktree registry under worktrees/.
const registryFileName = ".state.json"

// registryEntry records which source a worktree came from. Worktree paths
// embed owner and repo with underscores, and both may themselves contain
// underscores, so the registry exists to avoid parsing paths back apart.
// LastUsed supports a future recency-based eviction policy; nothing reads
// it yet.
type registryEntry struct {
	Source   string `json:"source"`
	Version  string `json:"version"`
	Path     string `json:"path"`
	LastUsed int64  `json:"last_used"`
}

// registry is the mutable in-memory image of the registry file. All access
// goes through the cache handle's registry mutex.
type registry struct {
	path    string
	entries map[string]registryEntry
}

// loadRegistry reads the registry file, tolerating a missing or corrupt
// file by starting empty: the registry is an optimization, never a source
// of correctness.
func loadRegistry(worktreesDir string) *registry {
	r := &registry{
		path:    filepath.Join(worktreesDir, registryFileName),
		entries: make(map[string]registryEntry),
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		return r
	}
	var entries map[string]registryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return r
	}
	r.entries = entries
	return r
}

// save persists the registry. Called after every mutation while the
// registry mutex is held.
func (r *registry) save() error {
	data, err := json.MarshalIndent(r.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing worktree registry: %w", err)
	}
	if err := fsutil.AtomicWrite(r.path, data); err != nil {
		return fmt.Errorf("writing worktree registry: %w", err)
	}
	return nil
}

// touch records a successful use of a worktree.
func (r *registry) touch(key, source, version, path string) error {
	r.entries[key] = registryEntry{
		Source:   source,
		Version:  version,
		Path:     path,
		LastUsed: time.Now().Unix(),
	}
	return r.save()
}

// remove drops an entry; no-op for unknown keys.
func (r *registry) remove(key string) error {
	if _, ok := r.entries[key]; !ok {
		return nil
	}
	delete(r.entries, key)
	return r.save()
}

// findByPath returns the key and entry of the worktree at path.
func (r *registry) findByPath(path string) (string, registryEntry, bool) {
	for key, e := range r.entries {
		if e.Path == path {
			return key, e, true
		}
	}
	return "", registryEntry{}, false
}

// clear drops all entries.
func (r *registry) clear() error {
	r.entries = make(map[string]registryEntry)
	return r.save()
}
