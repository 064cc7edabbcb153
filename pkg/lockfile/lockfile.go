// Package lockfile loads and saves the project's pinned record of resolved
// sources, commits, and content checksums, and models the locked resources
// the installer consumes.
package lockfile

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"github.com/agpm-dev/agpm/pkg/resource"
	"github.com/agpm-dev/agpm/pkg/template"
)

// CurrentVersion is the lockfile format version this build reads and
// writes. Loading a higher version fails with a VersionError.
const CurrentVersion = 1

// ChecksumPrefix prefixes every content checksum in the lockfile.
const ChecksumPrefix = "sha256:"

// LockFile aggregates locked resources by type plus the list of sources
// they were resolved from.
type LockFile struct {
	Version    int                `toml:"version"`
	Sources    []LockedSource    `toml:"sources,omitempty"`
	Agents     []*LockedResource `toml:"agents,omitempty"`
	Snippets   []*LockedResource `toml:"snippets,omitempty"`
	Commands   []*LockedResource `toml:"commands,omitempty"`
	Scripts    []*LockedResource `toml:"scripts,omitempty"`
	Hooks      []*LockedResource `toml:"hooks,omitempty"`
	McpServers []*LockedResource `toml:"mcp-servers,omitempty"`
}

// LockedSource pins one named source to the commit it was fetched at.
type LockedSource struct {
	Name      string `toml:"name"`
	URL       string `toml:"url"`
	Commit    string `toml:"commit"`
	FetchedAt string `toml:"fetched_at"`
}

// LockedResource is the unit consumed by the installation engine.
type LockedResource struct {
	Name            string                 `toml:"name"`
	ManifestAlias   string                 `toml:"manifest_alias,omitempty"`
	Source          string                 `toml:"source,omitempty"`
	URL             string                 `toml:"url,omitempty"`
	Path            string                 `toml:"path"`
	Version         string                 `toml:"version,omitempty"`
	ResolvedCommit  string                 `toml:"resolved_commit,omitempty"`
	Checksum        string                 `toml:"checksum"`
	ContextChecksum string                 `toml:"context_checksum,omitempty"`
	InstalledAt     string                 `toml:"installed_at"`
	Install         *bool                  `toml:"install,omitempty"`
	Tool            string                 `toml:"tool,omitempty"`
	VariantInputs   map[string]interface{} `toml:"variant_inputs,omitempty"`
	AppliedPatches  map[string]interface{} `toml:"applied_patches,omitempty"`

	// ResourceType is implied by the section the entry appears in; it is
	// stamped on load and never persisted as a key.
	ResourceType resource.Type `toml:"-"`

	// variantHash is recomputed from VariantInputs on load; not persisted.
	variantHash string
}

// New returns an empty lockfile at the current version.
func New() *LockFile {
	return &LockFile{Version: CurrentVersion}
}

// ShouldInstall reports whether the resource's bytes are written to disk.
// install = false resources are materialized for templating context only.
func (r *LockedResource) ShouldInstall() bool {
	return r.Install == nil || *r.Install
}

// LookupName returns the patch-lookup key: the original manifest key when
// pattern expansion renamed the resource, the resource name otherwise.
func (r *LockedResource) LookupName() string {
	if r.ManifestAlias != "" {
		return r.ManifestAlias
	}
	return r.Name
}

// VariantHash returns the hash of the variant-input bundle, recomputing it
// on first use.
func (r *LockedResource) VariantHash() string {
	if r.variantHash == "" {
		r.RecomputeVariantHash()
	}
	return r.variantHash
}

// RecomputeVariantHash rebuilds the variant hash from the VariantInputs
// value. The hash is deterministic: it is a SHA-256 over the canonical JSON
// encoding, which sorts object keys.
func (r *LockedResource) RecomputeVariantHash() {
	if len(r.VariantInputs) == 0 {
		r.variantHash = emptyVariantHash
		return
	}
	data, err := json.Marshal(r.VariantInputs)
	if err != nil {
		// Values decoded from TOML/JSON always re-encode; a failure here
		// means a programmatic caller put something unencodable in.
		r.variantHash = emptyVariantHash
		return
	}
	sum := sha256.Sum256(data)
	r.variantHash = hex.EncodeToString(sum[:])
}

var emptyVariantHash = func() string {
	sum := sha256.Sum256([]byte("{}"))
	return hex.EncodeToString(sum[:])
}()

// ID returns the stable identifier used to key per-resource results.
func (r *LockedResource) ID() template.ResourceID {
	tool := r.Tool
	if tool == "" {
		tool = r.ResourceType.DefaultTool()
	}
	return template.ResourceID{
		Name:        r.Name,
		Source:      r.Source,
		Tool:        tool,
		Type:        r.ResourceType,
		VariantHash: r.VariantHash(),
	}
}

// SameInputs reports whether two lockfile entries would produce identical
// content: same commit, same variant inputs, same applied patches.
func (r *LockedResource) SameInputs(other *LockedResource) bool {
	return r.ResolvedCommit == other.ResolvedCommit &&
		reflect.DeepEqual(r.VariantInputs, other.VariantInputs) &&
		reflect.DeepEqual(r.AppliedPatches, other.AppliedPatches)
}

// sections returns each resource slice paired with its type, in canonical
// order.
func (lf *LockFile) sections() []struct {
	Type    resource.Type
	Entries *[]*LockedResource
} {
	return []struct {
		Type    resource.Type
		Entries *[]*LockedResource
	}{
		{resource.Agent, &lf.Agents},
		{resource.Snippet, &lf.Snippets},
		{resource.Command, &lf.Commands},
		{resource.Script, &lf.Scripts},
		{resource.Hook, &lf.Hooks},
		{resource.McpServer, &lf.McpServers},
	}
}

// Resources returns the entries of one type.
func (lf *LockFile) Resources(t resource.Type) []*LockedResource {
	for _, s := range lf.sections() {
		if s.Type == t {
			return *s.Entries
		}
	}
	return nil
}

// AllResources returns every entry in canonical section order.
func (lf *LockFile) AllResources() []*LockedResource {
	var all []*LockedResource
	for _, s := range lf.sections() {
		all = append(all, *s.Entries...)
	}
	return all
}

// FindResource returns the entry with the given name and type, or nil.
func (lf *LockFile) FindResource(name string, t resource.Type) *LockedResource {
	for _, r := range lf.Resources(t) {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// AddResource appends an entry to the section matching its ResourceType.
func (lf *LockFile) AddResource(r *LockedResource) {
	for _, s := range lf.sections() {
		if s.Type == r.ResourceType {
			*s.Entries = append(*s.Entries, r)
			return
		}
	}
}

// AddSource records a source pin, replacing any previous entry of the same
// name.
func (lf *LockFile) AddSource(name, url, commit, fetchedAt string) {
	for i := range lf.Sources {
		if lf.Sources[i].Name == name {
			lf.Sources[i] = LockedSource{Name: name, URL: url, Commit: commit, FetchedAt: fetchedAt}
			return
		}
	}
	lf.Sources = append(lf.Sources, LockedSource{Name: name, URL: url, Commit: commit, FetchedAt: fetchedAt})
}

// Normalize sorts sources and resource sections deterministically and, as
// Load does, gives entries without a tool their type's default tool. Called
// before saving so repeated saves of the same logical content are
// byte-identical.
func (lf *LockFile) Normalize() {
	sort.SliceStable(lf.Sources, func(i, j int) bool {
		return lf.Sources[i].Name < lf.Sources[j].Name
	})
	for _, s := range lf.sections() {
		entries := *s.Entries
		for _, r := range entries {
			if r.Tool == "" {
				r.Tool = s.Type.DefaultTool()
			}
		}
		sort.SliceStable(entries, func(i, j int) bool {
			if entries[i].Name != entries[j].Name {
				return entries[i].Name < entries[j].Name
			}
			return entries[i].VariantHash() < entries[j].VariantHash()
		})
	}
}

// FormatChecksum prefixes a raw hex digest for storage in the lockfile.
func FormatChecksum(hexDigest string) string {
	return ChecksumPrefix + hexDigest
}

// ChecksumHex strips the sha256: prefix from a stored checksum.
func ChecksumHex(checksum string) (string, error) {
	if len(checksum) <= len(ChecksumPrefix) || checksum[:len(ChecksumPrefix)] != ChecksumPrefix {
		return "", fmt.Errorf("malformed checksum %q: expected %shex", checksum, ChecksumPrefix)
	}
	return checksum[len(ChecksumPrefix):], nil
}
