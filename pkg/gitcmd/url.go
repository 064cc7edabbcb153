package gitcmd

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

// LocalOwner is the owner assigned to local filesystem sources, which have
// no meaningful owner component.
const LocalOwner = "local"

var (
	// SSH-colon form: git@host:owner/repo(.git)
	sshColonRegex = regexp.MustCompile(`^(?:[A-Za-z0-9._-]+@)?([A-Za-z0-9._-]+):(.+)$`)
	shaRegex      = regexp.MustCompile(`^[0-9a-f]{40}$`)
)

// IsValidSHA reports whether s is a full 40-character lowercase hex SHA.
func IsValidSHA(s string) bool {
	return shaRegex.MatchString(s)
}

// IsLocalPath reports whether the source URL names a local directory or
// file rather than a Git remote.
func IsLocalPath(source string) bool {
	if strings.HasPrefix(source, "file://") {
		return true
	}
	if strings.Contains(source, "://") {
		return false
	}
	if sshColonRegex.MatchString(source) && !strings.HasPrefix(source, "/") &&
		!strings.HasPrefix(source, "./") && !strings.HasPrefix(source, "../") {
		// Looks like host:path SSH shorthand, unless it is a Windows drive.
		if len(source) >= 2 && source[1] == ':' {
			return true
		}
		return false
	}
	return true
}

// ParseGitURL extracts (owner, repo) from a source URL. It accepts HTTPS,
// SSH-colon, ssh://, file://, and local absolute or relative paths. Local
// paths map to owner "local" with the directory name as repo.
func ParseGitURL(rawURL string) (owner, repo string, err error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return "", "", fmt.Errorf("source URL cannot be empty")
	}

	switch {
	case strings.HasPrefix(trimmed, "http://"), strings.HasPrefix(trimmed, "https://"),
		strings.HasPrefix(trimmed, "ssh://"), strings.HasPrefix(trimmed, "git://"):
		u, err := url.Parse(trimmed)
		if err != nil {
			return "", "", fmt.Errorf("malformed source URL %s: %w", trimmed, err)
		}
		return splitOwnerRepo(u.Path, trimmed)

	case strings.HasPrefix(trimmed, "file://"):
		path := strings.TrimPrefix(trimmed, "file://")
		return LocalOwner, sanitizeName(filepath.Base(path)), nil

	case strings.HasPrefix(trimmed, "/"), strings.HasPrefix(trimmed, "./"),
		strings.HasPrefix(trimmed, "../"), strings.HasPrefix(trimmed, "~"):
		return LocalOwner, sanitizeName(filepath.Base(trimmed)), nil
	}

	if m := sshColonRegex.FindStringSubmatch(trimmed); m != nil && strings.Contains(trimmed, "@") {
		return splitOwnerRepo(m[2], trimmed)
	}

	// Bare relative path (no scheme, no SSH user): treat as local.
	if !strings.Contains(trimmed, ":") {
		return LocalOwner, sanitizeName(filepath.Base(trimmed)), nil
	}

	return "", "", fmt.Errorf("unable to parse source URL: %s", trimmed)
}

// splitOwnerRepo extracts the final owner/repo pair from a URL path.
func splitOwnerRepo(path, original string) (string, string, error) {
	path = strings.Trim(path, "/")
	path = strings.TrimSuffix(path, ".git")
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[len(parts)-1] == "" || parts[len(parts)-2] == "" {
		return "", "", fmt.Errorf("source URL missing owner/repo components: %s", original)
	}
	return sanitizeName(parts[len(parts)-2]), sanitizeName(parts[len(parts)-1]), nil
}

// sanitizeName makes a URL component safe for use in a directory name.
func sanitizeName(name string) string {
	name = strings.TrimSuffix(name, ".git")
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}

// StripAuthFromURL removes a user[:password]@ prefix from HTTP(S) URLs so
// credentials never reach logs or error messages. SSH and file:// URLs are
// returned unchanged.
func StripAuthFromURL(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.User == nil {
		return rawURL
	}
	u.User = nil
	return u.String()
}
