package source

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// RepositoryType tags the kind of repository a location refers to,
// since the repositories directory keys its subdirectories on a
// digest of location plus type (two locations that normalize to the
// same string but name different repository types must not collide).
type RepositoryType rune

const (
	TypeGit RepositoryType = 'g'
	TypePkg RepositoryType = 'p'
	TypeDir RepositoryType = 'd'
)

// RepositoryState computes the repository-state identifier used to
// name a repository's subdirectory under the repositories directory: a
// SHA-256 digest of the normalized location string plus a
// single-letter type tag.
func RepositoryState(location string, typ RepositoryType) string {
	norm := normalizeLocation(location)
	h := sha256.New()
	h.Write([]byte{byte(typ)})
	h.Write([]byte{0})
	h.Write([]byte(norm))
	return hex.EncodeToString(h.Sum(nil))
}

// normalizeLocation strips a trailing slash and lower-cases the scheme
// and host so that "https://Example.com/repo.git/" and
// "https://example.com/repo.git" hash identically.
func normalizeLocation(location string) string {
	loc := strings.TrimRight(location, "/")
	scheme, rest, ok := strings.Cut(loc, "://")
	if !ok {
		return loc
	}
	host, path, hasPath := strings.Cut(rest, "/")
	rest = strings.ToLower(host)
	if hasPath {
		rest += "/" + path
	}
	return strings.ToLower(scheme) + "://" + rest
}

// RepositoryTypeOf infers a location's repository type from its
// scheme/suffix, used when a caller has only a bare location string
// (e.g. from the CLI) and no prior knowledge of its type.
func RepositoryTypeOf(location string) RepositoryType {
	switch {
	case strings.HasSuffix(location, ".git"), strings.Contains(location, "git://"), strings.HasPrefix(location, "git+"):
		return TypeGit
	case strings.HasPrefix(location, "/"), strings.HasPrefix(location, "./"), strings.HasPrefix(location, "../"):
		return TypeDir
	default:
		return TypePkg
	}
}
