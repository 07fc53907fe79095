// Package version implements the version and constraint algebra of
// pkgsynth: epoch/upstream/release/revision/iteration tuples compared
// the way a source-based package manager for a C++ build ecosystem
// needs, plus interval constraints and satisfaction testing.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is the (epoch, upstream, release, revision, iteration) tuple.
// Parse gives epoch 0 to every version written without an "N~" prefix;
// no epoch value is set aside for stub/system versions. Release is a
// pre-release tag (e.g. "beta", "rc1"); its presence sorts the version
// before the same upstream/revision without one. Compare ignores
// Iteration only when its ignoreIteration argument is set; Satisfies
// and Equal always set it, so a build iteration never participates in
// constraint satisfaction.
type Version struct {
	Epoch      uint64
	Upstream   string
	Release    string // "" means "no pre-release", sorts after any release
	HasRelease bool
	Revision   uint64
	Iteration  uint64

	// Wildcard marks the sentinel version that satisfies any constraint,
	// used to represent "unknown version, accept whatever is there"
	// (e.g. a system-installed dependency discovered via syspkg).
	Wildcard bool
}

// InvalidVersion is returned by Parse on malformed input.
type InvalidVersion struct {
	Text   string
	Reason string
}

func (e *InvalidVersion) Error() string {
	return fmt.Sprintf("invalid version %q: %s", e.Text, e.Reason)
}

// WildcardText is the textual sentinel recognized by Parse.
const WildcardText = "*"

// Parse parses a version string of the form:
//
//	[epoch~]upstream[-release][+revision][.iteration]
//
// e.g. "1~2.4.0-beta+2.1" is epoch=1, upstream="2.4.0", release="beta",
// revision=2, iteration=1. Only upstream is mandatory.
func Parse(text string) (Version, error) {
	if text == WildcardText {
		return Version{Wildcard: true}, nil
	}
	if text == "" {
		return Version{}, &InvalidVersion{text, "empty version"}
	}

	v := Version{}
	rest := text

	if i := strings.IndexByte(rest, '~'); i >= 0 {
		epochText := rest[:i]
		epoch, err := strconv.ParseUint(epochText, 10, 64)
		if err != nil {
			return Version{}, &InvalidVersion{text, "bad epoch: " + err.Error()}
		}
		v.Epoch = epoch
		rest = rest[i+1:]
	}

	// Trailing ".iteration" — only recognized if the segment after the
	// final dot is purely numeric AND a "+revision" marker was already
	// consumed, to avoid misparsing upstream versions like "1.2.3".
	if i := strings.LastIndexByte(rest, '.'); i >= 0 {
		if rev, hasRev := splitRevision(rest[:i]); hasRev {
			iterText := rest[i+1:]
			iter, err := strconv.ParseUint(iterText, 10, 64)
			if err == nil {
				rest = rev
				v.Iteration = iter
				rest, v.Revision, v.Release, v.HasRelease = mustSplitReleaseRevision(rest)
				if rest == "" {
					return Version{}, &InvalidVersion{text, "empty upstream"}
				}
				v.Upstream = rest
				return v, nil
			}
		}
	}

	rest, v.Revision, v.Release, v.HasRelease = mustSplitReleaseRevision(rest)
	if rest == "" {
		return Version{}, &InvalidVersion{text, "empty upstream"}
	}
	v.Upstream = rest
	return v, nil
}

// splitRevision reports whether s contains a "+revision" suffix so the
// caller can decide whether a further ".N" is an iteration rather than
// part of the upstream version.
func splitRevision(s string) (string, bool) {
	if i := strings.IndexByte(s, '+'); i >= 0 {
		if _, err := strconv.ParseUint(s[i+1:], 10, 64); err == nil {
			return s, true
		}
	}
	return s, false
}

func mustSplitReleaseRevision(s string) (upstream string, revision uint64, release string, hasRelease bool) {
	if i := strings.IndexByte(s, '+'); i >= 0 {
		if rev, err := strconv.ParseUint(s[i+1:], 10, 64); err == nil {
			revision = rev
			s = s[:i]
		}
	}
	if i := strings.IndexByte(s, '-'); i >= 0 {
		release = s[i+1:]
		hasRelease = true
		s = s[:i]
	}
	return s, revision, release, hasRelease
}

// String renders the version back to its canonical text form.
func (v Version) String() string {
	if v.Wildcard {
		return WildcardText
	}
	var b strings.Builder
	if v.Epoch != 0 {
		fmt.Fprintf(&b, "%d~", v.Epoch)
	}
	b.WriteString(v.Upstream)
	if v.HasRelease {
		b.WriteByte('-')
		b.WriteString(v.Release)
	}
	if v.Revision != 0 {
		fmt.Fprintf(&b, "+%d", v.Revision)
	}
	if v.Iteration != 0 {
		fmt.Fprintf(&b, ".%d", v.Iteration)
	}
	return b.String()
}

// Compare orders two versions. A higher epoch always wins regardless of
// upstream, giving explicit epoch-upgrade/downgrade semantics.
// ignoreRevision and ignoreIteration drop those components from the
// comparison, e.g. for "is this the same upstream release" checks used
// when detecting whether a replacement is actually a no-op.
func Compare(a, b Version, ignoreRevision, ignoreIteration bool) int {
	if a.Wildcard || b.Wildcard {
		if a.Wildcard && b.Wildcard {
			return 0
		}
		// A wildcard compares equal to nothing in particular; callers
		// should use satisfaction rather than ordering against it, but
		// we still need a total order for sorting: wildcards sort last.
		if a.Wildcard {
			return 1
		}
		return -1
	}

	if a.Epoch != b.Epoch {
		if a.Epoch < b.Epoch {
			return -1
		}
		return 1
	}

	if c := compareUpstream(a.Upstream, b.Upstream); c != 0 {
		return c
	}

	if c := compareRelease(a, b); c != 0 {
		return c
	}

	if !ignoreRevision && a.Revision != b.Revision {
		if a.Revision < b.Revision {
			return -1
		}
		return 1
	}

	if !ignoreIteration && a.Iteration != b.Iteration {
		if a.Iteration < b.Iteration {
			return -1
		}
		return 1
	}

	return 0
}

// compareRelease implements "1.0-beta sorts before 1.0": having a
// release tag sorts before not having one, and between two release
// tags comparison is component-wise like upstream.
func compareRelease(a, b Version) int {
	if a.HasRelease == b.HasRelease {
		if !a.HasRelease {
			return 0
		}
		return compareUpstream(a.Release, b.Release)
	}
	if a.HasRelease {
		return -1
	}
	return 1
}

// compareUpstream compares dot-separated numeric/alphanumeric
// components the way Debian/bpkg-style upstream versions are ordered:
// numeric components compare numerically, non-numeric components
// compare lexically, and a shorter sequence that is a prefix of a
// longer one sorts first.
func compareUpstream(a, b string) int {
	as := strings.FieldsFunc(a, isSeparator)
	bs := strings.FieldsFunc(b, isSeparator)
	n := len(as)
	if len(bs) < n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		if c := compareComponent(as[i], bs[i]); c != 0 {
			return c
		}
	}
	if len(as) != len(bs) {
		if len(as) < len(bs) {
			return -1
		}
		return 1
	}
	return 0
}

func isSeparator(r rune) bool {
	return r == '.' || r == '_'
}

func compareComponent(a, b string) int {
	an, aerr := strconv.ParseUint(a, 10, 64)
	bn, berr := strconv.ParseUint(b, 10, 64)
	if aerr == nil && berr == nil {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}

// Equal reports whether a and b denote the same version, ignoring
// iteration (the common notion of "same release" used throughout the
// collector when deciding whether a ReplaceVersion is actually a
// no-op).
func Equal(a, b Version) bool {
	return Compare(a, b, false, true) == 0
}
