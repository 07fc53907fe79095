package plan

import (
	"sort"

	"pkgsynth/version"
)

// PackageType classifies what an available package produces, used by
// the collector's host-vs-target and build-time-vs-runtime rules.
type PackageType int

const (
	TypeUnspecified PackageType = iota
	TypeLib
	TypeExe
	TypeOther
)

// Location is one place a package's sources can be acquired from: a
// repository fragment plus the path within it. The core never fetches
// anything itself; it only records which location an
// acquisition would use.
type Location struct {
	Fragment   string // repository_fragment id, see source.Fragment
	InRepoPath string
}

// Dependency is one name(+optional constraint) inside a dependency
// alternative's list — most alternatives name exactly one, but a
// "depends on A and B together" clause names several.
type Dependency struct {
	Name          string
	Constraint    version.Constraint
	HasConstraint bool
}

// DependencyAlternative is one `|`-separated choice inside a `depends:`
// clause.
type DependencyAlternative struct {
	Enable  string // expression text, empty means "always enabled"
	Reflect string // assignment text, empty means "no reflect clause"

	// Prefer/Accept model "prefer { cfg = v } accept (cfg)": Prefer is
	// the preferred configuration assignment text, Accept is the
	// predicate over the negotiated configuration.
	Prefer          string
	Accept          string
	HasPreferAccept bool

	// Require models a plain boolean expression the final negotiated
	// configuration must satisfy, mutually exclusive with Prefer/Accept.
	Require    string
	HasRequire bool

	Dependencies []Dependency
}

// HasConfigClause reports whether this alternative participates in
// dependency-configuration negotiation.
func (a DependencyAlternative) HasConfigClause() bool {
	return a.HasPreferAccept || a.HasRequire
}

// DependencyAlternatives is one `depends:` clause: a buildtime flag, a
// comment, and the ordered list of alternatives.
type DependencyAlternatives struct {
	Buildtime    bool
	Comment      string
	Alternatives []DependencyAlternative
}

// AvailablePackage is a package version known to the planner because a
// fetched repository fragment advertised it.
type AvailablePackage struct {
	Name    string
	Version version.Version

	Depends []DependencyAlternatives

	Locations []Location

	Type    PackageType
	Binless bool // a type sub-option: "lib" with no binary artifact

	// SystemVersion maps this package version to a distribution's
	// system-package version string, keyed by "<distro>[_<version>]",
	// consumed by syspkg when deciding whether an installed system
	// package can substitute for a build.
	SystemVersion map[string]string
}

// AvailableIndex answers "which versions of package X satisfy
// constraint C" across every fetched repository fragment, in the
// deterministic order fragments were registered.
type AvailableIndex struct {
	byName map[string][]*AvailablePackage
}

// NewAvailableIndex creates an empty index.
func NewAvailableIndex() *AvailableIndex {
	return &AvailableIndex{byName: make(map[string][]*AvailablePackage)}
}

// Add registers an available package. Later Add calls for the same
// name/version from a later fragment do not replace an earlier one —
// fragments are chronological and the first occurrence wins, matching
// fetch_repository's "earliest to latest" contract.
func (idx *AvailableIndex) Add(pkg *AvailablePackage) {
	existing := idx.byName[pkg.Name]
	for _, e := range existing {
		if version.Equal(e.Version, pkg.Version) {
			return
		}
	}
	idx.byName[pkg.Name] = append(existing, pkg)
}

// Versions returns every available version of name, in descending
// version order (newest first), matching the collector's preference
// for newer versions when several satisfy a constraint equally well.
func (idx *AvailableIndex) Versions(name string) []*AvailablePackage {
	list := append([]*AvailablePackage(nil), idx.byName[name]...)
	sort.Slice(list, func(i, j int) bool {
		return version.Compare(list[i].Version, list[j].Version, false, false) > 0
	})
	return list
}

// Best returns the highest available version of name satisfying c, or
// nil if none does.
func (idx *AvailableIndex) Best(name string, c version.Constraint) *AvailablePackage {
	for _, ap := range idx.Versions(name) {
		if version.Satisfies(ap.Version, c) {
			return ap
		}
	}
	return nil
}

// Exact returns the available package with exactly this name+version,
// or nil.
func (idx *AvailableIndex) Exact(name string, v version.Version) *AvailablePackage {
	for _, ap := range idx.byName[name] {
		if version.Equal(ap.Version, v) {
			return ap
		}
	}
	return nil
}
