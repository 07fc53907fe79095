// Package plan implements the recursive collector and postponement
// engine that turns a set of user requests plus a configuration
// database into a consistent, totally-ordered build plan: the data
// model, indices, skeleton evaluator, postponement tables, recursive
// collector, driver, dependents collector, and ordering engine.
package plan

import "pkgsynth/version"

// PackageKey identifies a package within a specific configuration
// database, independent of version: a "(config, name)" pair.
type PackageKey struct {
	Database string
	Name     string
}

// Less gives PackageKey a stable total order, used for deterministic
// iteration (map iteration order in Go is randomized, and several
// invariants — stable ordering engine, deterministic alternative
// selection — depend on a fixed traversal order).
func (k PackageKey) Less(o PackageKey) bool {
	if k.Database != o.Database {
		return k.Database < o.Database
	}
	return k.Name < o.Name
}

func (k PackageKey) String() string {
	return k.Database + "/" + k.Name
}

// PackageVersionKey tags a constraint with the package version that
// produced it, used throughout BuildPackage.Constraints so diagnostics
// can say "required by libfoo/1.2.3" rather than just "libfoo".
type PackageVersionKey struct {
	Database   string
	Name       string
	Version    version.Version
	HasVersion bool
}

func (k PackageVersionKey) Key() PackageKey {
	return PackageKey{Database: k.Database, Name: k.Name}
}

func (k PackageVersionKey) String() string {
	if !k.HasVersion {
		return k.Database + "/" + k.Name
	}
	return k.Database + "/" + k.Name + "/" + k.Version.String()
}
