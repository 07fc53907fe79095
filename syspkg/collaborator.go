// Package syspkg implements the system package manager collaborator:
// querying whether a distribution package satisfying a dependency is
// already installed, installing it, and mapping bpkg package names to
// distribution package names the way a Debian-flavored system does.
package syspkg

import "fmt"

// StatusKind is the installation state a system package query returns.
type StatusKind int

const (
	NotInstalled StatusKind = iota
	PartiallyInstalled
	Installed
)

// PackageStatus is the result of querying one package's system status.
type PackageStatus struct {
	Status        StatusKind
	SystemName    string
	SystemVersion string
	Version       string // the mapped bpkg version string, "" if unmappable
}

// Manager is the system package manager collaborator the planner calls
// when a dependency alternative is satisfiable by an already-installed
// (or installable) distribution package instead of a source build.
type Manager interface {
	// Status reports pkgName's installation status, consulting
	// availablePackages (nilable) to map a found system version back to
	// a bpkg version when the manifest names one. A nil *PackageStatus
	// with a nil error means "not present in the cache and not found",
	// distinguished from a genuine cache miss by Manager implementations
	// populating their internal cache as a side effect of every call.
	Status(pkgName string, availablePackages []AvailableMapping) (*PackageStatus, error)

	// Install installs the named packages, idempotently: packages
	// already at the promised version are left alone. After installing,
	// implementations must verify the resulting installed version still
	// matches what Status previously promised and fail with
	// SystemVersionChanged otherwise.
	Install(pkgNames []string) error
}

// AvailableMapping is one bpkg package version's declared system-name
// mapping, keyed the way a manifest's SystemVersion map is: by
// "<distro>[_<version>]-name".
type AvailableMapping struct {
	BpkgVersion   string
	SystemVersion map[string]string
}

// SystemVersionChanged is raised when a post-install verification
// finds the installed package at a different version than Status had
// promised, meaning some concurrent action (another package manager
// invocation, a repository update mid-run) changed the system state
// out from under this process.
type SystemVersionChanged struct {
	Package  string
	Promised string
	Actual   string
}

func (e *SystemVersionChanged) Error() string {
	return fmt.Sprintf("system package %s: promised version %s but %s is installed", e.Package, e.Promised, e.Actual)
}
