// Package source implements the acquisition collaborators the planner
// calls but never embeds directly: fetching repository fragments,
// checking a package's source out of one, and performing the
// underlying VCS checkout with its platform-specific worktree fixups.
package source

import (
	"context"

	"pkgsynth/plan"
	"pkgsynth/version"
)

// RepositoryRole classifies how one repository relates to another in a
// fragment's manifest: a complement is searched for packages this
// fragment doesn't itself provide, a prerequisite is searched only
// when resolving that fragment's own dependencies.
type RepositoryRole int

const (
	RoleComplement RepositoryRole = iota
	RolePrerequisite
)

// RepositoryManifest is one related-repository entry inside a fetched
// fragment's manifest.
type RepositoryManifest struct {
	Location string
	Role     RepositoryRole
}

// Fragment is one chronological slice of a fetched repository: a git
// repository yields one fragment per commit reachable from HEAD,
// whether or not that commit changed the manifest; a pkg or dir
// repository yields exactly one.
type Fragment struct {
	ID           string
	FriendlyName string
	Repositories []RepositoryManifest
	Packages     []*plan.AvailablePackage
}

// FetchReason documents why a repository is being fetched, threaded
// through so a collaborator's progress output and audit trail can
// distinguish "the user asked for this repository" from "the core
// needs it to satisfy a dependency".
type FetchReason string

const (
	ReasonUserRequested FetchReason = "user-requested"
	ReasonDependency    FetchReason = "dependency"
	ReasonRepair        FetchReason = "repair"
)

// RepositoryFetcher fetches a repository location and returns its
// fragments in chronological order (earliest to latest), the contract
// behind repository fetching.
type RepositoryFetcher interface {
	FetchRepository(ctx context.Context, location string, shallow bool, reason FetchReason) ([]Fragment, error)
}

// CheckoutRequest carries checkout_package's parameters.
type CheckoutRequest struct {
	Package  string
	Version  version.Version
	DestRoot string // empty means "use the configuration's default layout"
	Replace  bool
	Purge    bool
	Simulate bool
}

// PackageCheckout materializes a package's source into a configuration,
// the package-checkout contract. Implementations own a
// checkout cache: directories are moved out of the repositories
// directory for the duration of the checkout and restored (or left for
// repair, on a crash) per CheckoutCache's contract.
type PackageCheckout interface {
	CheckoutPackage(ctx context.Context, req CheckoutRequest, fragment Fragment) (*plan.SelectedPackage, error)
}

// VCSCheckout performs a version-control checkout of one commit plus
// any submodule materialization, the contract behind
// version_control_checkout.
type VCSCheckout interface {
	VersionControlCheckout(ctx context.Context, repoLocation, dest, commit string) error

	// FixupWorktree either replaces filesystem-agnostic VCS symlinks
	// with native symlinks (for file and directory targets alike) or,
	// when revert is true, restores the VCS-native form. Platforms whose VCS doesn't need this (everything but
	// Windows git, for this repository's git backend) implement it as
	// a no-op.
	FixupWorktree(dest string, revert bool) error
}
