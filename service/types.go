package service

import (
	"time"

	"pkgsynth/plan"
	"pkgsynth/statedb"
)

// PlanOptions carries a pkg-build invocation's request set and the
// repository locations to fetch fresh metadata from before resolving
// it, mirroring the CLI surface.
type PlanOptions struct {
	// Roots names the packages the user requested, each either a bare
	// name (any satisfying version) or "name@version" (an exact pin).
	Roots []string

	// RepositoryLocations are fetched (via the service's source
	// collaborator) before resolution begins; a pkg-build run against
	// an already-populated database may leave this empty.
	RepositoryLocations []string

	// Database is the configuration database new root requests are
	// entered into; defaults to "host" when empty.
	Database string

	// Upgrade corresponds to --upgrade|-u: prefer the newest available
	// version for a root even when an older one is already selected.
	Upgrade bool
}

// PlanResult is the outcome of a successful Plan call: the final
// planner state plus its packages in the ordering engine's topological
// order, ready for checkout/build or for `pkgsynth status` to render.
type PlanResult struct {
	State   *plan.State
	Ordered []*plan.BuildPackage
}

// StatusOptions narrows a status query to specific package keys;
// empty means "report everything".
type StatusOptions struct {
	Keys []string
}

// StatusResult reports the configuration database's current selected
// packages plus the audit trail of replaced-version/postponed-dependency
// decisions recorded by prior runs.
type StatusResult struct {
	Selected []*plan.SelectedPackage
	Audit    []statedb.AuditEntry
}

// CleanupOptions controls how aggressively Cleanup proceeds past a
// single failed cache-entry release.
type CleanupOptions struct {
	IgnoreErrors bool
}

// CleanupResult reports what Cleanup found and did.
type CleanupResult struct {
	BrokenRepositories []string
	ClearedEntries     int
}

// DatabaseResult reports what ResetDatabase removed.
type DatabaseResult struct {
	DatabaseRemoved bool
	Path            string
}

// InitResult reports what Initialize created in a fresh configuration
// directory.
type InitResult struct {
	CreatedDirs []string
	ConfigFile  string
	AlreadyInit bool
}

// CheckoutResult wraps one pkg-checkout outcome.
type CheckoutResult struct {
	Package    string
	Version    string
	SourceRoot string
	Duration   time.Duration
}
