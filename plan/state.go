package plan

import "pkgsynth/log"

// Logger is the explicit diagnostic-sink context object threaded
// through the collector and driver. It matches log.LibraryLogger's
// shape, so any of that package's sinks (file, stdout, memory) plugs
// in; NewState defaults to log.NoOpLogger until the caller picks one.
type Logger interface {
	Info(format string, args ...any)
	Debug(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// RepoResolver resolves a package key that was postponed pending
// repository metadata — the planner core's only hook into the
// source-acquisition collaborator that actually fetches and indexes
// repositories.
type RepoResolver interface {
	ResolvePostponedRepo(key PackageKey) (*AvailablePackage, error)
}

// DatabasePolicy resolves which configuration database a dependency
// edge targets. The default policy keeps every
// dependency in the dependent's own database, which is correct for the
// common single-database case this repo's tests exercise; a
// multi-database host/target build would supply a richer policy.
type DatabasePolicy interface {
	ResolveDatabase(dependentDB string, dep Dependency) string
}

type sameDatabasePolicy struct{}

func (sameDatabasePolicy) ResolveDatabase(dependentDB string, _ Dependency) string {
	return dependentDB
}

// State bundles every table the collector and driver read and mutate.
// It is the unit Snapshot/Restore operates on.
type State struct {
	Available *AvailableIndex
	Selected  *SelectedStore
	Builds    *BuildMap

	Replaced      *ReplacedVersionsTable
	PostponedDeps *PostponedDependenciesTable
	Unsatisfied   *UnsatisfiedLedger
	Clusters      *ClusterSet

	PostponedRepo map[PackageKey]bool
	PostponedAlts map[PackageKey]bool
	PostponedRecs map[PackageKey]bool

	// UnacceptableAlternatives records (pkg, version, position) triples
	// that must be skipped on the next pass.
	UnacceptableAlternatives map[string]bool

	// PostponedCfgsHistory is the checksum list guarding against an
	// unbounded negotiation loop.
	PostponedCfgsHistory []string

	Logger   Logger
	Repo     RepoResolver
	DBPolicy DatabasePolicy

	// UserConstraints holds command-line-overridden constraints per
	// package name, combined (intersected) with manifest constraints
	// during pre-collection.
	UserConstraints map[string]VersionConstraintText
}

// VersionConstraintText is a parsed constraint plus its original text,
// kept together so diagnostics can quote what the user typed.
type VersionConstraintText struct {
	Text string
}

// NewState creates an empty State ready for collection.
func NewState(available *AvailableIndex, selected *SelectedStore) *State {
	return &State{
		Available:                available,
		Selected:                 selected,
		Builds:                   NewBuildMap(),
		Replaced:                 NewReplacedVersionsTable(),
		PostponedDeps:            NewPostponedDependenciesTable(),
		Unsatisfied:              NewUnsatisfiedLedger(),
		Clusters:                 NewClusterSet(),
		PostponedRepo:            make(map[PackageKey]bool),
		PostponedAlts:            make(map[PackageKey]bool),
		PostponedRecs:            make(map[PackageKey]bool),
		UnacceptableAlternatives: make(map[string]bool),
		Logger:                   log.NoOpLogger{},
		DBPolicy:                 sameDatabasePolicy{},
		UserConstraints:          make(map[string]VersionConstraintText),
	}
}

// Snapshot is a deep value-copy of every table a backtrack might need
// to roll back: the build-package map, the postponed-repo/alts/recs
// key sets, the replaced-versions table, postponed-deps,
// postponed-configurations, and unsatisfied-dependents.
type Snapshot struct {
	Builds        *BuildMap
	Replaced      *ReplacedVersionsTable
	PostponedDeps *PostponedDependenciesTable
	Unsatisfied   *UnsatisfiedLedger
	Clusters      *ClusterSet

	PostponedRepo map[PackageKey]bool
	PostponedAlts map[PackageKey]bool
	PostponedRecs map[PackageKey]bool

	UnacceptableAlternatives map[string]bool
}

// TakeSnapshot captures the full rollback-relevant state.
func (s *State) TakeSnapshot() *Snapshot {
	snap := &Snapshot{
		Builds:                   s.Builds.Clone(),
		Replaced:                 s.Replaced.Clone(),
		PostponedDeps:            s.PostponedDeps.Clone(),
		Unsatisfied:              s.Unsatisfied.Clone(),
		Clusters:                 s.Clusters.Clone(),
		PostponedRepo:            cloneKeySet(s.PostponedRepo),
		PostponedAlts:            cloneKeySet(s.PostponedAlts),
		PostponedRecs:            cloneKeySet(s.PostponedRecs),
		UnacceptableAlternatives: cloneStringSet(s.UnacceptableAlternatives),
	}
	return snap
}

// Restore rolls State back to snap. List ordering comes back correct
// automatically since BuildMap's Clone already carries its own order
// slice.
func (s *State) Restore(snap *Snapshot) {
	s.Builds = snap.Builds.Clone()
	s.Replaced = snap.Replaced.Clone()
	s.PostponedDeps = snap.PostponedDeps.Clone()
	s.Unsatisfied = snap.Unsatisfied.Clone()
	s.Clusters = snap.Clusters.Clone()
	s.PostponedRepo = cloneKeySet(snap.PostponedRepo)
	s.PostponedAlts = cloneKeySet(snap.PostponedAlts)
	s.PostponedRecs = cloneKeySet(snap.PostponedRecs)
	s.UnacceptableAlternatives = cloneStringSet(snap.UnacceptableAlternatives)
}

func cloneKeySet(m map[PackageKey]bool) map[PackageKey]bool {
	out := make(map[PackageKey]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneStringSet(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
