package plan

import (
	"testing"

	"github.com/stretchr/testify/require"

	"pkgsynth/log"
)

func TestDriverRunResolvesSimpleChainToFixpoint(t *testing.T) {
	st := newTestState()
	seedAvailable(t, st, "libfoo", "1.0.0")
	app := seedRoot(t, st, "app", simpleDependency("libfoo"))

	d := NewDriver(st)
	require.NoError(t, d.Run([]PackageKey{app}))
	require.NoError(t, st.Builds.CheckInvariants())
	require.True(t, st.Unsatisfied.Empty())

	libKey := PackageKey{Database: "host", Name: "libfoo"}
	require.Contains(t, st.Builds.Order(), libKey)
	require.Contains(t, st.Builds.Order(), app)
}

func TestDriverOrdersDependencyBeforeDependent(t *testing.T) {
	st := newTestState()
	seedAvailable(t, st, "libfoo", "1.0.0")
	app := seedRoot(t, st, "app", simpleDependency("libfoo"))

	d := NewDriver(st)
	require.NoError(t, d.Run([]PackageKey{app}))
	require.NoError(t, NewOrderer(st).Apply())

	order := st.Builds.Order()
	libKey := PackageKey{Database: "host", Name: "libfoo"}
	var libPos, appPos int
	for i, k := range order {
		if k == libKey {
			libPos = i
		}
		if k == app {
			appPos = i
		}
	}
	require.Less(t, libPos, appPos)
}

func TestDriverDefersToPostponedRepoUntilResolved(t *testing.T) {
	st := newTestState()
	app := seedRoot(t, st, "app", simpleDependency("libfoo"))

	d := NewDriver(st)
	err := d.Run([]PackageKey{app})
	require.Error(t, err, "libfoo has no available version and no resolver, so the run must fail with an outstanding unsatisfied dependent")

	var ue *UnsatisfiedDependentError
	require.ErrorAs(t, err, &ue)
}

type fixedRepoResolver struct {
	available map[PackageKey]*AvailablePackage
}

func (r fixedRepoResolver) ResolvePostponedRepo(key PackageKey) (*AvailablePackage, error) {
	return r.available[key], nil
}

func TestDriverResolvesPostponedRepoViaResolver(t *testing.T) {
	st := newTestState()
	app := seedRoot(t, st, "app", simpleDependency("libfoo"))

	libKey := PackageKey{Database: "host", Name: "libfoo"}
	libAP := &AvailablePackage{Name: "libfoo", Version: mustParseVersion(t, "1.0.0")}
	st.Repo = fixedRepoResolver{available: map[PackageKey]*AvailablePackage{libKey: libAP}}

	d := NewDriver(st)
	require.NoError(t, d.Run([]PackageKey{app}))

	libBP := st.Builds.Find(libKey)
	require.NotNil(t, libBP)
	require.Equal(t, ActionBuild, libBP.Action)
	require.Contains(t, st.Builds.Order(), libKey)
}

// Negotiation rejects an alternative whose accept predicate cannot
// hold against the dependency's negotiated configuration. The prefer
// clause sets libfoo's shared config to false, but app's accept clause
// demands it be true, so negotiateCluster must fail the run.
func TestDriverNegotiationRejectsUnacceptableConfiguration(t *testing.T) {
	st := newTestState()
	seedAvailable(t, st, "libfoo", "1.0.0")

	clause := DependencyAlternatives{
		Alternatives: []DependencyAlternative{
			{
				Prefer:          "shared = false",
				Accept:          "shared",
				HasPreferAccept: true,
				Dependencies:    []Dependency{{Name: "libfoo"}},
			},
		},
	}
	app := seedRoot(t, st, "app", clause)

	d := NewDriver(st)
	err := d.Run([]PackageKey{app})
	require.Error(t, err, "accept requires shared=true but prefer set it false, so negotiation can never succeed")

	var rf *ResolutionFailure
	require.ErrorAs(t, err, &rf)
	require.Contains(t, rf.Message, "unable to negotiate sensible configuration for dependency libfoo")
}

// With a second, plain alternative available, rejecting the config
// alternative is recoverable: the rejection is recorded, the cluster
// collapsed, and recollection settles on the fallback.
func TestDriverSkipsUnacceptableAlternativeAndConverges(t *testing.T) {
	st := newTestState()
	seedAvailable(t, st, "libfoo", "1.0.0")
	seedAvailable(t, st, "libbar", "1.0.0")

	clause := DependencyAlternatives{
		Alternatives: []DependencyAlternative{
			{
				Prefer:          "shared = false",
				Accept:          "shared",
				HasPreferAccept: true,
				Dependencies:    []Dependency{{Name: "libfoo"}},
			},
			{Dependencies: []Dependency{{Name: "libbar"}}},
		},
	}
	app := seedRoot(t, st, "app", clause)

	mem := log.NewMemoryLogger()
	st.Logger = mem

	d := NewDriver(st)
	require.NoError(t, d.Run([]PackageKey{app}))
	require.NoError(t, st.Builds.CheckInvariants())

	require.True(t, mem.HasMessageWithLevel("DEBUG", "backtracked"), "the rejected negotiation leaves a diagnostic trace")

	appBP := st.Builds.Find(app)
	require.Equal(t, []int{1}, appBP.Alternatives, "the rejected config alternative is skipped on recollection")

	barKey := PackageKey{Database: "host", Name: "libbar"}
	fooKey := PackageKey{Database: "host", Name: "libfoo"}
	require.NotNil(t, st.Builds.Find(barKey))
	require.Nil(t, st.Builds.Find(fooKey), "the collapsed cluster's orphaned dependency is dropped from the plan")
	require.Empty(t, st.Clusters.All())
	require.NotEmpty(t, st.UnacceptableAlternatives)
}

// A dependent whose config clause spans two clusters merges them while
// the first is being negotiated: the frame restores its snapshot, pins
// the merged cluster as shadow, and the retry pass negotiates the
// merged cluster in one piece.
func TestDriverNegotiatesMergedClustersViaShadowRetry(t *testing.T) {
	st := newTestState()
	seedAvailable(t, st, "depa", "1.0.0")
	seedAvailable(t, st, "depb", "1.0.0")
	depA := PackageKey{Database: "host", Name: "depa"}
	depB := PackageKey{Database: "host", Name: "depb"}

	// Clusters as a previous partial pass left them: app1's clause is
	// known to touch depa only, app2's to touch depb; neither dependent
	// has been collected yet.
	app1 := seedRoot(t, st, "app1", preferSharedClause("depa", "depb"))
	st.Clusters.Add(app1, false, 0, []PackageKey{depA}, true)
	app2 := seedRoot(t, st, "app2", preferSharedClause("depb"))
	st.Clusters.Add(app2, false, 0, []PackageKey{depB}, true)

	d := NewDriver(st)
	changed, err := d.negotiateClusters()
	require.NoError(t, err)
	require.True(t, changed)

	require.Len(t, st.Clusters.All(), 1, "the shadow-guided retry must leave a single merged cluster")
	merged := st.Clusters.All()[0]
	require.True(t, merged.FindDependency(depA))
	require.True(t, merged.FindDependency(depB))
	require.NotEmpty(t, merged.MergedIDs)
	require.Equal(t, TristateTrue, merged.Negotiated)
	require.True(t, st.Builds.Find(app1).FullyCollected())

	for _, dep := range []PackageKey{depA, depB} {
		bp := st.Builds.Find(dep)
		require.NotNil(t, bp)
		require.Equal(t, ActionBuild, bp.Action)
		require.Equal(t, "true", bp.Skeleton.Values()["shared"])
	}
}

func TestDriverNegotiationAcceptsCompatibleConfiguration(t *testing.T) {
	st := newTestState()
	seedAvailable(t, st, "libfoo", "1.0.0")

	clause := DependencyAlternatives{
		Alternatives: []DependencyAlternative{
			{
				Prefer:          "shared = true",
				Accept:          "shared",
				HasPreferAccept: true,
				Dependencies:    []Dependency{{Name: "libfoo"}},
			},
		},
	}
	app := seedRoot(t, st, "app", clause)

	d := NewDriver(st)
	require.NoError(t, d.Run([]PackageKey{app}))
	require.True(t, st.Clusters.AllNegotiated())
}

func TestDependentInPlanFollowsBuildsAndSelected(t *testing.T) {
	st := newTestState()
	dep := PackageKey{Database: "host", Name: "app"}
	d := NewDriver(st)

	require.False(t, d.dependentInPlan(dep))

	bp := st.Builds.Enter(dep)
	bp.Action = ActionBuild
	require.True(t, d.dependentInPlan(dep))

	bp.Action = ActionNone
	require.False(t, d.dependentInPlan(dep), "a pre-entered entry with no action is not part of the plan")

	st.Selected.Put(dep, &SelectedPackage{Name: "app"})
	require.True(t, d.dependentInPlan(dep), "an already-configured package still counts")
}

// A variable is bogus only if the specific dependent that pinned it
// left the plan; another dependent's pin on the same package survives.
func TestDropBogusConfigVariablesDropsOrphanedDependentPins(t *testing.T) {
	st := newTestState()
	mem := log.NewMemoryLogger()
	st.Logger = mem

	libKey := PackageKey{Database: "host", Name: "libfoo"}
	bp := st.Builds.Enter(libKey)
	bp.Action = ActionBuild
	bp.Skeleton = NewPackageSkeleton("libfoo")

	live := PackageKey{Database: "host", Name: "app"}
	liveBP := st.Builds.Enter(live)
	liveBP.Action = ActionBuild

	ghost := PackageKey{Database: "host", Name: "ghost"}
	require.NoError(t, bp.Skeleton.ApplyPrefer("shared = true", ghost))
	require.NoError(t, bp.Skeleton.ApplyPrefer("static = false", live))

	cluster, _ := st.Clusters.Add(live, false, 0, []PackageKey{libKey}, true)
	cluster.Negotiated = TristateTrue

	d := NewDriver(st)
	d.dropBogusConfigVariables()

	vals := bp.Skeleton.Values()
	require.NotContains(t, vals, "shared", "a variable pinned by a dependent outside the plan is dropped")
	require.Equal(t, "false", vals["static"], "a variable pinned by a live dependent survives")
	require.Equal(t, TristateAbsent, cluster.Negotiated, "the affected cluster is queued for renegotiation")
	require.True(t, mem.HasMessageWithLevel("WARN", "dropping configuration variables"))
}
