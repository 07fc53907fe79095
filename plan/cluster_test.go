package plan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClusterSetAddStartsNewCluster(t *testing.T) {
	cs := NewClusterSet()
	dependent := PackageKey{Database: "host", Name: "app"}
	dep := PackageKey{Database: "host", Name: "libfoo"}

	cluster, changed := cs.Add(dependent, false, 0, []PackageKey{dep}, true)
	require.True(t, changed)
	require.True(t, cluster.FindDependency(dep))
	require.Len(t, cs.All(), 1)
}

func TestClusterSetAddJoinsSingleIntersectingCluster(t *testing.T) {
	cs := NewClusterSet()
	dep := PackageKey{Database: "host", Name: "libfoo"}
	first := PackageKey{Database: "host", Name: "app1"}
	second := PackageKey{Database: "host", Name: "app2"}

	cluster1, _ := cs.Add(first, false, 0, []PackageKey{dep}, true)
	cluster2, changed := cs.Add(second, false, 0, []PackageKey{dep}, true)

	require.Same(t, cluster1, cluster2, "a second dependent sharing the dependency must join the same cluster")
	require.True(t, changed)
	require.Len(t, cs.All(), 1)
}

func TestClusterSetAddMergesMultipleIntersectingClusters(t *testing.T) {
	cs := NewClusterSet()
	libA := PackageKey{Database: "host", Name: "liba"}
	libB := PackageKey{Database: "host", Name: "libb"}
	app1 := PackageKey{Database: "host", Name: "app1"}
	app2 := PackageKey{Database: "host", Name: "app2"}
	both := PackageKey{Database: "host", Name: "both"}

	cs.Add(app1, false, 0, []PackageKey{libA}, true)
	cs.Add(app2, false, 0, []PackageKey{libB}, true)
	require.Len(t, cs.All(), 2)

	merged, changed := cs.Add(both, false, 0, []PackageKey{libA, libB}, true)
	require.True(t, changed)
	require.Len(t, cs.All(), 1, "a dependent naming both dependencies must merge their clusters")
	require.True(t, merged.FindDependency(libA))
	require.True(t, merged.FindDependency(libB))
}

func TestClusterSetAddIsAppendOnlyPerPosition(t *testing.T) {
	cs := NewClusterSet()
	dependent := PackageKey{Database: "host", Name: "app"}
	dep := PackageKey{Database: "host", Name: "libfoo"}

	cluster, _ := cs.Add(dependent, false, 0, []PackageKey{dep}, true)
	before := append([]DependentPosition(nil), cluster.Dependents[dependent].Positions...)

	// Re-adding the same (dependent, position) must not duplicate or rewrite.
	cs.Add(dependent, false, 0, []PackageKey{dep}, false)
	after := cluster.Dependents[dependent].Positions

	require.Equal(t, before, after)
	require.Len(t, after, 1)
}

func TestClusterSetNonNegotiatedExcludesFinished(t *testing.T) {
	cs := NewClusterSet()
	dep := PackageKey{Database: "host", Name: "libfoo"}
	app := PackageKey{Database: "host", Name: "app"}
	cluster, _ := cs.Add(app, false, 0, []PackageKey{dep}, true)

	require.Len(t, cs.NonNegotiated(), 1)
	require.False(t, cs.AllNegotiated())

	cluster.Negotiated = TristateTrue
	require.Empty(t, cs.NonNegotiated())
	require.True(t, cs.AllNegotiated())
}

func TestClusterSetCloneIsIndependent(t *testing.T) {
	cs := NewClusterSet()
	dep := PackageKey{Database: "host", Name: "libfoo"}
	app := PackageKey{Database: "host", Name: "app"}
	cs.Add(app, false, 0, []PackageKey{dep}, true)

	clone := cs.Clone()
	clone.All()[0].Negotiated = TristateTrue

	require.NotEqual(t, cs.All()[0].Negotiated, clone.All()[0].Negotiated)
}

func TestClusterSetAddReportsAbsorbedClusters(t *testing.T) {
	cs := NewClusterSet()
	libA := PackageKey{Database: "host", Name: "liba"}
	libB := PackageKey{Database: "host", Name: "libb"}
	app1 := PackageKey{Database: "host", Name: "app1"}
	app2 := PackageKey{Database: "host", Name: "app2"}
	both := PackageKey{Database: "host", Name: "both"}

	c1, _ := cs.Add(app1, false, 0, []PackageKey{libA}, true)
	c2, _ := cs.Add(app2, false, 0, []PackageKey{libB}, true)

	target, changed, absorbed := cs.add(both, false, 0, []PackageKey{libA, libB}, true)
	require.True(t, changed)
	require.Same(t, c1, target, "the earliest-created cluster survives the merge")
	require.Len(t, absorbed, 1)
	require.Same(t, c2, absorbed[0])
	require.Contains(t, target.MergedIDs, c2.ID)
}

func TestClusterSetAddPrefersShadowPredictedMergeTarget(t *testing.T) {
	cs := NewClusterSet()
	libA := PackageKey{Database: "host", Name: "liba"}
	libB := PackageKey{Database: "host", Name: "libb"}
	app1 := PackageKey{Database: "host", Name: "app1"}
	app2 := PackageKey{Database: "host", Name: "app2"}
	both := PackageKey{Database: "host", Name: "both"}

	c1, _ := cs.Add(app1, false, 0, []PackageKey{libA}, true)
	c2, _ := cs.Add(app2, false, 0, []PackageKey{libB}, true)

	// c2's shadow already recorded `both` at position 0, so case 3 must
	// pick c2 as the surviving merge target even though c1 is older.
	shadow := newCluster(c2.ID)
	shadow.Dependents[both] = &ClusterDependent{
		Positions: []DependentPosition{{Position: 0}},
	}
	c2.SetShadowCluster(shadow)

	merged, _ := cs.Add(both, false, 0, []PackageKey{libA, libB}, true)
	require.Same(t, c2, merged)
	require.Contains(t, merged.MergedIDs, c1.ID)
	require.Len(t, cs.All(), 1)
}

func TestSameDependenciesComparesSetsNotOrder(t *testing.T) {
	libA := PackageKey{Database: "host", Name: "liba"}
	libB := PackageKey{Database: "host", Name: "libb"}

	a := newCluster(1)
	a.Dependencies = []PackageKey{libA, libB}
	b := newCluster(2)
	b.Dependencies = []PackageKey{libB, libA}
	require.True(t, a.SameDependencies(b))

	b.Dependencies = []PackageKey{libB}
	require.False(t, a.SameDependencies(b))
	require.False(t, a.SameDependencies(nil))
}

func TestContainsInShadowClusterPrefersShadowMatch(t *testing.T) {
	cs := NewClusterSet()
	dep := PackageKey{Database: "host", Name: "libfoo"}
	app := PackageKey{Database: "host", Name: "app"}
	cluster, _ := cs.Add(app, false, 0, []PackageKey{dep}, true)

	require.False(t, cluster.ContainsInShadowCluster(app, 0), "no shadow recorded yet")

	cluster.SetShadowCluster(cluster.snapshotCopy())
	require.True(t, cluster.ContainsInShadowCluster(app, 0))
	require.False(t, cluster.ContainsInShadowCluster(app, 1))
}
