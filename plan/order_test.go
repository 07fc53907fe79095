package plan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildEntry(m *BuildMap, name string, deps ...PackageKey) PackageKey {
	key := PackageKey{Database: "host", Name: name}
	bp := m.Enter(key)
	bp.Action = ActionBuild
	for _, d := range deps {
		bp.Dependencies = append(bp.Dependencies, &Dependent{Keys: []PackageKey{d}})
	}
	m.Collect(key, false)
	return key
}

// createSimpleChain builds a -> {b, c}, b -> c (a depends on b and c, b
// depends on c), mirroring the dependency-chain fixture used elsewhere
// in this codebase's test suites.
func createSimpleChain() (*State, PackageKey, PackageKey, PackageKey) {
	st := NewState(NewAvailableIndex(), NewSelectedStore())
	c := buildEntry(st.Builds, "c")
	b := buildEntry(st.Builds, "b", c)
	a := buildEntry(st.Builds, "a", b, c)
	return st, a, b, c
}

func TestOrdererOrdersDependenciesBeforeDependents(t *testing.T) {
	st, a, b, c := createSimpleChain()
	order, err := NewOrderer(st).Order()
	require.NoError(t, err)
	require.Equal(t, []PackageKey{c, b, a}, order)
}

func TestOrdererApplyInstallsTopologicalOrder(t *testing.T) {
	st, a, b, c := createSimpleChain()
	require.NoError(t, NewOrderer(st).Apply())
	require.Equal(t, []PackageKey{c, b, a}, st.Builds.Order())
}

// createCycle builds a -> b -> c -> a, a cycle.
func createCycle() (*State, PackageKey, PackageKey, PackageKey) {
	st := NewState(NewAvailableIndex(), NewSelectedStore())
	a := PackageKey{Database: "host", Name: "a"}
	b := PackageKey{Database: "host", Name: "b"}
	c := PackageKey{Database: "host", Name: "c"}

	for _, k := range []PackageKey{a, b, c} {
		bp := st.Builds.Enter(k)
		bp.Action = ActionBuild
	}
	st.Builds.Find(a).Dependencies = []*Dependent{{Keys: []PackageKey{b}}}
	st.Builds.Find(b).Dependencies = []*Dependent{{Keys: []PackageKey{c}}}
	st.Builds.Find(c).Dependencies = []*Dependent{{Keys: []PackageKey{a}}}
	for _, k := range []PackageKey{a, b, c} {
		st.Builds.Collect(k, false)
	}
	return st, a, b, c
}

func TestOrdererDetectsCycle(t *testing.T) {
	st, _, _, _ := createCycle()
	order, err := NewOrderer(st).Order()

	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	require.True(t, errors.Is(err, ErrCycleDetected))
	require.Len(t, order, 0, "a fully-cyclic graph has no packages with zero in-degree")
	require.Equal(t, 3, cycleErr.TotalPackages)
	require.ElementsMatch(t, []PackageKey{
		{Database: "host", Name: "a"},
		{Database: "host", Name: "b"},
		{Database: "host", Name: "c"},
	}, cycleErr.CyclePackages)

	// The diagnostic names the concrete chain, not just the remainder.
	require.Len(t, cycleErr.Cycle, 4, "the chain is closed: its first and last entries repeat")
	require.Equal(t, cycleErr.Cycle[0], cycleErr.Cycle[len(cycleErr.Cycle)-1])
	require.Contains(t, err.Error(), "a depends on b")
	require.Contains(t, err.Error(), "b depends on c")
	require.Contains(t, err.Error(), "c depends on a")
}

// createPriorityGraph builds three independent roots with differing
// fanout (pkgconf: 3 dependents, perl: 2, expat: 1) so the deterministic
// tie-break among simultaneously-ready packages can be exercised.
func createPriorityGraph() (*State, []PackageKey) {
	st := NewState(NewAvailableIndex(), NewSelectedStore())
	pkgconf := buildEntry(st.Builds, "pkgconf")
	perl := buildEntry(st.Builds, "perl")
	expat := buildEntry(st.Builds, "expat")

	lib1 := buildEntry(st.Builds, "lib1", pkgconf)
	buildEntry(st.Builds, "lib2", pkgconf)
	buildEntry(st.Builds, "lib3", pkgconf)
	tool1 := buildEntry(st.Builds, "tool1", perl)
	buildEntry(st.Builds, "tool2", perl)
	parser := buildEntry(st.Builds, "parser", expat)
	buildEntry(st.Builds, "app", lib1, tool1, parser)

	return st, []PackageKey{pkgconf, perl, expat}
}

func TestOrdererBreaksTiesByFanoutDescending(t *testing.T) {
	st, roots := createPriorityGraph()
	order, err := NewOrderer(st).Order()
	require.NoError(t, err)
	require.Len(t, order, 10)

	// pkgconf (3 dependents) must precede perl (2) must precede expat (1).
	require.Equal(t, roots, order[:3])
}

func TestOrdererIsDeterministicAcrossRuns(t *testing.T) {
	st, _ := createPriorityGraph()
	first, err := NewOrderer(st).Order()
	require.NoError(t, err)
	second, err := NewOrderer(st).Order()
	require.NoError(t, err)
	require.Equal(t, first, second)
}
