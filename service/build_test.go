package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"pkgsynth/plan"
	"pkgsynth/version"
)

func TestPlanRejectsEmptyRoots(t *testing.T) {
	cfg := newTestConfig(t)
	svc, err := NewService(cfg)
	require.NoError(t, err)
	defer svc.Close()

	_, err = svc.Plan(PlanOptions{})
	require.Error(t, err)
}

func TestPlanFailsFetchingUnreachableRepository(t *testing.T) {
	cfg := newTestConfig(t)
	svc, err := NewService(cfg)
	require.NoError(t, err)
	defer svc.Close()

	_, err = svc.Plan(PlanOptions{
		Roots:               []string{"app"},
		RepositoryLocations: []string{cfg.RepositoriesDir + "/does-not-exist"},
	})
	require.Error(t, err)
}

func mustParseVersion(t *testing.T, text string) version.Version {
	t.Helper()
	v, err := version.Parse(text)
	require.NoError(t, err)
	return v
}

func TestEnterRootPinsExactVersionFromAtSyntax(t *testing.T) {
	cfg := newTestConfig(t)
	svc, err := NewService(cfg)
	require.NoError(t, err)
	defer svc.Close()

	available := plan.NewAvailableIndex()
	available.Add(&plan.AvailablePackage{Name: "libfoo", Version: mustParseVersion(t, "1.0.0")})
	available.Add(&plan.AvailablePackage{Name: "libfoo", Version: mustParseVersion(t, "2.0.0")})

	state := plan.NewState(available, plan.NewSelectedStore())

	key, err := svc.enterRoot(state, "host", "libfoo@1.0.0", false)
	require.NoError(t, err)

	bp := state.Builds.Find(key)
	require.NotNil(t, bp)
	require.Equal(t, plan.ActionBuild, bp.Action)
	require.True(t, version.Equal(bp.Available.Version, mustParseVersion(t, "1.0.0")))
}

func TestEnterRootPicksBestVersionWhenUnpinned(t *testing.T) {
	cfg := newTestConfig(t)
	svc, err := NewService(cfg)
	require.NoError(t, err)
	defer svc.Close()

	available := plan.NewAvailableIndex()
	available.Add(&plan.AvailablePackage{Name: "libfoo", Version: mustParseVersion(t, "1.0.0")})
	available.Add(&plan.AvailablePackage{Name: "libfoo", Version: mustParseVersion(t, "2.0.0")})

	state := plan.NewState(available, plan.NewSelectedStore())

	key, err := svc.enterRoot(state, "host", "libfoo", false)
	require.NoError(t, err)

	bp := state.Builds.Find(key)
	require.True(t, version.Equal(bp.Available.Version, mustParseVersion(t, "2.0.0")))
}

func TestEnterRootRejectsUnknownPackage(t *testing.T) {
	cfg := newTestConfig(t)
	svc, err := NewService(cfg)
	require.NoError(t, err)
	defer svc.Close()

	state := plan.NewState(plan.NewAvailableIndex(), plan.NewSelectedStore())

	_, err = svc.enterRoot(state, "host", "nonexistent", false)
	require.Error(t, err)

	var rf *plan.ResolutionFailure
	require.ErrorAs(t, err, &rf)
}

func TestEnterRootRejectsUnparsablePin(t *testing.T) {
	cfg := newTestConfig(t)
	svc, err := NewService(cfg)
	require.NoError(t, err)
	defer svc.Close()

	state := plan.NewState(plan.NewAvailableIndex(), plan.NewSelectedStore())

	_, err = svc.enterRoot(state, "host", "libfoo@", false)
	require.Error(t, err)
}

func TestEnterRootWithoutUpgradeKeepsAlreadySelectedVersion(t *testing.T) {
	cfg := newTestConfig(t)
	svc, err := NewService(cfg)
	require.NoError(t, err)
	defer svc.Close()

	available := plan.NewAvailableIndex()
	available.Add(&plan.AvailablePackage{Name: "libfoo", Version: mustParseVersion(t, "1.0.0")})
	available.Add(&plan.AvailablePackage{Name: "libfoo", Version: mustParseVersion(t, "2.0.0")})

	selected := plan.NewSelectedStore()
	key := plan.PackageKey{Database: "host", Name: "libfoo"}
	selected.Put(key, &plan.SelectedPackage{Name: "libfoo", Version: mustParseVersion(t, "1.0.0"), State: plan.StateConfigured})

	state := plan.NewState(available, selected)

	_, err = svc.enterRoot(state, "host", "libfoo", false)
	require.NoError(t, err)

	bp := state.Builds.Find(key)
	require.True(t, version.Equal(bp.Available.Version, mustParseVersion(t, "1.0.0")))
}

func TestEnterRootWithUpgradeTakesNewestRegardlessOfSelected(t *testing.T) {
	cfg := newTestConfig(t)
	svc, err := NewService(cfg)
	require.NoError(t, err)
	defer svc.Close()

	available := plan.NewAvailableIndex()
	available.Add(&plan.AvailablePackage{Name: "libfoo", Version: mustParseVersion(t, "1.0.0")})
	available.Add(&plan.AvailablePackage{Name: "libfoo", Version: mustParseVersion(t, "2.0.0")})

	selected := plan.NewSelectedStore()
	key := plan.PackageKey{Database: "host", Name: "libfoo"}
	selected.Put(key, &plan.SelectedPackage{Name: "libfoo", Version: mustParseVersion(t, "1.0.0"), State: plan.StateConfigured})

	state := plan.NewState(available, selected)

	_, err = svc.enterRoot(state, "host", "libfoo", true)
	require.NoError(t, err)

	bp := state.Builds.Find(key)
	require.True(t, version.Equal(bp.Available.Version, mustParseVersion(t, "2.0.0")))
}

func TestLoadSelectedStoreFiltersByDatabase(t *testing.T) {
	cfg := newTestConfig(t)
	svc, err := NewService(cfg)
	require.NoError(t, err)
	defer svc.Close()

	hostKey := plan.PackageKey{Database: "host", Name: "libfoo"}
	targetKey := plan.PackageKey{Database: "target", Name: "libfoo"}
	require.NoError(t, svc.db.PutSelected(hostKey, &plan.SelectedPackage{Name: "libfoo", Version: mustParseVersion(t, "1.0.0"), State: plan.StateConfigured}))
	require.NoError(t, svc.db.PutSelected(targetKey, &plan.SelectedPackage{Name: "libfoo", Version: mustParseVersion(t, "1.0.0"), State: plan.StateConfigured}))

	store, err := svc.loadSelectedStore("host")
	require.NoError(t, err)
	require.NotNil(t, store.Find(hostKey))
	require.Nil(t, store.Find(targetKey))
}

func TestPersistSelectedSkipsNonBuildActions(t *testing.T) {
	cfg := newTestConfig(t)
	svc, err := NewService(cfg)
	require.NoError(t, err)
	defer svc.Close()

	state := plan.NewState(plan.NewAvailableIndex(), plan.NewSelectedStore())
	key := plan.PackageKey{Database: "host", Name: "libfoo"}
	bp := state.Builds.Enter(key)
	bp.Action = plan.ActionDrop

	require.NoError(t, svc.persistSelected(state))

	sp, err := svc.db.GetSelected(key)
	require.NoError(t, err)
	require.Nil(t, sp)
}

func TestPersistSelectedWritesSelectedAndPrerequisites(t *testing.T) {
	cfg := newTestConfig(t)
	svc, err := NewService(cfg)
	require.NoError(t, err)
	defer svc.Close()

	libKey := plan.PackageKey{Database: "host", Name: "libfoo"}
	appKey := plan.PackageKey{Database: "host", Name: "app"}

	state := plan.NewState(plan.NewAvailableIndex(), plan.NewSelectedStore())

	libBP := state.Builds.Enter(libKey)
	libBP.Action = plan.ActionBuild
	libBP.Available = &plan.AvailablePackage{Name: "libfoo", Version: mustParseVersion(t, "1.0.0")}

	appAvail := &plan.AvailablePackage{
		Name:    "app",
		Version: mustParseVersion(t, "1.0.0"),
		Depends: []plan.DependencyAlternatives{{
			Alternatives: []plan.DependencyAlternative{{
				Dependencies: []plan.Dependency{{Name: "libfoo", Constraint: mustParseConstraint(t, ">=1.0.0"), HasConstraint: true}},
			}},
		}},
	}
	appBP := state.Builds.Enter(appKey)
	appBP.Action = plan.ActionBuild
	appBP.Available = appAvail
	appBP.Dependencies = []*plan.Dependent{{Keys: []plan.PackageKey{libKey}, DependsIdx: 0, AltIdx: 0}}
	appBP.Alternatives = []int{0}

	require.NoError(t, svc.persistSelected(state))

	libSP, err := svc.db.GetSelected(libKey)
	require.NoError(t, err)
	require.NotNil(t, libSP)

	appSP, err := svc.db.GetSelected(appKey)
	require.NoError(t, err)
	require.NotNil(t, appSP)
	require.NotNil(t, appSP.Prerequisites)
	constraint, ok := appSP.Prerequisites[libKey]
	require.True(t, ok)
	require.NotNil(t, constraint)
}

func mustParseConstraint(t *testing.T, text string) version.Constraint {
	t.Helper()
	c, err := version.ParseConstraint(text)
	require.NoError(t, err)
	return c
}
