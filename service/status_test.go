package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"pkgsynth/plan"
	"pkgsynth/statedb"
	"pkgsynth/version"
)

func TestStatusEmptyDatabase(t *testing.T) {
	cfg := newTestConfig(t)

	svc, err := NewService(cfg)
	require.NoError(t, err)
	defer svc.Close()

	result, err := svc.Status(StatusOptions{})
	require.NoError(t, err)
	require.Empty(t, result.Selected)
	require.Empty(t, result.Audit)
}

func TestStatusReportsSelectedAndAudit(t *testing.T) {
	cfg := newTestConfig(t)

	svc, err := NewService(cfg)
	require.NoError(t, err)
	defer svc.Close()

	v, err := version.Parse("1.2.3")
	require.NoError(t, err)
	key := plan.PackageKey{Database: "host", Name: "libfoo"}
	sp := &plan.SelectedPackage{Name: "libfoo", Version: v, State: plan.StateConfigured}
	require.NoError(t, svc.Database().PutSelected(key, sp))
	require.NoError(t, svc.Database().RecordAudit(statedb.AuditEntry{
		Kind:     "replaced",
		Database: "host",
		Name:     "libfoo",
		Detail:   "replaced 1.0.0 with 1.2.3",
	}))

	result, err := svc.Status(StatusOptions{})
	require.NoError(t, err)
	require.Len(t, result.Selected, 1)
	require.Equal(t, "libfoo", result.Selected[0].Name)
	require.Len(t, result.Audit, 1)
}

func TestStatusFiltersByKey(t *testing.T) {
	cfg := newTestConfig(t)

	svc, err := NewService(cfg)
	require.NoError(t, err)
	defer svc.Close()

	v, err := version.Parse("1.0.0")
	require.NoError(t, err)
	fooKey := plan.PackageKey{Database: "host", Name: "foo"}
	barKey := plan.PackageKey{Database: "host", Name: "bar"}
	require.NoError(t, svc.Database().PutSelected(fooKey, &plan.SelectedPackage{Name: "foo", Version: v, State: plan.StateConfigured}))
	require.NoError(t, svc.Database().PutSelected(barKey, &plan.SelectedPackage{Name: "bar", Version: v, State: plan.StateConfigured}))

	result, err := svc.Status(StatusOptions{Keys: []string{fooKey.String()}})
	require.NoError(t, err)
	require.Len(t, result.Selected, 1)
	require.Equal(t, "foo", result.Selected[0].Name)
}

func TestDescribeSelected(t *testing.T) {
	v, err := version.Parse("1.0.0")
	require.NoError(t, err)
	sp := &plan.SelectedPackage{Name: "libfoo", Version: v, State: plan.StateConfigured}
	require.Equal(t, "libfoo 1.0.0 configured", DescribeSelected(sp))

	sp.Substate = plan.SubstateSystem
	require.Equal(t, "libfoo 1.0.0 configured (system)", DescribeSelected(sp))
}
