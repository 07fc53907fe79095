package plan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSkeletonSeedUserConfigGatedByLoadFlag(t *testing.T) {
	s := NewPackageSkeleton("libfoo")
	s.SeedUserConfig(map[string]string{"shared": "true"}, LoadFlags{LoadConfigUser: false})

	ok, err := s.EvaluateEnable("shared", clausePosition{})
	require.NoError(t, err)
	require.False(t, ok, "LoadConfigUser=false must not seed any values")

	s2 := NewPackageSkeleton("libfoo")
	s2.SeedUserConfig(map[string]string{"shared": "true"}, LoadFlags{LoadConfigUser: true})
	ok, err = s2.EvaluateEnable("shared", clausePosition{})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvaluateEnableDefaultsToTrueWhenEmpty(t *testing.T) {
	s := NewPackageSkeleton("libfoo")
	ok, err := s.EvaluateEnable("", clausePosition{})
	require.NoError(t, err)
	require.True(t, ok, "an empty enable clause always enables the alternative")
}

func TestEvaluateEnableEvaluatesComparisonsAndBooleans(t *testing.T) {
	s := NewPackageSkeleton("libfoo")
	s.SeedUserConfig(map[string]string{"variant": "gui"}, LoadFlags{LoadConfigUser: true})

	ok, err := s.EvaluateEnable("variant == 'gui'", clausePosition{})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.EvaluateEnable("variant == 'cli' || variant == 'gui'", clausePosition{})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.EvaluateEnable("!(variant == 'cli')", clausePosition{})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.EvaluateEnable("variant != 'gui'", clausePosition{})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvaluateEnableWrapsParseErrorWithPosition(t *testing.T) {
	s := NewPackageSkeleton("libfoo")
	_, err := s.EvaluateEnable("variant ==", clausePosition{DependsIndex: 2, AlternativeIndex: 1})
	require.Error(t, err)
	require.Contains(t, err.Error(), "depends[2][1]")
	require.Contains(t, err.Error(), "libfoo")
}

func TestEvaluateReflectAssignsAndIsVisibleToLaterEnable(t *testing.T) {
	s := NewPackageSkeleton("libfoo")
	require.NoError(t, s.EvaluateReflect("variant = 'gui', extras = true", clausePosition{}))

	ok, err := s.EvaluateEnable("variant == 'gui' && extras", clausePosition{})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestApplyPreferIsSpeculativeAndResetClearsIt(t *testing.T) {
	s := NewPackageSkeleton("libfoo")
	app := PackageKey{Database: "host", Name: "app"}
	require.NoError(t, s.ApplyPrefer("shared = true", app))

	ok, err := s.EvaluateAccept("shared")
	require.NoError(t, err)
	require.True(t, ok)

	s.Reset()
	ok, err = s.EvaluateAccept("shared")
	require.NoError(t, err)
	require.False(t, ok, "Reset discards speculative prefer assignments")
}

func TestResetKeepsUserPinnedValues(t *testing.T) {
	s := NewPackageSkeleton("libfoo")
	s.SeedUserConfig(map[string]string{"shared": "true"}, LoadFlags{LoadConfigUser: true})
	require.NoError(t, s.EvaluateReflect("extras = true", clausePosition{}))

	s.Reset()

	ok, err := s.EvaluateEnable("shared", clausePosition{})
	require.NoError(t, err)
	require.True(t, ok, "user-pinned values survive Reset")

	ok, err = s.EvaluateEnable("extras", clausePosition{})
	require.NoError(t, err)
	require.False(t, ok, "reflect-origin values are discarded by Reset")
}

func TestEvaluateRequireSameGrammarAsEnable(t *testing.T) {
	s := NewPackageSkeleton("libfoo")
	s.SeedUserConfig(map[string]string{"shared": "false"}, LoadFlags{LoadConfigUser: true})

	ok, err := s.EvaluateRequire("!shared")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifySensibleRejectsContradictingUserPin(t *testing.T) {
	s := NewPackageSkeleton("libfoo")
	s.SeedUserConfig(map[string]string{"shared": "false"}, LoadFlags{LoadConfigUser: true})

	ok, reason := s.VerifySensible(map[string]string{"shared": "true"})
	require.False(t, ok)
	require.NotEmpty(t, reason)

	ok, _ = s.VerifySensible(map[string]string{"shared": "false"})
	require.True(t, ok, "a dependent proposing the same value as the user pin is sensible")
}

func TestDependentConfigCommitsOrFailsOnUnsensibleConfig(t *testing.T) {
	app := PackageKey{Database: "host", Name: "app"}

	s := NewPackageSkeleton("libfoo")
	s.SeedUserConfig(map[string]string{"shared": "false"}, LoadFlags{LoadConfigUser: true})

	err := s.DependentConfig(app, map[string]string{"shared": "true"})
	require.Error(t, err)
	var uc *UnsensibleConfig
	require.ErrorAs(t, err, &uc)
	require.Equal(t, "libfoo", uc.Package)

	s2 := NewPackageSkeleton("libfoo")
	require.NoError(t, s2.DependentConfig(app, map[string]string{"shared": "true"}))
	ok, err := s2.EvaluateEnable("shared", clausePosition{})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestApplyPreferFailsAgainstUserPin(t *testing.T) {
	s := NewPackageSkeleton("libfoo")
	s.SeedUserConfig(map[string]string{"shared": "false"}, LoadFlags{LoadConfigUser: true})

	err := s.ApplyPrefer("shared = true", PackageKey{Database: "host", Name: "app"})
	var uc *UnsensibleConfig
	require.ErrorAs(t, err, &uc, "a prefer contradicting a user pin is not sensible")
}

func TestApplyUserConfigOverridesPersistedPin(t *testing.T) {
	s := NewPackageSkeleton("libfoo")
	s.SeedUserConfig(map[string]string{"shared": "false"}, LoadFlags{LoadConfigUser: true})

	s.ApplyUserConfig(map[string]string{"shared": "true"})
	ok, err := s.EvaluateEnable("shared", clausePosition{})
	require.NoError(t, err)
	require.True(t, ok, "a command-line value wins over the persisted user pin")
}

func TestConfigChecksumIsOrderIndependentAndChangesWithValues(t *testing.T) {
	s1 := NewPackageSkeleton("libfoo")
	s1.SeedUserConfig(map[string]string{"a": "1", "b": "2"}, LoadFlags{LoadConfigUser: true})

	s2 := NewPackageSkeleton("libfoo")
	s2.SeedUserConfig(map[string]string{"b": "2", "a": "1"}, LoadFlags{LoadConfigUser: true})

	require.Equal(t, s1.ConfigChecksum(), s2.ConfigChecksum(), "checksum must not depend on map iteration order")

	s2.SeedUserConfig(map[string]string{"a": "9"}, LoadFlags{LoadConfigUser: true})
	require.NotEqual(t, s1.ConfigChecksum(), s2.ConfigChecksum())
}

func TestCloneIsIndependentOfOriginal(t *testing.T) {
	s := NewPackageSkeleton("libfoo")
	s.SeedUserConfig(map[string]string{"shared": "true"}, LoadFlags{LoadConfigUser: true})

	clone := s.Clone()
	require.NoError(t, clone.EvaluateReflect("extras = true", clausePosition{}))

	ok, err := s.EvaluateEnable("extras", clausePosition{})
	require.NoError(t, err)
	require.False(t, ok, "mutating the clone must not affect the original")
}

func TestVariablesFromDependentAndDropVariables(t *testing.T) {
	app := PackageKey{Database: "host", Name: "app"}

	s := NewPackageSkeleton("libfoo")
	require.NoError(t, s.DependentConfig(app, map[string]string{"shared": "true"}))
	require.NoError(t, s.EvaluateReflect("extras = true", clausePosition{}))

	fromDependent := s.VariablesFromDependent()
	require.Equal(t, map[string]PackageKey{"shared": app}, fromDependent, "each dependent-origin variable names the dependent that pinned it")

	s.DropVariables([]string{"shared"})
	ok, err := s.EvaluateEnable("shared", clausePosition{})
	require.NoError(t, err)
	require.False(t, ok, "a dropped variable reads back as unset")

	ok, err = s.EvaluateEnable("extras", clausePosition{})
	require.NoError(t, err)
	require.True(t, ok, "dropping one variable must not disturb another")
}

func TestValuesReturnsIndependentSnapshot(t *testing.T) {
	s := NewPackageSkeleton("libfoo")
	s.SeedUserConfig(map[string]string{"shared": "true"}, LoadFlags{LoadConfigUser: true})

	vals := s.Values()
	vals["shared"] = "false"

	ok, err := s.EvaluateEnable("shared", clausePosition{})
	require.NoError(t, err)
	require.True(t, ok, "mutating the returned map must not affect the skeleton")
}

func TestExprlangAssignmentGrammarRejectsMalformedInput(t *testing.T) {
	s := NewPackageSkeleton("libfoo")
	require.Error(t, s.EvaluateReflect("variant", clausePosition{}), "a bare identifier is not a valid assignment")
	require.Error(t, s.EvaluateReflect("variant = 'gui',", clausePosition{}), "a trailing comma with nothing after it must fail")
}

func TestExprlangBooleanGrammarRejectsTrailingTokens(t *testing.T) {
	s := NewPackageSkeleton("libfoo")
	_, err := s.EvaluateEnable("true true", clausePosition{})
	require.Error(t, err)
}
