package plan

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// LoadFlags selects which classes of already-persisted configuration
// variables a PackageSkeleton seeds itself with.
type LoadFlags struct {
	LoadConfigUser      bool
	LoadConfigDependent bool
}

// clausePosition identifies a `depends:` clause and the alternative
// within it currently being evaluated, used as the (di, ai) pair
// threaded through postponement and cluster bookkeeping.
type clausePosition struct {
	DependsIndex     int
	AlternativeIndex int
}

// PackageSkeleton holds candidate configuration for one build-package
// and evaluates the manifest's enable/reflect/prefer/accept/require
// expressions against it.
type PackageSkeleton struct {
	PackageName string

	// vars holds the working configuration: user-supplied values,
	// values reflected by enabled alternatives, and values committed by
	// dependent_config, in that layering order (later writes win).
	vars map[string]string

	// varOrigin records which layer set each variable, and varDependent
	// records, for dependent-origin variables, which dependent pinned
	// them: bogus-variable detection in the driver drops a variable once
	// its pinning dependent leaves the resolved plan.
	varOrigin    map[string]configOrigin
	varDependent map[string]PackageKey

	loaded LoadFlags
}

type configOrigin int

const (
	originUser configOrigin = iota
	originReflect
	originDependent
)

// NewPackageSkeleton creates a skeleton for pkgName, initialized lazily
// from a BuildPackage the first time its configuration is needed.
func NewPackageSkeleton(pkgName string) *PackageSkeleton {
	return &PackageSkeleton{
		PackageName:  pkgName,
		vars:         make(map[string]string),
		varOrigin:    make(map[string]configOrigin),
		varDependent: make(map[string]PackageKey),
	}
}

// SeedUserConfig loads persisted user-supplied configuration values,
// gated by LoadConfigUser.
func (s *PackageSkeleton) SeedUserConfig(values map[string]string, flags LoadFlags) {
	s.loaded = flags
	if !flags.LoadConfigUser {
		return
	}
	for k, v := range values {
		s.vars[k] = v
		s.varOrigin[k] = originUser
	}
}

// lookup implements the exprlang variable resolver against the current
// configuration.
func (s *PackageSkeleton) lookup(name string) (exprValue, bool) {
	v, ok := s.vars[name]
	if !ok {
		return exprValue{}, false
	}
	if v == "true" || v == "false" {
		return boolValue(v == "true"), true
	}
	return strValue(v), true
}

// EvaluateEnable evaluates a dependency alternative's `enable`
// expression against the skeleton's current configuration.
func (s *PackageSkeleton) EvaluateEnable(expr string, pos clausePosition) (bool, error) {
	ok, err := evalBoolExpr(expr, s.lookup)
	if err != nil {
		return false, fmt.Errorf("evaluating enable clause at depends[%d][%d] of %s: %w",
			pos.DependsIndex, pos.AlternativeIndex, s.PackageName, err)
	}
	return ok, nil
}

// EvaluateReflect applies a `reflect` clause's variable assignments so
// that subsequent `enable` evaluations (of later depends clauses) can
// observe them,
func (s *PackageSkeleton) EvaluateReflect(expr string, pos clausePosition) error {
	assigns, err := parseAssignments(expr, s.lookup)
	if err != nil {
		return fmt.Errorf("evaluating reflect clause at depends[%d][%d] of %s: %w",
			pos.DependsIndex, pos.AlternativeIndex, s.PackageName, err)
	}
	for _, a := range assigns {
		s.vars[a.Name] = exprValueToString(a.Value)
		s.varOrigin[a.Name] = originReflect
	}
	return nil
}

// ApplyPrefer applies a `prefer` clause's tentative assignments during
// cluster negotiation, committed on dependent's behalf through
// DependentConfig so each variable remembers who pinned it; these are
// speculative, and Reset discards them just as it discards reflect
// values.
func (s *PackageSkeleton) ApplyPrefer(expr string, dependent PackageKey) error {
	assigns, err := parseAssignments(expr, s.lookup)
	if err != nil {
		return fmt.Errorf("evaluating prefer clause of %s: %w", s.PackageName, err)
	}
	pc := make(map[string]string, len(assigns))
	for _, a := range assigns {
		pc[a.Name] = exprValueToString(a.Value)
	}
	return s.DependentConfig(dependent, pc)
}

// ApplyUserConfig commits command-line configuration values. User
// values win over everything already present, persisted user pins
// included, so no sensibility check applies.
func (s *PackageSkeleton) ApplyUserConfig(pc map[string]string) {
	for k, v := range pc {
		s.vars[k] = v
		s.varOrigin[k] = originUser
		delete(s.varDependent, k)
	}
}

// EvaluateAccept evaluates an `accept` predicate against the currently
// negotiated configuration: true means this dependent is satisfied
// with the configuration as negotiated so far.
func (s *PackageSkeleton) EvaluateAccept(expr string) (bool, error) {
	return evalBoolExpr(expr, s.lookup)
}

// EvaluateRequire evaluates a `require` expression the same way as
// enable/accept: a plain boolean predicate over the negotiated
// configuration.
func (s *PackageSkeleton) EvaluateRequire(expr string) (bool, error) {
	return evalBoolExpr(expr, s.lookup)
}

// UnsensibleConfig is returned by DependentConfig when a dependent's
// configuration contradicts a value the user pinned.
type UnsensibleConfig struct {
	Package string
	Reason  string
}

func (e *UnsensibleConfig) Error() string {
	return fmt.Sprintf("unsensible configuration for %s: %s", e.Package, e.Reason)
}

// VerifySensible checks a proposed dependent-supplied configuration
// (pc) against the values the user pinned before committing it,
// returning (ok, reason).
func (s *PackageSkeleton) VerifySensible(pc map[string]string) (bool, string) {
	for k, v := range pc {
		if existing, ok := s.vars[k]; ok && s.varOrigin[k] == originUser && existing != v {
			return false, fmt.Sprintf("dependent wants %s=%s but user already pinned %s=%s", k, v, k, existing)
		}
	}
	return true, ""
}

// DependentConfig commits dependent's configuration to this skeleton,
// failing with *UnsensibleConfig if it contradicts a user-pinned value.
func (s *PackageSkeleton) DependentConfig(dependent PackageKey, pc map[string]string) error {
	if ok, reason := s.VerifySensible(pc); !ok {
		return &UnsensibleConfig{Package: s.PackageName, Reason: reason}
	}
	for k, v := range pc {
		s.vars[k] = v
		s.varOrigin[k] = originDependent
		s.varDependent[k] = dependent
	}
	return nil
}

// ConfigChecksum returns a stable content hash of the skeleton's
// working configuration, used to detect whether a configured package
// actually changed and to drive the
// postponed_cfgs_history fixed-point guard.
func (s *PackageSkeleton) ConfigChecksum() string {
	keys := make([]string, 0, len(s.vars))
	for k := range s.vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h := sha256.New()
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%s;", k, s.vars[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Reset discards accumulated reflect/dependent loads, keeping only
// user-pinned values. Required when a skeleton that was already
// recursively collected must be reused for negotiation speculation.
func (s *PackageSkeleton) Reset() {
	for k, origin := range s.varOrigin {
		if origin != originUser {
			delete(s.vars, k)
			delete(s.varOrigin, k)
			delete(s.varDependent, k)
		}
	}
}

// Clone returns an independent copy, used by snapshotting.
func (s *PackageSkeleton) Clone() *PackageSkeleton {
	clone := &PackageSkeleton{
		PackageName:  s.PackageName,
		vars:         make(map[string]string, len(s.vars)),
		varOrigin:    make(map[string]configOrigin, len(s.varOrigin)),
		varDependent: make(map[string]PackageKey, len(s.varDependent)),
		loaded:       s.loaded,
	}
	for k, v := range s.vars {
		clone.vars[k] = v
	}
	for k, v := range s.varOrigin {
		clone.varOrigin[k] = v
	}
	for k, v := range s.varDependent {
		clone.varDependent[k] = v
	}
	return clone
}

// Values returns a copy of the current configuration values, e.g. for
// persisting to statedb or for computing a dependent's DependentConfig
// payload.
func (s *PackageSkeleton) Values() map[string]string {
	out := make(map[string]string, len(s.vars))
	for k, v := range s.vars {
		out[k] = v
	}
	return out
}

// VariablesFromDependent returns, for each variable a dependent
// pinned, the dependent that pinned it, used by the driver's
// bogus-configuration-variable detection.
func (s *PackageSkeleton) VariablesFromDependent() map[string]PackageKey {
	out := make(map[string]PackageKey)
	for k, origin := range s.varOrigin {
		if origin == originDependent {
			out[k] = s.varDependent[k]
		}
	}
	return out
}

// DropVariables removes the named variables, used when the driver
// determines they are bogus (set by a dependent no longer in the
// resolved plan).
func (s *PackageSkeleton) DropVariables(names []string) {
	for _, n := range names {
		delete(s.vars, n)
		delete(s.varOrigin, n)
		delete(s.varDependent, n)
	}
}
