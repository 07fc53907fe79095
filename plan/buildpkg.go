package plan

import "pkgsynth/version"

// Action is the tagged-variant action a BuildPackage carries: None means a pre-entered entry with no
// action (never appears in the ordered list).
type Action int

const (
	ActionNone Action = iota
	ActionBuild
	ActionDrop
	ActionAdjust
)

// Flag bits folded into the build/adjust variants.
type Flag int

const (
	FlagAdjustReconfigure Flag = 1 << iota
	FlagAdjustUnhold
	FlagBuildRepoint
	FlagBuildReevaluate
	FlagBuildRecollect
)

// ConstraintEntry tags a constraint with the dependent version that
// produced it.
type ConstraintEntry struct {
	Constraint version.Constraint
	Dependent  PackageVersionKey
}

// BuildPackage is the planner's central working record.
type BuildPackage struct {
	Action   Action
	Database string

	Selected  *SelectedPackage
	Available *AvailablePackage

	RepoFragment string

	// Dependencies is the materialized selected-alternative list,
	// parallel to Available.Depends; Alternatives is the chosen index
	// per clause. Invariant: len(Dependencies) == len(Alternatives) <=
	// len(Available.Depends); equality means fully collected (P2).
	Dependencies []*Dependent
	Alternatives []int

	Skeleton *PackageSkeleton

	Constraints []ConstraintEntry

	HoldPackage bool
	HoldVersion bool
	System      bool

	Disfigure     bool
	ConfigureOnly bool
	KeepOutput    bool

	CheckoutRoot string
	Purge        bool

	UserConfig map[string]string

	Upgrade  bool // --upgrade policy applies to this package
	Patch    bool
	Deorphan bool

	RequiredBy           map[PackageKey]bool
	RequiredByDependents bool

	Flags Flag

	// RecursiveCollection marks that collect_build_prerequisites has
	// been entered at least once for this package.
	RecursiveCollection bool

	// PostponedDependencyAlternatives stashes alternatives that were
	// deferred in reused-only mode so a later pass can retry them with
	// a widened max_alt_index.
	PostponedDependencyAlternatives []int
}

// Dependent is one resolved dependency-alternative's concrete targets,
// referenced by key (never by pointer). Most alternatives name a
// single dependency; a "depends on A and B together" alternative
// names several, hence Keys rather than a single Key.
type Dependent struct {
	Keys       []PackageKey
	DependsIdx int
	AltIdx     int
}

// Key returns the identity of the package called name in bp's database.
func (bp *BuildPackage) Key(name string) PackageKey {
	return PackageKey{Database: bp.Database, Name: name}
}

// resetCollection discards the materialized dependency selections so
// the next collection pass starts from the first depends clause again.
// Constraints, RequiredBy, and the skeleton are kept: those accumulate
// across restarts.
func (bp *BuildPackage) resetCollection() {
	bp.Dependencies = nil
	bp.Alternatives = nil
	bp.RecursiveCollection = false
}

// FullyCollected reports whether every depends clause of Available has
// a materialized Dependencies/Alternatives entry.
func (bp *BuildPackage) FullyCollected() bool {
	if bp.Available == nil {
		return true
	}
	return len(bp.Dependencies) == len(bp.Available.Depends) &&
		len(bp.Alternatives) == len(bp.Available.Depends)
}

// Merge combines other into bp with union-like semantics. Used when
// the same key is encountered a second time
// with compatible intent (e.g. a second dependent of the same
// dependency, or an adjust+reconfigure following a build).
func (bp *BuildPackage) Merge(other *BuildPackage) {
	if bp.Action == ActionNone {
		bp.Action = other.Action
	} else if other.Action == ActionAdjust && bp.Action == ActionBuild {
		// Building already subsumes reconfigure/unhold intents.
		bp.Flags |= other.Flags
	} else if other.Action != ActionNone {
		bp.Action = other.Action
	}

	bp.Flags |= other.Flags
	bp.HoldPackage = bp.HoldPackage || other.HoldPackage
	bp.HoldVersion = bp.HoldVersion || other.HoldVersion
	bp.Disfigure = bp.Disfigure || other.Disfigure
	bp.ConfigureOnly = bp.ConfigureOnly || other.ConfigureOnly
	bp.KeepOutput = bp.KeepOutput || other.KeepOutput
	bp.RequiredByDependents = bp.RequiredByDependents || other.RequiredByDependents

	if bp.RequiredBy == nil {
		bp.RequiredBy = make(map[PackageKey]bool)
	}
	for k := range other.RequiredBy {
		bp.RequiredBy[k] = true
	}

	bp.Constraints = append(bp.Constraints, other.Constraints...)

	if other.Available != nil {
		bp.Available = other.Available
	}
	if other.RepoFragment != "" {
		bp.RepoFragment = other.RepoFragment
	}
}

// SatisfiesAllConstraints reports whether the chosen version (from
// Available or Selected) satisfies every recorded constraint.
func (bp *BuildPackage) SatisfiesAllConstraints() bool {
	var v version.Version
	switch {
	case bp.Available != nil:
		v = bp.Available.Version
	case bp.Selected != nil:
		v = bp.Selected.Version
	default:
		return true
	}
	for _, c := range bp.Constraints {
		if !version.Satisfies(v, c.Constraint) {
			return false
		}
	}
	return true
}

// BuildMap is the result store: a keyed map plus an ordered list, kept
// in agreement so that every action-bearing entry appears in the list
// exactly once and pre-entered entries (no action) never appear in it.
type BuildMap struct {
	byKey   map[PackageKey]*BuildPackage
	order   []PackageKey
	inOrder map[PackageKey]bool
}

// NewBuildMap creates an empty map+list.
func NewBuildMap() *BuildMap {
	return &BuildMap{
		byKey:   make(map[PackageKey]*BuildPackage),
		inOrder: make(map[PackageKey]bool),
	}
}

// Enter returns the existing entry for key, creating a pre-entered
// (ActionNone) one if absent.
func (m *BuildMap) Enter(key PackageKey) *BuildPackage {
	bp, ok := m.byKey[key]
	if !ok {
		bp = &BuildPackage{Database: key.Database}
		m.byKey[key] = bp
	}
	return bp
}

// Find returns the entry for key, or nil if none exists.
func (m *BuildMap) Find(key PackageKey) *BuildPackage {
	return m.byKey[key]
}

// Keys returns every key currently in the map (action-bearing or not).
func (m *BuildMap) Keys() []PackageKey {
	out := make([]PackageKey, 0, len(m.byKey))
	for k := range m.byKey {
		out = append(out, k)
	}
	return out
}

// Collect adds key to the ordered list if it is not already present
// and carries an action; pre-entered entries must never be added.
// Reorder, if true, moves an already-listed entry to the end.
func (m *BuildMap) Collect(key PackageKey, reorder bool) {
	bp := m.byKey[key]
	if bp == nil || bp.Action == ActionNone {
		return
	}
	if m.inOrder[key] {
		if !reorder {
			return
		}
		m.removeFromOrder(key)
	}
	m.order = append(m.order, key)
	m.inOrder[key] = true
}

// Remove deletes key from the map and, if listed, from the ordered
// list. Used when a collapsed cluster's dependencies turn out to be
// reachable only through it.
func (m *BuildMap) Remove(key PackageKey) {
	if m.inOrder[key] {
		m.removeFromOrder(key)
	}
	delete(m.byKey, key)
}

func (m *BuildMap) removeFromOrder(key PackageKey) {
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			delete(m.inOrder, key)
			return
		}
	}
}

// Order returns the current ordered list, in insertion order (before
// the ordering engine's topological re-sort runs).
func (m *BuildMap) Order() []PackageKey {
	return append([]PackageKey(nil), m.order...)
}

// SetOrder replaces the ordered list wholesale, used by the ordering
// engine once it has computed the final topological order.
func (m *BuildMap) SetOrder(keys []PackageKey) {
	m.order = append([]PackageKey(nil), keys...)
	m.inOrder = make(map[PackageKey]bool, len(keys))
	for _, k := range keys {
		m.inOrder[k] = true
	}
}

// CheckInvariants verifies the map/list agreement and per-package
// invariants hold, returning an *InvariantViolation describing the
// first violation found (nil if none).
func (m *BuildMap) CheckInvariants() error {
	seen := make(map[PackageKey]int)
	for _, k := range m.order {
		seen[k]++
		bp := m.byKey[k]
		if bp == nil {
			return &InvariantViolation{Detail: "ordered list references a key absent from the map: " + k.String()}
		}
		if bp.Action == ActionNone {
			return &InvariantViolation{Detail: "pre-entered entry appears in ordered list: " + k.String()}
		}
	}
	for k, n := range seen {
		if n != 1 {
			return &InvariantViolation{Detail: "entry appears more than once in ordered list: " + k.String()}
		}
	}
	for k, bp := range m.byKey {
		if bp.Action != ActionNone && !m.inOrder[k] {
			return &InvariantViolation{Detail: "action-bearing entry missing from ordered list: " + k.String()}
		}
		if bp.Action == ActionBuild && bp.Available == nil {
			return &InvariantViolation{Detail: "build action without an available package: " + k.String()}
		}
		if !bp.SatisfiesAllConstraints() {
			return &InvariantViolation{Detail: "chosen version violates a recorded constraint: " + k.String()}
		}
	}
	return nil
}

// Clone returns a deep copy for snapshotting.
func (m *BuildMap) Clone() *BuildMap {
	out := NewBuildMap()
	for k, bp := range m.byKey {
		cp := *bp
		cp.Dependencies = append([]*Dependent(nil), bp.Dependencies...)
		for i, d := range cp.Dependencies {
			dd := *d
			cp.Dependencies[i] = &dd
		}
		cp.Alternatives = append([]int(nil), bp.Alternatives...)
		cp.Constraints = append([]ConstraintEntry(nil), bp.Constraints...)
		cp.PostponedDependencyAlternatives = append([]int(nil), bp.PostponedDependencyAlternatives...)
		if bp.RequiredBy != nil {
			cp.RequiredBy = make(map[PackageKey]bool, len(bp.RequiredBy))
			for rk := range bp.RequiredBy {
				cp.RequiredBy[rk] = true
			}
		}
		if bp.UserConfig != nil {
			cp.UserConfig = make(map[string]string, len(bp.UserConfig))
			for uk, uv := range bp.UserConfig {
				cp.UserConfig[uk] = uv
			}
		}
		if bp.Skeleton != nil {
			cp.Skeleton = bp.Skeleton.Clone()
		}
		out.byKey[k] = &cp
	}
	out.order = append([]PackageKey(nil), m.order...)
	for k := range m.inOrder {
		out.inOrder[k] = true
	}
	return out
}
