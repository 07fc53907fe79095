package plan

import (
	"fmt"
	"strings"

	"pkgsynth/version"
)

// Collector implements collect_build_prerequisites: the
// main engine that walks dependency alternatives, selects, defers, and
// (via the typed signals in errors.go) backtracks.
type Collector struct {
	State *State
}

// NewCollector creates a collector bound to state.
func NewCollector(state *State) *Collector {
	return &Collector{State: state}
}

// candidate is one enabled alternative under consideration for a
// depends clause, along with whether pre-collection found it reusable.
type candidate struct {
	index  int
	alt    DependencyAlternative
	keys   []PackageKey
	reused bool
}

// CollectBuildPrerequisites walks key's not-yet-materialized depends
// clauses. chain is the "while satisfying"
// diagnostic trail; depth is this frame's backtrack-routing depth.
func (c *Collector) CollectBuildPrerequisites(key PackageKey, depth int, chain Chain) error {
	return c.collect(key, depth, chain, nil)
}

// collect is CollectBuildPrerequisites's recursive body. path is the
// ordered stack of to-be-built packages currently being collected on
// this call chain — re-entering a key already on path means the
// dependency graph among packages not yet configured contains a
// cycle, which is fatal rather than
// something a later pass could resolve, since nothing short-circuits
// the mutual recursion otherwise. A cycle that only involves already
// configured packages never reaches here: collectDependencyEdge
// returns without recursing whenever it reuses an existing selected
// package.
func (c *Collector) collect(key PackageKey, depth int, chain Chain, path []PackageKey) error {
	for _, k := range path {
		if k == key {
			full := append(append([]PackageKey(nil), path...), key)
			return &ResolutionFailure{
				Message: fmt.Sprintf("dependency cycle detected: %s", cycleMessage(full)),
				Chain:   chain,
			}
		}
	}
	path = append(append([]PackageKey(nil), path...), key)

	bp := c.State.Builds.Find(key)
	if bp == nil || bp.Action != ActionBuild || bp.Available == nil {
		return nil
	}
	if bp.Skeleton == nil {
		bp.Skeleton = NewPackageSkeleton(key.Name)
		if bp.Selected != nil {
			bp.Skeleton.SeedUserConfig(bp.Selected.ConfigValues, LoadFlags{LoadConfigUser: true, LoadConfigDependent: true})
		}
		if bp.UserConfig != nil {
			bp.Skeleton.ApplyUserConfig(bp.UserConfig)
		}
	}
	if bp.RecursiveCollection && len(bp.Dependencies) == 0 && len(bp.Available.Depends) > 0 {
		// Reused for a second pass (e.g. negotiation speculation); the
		// skeleton may carry stale reflect state from a prior attempt.
		bp.Skeleton.Reset()
		if bp.UserConfig != nil {
			bp.Skeleton.ApplyUserConfig(bp.UserConfig)
		}
	}
	bp.RecursiveCollection = true

	myChain := append(append(Chain(nil), chain...), key.String())

	for i := len(bp.Dependencies); i < len(bp.Available.Depends); i++ {
		clause := bp.Available.Depends[i]

		if len(clause.Alternatives) == 0 {
			bp.Dependencies = append(bp.Dependencies, &Dependent{DependsIdx: i, AltIdx: -1})
			bp.Alternatives = append(bp.Alternatives, -1)
			continue
		}

		cands, unacceptable, err := c.enabledCandidates(bp, i, clause, myChain)
		if err != nil {
			return err
		}
		if len(cands) == 0 {
			if len(unacceptable) > 0 {
				return &ResolutionFailure{
					Message: fmt.Sprintf("unable to negotiate sensible configuration for dependency %s",
						strings.Join(unacceptable, ", ")),
					Chain: myChain,
				}
			}
			return &ResolutionFailure{
				Message: fmt.Sprintf("no enabled alternative satisfies depends[%d] of %s", i, key),
				Chain:   myChain,
			}
		}

		chosen, err := c.selectAlternative(key, bp, i, cands, myChain)
		if err != nil {
			return err
		}

		pos := clausePosition{i, chosen.index}

		if chosen.alt.HasConfigClause() {
			for _, depKey := range chosen.keys {
				if c.alreadyCollectedWithoutConfig(depKey) {
					return &PostponeDependency{Key: depKey}
				}
			}

			cluster, _, absorbed := c.State.Clusters.add(key, false, i, chosen.keys, true)
			if err := c.checkClusterMerge(cluster, absorbed, key, i); err != nil {
				return err
			}
			wasNegotiated := cluster.Negotiated == TristateTrue
			var before string
			if wasNegotiated {
				before = clusterConfigChecksum(c.State, cluster)
			}

			for _, depKey := range chosen.keys {
				if err := c.collectDependencyEdge(key, bp, depKey, chosen.alt, myChain, path); err != nil {
					return err
				}
				c.State.PostponedDeps.RecordWithConfig(depKey)
			}
			if chosen.alt.Prefer != "" {
				for _, depKey := range chosen.keys {
					depBP := c.State.Builds.Find(depKey)
					if depBP == nil || depBP.Skeleton == nil {
						continue
					}
					if err := depBP.Skeleton.ApplyPrefer(chosen.alt.Prefer, key); err != nil {
						return err
					}
				}
			}
			if wasNegotiated {
				if after := clusterConfigChecksum(c.State, cluster); after != before {
					return &RetryConfiguration{Depth: cluster.Depth, Dependent: key}
				}
			}
			if err := c.reevaluateExistingDependents(cluster, chosen.keys); err != nil {
				return err
			}
			bp.Dependencies = append(bp.Dependencies, &Dependent{Keys: chosen.keys, DependsIdx: i, AltIdx: chosen.index})
			bp.Alternatives = append(bp.Alternatives, chosen.index)
			if chosen.alt.Reflect != "" {
				if err := bp.Skeleton.EvaluateReflect(chosen.alt.Reflect, pos); err != nil {
					return err
				}
			}
			continue
		}

		for _, depKey := range chosen.keys {
			if err := c.collectDependencyEdge(key, bp, depKey, chosen.alt, myChain, path); err != nil {
				return err
			}
		}

		bp.Dependencies = append(bp.Dependencies, &Dependent{Keys: chosen.keys, DependsIdx: i, AltIdx: chosen.index})
		bp.Alternatives = append(bp.Alternatives, chosen.index)

		if chosen.alt.Reflect != "" {
			if err := bp.Skeleton.EvaluateReflect(chosen.alt.Reflect, pos); err != nil {
				return err
			}
		}
	}

	return nil
}

// enabledCandidates evaluates every alternative's enable expression
// and pre-collects the enabled ones. Alternatives previously recorded
// as unacceptable are skipped; the names of their dependencies are
// returned separately so an empty candidate set can be diagnosed as a
// negotiation failure rather than a missing alternative.
func (c *Collector) enabledCandidates(bp *BuildPackage, clauseIdx int, clause DependencyAlternatives, chain Chain) ([]candidate, []string, error) {
	var cands []candidate
	var unacceptable []string
	for ai, alt := range clause.Alternatives {
		pos := clausePosition{clauseIdx, ai}
		ok, err := bp.Skeleton.EvaluateEnable(alt.Enable, pos)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			continue
		}
		if c.State.UnacceptableAlternatives[unacceptKey(bp, clauseIdx, ai)] {
			for _, d := range alt.Dependencies {
				unacceptable = appendUniqueString(unacceptable, d.Name)
			}
			continue
		}
		keys, err := c.preCollectAlternative(bp, alt, chain)
		if err != nil {
			return nil, nil, err
		}
		cands = append(cands, candidate{index: ai, alt: alt, keys: keys.keys, reused: keys.reused})
	}
	return cands, unacceptable, nil
}

func unacceptKey(bp *BuildPackage, clauseIdx, altIdx int) string {
	name, v := "", ""
	if bp.Available != nil {
		name = bp.Available.Name
		v = bp.Available.Version.String()
	}
	sig := UnacceptAlternative{Package: name, Version: v, DependsIndex: clauseIdx, AltIndex: altIdx}
	return sig.LedgerKey()
}

func appendUniqueString(list []string, s string) []string {
	for _, e := range list {
		if e == s {
			return list
		}
	}
	return append(list, s)
}

// checkClusterMerge inspects the outcome of a cluster add for a merge
// involving a cluster currently on the negotiation stack. Such a merge
// invalidates the negotiation frame in progress: the frame must restore
// its snapshot, record the merged cluster as the restored one's shadow,
// and retry so negotiation runs over the merged cluster from the start.
// A merge the shadow already predicted is the retry pass itself and
// proceeds silently; a shadow covering the same dependencies without
// predicting this position means the restore has been tried once and
// did not stick, so the yo-yo is cut with MergeConfigurationCycle.
func (c *Collector) checkClusterMerge(cluster *PostponedConfiguration, absorbed []*PostponedConfiguration, dependent PackageKey, position int) error {
	if len(absorbed) == 0 {
		return nil
	}
	depth := 0
	if cluster.Negotiated == TristateFalse && cluster.Depth != 0 {
		depth = cluster.Depth
	}
	for _, m := range absorbed {
		if m.Negotiated == TristateFalse && m.Depth != 0 {
			depth = minNonZeroDepth(depth, m.Depth)
		}
	}
	if depth == 0 {
		return nil
	}
	if cluster.ContainsInShadowCluster(dependent, position) {
		return nil
	}
	if cluster.ShadowCluster != nil && cluster.SameDependencies(cluster.ShadowCluster) {
		return &MergeConfigurationCycle{Depth: depth}
	}
	return &MergeConfiguration{Depth: depth}
}

type preCollectResult struct {
	keys   []PackageKey
	reused bool
}

// preCollectAlternative resolves each dependency of alt to a concrete
// configuration database and an available package, and detects whether
// every dependency can be satisfied by something already selected or
// already building, without picking a new version.
func (c *Collector) preCollectAlternative(bp *BuildPackage, alt DependencyAlternative, chain Chain) (preCollectResult, error) {
	var keys []PackageKey
	allReused := true
	for _, dep := range alt.Dependencies {
		db := c.State.DBPolicy.ResolveDatabase(bp.Database, dep)
		depKey := PackageKey{Database: db, Name: dep.Name}
		keys = append(keys, depKey)

		constraint := dep.Constraint
		if !dep.HasConstraint {
			constraint = version.Any()
		}
		if uc, ok := c.State.UserConstraints[dep.Name]; ok {
			if parsed, err := version.ParseConstraint(uc.Text); err == nil {
				if merged, ok := version.Intersect(constraint, parsed); ok {
					constraint = merged
				}
			}
		}

		existing := c.State.Builds.Find(depKey)
		if existing != nil && existing.Action == ActionBuild && existing.Available != nil {
			if version.Satisfies(existing.Available.Version, constraint) {
				continue // reused
			}
			allReused = false
			continue
		}

		if sp := c.State.Selected.Find(depKey); sp != nil && existing == nil {
			if version.Satisfies(sp.Version, constraint) {
				continue // reused from an already-configured package
			}
		}

		ap := c.State.Available.Best(dep.Name, constraint)
		if ap == nil {
			allReused = false
			continue
		}
		allReused = false
	}
	return preCollectResult{keys: keys, reused: allReused}, nil
}

// selectAlternative picks among the candidate alternatives for one
// depends clause: a single fully-reused candidate wins outright;
// among several reused candidates the one matching a prior selection
// wins; failing that, the first candidate that can be fully resolved
// is chosen; if none can, the clause fails to resolve.
func (c *Collector) selectAlternative(key PackageKey, bp *BuildPackage, clauseIdx int, cands []candidate, chain Chain) (candidate, error) {
	var reused []candidate
	for _, cd := range cands {
		if cd.reused {
			reused = append(reused, cd)
		}
	}

	if len(reused) == 1 {
		return reused[0], nil
	}
	if len(reused) > 1 {
		if bp.Selected != nil && clauseIdx < len(bp.Selected.SelectedAlternatives) {
			prior := bp.Selected.SelectedAlternatives[clauseIdx]
			for _, cd := range reused {
				if cd.index == prior {
					return cd, nil
				}
			}
		}
		return reused[0], nil
	}

	// No reused alternative: pick the first one whose dependencies all
	// resolved to an available package.
	for _, cd := range cands {
		allResolved := true
		for _, dep := range cd.alt.Dependencies {
			db := c.State.DBPolicy.ResolveDatabase(bp.Database, dep)
			depKey := PackageKey{Database: db, Name: dep.Name}
			constraint := dep.Constraint
			if !dep.HasConstraint {
				constraint = version.Any()
			}
			if c.State.Builds.Find(depKey) != nil {
				continue
			}
			if sp := c.State.Selected.Find(depKey); sp != nil && version.Satisfies(sp.Version, constraint) {
				continue
			}
			if c.State.Available.Best(dep.Name, constraint) == nil {
				allResolved = false
				break
			}
		}
		if allResolved {
			return cd, nil
		}
	}

	var tried []string
	for _, cd := range cands {
		tried = append(tried, fmt.Sprintf("alternative[%d]", cd.index))
	}
	return candidate{}, &ResolutionFailure{
		Message: fmt.Sprintf("no satisfying alternative for depends[%d] of %s (tried: %v)", clauseIdx, key, tried),
		Chain:   chain,
	}
}

// alreadyCollectedWithoutConfig reports whether depKey has already had
// its own depends clauses recursively collected on a plain (no
// prefer/require) path and never joined a postponed-configuration
// cluster. Discovering such a dependency a second time, now behind a
// config clause, means the earlier pass collected it with the wrong
// shape and must restart via PostponeDependency.
func (c *Collector) alreadyCollectedWithoutConfig(depKey PackageKey) bool {
	depBP := c.State.Builds.Find(depKey)
	if depBP == nil || !depBP.RecursiveCollection {
		return false
	}
	for _, cluster := range c.State.Clusters.All() {
		if cluster.FindDependency(depKey) {
			return false
		}
	}
	return true
}

// tryReplaceVersion looks for an available version of depKey that
// satisfies every constraint so far recorded against it (the one just
// appended included). A different version than the one bp currently
// holds means the dependency can be upgraded or downgraded in place
// to reconcile the new dependent rather than failing outright; the
// caller restarts collection of the affected subtree via
// *ReplaceVersion once this returns a candidate.
func (c *Collector) tryReplaceVersion(depKey PackageKey, bp *BuildPackage) (*AvailablePackage, bool) {
	if bp.Available == nil || bp.HoldVersion {
		return nil, false
	}
	combined := version.Any()
	for _, ce := range bp.Constraints {
		merged, ok := version.Intersect(combined, ce.Constraint)
		if !ok {
			return nil, false
		}
		combined = merged
	}
	ap := c.State.Available.Best(depKey.Name, combined)
	if ap == nil || version.Equal(ap.Version, bp.Available.Version) {
		return nil, false
	}
	return ap, true
}

// collectDependencyEdge materializes one concrete dependency edge:
// creating or reusing its BuildPackage, recording the constraint, and
// recursing.
func (c *Collector) collectDependencyEdge(dependentKey PackageKey, dependentBP *BuildPackage, depKey PackageKey, alt DependencyAlternative, chain Chain, path []PackageKey) error {
	var dep Dependency
	for _, d := range alt.Dependencies {
		if d.Name == depKey.Name {
			dep = d
			break
		}
	}
	constraint := dep.Constraint
	if !dep.HasConstraint {
		constraint = version.Any()
	}

	bp := c.State.Builds.Enter(depKey)

	dependentVK := PackageVersionKey{Database: dependentKey.Database, Name: dependentKey.Name}
	if dependentBP.Available != nil {
		dependentVK.Version = dependentBP.Available.Version
		dependentVK.HasVersion = true
	}
	bp.Constraints = append(bp.Constraints, ConstraintEntry{Constraint: constraint, Dependent: dependentVK})
	if bp.RequiredBy == nil {
		bp.RequiredBy = make(map[PackageKey]bool)
	}
	bp.RequiredBy[dependentKey] = true

	if bp.Available != nil {
		if !version.Satisfies(bp.Available.Version, constraint) {
			if ap, ok := c.tryReplaceVersion(depKey, bp); ok {
				c.State.Replaced.Record(depKey, &ReplacedVersion{
					Available:    bp.Available,
					RepoFragment: bp.RepoFragment,
				})
				bp.Available = ap
				c.State.Unsatisfied.Resolve(depKey, ap.Version)
				if len(ap.Locations) > 0 {
					bp.RepoFragment = ap.Locations[0].Fragment
				}
				bp.resetCollection()
				return &ReplaceVersion{Key: depKey}
			}
			c.State.Unsatisfied.Add(UnsatisfiedDependent{
				Dependent:  dependentVK,
				Dependency: depKey,
				Constraint: constraint,
				Actual:     bp.Available.Version,
			})
		}
		c.State.Builds.Collect(depKey, false)
		if bp.FullyCollected() {
			return nil
		}
		return c.collect(depKey, 0, chain, path)
	}

	if sp := c.State.Selected.Find(depKey); sp != nil && bp.Action == ActionNone {
		if version.Satisfies(sp.Version, constraint) {
			bp.Action = ActionNone
			bp.Selected = sp
			return nil
		}
	}

	ap := c.State.Available.Best(depKey.Name, constraint)
	if ap == nil {
		c.State.Unsatisfied.Add(UnsatisfiedDependent{
			Dependent:  dependentVK,
			Dependency: depKey,
			Constraint: constraint,
		})
		c.State.PostponedRepo[depKey] = true
		return nil
	}

	bp.Action = ActionBuild
	bp.Available = ap
	if len(ap.Locations) > 0 {
		bp.RepoFragment = ap.Locations[0].Fragment
	}
	c.State.Builds.Collect(depKey, false)
	return c.collect(depKey, 0, chain, path)
}

// cycleMessage renders an ancestor path plus the re-entered key (path's
// last entry repeats an earlier one, closing the loop) as the
// "a depends on b, b depends on a" chain the fatal cycle diagnostic
// uses.
func cycleMessage(path []PackageKey) string {
	parts := make([]string, 0, len(path)-1)
	for i := 0; i+1 < len(path); i++ {
		parts = append(parts, fmt.Sprintf("%s depends on %s", path[i].Name, path[i+1].Name))
	}
	return strings.Join(parts, ", ")
}
