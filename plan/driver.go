package plan

import (
	"fmt"
	"sort"
	"strings"
)

// Driver implements collect_build_postponed: the outer
// fixed-point loop that drains postponed repository lookups, negotiates
// dependency-configuration clusters, retries any postponed alternatives
// (maxAlt counts those rounds; the collector does not read it, so the
// alternative window does not widen), and recovers from the
// exception-driven backtracking signals the collector raises.
type Driver struct {
	State     *State
	Collector *Collector
	maxAlt    int
	depth     int
	roots     map[PackageKey]bool
}

// NewDriver creates a driver bound to state, sharing its collector.
func NewDriver(state *State) *Driver {
	return &Driver{State: state, Collector: NewCollector(state)}
}

// Run executes the outer loop for the given root set of packages to
// build, returning once every table has reached a fixed point or
// failing with a *ResolutionFailure / *UnsatisfiedDependentError /
// *InvariantViolation.
func (d *Driver) Run(roots []PackageKey) error {
	d.roots = make(map[PackageKey]bool, len(roots))
	for _, r := range roots {
		d.roots[r] = true
		if bp := d.State.Builds.Find(r); bp != nil {
			d.State.Builds.Collect(r, false)
		}
	}

	for {
		progressed, err := d.pass(roots)
		if err != nil {
			return err
		}
		if !progressed {
			break
		}
	}

	if err := d.Collector.State.Builds.CheckInvariants(); err != nil {
		return err
	}
	if !d.State.Unsatisfied.Empty() {
		return &UnsatisfiedDependentError{Entries: d.State.Unsatisfied.All()}
	}
	return nil
}

// pass runs one iteration of the driver's loop body: drain recollects,
// collect outstanding builds, resolve postponed repository lookups,
// negotiate clusters, retry postponed alternatives. It reports whether
// any table changed, which is the termination signal.
func (d *Driver) pass(roots []PackageKey) (bool, error) {
	changed := false

	for _, key := range keySetKeys(d.State.PostponedRecs) {
		delete(d.State.PostponedRecs, key)
		bp := d.State.Builds.Find(key)
		if bp == nil {
			continue
		}
		if len(bp.Dependencies) == 0 {
			if err := d.collectWithBacktrack(key, 0); err != nil {
				return false, err
			}
		}
		bp.Flags &^= FlagBuildRecollect
		changed = true
	}

	for _, key := range d.State.Builds.Keys() {
		bp := d.State.Builds.Find(key)
		if bp == nil || bp.Action != ActionBuild {
			continue
		}
		if !bp.FullyCollected() {
			if err := d.collectWithBacktrack(key, 0); err != nil {
				return false, err
			}
			changed = true
		}
	}

	for key := range d.State.PostponedRepo {
		if d.State.Repo == nil {
			continue
		}
		ap, err := d.State.Repo.ResolvePostponedRepo(key)
		if err != nil {
			return false, &ExternalFetchFailure{Kind: "MetadataInvalid", Err: err}
		}
		if ap == nil {
			continue
		}
		bp := d.State.Builds.Enter(key)
		bp.Action = ActionBuild
		bp.Available = ap
		d.State.Unsatisfied.Resolve(key, ap.Version)
		delete(d.State.PostponedRepo, key)
		d.State.Builds.Collect(key, false)
		changed = true
	}

	negotiated, err := d.negotiateClusters()
	if err != nil {
		return false, err
	}
	changed = changed || negotiated

	if len(d.State.PostponedAlts) > 0 {
		d.maxAlt++
		for key := range d.State.PostponedAlts {
			bp := d.State.Builds.Find(key)
			if bp == nil {
				continue
			}
			delete(d.State.PostponedAlts, key)
			if err := d.collectWithBacktrack(key, 0); err != nil {
				return false, err
			}
			changed = true
		}
	}

	if changed {
		if err := d.detectBogusPostponedDependencyCycle(); err != nil {
			return false, err
		}
		d.dropBogusConfigVariables()
	}

	return changed, nil
}

// collectWithBacktrack runs the collector for key and handles the
// depth-0 backtracking signals with a scratch-restart recipe: the
// accumulating memory tables (Replaced, PostponedDeps,
// UnacceptableAlternatives, cluster shadows) persist across the
// restart, only the build map/selection state for the affected
// subtree is redone.
func (d *Driver) collectWithBacktrack(key PackageKey, depth int) error {
	const maxRestarts = 64
	for attempt := 0; attempt < maxRestarts; attempt++ {
		err := d.Collector.CollectBuildPrerequisites(key, depth, nil)
		if err == nil {
			return nil
		}
		if !isBacktrackSignal(err) {
			return err
		}
		d.State.Logger.Debug("collection of %s backtracked: %v", key, err)
		switch sig := err.(type) {
		case *ReplaceVersion:
			// The collector already recorded the superseded version in
			// Replaced and swapped bp.Available before raising the
			// signal; mark the replacement applied and make sure the
			// affected subtree is clean for the restart.
			d.State.Replaced.MarkApplied(sig.Key)
			if bp := d.State.Builds.Find(sig.Key); bp != nil {
				bp.resetCollection()
			}
		case *PostponeDependency:
			d.State.PostponedDeps.RecordWoutConfig(sig.Key)
			if bp := d.State.Builds.Find(sig.Key); bp != nil {
				bp.resetCollection()
			}
		case *RetryConfiguration:
			// The cluster's negotiated configuration changed once the new
			// dependent's prefer/require was folded in; un-negotiate it so
			// the driver's main loop revisits it, and restart the
			// dependent that discovered the change.
			if cluster := d.State.Clusters.ClusterAt(sig.Depth); cluster != nil {
				cluster.Negotiated = TristateAbsent
			}
			if bp := d.State.Builds.Find(sig.Dependent); bp != nil {
				bp.resetCollection()
			}
		case *UnacceptAlternative:
			d.State.UnacceptableAlternatives[sig.LedgerKey()] = true
			if bp := d.State.Builds.Find(key); bp != nil {
				bp.resetCollection()
			}
		default:
			// MergeConfiguration, MergeConfigurationCycle, and
			// RecollectExistingDependents are addressed to a negotiation
			// frame; reaching the top-level collection loop means no
			// frame was on the stack to claim them.
			return &InvariantViolation{Detail: fmt.Sprintf("backtracking signal escaped to depth 0: %v", err)}
		}
	}
	return &InvariantViolation{Detail: fmt.Sprintf("exceeded backtrack-restart budget collecting %s", key)}
}

// negotiateClusters visits every non-negotiated cluster, snapshotting
// the full planner state before each attempt so a backtracking signal
// can roll the attempt back and retry with the cluster adjusted. The
// loop reports whether it negotiated (or restarted) anything.
func (d *Driver) negotiateClusters() (bool, error) {
	const maxRestarts = 64
	changed := false
	restarts := 0
	for {
		pending := d.State.Clusters.NonNegotiated()
		if len(pending) == 0 {
			return changed, nil
		}
		cluster := pending[0]

		snap := d.State.TakeSnapshot()
		d.depth++
		cluster.Depth = d.depth
		cluster.Negotiated = TristateFalse

		err := d.negotiateCluster(cluster)
		if err == nil {
			d.State.Logger.Debug("cluster %d negotiated at depth %d", cluster.ID, cluster.Depth)
			changed = true
			continue
		}
		if !isBacktrackSignal(err) {
			return false, err
		}
		d.State.Logger.Debug("negotiation of cluster %d backtracked: %v", cluster.ID, err)
		changed = true
		restarts++
		if restarts > maxRestarts {
			return false, &InvariantViolation{Detail: "exceeded negotiation-restart budget"}
		}

		switch sig := err.(type) {
		case *UnacceptAlternative:
			// Record the rejected alternative only after the restore so
			// the ledger entry survives it, then rebuild the cluster's
			// dependents from scratch; the next collection pass skips the
			// alternative and forms a fresh cluster without it.
			d.State.Restore(snap)
			d.State.UnacceptableAlternatives[sig.LedgerKey()] = true
			d.collapseCluster(cluster.ID)
		case *RetryConfiguration:
			// Another, already-negotiated cluster's configuration moved
			// while this one was being negotiated. Roll back, un-negotiate
			// the moved cluster, and restart the dependent that moved it.
			// The rollback also reverts the move itself, so the moved
			// cluster's history entries must be forgotten or renegotiating
			// it in its restored state would trip the convergence guard.
			d.State.Restore(snap)
			if other := d.State.Clusters.ClusterAt(sig.Depth); other != nil {
				other.Negotiated = TristateAbsent
				d.forgetClusterHistory(other.ID)
			}
			if bp := d.State.Builds.Find(sig.Dependent); bp != nil {
				bp.resetCollection()
			}
		case *MergeConfiguration:
			// A merge folded a cluster into (or out of) the one being
			// negotiated. Capture the merged cluster before rolling back
			// and pin it as the restored cluster's shadow: the retry pass
			// recognizes the predicted merge and lets it proceed, then
			// negotiates the merged cluster as a whole.
			shadow := d.mergedClusterSnapshot(cluster)
			d.State.Restore(snap)
			if restored := d.State.Clusters.ByID(cluster.ID); restored != nil && shadow != nil {
				restored.SetShadowCluster(shadow)
			}
		case *MergeConfigurationCycle:
			// The shadow-guided retry yo-yoed instead of sticking.
			// Collapse: drop the cluster and re-collect its dependents
			// from scratch, letting the next pass rebuild the fully
			// merged cluster before negotiation begins.
			d.State.Restore(snap)
			d.collapseCluster(cluster.ID)
		case *RecollectExistingDependents:
			// New dependencies with existing configured dependents
			// appeared mid-negotiation; those dependents must be
			// re-collected as full builds before negotiation can bind
			// them to the cluster. Hand control back to the pass loop so
			// postponed_recs drains before the cluster is visited again.
			d.State.Restore(snap)
			d.Collector.ScheduleRecollection(sig.Dependents)
			return changed, nil
		case *ReplaceVersion:
			// The replacement is recorded in the persistent
			// replaced-versions table before the signal is raised; keep
			// it (no restore) and restart the affected subtree.
			d.State.Replaced.MarkApplied(sig.Key)
			if bp := d.State.Builds.Find(sig.Key); bp != nil {
				bp.resetCollection()
			}
			cluster.Depth = 0
			cluster.Negotiated = TristateAbsent
		case *PostponeDependency:
			d.State.PostponedDeps.RecordWoutConfig(sig.Key)
			if bp := d.State.Builds.Find(sig.Key); bp != nil {
				bp.resetCollection()
			}
			cluster.Depth = 0
			cluster.Negotiated = TristateAbsent
		}
	}
}

// forgetClusterHistory drops the convergence-guard entries recorded
// for one cluster, allowing it to be renegotiated in a state a rolled
// back attempt already visited.
func (d *Driver) forgetClusterHistory(id int) {
	prefix := fmt.Sprintf("cluster:%d:", id)
	kept := d.State.PostponedCfgsHistory[:0]
	for _, h := range d.State.PostponedCfgsHistory {
		if !strings.HasPrefix(h, prefix) {
			kept = append(kept, h)
		}
	}
	d.State.PostponedCfgsHistory = kept
}

// collapseCluster resets every non-existing dependent of the cluster
// for recollection and removes the cluster itself; the dependents'
// next collection pass re-forms it. Dependency builds that were only
// ever required by the cluster's dependents are dropped too, so a
// retried collection that settles on a different alternative does not
// leave an orphaned build in the plan.
func (d *Driver) collapseCluster(id int) {
	cluster := d.State.Clusters.ByID(id)
	if cluster == nil {
		return
	}
	for dk, cd := range cluster.Dependents {
		if cd.Existing {
			continue
		}
		if bp := d.State.Builds.Find(dk); bp != nil {
			bp.resetCollection()
		}
	}
	for _, dk := range cluster.Dependencies {
		bp := d.State.Builds.Find(dk)
		if bp == nil || bp.Selected != nil || d.roots[dk] {
			continue
		}
		clusterOnly := true
		for rb := range bp.RequiredBy {
			if _, ok := cluster.Dependents[rb]; !ok {
				clusterOnly = false
				break
			}
		}
		if clusterOnly {
			d.State.Builds.Remove(dk)
		}
	}
	d.State.Clusters.remove(cluster)
}

// mergedClusterSnapshot returns a value copy of the cluster that now
// holds the given cluster's dependencies (itself if it survived the
// merge as the target, the absorbing cluster otherwise).
func (d *Driver) mergedClusterSnapshot(cluster *PostponedConfiguration) *PostponedConfiguration {
	for _, dep := range cluster.Dependencies {
		for _, c := range d.State.Clusters.All() {
			if c.FindDependency(dep) {
				return c.snapshotCopy()
			}
		}
	}
	return nil
}

// negotiateCluster runs one negotiation attempt. The dependents are
// collected first (a dependent re-queued for recollection replays its
// config clauses here, folding its prefer into the shared dependency
// configuration and possibly merging further clusters in, which raises
// the merge signals handled by negotiateClusters). The cluster's
// dependencies are then collected with that configuration applied, and
// finally every dependent's accept/require predicate is verified
// against the configuration as it stands. A checksum history guards
// against a negotiation that never converges.
func (d *Driver) negotiateCluster(cluster *PostponedConfiguration) error {
	checksum := d.clusterChecksum(cluster)
	for _, prior := range d.State.PostponedCfgsHistory {
		if prior == checksum {
			return &InvariantViolation{Detail: fmt.Sprintf("negotiation of cluster %d is not converging", cluster.ID)}
		}
	}
	d.State.PostponedCfgsHistory = append(d.State.PostponedCfgsHistory, checksum)

	for _, dependentKey := range dependentKeys(cluster) {
		if cluster.Dependents[dependentKey].Existing {
			continue
		}
		dbp := d.State.Builds.Find(dependentKey)
		if dbp == nil || dbp.Action != ActionBuild || dbp.FullyCollected() {
			continue
		}
		if err := d.Collector.CollectBuildPrerequisites(dependentKey, cluster.Depth, nil); err != nil {
			return err
		}
	}

	for _, depKey := range cluster.Dependencies {
		depBP := d.State.Builds.Find(depKey)
		if depBP == nil || depBP.Action != ActionBuild || depBP.FullyCollected() {
			continue
		}
		if err := d.Collector.CollectBuildPrerequisites(depKey, cluster.Depth, nil); err != nil {
			return err
		}
	}

	for depKey := range cluster.dependencySet() {
		depBP := d.State.Builds.Find(depKey)
		if depBP == nil || depBP.Skeleton == nil {
			continue
		}
		for dependentKey, cd := range cluster.Dependents {
			dbp := d.State.Builds.Find(dependentKey)
			if dbp == nil || dbp.Available == nil {
				continue
			}
			for _, pos := range cd.Positions {
				if pos.Position >= len(dbp.Available.Depends) {
					continue
				}
				clause := dbp.Available.Depends[pos.Position]
				ai := chosenAlternative(dbp, pos.Position)
				if ai < 0 || ai >= len(clause.Alternatives) {
					continue
				}
				alt := clause.Alternatives[ai]
				if !alt.HasConfigClause() {
					continue
				}
				if alt.Accept != "" {
					ok, err := depBP.Skeleton.EvaluateAccept(alt.Accept)
					if err != nil {
						return err
					}
					if !ok {
						return &UnacceptAlternative{Package: dbp.Available.Name, Version: versionOf(dbp), DependsIndex: pos.Position, AltIndex: ai}
					}
				}
				if alt.HasRequire {
					ok, err := depBP.Skeleton.EvaluateRequire(alt.Require)
					if err != nil {
						return err
					}
					if !ok {
						return &UnacceptAlternative{Package: dbp.Available.Name, Version: versionOf(dbp), DependsIndex: pos.Position, AltIndex: ai}
					}
				}
			}
		}
	}

	cluster.Negotiated = TristateTrue
	cluster.SetShadowCluster(cluster.snapshotCopy())
	return nil
}

// chosenAlternative returns the alternative index the dependent
// actually selected at the given depends position: from its
// materialized selection if collected that far, falling back to the
// selection recorded when it was last configured (existing dependents).
func chosenAlternative(dbp *BuildPackage, position int) int {
	if position < len(dbp.Alternatives) {
		return dbp.Alternatives[position]
	}
	if dbp.Selected != nil && position < len(dbp.Selected.SelectedAlternatives) {
		return dbp.Selected.SelectedAlternatives[position]
	}
	return -1
}

func versionOf(bp *BuildPackage) string {
	if bp == nil || bp.Available == nil {
		return ""
	}
	return bp.Available.Version.String()
}

func (c *PostponedConfiguration) dependencySet() map[PackageKey]bool {
	out := make(map[PackageKey]bool, len(c.Dependencies))
	for _, d := range c.Dependencies {
		out[d] = true
	}
	return out
}

func dependentKeys(cluster *PostponedConfiguration) []PackageKey {
	out := make([]PackageKey, 0, len(cluster.Dependents))
	for k := range cluster.Dependents {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func keySetKeys(set map[PackageKey]bool) []PackageKey {
	out := make([]PackageKey, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// clusterChecksum produces a stable fingerprint of one negotiation
// attempt: the dependency configurations plus the cluster's dependent
// positions and shadow. A restore-and-retry changes the shadow, so a
// legitimate retry never collides with the attempt it rolled back;
// only a genuinely recurring configuration-set repeats.
func (d *Driver) clusterChecksum(cluster *PostponedConfiguration) string {
	s := clusterConfigChecksum(d.State, cluster)
	s += "|dependents:"
	for _, dk := range dependentKeys(cluster) {
		cd := cluster.Dependents[dk]
		s += dk.String()
		if cd.Existing {
			s += "!"
		}
		for _, p := range cd.Positions {
			s += fmt.Sprintf(":%d", p.Position)
		}
		s += ";"
	}
	if cluster.ShadowCluster != nil {
		s += "|shadow:"
		for _, dep := range cluster.ShadowCluster.Dependencies {
			s += dep.String() + ";"
		}
	}
	return s
}

// clusterConfigChecksum is the dependency-configuration half of
// clusterChecksum, shared with the collector's up-negotiation check
// (a dependent whose prefer changes an already-negotiated cluster's
// checksum must raise RetryConfiguration).
func clusterConfigChecksum(state *State, cluster *PostponedConfiguration) string {
	s := fmt.Sprintf("cluster:%d:", cluster.ID)
	for _, dep := range cluster.Dependencies {
		bp := state.Builds.Find(dep)
		if bp != nil && bp.Skeleton != nil {
			s += dep.String() + "=" + bp.Skeleton.ConfigChecksum() + ";"
		}
	}
	return s
}

// detectBogusPostponedDependencyCycle clears out postponed-dependency
// entries that were postponed without ever being observed with a
// configuration applied served no purpose once collection has
// progressed past them, so they are dropped and their owning package
// is forced to recollect.
func (d *Driver) detectBogusPostponedDependencyCycle() error {
	removed := d.State.PostponedDeps.CancelBogus()
	for _, k := range removed {
		if bp := d.State.Builds.Find(k); bp != nil {
			bp.resetCollection()
		}
	}
	return nil
}

// dropBogusConfigVariables drops every configuration variable whose
// pinning dependent is no longer part of the resolved plan, so a stale
// preference cannot leak into the final configuration. A package that
// loses variables this way has its negotiated clusters un-negotiated,
// so the next pass renegotiates against the cleaned configuration.
func (d *Driver) dropBogusConfigVariables() {
	for _, key := range d.State.Builds.Keys() {
		bp := d.State.Builds.Find(key)
		if bp == nil || bp.Skeleton == nil {
			continue
		}
		var bogus []string
		for name, dependent := range bp.Skeleton.VariablesFromDependent() {
			if !d.dependentInPlan(dependent) {
				bogus = append(bogus, name)
			}
		}
		if len(bogus) == 0 {
			continue
		}
		sort.Strings(bogus)
		bp.Skeleton.DropVariables(bogus)
		d.State.Logger.Warn("dropping configuration variables of %s pinned by dependents no longer in the plan: %v", key, bogus)
		for _, cluster := range d.State.Clusters.All() {
			if cluster.Negotiated == TristateTrue && cluster.FindDependency(key) {
				cluster.Negotiated = TristateAbsent
			}
		}
	}
}

// dependentInPlan reports whether dependent still participates in the
// resolved plan: it carries an action of its own, or it remains an
// already-configured selected package.
func (d *Driver) dependentInPlan(dependent PackageKey) bool {
	if bp := d.State.Builds.Find(dependent); bp != nil && bp.Action != ActionNone {
		return true
	}
	return d.State.Selected.Find(dependent) != nil
}
