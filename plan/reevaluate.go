package plan

// Pre-reevaluation of existing dependents: when a dependency lands in a
// postponed-configuration cluster, every already-configured package that
// depends on it may carry a config clause for it too. Such a dependent
// is replayed read-only up to the first prefer/require clause whose
// dependencies intersect the cluster. A dependent whose replay matches
// its recorded selection joins the cluster as an existing dependent so
// negotiation verifies its accept/require; one that deviated from its
// configured state is scheduled for full recollection instead.

// reevaluateExistingDependents scans the configured dependents of the
// dependencies just added to cluster. If deviated dependents are found
// while the cluster is mid-negotiation, the negotiation frame must
// restart via RecollectExistingDependents; outside negotiation they are
// scheduled for recollection directly.
func (c *Collector) reevaluateExistingDependents(cluster *PostponedConfiguration, depKeys []PackageKey) error {
	var deviated []PackageKey
	for _, depKey := range depKeys {
		for _, edk := range c.State.Selected.Dependents(depKey) {
			if cd, ok := cluster.Dependents[edk]; ok && cd.Existing {
				continue
			}
			if bp := c.State.Builds.Find(edk); bp != nil && bp.Action != ActionNone {
				continue // already carries an action of its own
			}
			sp := c.State.Selected.Find(edk)
			if sp == nil {
				continue
			}
			ap := c.State.Available.Exact(sp.Name, sp.Version)
			if ap == nil {
				continue // no manifest to replay against
			}
			di, ai, ok := c.reevaluationPosition(edk, ap, cluster)
			if !ok {
				continue // no config clause of this dependent touches the cluster
			}
			if c.deviatedFromSelection(edk, sp, ap, di, ai) {
				deviated = append(deviated, edk)
				continue
			}
			keys := c.alternativeKeys(edk, ap.Depends[di].Alternatives[ai])
			c.State.Clusters.Add(edk, true, di, keys, false)
			ebp := c.State.Builds.Enter(edk)
			if ebp.Selected == nil {
				ebp.Selected = sp
			}
			if ebp.Available == nil {
				ebp.Available = ap
			}
		}
	}
	if len(deviated) == 0 {
		return nil
	}
	if cluster.Negotiated == TristateFalse && cluster.Depth != 0 {
		return &RecollectExistingDependents{Depth: cluster.Depth, Dependents: deviated}
	}
	c.ScheduleRecollection(deviated)
	return nil
}

// reevaluationPosition replays dependent's depends clauses in order and
// returns the first (clause, alternative) whose config clause names a
// dependency the cluster already covers. The walk is read-only: no
// skeleton state is touched.
func (c *Collector) reevaluationPosition(edk PackageKey, ap *AvailablePackage, cluster *PostponedConfiguration) (int, int, bool) {
	for di, clause := range ap.Depends {
		for ai, alt := range clause.Alternatives {
			if !alt.HasConfigClause() {
				continue
			}
			for _, dep := range alt.Dependencies {
				db := c.State.DBPolicy.ResolveDatabase(edk.Database, dep)
				if cluster.FindDependency(PackageKey{Database: db, Name: dep.Name}) {
					return di, ai, true
				}
			}
		}
	}
	return 0, 0, false
}

// deviatedFromSelection reports whether the dependent's recorded
// selection no longer matches what the replay would choose: a different
// alternative was recorded for the clause, or the alternative's
// dependencies are not all among the dependent's configured
// prerequisites.
func (c *Collector) deviatedFromSelection(edk PackageKey, sp *SelectedPackage, ap *AvailablePackage, di, ai int) bool {
	if di < len(sp.SelectedAlternatives) && sp.SelectedAlternatives[di] != ai {
		return true
	}
	for _, dep := range ap.Depends[di].Alternatives[ai].Dependencies {
		db := c.State.DBPolicy.ResolveDatabase(edk.Database, dep)
		if _, ok := sp.Prerequisites[PackageKey{Database: db, Name: dep.Name}]; !ok {
			return true
		}
	}
	return false
}

func (c *Collector) alternativeKeys(edk PackageKey, alt DependencyAlternative) []PackageKey {
	keys := make([]PackageKey, 0, len(alt.Dependencies))
	for _, dep := range alt.Dependencies {
		db := c.State.DBPolicy.ResolveDatabase(edk.Database, dep)
		keys = append(keys, PackageKey{Database: db, Name: dep.Name})
	}
	return keys
}

// ScheduleRecollection turns each deviated existing dependent into a
// build_recollect-flagged build and queues it on postponed_recs; the
// driver's next pass re-collects it from its first depends clause.
func (c *Collector) ScheduleRecollection(dependents []PackageKey) {
	for _, edk := range dependents {
		sp := c.State.Selected.Find(edk)
		if sp == nil {
			continue
		}
		ap := c.State.Available.Exact(sp.Name, sp.Version)
		if ap == nil {
			continue
		}
		bp := c.State.Builds.Enter(edk)
		bp.Selected = sp
		bp.Action = ActionBuild
		bp.Available = ap
		bp.Flags |= FlagBuildRecollect
		bp.resetCollection()
		c.State.PostponedRecs[edk] = true
		c.State.Builds.Collect(edk, false)
	}
}
