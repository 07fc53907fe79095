package plan

import "pkgsynth/version"

// DependentsCollector walks a package's existing dependents: whenever
// a package's version, system flag, or
// reconfigure-triggering state changes, every already-configured
// package that depends on it must be visited so an incompatible
// constraint surfaces as an UnsatisfiedDependent entry, and every
// dependent with no surviving action of its own picks up a bare
// reconfigure so its prerequisite list is rewritten on disk.
type DependentsCollector struct {
	State *State
}

// NewDependentsCollector creates a collector bound to state.
func NewDependentsCollector(state *State) *DependentsCollector {
	return &DependentsCollector{State: state}
}

// CollectDependents walks every existing (already-selected) dependent
// of key, starting from a changed build-package, and returns once the
// whole transitive closure of already-configured dependents has been
// visited. visited breaks cycles among already-configured packages,
// which the selected-package graph can contain even though the
// collector's own recursive-collection graph cannot.
func (c *DependentsCollector) CollectDependents(key PackageKey) error {
	return c.walk(key, make(map[PackageKey]bool))
}

func (c *DependentsCollector) walk(key PackageKey, visited map[PackageKey]bool) error {
	if visited[key] {
		return nil
	}
	visited[key] = true

	changed := c.State.Builds.Find(key)
	if changed == nil {
		return nil
	}
	actual, hasActual := changedVersion(changed)

	for _, dependentKey := range c.State.Selected.Dependents(key) {
		dependentSP := c.State.Selected.Find(dependentKey)
		if dependentSP == nil {
			continue
		}

		if constraint := dependentSP.Prerequisites[key]; constraint != nil && hasActual {
			if !version.Satisfies(actual, *constraint) {
				dependentVK := PackageVersionKey{
					Database:   dependentKey.Database,
					Name:       dependentKey.Name,
					Version:    dependentSP.Version,
					HasVersion: true,
				}
				c.State.Unsatisfied.Add(UnsatisfiedDependent{
					Dependent:  dependentVK,
					Dependency: key,
					Constraint: *constraint,
					Actual:     actual,
				})
			}
		}

		dbp := c.State.Builds.Enter(dependentKey)
		if dbp.Selected == nil {
			dbp.Selected = dependentSP
		}
		dbp.Flags |= FlagAdjustReconfigure
		if dbp.Action == ActionNone {
			dbp.Action = ActionAdjust
		}
		c.State.Builds.Collect(dependentKey, false)

		if err := c.walk(dependentKey, visited); err != nil {
			return err
		}
	}

	return nil
}

// changedVersion returns the version a build-package now resolves to
// (from its new Available choice, or its unchanged Selected one) and
// whether one could be determined at all — a drop has neither.
func changedVersion(bp *BuildPackage) (version.Version, bool) {
	switch {
	case bp.Available != nil:
		return bp.Available.Version, true
	case bp.Selected != nil:
		return bp.Selected.Version, true
	default:
		return version.Version{}, false
	}
}
