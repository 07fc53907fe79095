package service

import (
	"context"
	"fmt"
	"strings"

	"pkgsynth/log"
	"pkgsynth/plan"
	"pkgsynth/source"
	"pkgsynth/version"
)

// Plan is the service entry point behind `pkgsynth pkg-build`: it
// optionally refreshes repository metadata, seeds the planner's
// available-package index and selected-package store, enters the
// user's root requests, and runs the collector driver, dependents
// collector, and ordering engine to a fixed point.
//
// It does not perform any checkout or build-system invocation — those
// are driven separately
// by the caller (see Checkout) once it has decided, from PlanResult,
// which build actions to materialize.
func (s *Service) Plan(opts PlanOptions) (*PlanResult, error) {
	if len(opts.Roots) == 0 {
		return nil, fmt.Errorf("no packages requested")
	}

	database := opts.Database
	if database == "" {
		database = "host"
	}

	available := plan.NewAvailableIndex()
	for _, loc := range opts.RepositoryLocations {
		fragments, err := s.fetch.FetchRepository(context.Background(), loc, false, source.ReasonUserRequested)
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", loc, err)
		}
		s.logger.Info("fetched %s: %d fragments", loc, len(fragments))
		for _, frag := range fragments {
			for _, ap := range frag.Packages {
				available.Add(ap)
			}
		}
	}

	selected, err := s.loadSelectedStore(database)
	if err != nil {
		return nil, fmt.Errorf("loading selected packages: %w", err)
	}

	state := plan.NewState(available, selected)
	state.Logger = s.logger
	if s.cfg.Verbose {
		state.Logger = log.StdoutLogger{}
	}

	roots := make([]plan.PackageKey, 0, len(opts.Roots))
	for _, request := range opts.Roots {
		key, err := s.enterRoot(state, database, request, opts.Upgrade)
		if err != nil {
			return nil, err
		}
		roots = append(roots, key)
	}

	driver := plan.NewDriver(state)
	if err := driver.Run(roots); err != nil {
		return nil, err
	}

	dependents := plan.NewDependentsCollector(state)
	for _, key := range roots {
		if err := dependents.CollectDependents(key); err != nil {
			return nil, err
		}
	}

	if err := plan.NewOrderer(state).Apply(); err != nil {
		return nil, err
	}

	ordered := make([]*plan.BuildPackage, 0, len(state.Builds.Order()))
	for _, key := range state.Builds.Order() {
		if bp := state.Builds.Find(key); bp != nil {
			ordered = append(ordered, bp)
		}
	}

	if err := s.persistSelected(state); err != nil {
		return nil, fmt.Errorf("persisting planner state: %w", err)
	}

	return &PlanResult{State: state, Ordered: ordered}, nil
}

// enterRoot resolves one "name" or "name@version" root request against
// the available index and enters a build-package for it, matching the
// user-requested-build entry point the recursive collector expects to
// find already in the map before CollectBuildPrerequisites walks it.
func (s *Service) enterRoot(state *plan.State, database, request string, upgrade bool) (plan.PackageKey, error) {
	name, pinned, hasPin := strings.Cut(request, "@")
	key := plan.PackageKey{Database: database, Name: name}

	var ap *plan.AvailablePackage
	if hasPin {
		v, err := version.Parse(pinned)
		if err != nil {
			return key, &plan.InputError{Location: request, Err: err}
		}
		ap = state.Available.Exact(name, v)
		if ap == nil {
			return key, &plan.ResolutionFailure{Message: fmt.Sprintf("no available package %s at version %s", name, pinned)}
		}
	} else {
		ap = state.Available.Best(name, version.Any())
		if ap == nil {
			return key, &plan.ResolutionFailure{Message: fmt.Sprintf("unknown package %s", name)}
		}
	}

	bp := state.Builds.Enter(key)
	bp.Action = plan.ActionBuild
	bp.Database = database
	bp.Available = ap
	if !upgrade {
		if existing := state.Selected.Find(key); existing != nil {
			if pinned := state.Available.Exact(name, existing.Version); pinned != nil {
				bp.Available = pinned
			}
		}
	}
	state.Builds.Collect(key, false)

	return key, nil
}

// loadSelectedStore seeds a SelectedStore from every package recorded
// for database in the state database.
func (s *Service) loadSelectedStore(database string) (*plan.SelectedStore, error) {
	store := plan.NewSelectedStore()

	keys, err := s.db.ListSelected()
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		if database != "" && key.Database != database {
			continue
		}
		sp, err := s.db.GetSelected(key)
		if err != nil {
			return nil, err
		}
		if sp != nil {
			store.Put(key, sp)
		}
	}
	return store, nil
}

// persistSelected writes every build-package in state's map that has a
// build action and an available package back to the state database as
// a selected package,
// recording its prerequisite edges and configuration alongside it.
func (s *Service) persistSelected(state *plan.State) error {
	for _, key := range state.Builds.Keys() {
		bp := state.Builds.Find(key)
		if bp == nil || bp.Action != plan.ActionBuild || bp.Available == nil {
			continue
		}

		sp := &plan.SelectedPackage{
			Name:                 bp.Available.Name,
			Version:              bp.Available.Version,
			State:                plan.StateConfigured,
			HoldPackage:          bp.HoldPackage,
			HoldVersion:          bp.HoldVersion,
			SelectedAlternatives: bp.Alternatives,
		}
		if bp.System {
			sp.Substate = plan.SubstateSystem
		}
		if bp.Skeleton != nil {
			sp.ConfigValues = bp.Skeleton.Values()
			sp.ConfigChecksum = bp.Skeleton.ConfigChecksum()
		}

		if err := s.db.PutSelected(key, sp); err != nil {
			return err
		}

		prereqs := map[plan.PackageKey]*version.Constraint{}
		for _, dep := range bp.Dependencies {
			var alt plan.DependencyAlternative
			if dep.DependsIdx < len(bp.Available.Depends) {
				alts := bp.Available.Depends[dep.DependsIdx].Alternatives
				if dep.AltIdx < len(alts) {
					alt = alts[dep.AltIdx]
				}
			}
			for i, dk := range dep.Keys {
				if i < len(alt.Dependencies) && alt.Dependencies[i].HasConstraint {
					c := alt.Dependencies[i].Constraint
					prereqs[dk] = &c
				} else {
					prereqs[dk] = nil
				}
			}
		}
		if err := s.db.PutPrerequisites(key, prereqs); err != nil {
			return err
		}
	}
	return nil
}
