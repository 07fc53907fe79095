package plan

import (
	"errors"
	"fmt"
	"sort"
)

// ErrCycleDetected is the sentinel *CycleError wraps, for errors.Is
// checks against the ordering engine's failure mode.
var ErrCycleDetected = errors.New("circular dependency detected")

// CycleError reports that the ordering engine could not produce a
// total order because the dependency graph contains a cycle. Cycle is
// one concrete closed chain through it (first and last entries are the
// same key); CyclePackages lists every package left unordered.
type CycleError struct {
	TotalPackages   int
	OrderedPackages int
	Cycle           []PackageKey
	CyclePackages   []PackageKey
}

func (e *CycleError) Error() string {
	if len(e.Cycle) >= 2 {
		return fmt.Sprintf("dependency cycle detected: %s", cycleMessage(e.Cycle))
	}
	return fmt.Sprintf("cycle detected: only %d of %d packages ordered; remaining: %v",
		e.OrderedPackages, e.TotalPackages, e.CyclePackages)
}

func (e *CycleError) Unwrap() error { return ErrCycleDetected }

// Orderer computes the final topological build order over a BuildMap,
// using the same Kahn's-algorithm shape as a dependency-graph
// scheduler, adapted to work over PackageKey edges rather than
// pointer-linked packages.
type Orderer struct {
	State *State
}

// NewOrderer creates an orderer bound to state.
func NewOrderer(state *State) *Orderer {
	return &Orderer{State: state}
}

// edges returns, for every action-bearing build-package, the set of
// keys it depends on (i.e. must be ordered before it).
func (o *Orderer) edges() (map[PackageKey][]PackageKey, map[PackageKey]bool) {
	dependsOn := make(map[PackageKey][]PackageKey)
	nodes := make(map[PackageKey]bool)

	for _, key := range o.State.Builds.Keys() {
		bp := o.State.Builds.Find(key)
		if bp == nil || bp.Action == ActionNone {
			continue
		}
		nodes[key] = true
		seen := make(map[PackageKey]bool)
		for _, dep := range bp.Dependencies {
			for _, dk := range dep.Keys {
				if seen[dk] {
					continue
				}
				dbp := o.State.Builds.Find(dk)
				if dbp == nil || dbp.Action == ActionNone {
					continue // an unbuilt/unchanged prerequisite imposes no edge
				}
				seen[dk] = true
				dependsOn[key] = append(dependsOn[key], dk)
			}
		}
	}
	return dependsOn, nodes
}

// invert turns dependsOn into a dependedOnBy (fan-out) map, used by
// Kahn's algorithm to discover which nodes become ready once a given
// node is placed.
func invert(dependsOn map[PackageKey][]PackageKey) map[PackageKey][]PackageKey {
	out := make(map[PackageKey][]PackageKey)
	for k, deps := range dependsOn {
		for _, d := range deps {
			out[d] = append(out[d], k)
		}
	}
	return out
}

// Order computes the final build order: dependencies before
// dependents, with a deterministic tie-break among simultaneously
// ready packages (fan-out count descending, then key ascending), a
// "prioritize high-fanout packages" heuristic repurposed from a
// worker-scheduling concern into a plain determinism guarantee since
// this planner does not itself schedule parallel work.
func (o *Orderer) Order() ([]PackageKey, error) {
	dependsOn, nodes := o.edges()
	dependedOnBy := invert(dependsOn)

	inDegree := make(map[PackageKey]int, len(nodes))
	for n := range nodes {
		inDegree[n] = len(dependsOn[n])
	}

	fanout := func(k PackageKey) int { return len(dependedOnBy[k]) }

	var queue []PackageKey
	for n := range nodes {
		if inDegree[n] == 0 {
			queue = append(queue, n)
		}
	}
	sortByPriority(queue, fanout)

	result := make([]PackageKey, 0, len(nodes))
	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]
		result = append(result, k)

		var ready []PackageKey
		for _, dependent := range dependedOnBy[k] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
		if len(ready) > 0 {
			sortByPriority(ready, fanout)
			queue = append(queue, ready...)
		}
	}

	if len(result) != len(nodes) {
		var remaining []PackageKey
		for n, deg := range inDegree {
			if deg > 0 {
				remaining = append(remaining, n)
			}
		}
		sort.Slice(remaining, func(i, j int) bool { return remaining[i].Less(remaining[j]) })
		return result, &CycleError{
			TotalPackages:   len(nodes),
			OrderedPackages: len(result),
			Cycle:           findCycle(dependsOn, remaining),
			CyclePackages:   remaining,
		}
	}

	return result, nil
}

// findCycle walks dependsOn restricted to the unordered remainder,
// starting from its smallest key and always following the smallest
// unordered dependency, until a node repeats; the returned chain is
// closed (first and last entries are the same key). Every remaining
// node still has an unordered dependency, so the walk cannot dead-end.
func findCycle(dependsOn map[PackageKey][]PackageKey, remaining []PackageKey) []PackageKey {
	if len(remaining) == 0 {
		return nil
	}
	inRemainder := make(map[PackageKey]bool, len(remaining))
	for _, k := range remaining {
		inRemainder[k] = true
	}

	index := make(map[PackageKey]int)
	var path []PackageKey
	cur := remaining[0]
	for {
		if at, seen := index[cur]; seen {
			return append(path[at:], cur)
		}
		index[cur] = len(path)
		path = append(path, cur)

		var next *PackageKey
		for _, dep := range dependsOn[cur] {
			if !inRemainder[dep] {
				continue
			}
			if next == nil || dep.Less(*next) {
				d := dep
				next = &d
			}
		}
		if next == nil {
			return nil
		}
		cur = *next
	}
}

func sortByPriority(queue []PackageKey, fanout func(PackageKey) int) {
	sort.Slice(queue, func(i, j int) bool {
		fi, fj := fanout(queue[i]), fanout(queue[j])
		if fi != fj {
			return fi > fj
		}
		return queue[i].Less(queue[j])
	})
}

// Apply computes the final order and, on success, installs it into
// the build map via SetOrder so BuildMap.Order() reflects the
// topologically-sorted result rather than raw collection order.
func (o *Orderer) Apply() error {
	order, err := o.Order()
	if err != nil {
		return err
	}
	o.State.Builds.SetOrder(order)
	return nil
}
