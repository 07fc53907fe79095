package plan

// Tristate models PostponedConfiguration.Negotiated: absent (not yet
// reached), false (being negotiated), true (done).
type Tristate int

const (
	TristateAbsent Tristate = iota
	TristateFalse
	TristateTrue
)

// DependentPosition is one `(position, dependencies, has_alternative)`
// entry recorded against a dependent inside a cluster.
type DependentPosition struct {
	Position       int
	Dependencies   []PackageKey
	HasAlternative bool
}

// ClusterDependent is the per-dependent record inside a cluster.
type ClusterDependent struct {
	Existing  bool
	Positions []DependentPosition
}

// PostponedConfiguration is one negotiation cluster.
type PostponedConfiguration struct {
	ID         int
	Depth      int
	Negotiated Tristate

	Dependents   map[PackageKey]*ClusterDependent
	Dependencies []PackageKey

	ShadowCluster *PostponedConfiguration
	MergedIDs     []int

	DependencyConfigurations map[PackageKey]map[string]string
}

func newCluster(id int) *PostponedConfiguration {
	return &PostponedConfiguration{
		ID:                       id,
		Dependents:               make(map[PackageKey]*ClusterDependent),
		DependencyConfigurations: make(map[PackageKey]map[string]string),
	}
}

func (c *PostponedConfiguration) hasDependency(k PackageKey) bool {
	for _, d := range c.Dependencies {
		if d == k {
			return true
		}
	}
	return false
}

func (c *PostponedConfiguration) addDependencyOnce(k PackageKey) {
	if !c.hasDependency(k) {
		c.Dependencies = append(c.Dependencies, k)
	}
}

// FindDependency reports whether k is one of this cluster's
// dependencies.
func (c *PostponedConfiguration) FindDependency(k PackageKey) bool {
	return c.hasDependency(k)
}

// IsShadowCluster reports whether x is (by identity) this cluster's
// shadow snapshot.
func (c *PostponedConfiguration) IsShadowCluster(x *PostponedConfiguration) bool {
	return c.ShadowCluster != nil && c.ShadowCluster == x
}

// SetShadowCluster records snapshot as this cluster's shadow, used by
// the merge-cycle detector. Only meaningful once Negotiated has left
// TristateAbsent at least once.
func (c *PostponedConfiguration) SetShadowCluster(snapshot *PostponedConfiguration) {
	c.ShadowCluster = snapshot
}

// ContainsInShadowCluster reports whether the shadow snapshot recorded
// dependent at the given position — used by Add's case 3 to prefer a
// shadow-based merge.
func (c *PostponedConfiguration) ContainsInShadowCluster(dependent PackageKey, position int) bool {
	if c.ShadowCluster == nil {
		return false
	}
	cd, ok := c.ShadowCluster.Dependents[dependent]
	if !ok {
		return false
	}
	for _, p := range cd.Positions {
		if p.Position == position {
			return true
		}
	}
	return false
}

// snapshotCopy produces a value copy of the cluster suitable for use
// as a ShadowCluster (it must not alias the live cluster's maps/slices).
func (c *PostponedConfiguration) snapshotCopy() *PostponedConfiguration {
	cp := newCluster(c.ID)
	cp.Depth = c.Depth
	cp.Negotiated = c.Negotiated
	cp.Dependencies = append([]PackageKey(nil), c.Dependencies...)
	cp.MergedIDs = append([]int(nil), c.MergedIDs...)
	for k, d := range c.Dependents {
		nd := &ClusterDependent{Existing: d.Existing}
		for _, p := range d.Positions {
			nd.Positions = append(nd.Positions, DependentPosition{
				Position:       p.Position,
				Dependencies:   append([]PackageKey(nil), p.Dependencies...),
				HasAlternative: p.HasAlternative,
			})
		}
		cp.Dependents[k] = nd
	}
	for k, v := range c.DependencyConfigurations {
		vv := make(map[string]string, len(v))
		for kk, vvv := range v {
			vv[kk] = vvv
		}
		cp.DependencyConfigurations[k] = vv
	}
	return cp
}

// merge unions dependents and dependencies of other into c; the
// resulting depth is the minimum non-zero depth of the two. other's id is recorded in MergedIDs for audit.
func (c *PostponedConfiguration) merge(other *PostponedConfiguration) {
	for k, od := range other.Dependents {
		cd, ok := c.Dependents[k]
		if !ok {
			cd = &ClusterDependent{Existing: od.Existing}
			c.Dependents[k] = cd
		}
		cd.Existing = cd.Existing || od.Existing
	posLoop:
		for _, op := range od.Positions {
			for _, ep := range cd.Positions {
				if ep.Position == op.Position {
					continue posLoop
				}
			}
			cd.Positions = append(cd.Positions, op)
		}
	}
	for _, dep := range other.Dependencies {
		c.addDependencyOnce(dep)
	}
	c.Depth = minNonZeroDepth(c.Depth, other.Depth)
	c.MergedIDs = append(c.MergedIDs, other.ID)
	c.MergedIDs = append(c.MergedIDs, other.MergedIDs...)
}

func minNonZeroDepth(a, b int) int {
	if a == 0 {
		return b
	}
	if b == 0 {
		return a
	}
	if a < b {
		return a
	}
	return b
}

// ClusterSet is the registry of all postponed-configuration clusters
// for one collection run.
type ClusterSet struct {
	clusters []*PostponedConfiguration
	nextID   int
}

// NewClusterSet creates an empty registry.
func NewClusterSet() *ClusterSet {
	return &ClusterSet{}
}

// All returns every cluster, in creation order (oldest first). Add's
// case 3 keeps the merge result in the oldest intersecting cluster's
// slot, unless a shadow-predicted target is preferred, in which case
// the result keeps that cluster's slot.
func (cs *ClusterSet) All() []*PostponedConfiguration {
	return cs.clusters
}

func (cs *ClusterSet) intersecting(dependencies []PackageKey) []*PostponedConfiguration {
	var out []*PostponedConfiguration
	for _, c := range cs.clusters {
		for _, d := range dependencies {
			if c.hasDependency(d) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// Add implements the three cases a dependent's config-clause position
// can fall into against the existing cluster set: starting a brand
// new cluster, joining the one cluster that already shares a
// dependency with it, or merging several clusters that each share a
// different one of its dependencies. It returns the cluster the entry
// ended up in and whether the call changed cluster state (used by the
// driver's termination check).
func (cs *ClusterSet) Add(dependent PackageKey, existing bool, position int, dependencies []PackageKey, hasAlternative bool) (*PostponedConfiguration, bool) {
	target, changed, _ := cs.add(dependent, existing, position, dependencies, hasAlternative)
	return target, changed
}

// add is Add's body; it additionally returns the clusters case 3 folded
// away, which the collector inspects to detect a merge that invalidates
// a negotiation already in progress.
func (cs *ClusterSet) add(dependent PackageKey, existing bool, position int, dependencies []PackageKey, hasAlternative bool) (*PostponedConfiguration, bool, []*PostponedConfiguration) {
	hits := cs.intersecting(dependencies)

	var target *PostponedConfiguration
	var absorbed []*PostponedConfiguration
	changed := false

	switch {
	case len(hits) == 0:
		// Case 1: new cluster.
		cs.nextID++
		target = newCluster(cs.nextID)
		target.Dependencies = append(target.Dependencies, dedupeKeys(dependencies)...)
		cs.clusters = append(cs.clusters, target)
		changed = true

	case len(hits) == 1:
		// Case 2: insert into the (only) intersecting cluster.
		target = hits[0]
		for _, d := range dependencies {
			if !target.hasDependency(d) {
				target.addDependencyOnce(d)
				changed = true
			}
		}

	default:
		// Case 3: merge multiple intersecting clusters. Prefer merging
		// into whichever hit cluster's shadow already contains this
		// dependent at this position — that cluster survives as the
		// merge target, matching "preferring shadow-based merges".
		target = hits[0]
		for _, h := range hits {
			if h.ContainsInShadowCluster(dependent, position) {
				target = h
				break
			}
		}
		for _, h := range hits {
			if h == target {
				continue
			}
			target.merge(h)
			cs.remove(h)
			absorbed = append(absorbed, h)
		}
		for _, d := range dependencies {
			target.addDependencyOnce(d)
		}
		changed = true
	}

	cd, ok := target.Dependents[dependent]
	if !ok {
		cd = &ClusterDependent{Existing: existing}
		target.Dependents[dependent] = cd
		changed = true
	}
	for _, p := range cd.Positions {
		if p.Position == position {
			// Append-only invariant: positions are never
			// rewritten once recorded.
			return target, changed, absorbed
		}
	}
	cd.Positions = append(cd.Positions, DependentPosition{
		Position:       position,
		Dependencies:   append([]PackageKey(nil), dependencies...),
		HasAlternative: hasAlternative,
	})
	changed = true

	return target, changed, absorbed
}

func dedupeKeys(in []PackageKey) []PackageKey {
	var out []PackageKey
	for _, k := range in {
		dup := false
		for _, o := range out {
			if o == k {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, k)
		}
	}
	return out
}

func (cs *ClusterSet) remove(target *PostponedConfiguration) {
	for i, c := range cs.clusters {
		if c == target {
			cs.clusters = append(cs.clusters[:i], cs.clusters[i+1:]...)
			return
		}
	}
}

// NonNegotiated returns every cluster whose Negotiated has not reached
// TristateTrue, in creation order, for the driver's main loop to visit.
func (cs *ClusterSet) NonNegotiated() []*PostponedConfiguration {
	var out []*PostponedConfiguration
	for _, c := range cs.clusters {
		if c.Negotiated != TristateTrue {
			out = append(out, c)
		}
	}
	return out
}

// AllNegotiated reports whether every cluster has finished negotiation.
func (cs *ClusterSet) AllNegotiated() bool {
	for _, c := range cs.clusters {
		if c.Negotiated != TristateTrue {
			return false
		}
	}
	return true
}

// ByID returns the cluster with the given id, or nil. IDs survive
// snapshot restores, unlike cluster pointers, so the driver re-finds a
// cluster by id after rolling the state back.
func (cs *ClusterSet) ByID(id int) *PostponedConfiguration {
	for _, c := range cs.clusters {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// SameDependencies reports whether c and other cover exactly the same
// dependency set. The merge-cycle detector uses this to recognize that
// a force-merge has already been tried once (the shadow covers the same
// dependencies) and did not stick.
func (c *PostponedConfiguration) SameDependencies(other *PostponedConfiguration) bool {
	if other == nil || len(c.Dependencies) != len(other.Dependencies) {
		return false
	}
	for _, d := range c.Dependencies {
		if !other.hasDependency(d) {
			return false
		}
	}
	return true
}

// ClusterAt returns the cluster with the given depth currently on the
// negotiation stack, used to route RetryConfiguration/MergeConfiguration
// exceptions to the correct frame.
func (cs *ClusterSet) ClusterAt(depth int) *PostponedConfiguration {
	for _, c := range cs.clusters {
		if c.Depth == depth {
			return c
		}
	}
	return nil
}

// Clone returns a deep copy of the entire cluster set for snapshotting.
func (cs *ClusterSet) Clone() *ClusterSet {
	out := &ClusterSet{nextID: cs.nextID}
	for _, c := range cs.clusters {
		out.clusters = append(out.clusters, c.snapshotCopy())
	}
	for i, c := range cs.clusters {
		if c.ShadowCluster != nil {
			out.clusters[i].ShadowCluster = c.ShadowCluster.snapshotCopy()
		}
	}
	return out
}
