package plan

// PostponedDependency is an entry in the postponed-dependencies table:
// a dependency whose recursive collection was deferred either without
// (WoutConfig) or with (WithConfig) a configuration applied.
type PostponedDependency struct {
	WoutConfig bool
	WithConfig bool
}

// Bogus reports whether this entry was recorded wout_config only and
// never observed with config — meaning deferring it served no
// purpose.
func (p PostponedDependency) Bogus() bool {
	return p.WoutConfig && !p.WithConfig
}

// PostponedDependenciesTable tracks dependencies whose collection was
// deferred because they could only be resolved in reused-only mode,
// distinguishing bogus entries (never seen with a configuration
// applied) from genuine ones.
type PostponedDependenciesTable struct {
	entries map[PackageKey]*PostponedDependency
}

// NewPostponedDependenciesTable creates an empty table.
func NewPostponedDependenciesTable() *PostponedDependenciesTable {
	return &PostponedDependenciesTable{entries: make(map[PackageKey]*PostponedDependency)}
}

// RecordWoutConfig marks key as postponed without a configuration
// applied.
func (t *PostponedDependenciesTable) RecordWoutConfig(key PackageKey) {
	e := t.entries[key]
	if e == nil {
		e = &PostponedDependency{}
		t.entries[key] = e
	}
	e.WoutConfig = true
}

// RecordWithConfig marks key as having been observed with a
// configuration applied, clearing its bogus status.
func (t *PostponedDependenciesTable) RecordWithConfig(key PackageKey) {
	e := t.entries[key]
	if e == nil {
		e = &PostponedDependency{}
		t.entries[key] = e
	}
	e.WithConfig = true
}

// Find returns the entry for key, or nil.
func (t *PostponedDependenciesTable) Find(key PackageKey) *PostponedDependency {
	return t.entries[key]
}

// Remove deletes the entry for key (e.g. once it has been fully
// collected).
func (t *PostponedDependenciesTable) Remove(key PackageKey) {
	delete(t.entries, key)
}

// Empty reports whether the table holds no entries — checked once
// CancelBogus has removed every bogus one, to confirm every
// postponed dependency was genuinely resolved.
func (t *PostponedDependenciesTable) Empty() bool {
	return len(t.entries) == 0
}

// CancelBogus removes every bogus entry, returning the keys removed.
// The driver's main loop forces the owning packages to recollect
// whenever this returns a non-empty list.
func (t *PostponedDependenciesTable) CancelBogus() []PackageKey {
	var removed []PackageKey
	for k, e := range t.entries {
		if e.Bogus() {
			delete(t.entries, k)
			removed = append(removed, k)
		}
	}
	return removed
}

// Clone returns a deep copy for snapshotting.
func (t *PostponedDependenciesTable) Clone() *PostponedDependenciesTable {
	out := NewPostponedDependenciesTable()
	for k, v := range t.entries {
		cp := *v
		out.entries[k] = &cp
	}
	return out
}

// Keys returns every key currently recorded, in no particular order;
// callers that need determinism should sort using PackageKey.Less.
func (t *PostponedDependenciesTable) Keys() []PackageKey {
	out := make([]PackageKey, 0, len(t.entries))
	for k := range t.entries {
		out = append(out, k)
	}
	return out
}
