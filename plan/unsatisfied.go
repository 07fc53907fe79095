package plan

import "pkgsynth/version"

// UnsatisfiedDependent records one constraint violation deferred for
// diagnosis at the end of the run.
// Deferred because a later up/downgrade of the dependency or the
// dependent may still restore satisfaction before the run concludes.
type UnsatisfiedDependent struct {
	Dependent  PackageVersionKey
	Dependency PackageKey
	Constraint version.Constraint
	Actual     version.Version
}

// UnsatisfiedLedger accumulates UnsatisfiedDependent entries.
type UnsatisfiedLedger struct {
	entries []UnsatisfiedDependent
}

// NewUnsatisfiedLedger creates an empty ledger.
func NewUnsatisfiedLedger() *UnsatisfiedLedger {
	return &UnsatisfiedLedger{}
}

// Add appends an entry.
func (l *UnsatisfiedLedger) Add(e UnsatisfiedDependent) {
	l.entries = append(l.entries, e)
}

// Resolve removes every entry concerning dependency that is now
// satisfied by actual, called whenever a dependency's chosen version
// changes during collection.
func (l *UnsatisfiedLedger) Resolve(dependency PackageKey, actual version.Version) {
	kept := l.entries[:0]
	for _, e := range l.entries {
		if e.Dependency == dependency && version.Satisfies(actual, e.Constraint) {
			continue
		}
		kept = append(kept, e)
	}
	l.entries = kept
}

// All returns every still-outstanding entry, which the driver surfaces
// as an *UnsatisfiedDependentError if collection completes with any left.
func (l *UnsatisfiedLedger) All() []UnsatisfiedDependent {
	return append([]UnsatisfiedDependent(nil), l.entries...)
}

// Empty reports whether the ledger holds no entries.
func (l *UnsatisfiedLedger) Empty() bool {
	return len(l.entries) == 0
}

// Clone returns a deep copy for snapshotting.
func (l *UnsatisfiedLedger) Clone() *UnsatisfiedLedger {
	return &UnsatisfiedLedger{entries: append([]UnsatisfiedDependent(nil), l.entries...)}
}
