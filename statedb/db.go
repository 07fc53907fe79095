// Package statedb persists one configuration database's planner state
// to a bbolt file: the selected packages it has already configured,
// their prerequisite edges and constraints, their configuration
// variable blobs and checksums, and an append-only audit trail of
// replaced-version and postponed-dependency decisions for `pkgsynth
// status` to report on.
package statedb

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"pkgsynth/plan"
	"pkgsynth/version"
)

// Bucket names for the bbolt database.
const (
	BucketSelected      = "selected"
	BucketPrerequisites = "prerequisites"
	BucketConfig        = "config"
	BucketAudit         = "audit"
)

// DB wraps a bbolt database holding one configuration directory's
// persisted planner state.
type DB struct {
	db   *bolt.DB
	path string
}

// OpenDB opens or creates a bbolt database at path, initializing the
// four buckets described in the package doc if they don't exist yet.
// The file is opened with 0600 permissions, matching the lineage's own
// build database.
func OpenDB(path string) (*DB, error) {
	bdb, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, &DatabaseError{Op: "open", Err: err}
	}

	err = bdb.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{BucketSelected, BucketPrerequisites, BucketConfig, BucketAudit} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return &DatabaseError{Op: "create bucket", Bucket: name, Err: err}
			}
		}
		return nil
	})
	if err != nil {
		bdb.Close()
		return nil, err
	}

	return &DB{db: bdb, path: path}, nil
}

// Close closes the database, flushing pending writes.
func (db *DB) Close() error {
	if db.db == nil {
		return nil
	}
	return db.db.Close()
}

func selectedKey(key plan.PackageKey) []byte {
	return []byte(key.String())
}

// selectedRecord is the JSON-on-disk shape of a plan.SelectedPackage.
// Prerequisites live in their own bucket (selectedRecord carries none)
// so a caller who only wants package metadata doesn't pay to decode
// every constraint edge.
type selectedRecord struct {
	Name                 string `json:"name"`
	Version              string `json:"version"`
	State                int    `json:"state"`
	Substate             int    `json:"substate"`
	HoldPackage          bool   `json:"hold_package"`
	HoldVersion          bool   `json:"hold_version"`
	SourceRoot           string `json:"source_root"`
	OutputRoot           string `json:"output_root"`
	SelectedAlternatives []int  `json:"selected_alternatives,omitempty"`
}

// PutSelected persists sp under key, overwriting any prior record.
func (db *DB) PutSelected(key plan.PackageKey, sp *plan.SelectedPackage) error {
	rec := selectedRecord{
		Name:                 sp.Name,
		Version:              sp.Version.String(),
		State:                int(sp.State),
		Substate:             int(sp.Substate),
		HoldPackage:          sp.HoldPackage,
		HoldVersion:          sp.HoldVersion,
		SourceRoot:           sp.SourceRoot,
		OutputRoot:           sp.OutputRoot,
		SelectedAlternatives: sp.SelectedAlternatives,
	}
	data, err := json.Marshal(&rec)
	if err != nil {
		return &RecordError{Op: "marshal", Key: key.String(), Err: err}
	}

	err = db.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketSelected))
		if bucket == nil {
			return &DatabaseError{Op: "get bucket", Bucket: BucketSelected, Err: ErrBucketNotFound}
		}
		return bucket.Put(selectedKey(key), data)
	})
	if err != nil {
		return &RecordError{Op: "put", Key: key.String(), Err: err}
	}
	return nil
}

// GetSelected retrieves the selected package at key, joining in its
// prerequisites and configuration blob from their own buckets. Returns
// nil, nil if no record exists.
func (db *DB) GetSelected(key plan.PackageKey) (*plan.SelectedPackage, error) {
	var sp *plan.SelectedPackage

	err := db.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketSelected))
		if bucket == nil {
			return &DatabaseError{Op: "get bucket", Bucket: BucketSelected, Err: ErrBucketNotFound}
		}
		data := bucket.Get(selectedKey(key))
		if data == nil {
			return nil
		}

		var rec selectedRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return &RecordError{Op: "unmarshal", Key: key.String(), Err: err}
		}
		v, err := version.Parse(rec.Version)
		if err != nil {
			return &RecordError{Op: "parse version", Key: key.String(), Err: err}
		}

		prereqs, err := prerequisitesLocked(tx, key)
		if err != nil {
			return err
		}
		values, checksum, err := configLocked(tx, key)
		if err != nil {
			return err
		}

		sp = &plan.SelectedPackage{
			Name:                 rec.Name,
			Version:              v,
			State:                plan.SelectedState(rec.State),
			Substate:             plan.SelectedSubstate(rec.Substate),
			HoldPackage:          rec.HoldPackage,
			HoldVersion:          rec.HoldVersion,
			SourceRoot:           rec.SourceRoot,
			OutputRoot:           rec.OutputRoot,
			Prerequisites:        prereqs,
			ConfigValues:         values,
			ConfigChecksum:       checksum,
			SelectedAlternatives: rec.SelectedAlternatives,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sp, nil
}

// DeleteSelected removes the record at key from the selected,
// prerequisites and config buckets (the audit trail is kept), used when
// a package is dropped from the plan and purged from disk.
func (db *DB) DeleteSelected(key plan.PackageKey) error {
	return db.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{BucketSelected, BucketPrerequisites, BucketConfig} {
			bucket := tx.Bucket([]byte(name))
			if bucket == nil {
				return &DatabaseError{Op: "get bucket", Bucket: name, Err: ErrBucketNotFound}
			}
			if err := bucket.Delete(selectedKey(key)); err != nil {
				return &RecordError{Op: "delete", Key: key.String(), Err: err}
			}
		}
		return nil
	})
}

// ListSelected returns every package key currently recorded, for
// seeding a fresh SelectedStore at startup.
func (db *DB) ListSelected() ([]plan.PackageKey, error) {
	var keys []plan.PackageKey
	err := db.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketSelected))
		if bucket == nil {
			return &DatabaseError{Op: "get bucket", Bucket: BucketSelected, Err: ErrBucketNotFound}
		}
		return bucket.ForEach(func(k, _ []byte) error {
			keys = append(keys, parseSelectedKey(string(k)))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func parseSelectedKey(s string) plan.PackageKey {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			return plan.PackageKey{Database: s[:i], Name: s[i+1:]}
		}
	}
	return plan.PackageKey{Name: s}
}

// prerequisiteEdge is the JSON-on-disk shape of one constraint entry
// in plan.SelectedPackage.Prerequisites.
type prerequisiteEdge struct {
	Database   string `json:"database"`
	Name       string `json:"name"`
	Constraint string `json:"constraint"`
}

// PutPrerequisites replaces the full prerequisite edge set for key.
func (db *DB) PutPrerequisites(key plan.PackageKey, prereqs map[plan.PackageKey]*version.Constraint) error {
	edges := make([]prerequisiteEdge, 0, len(prereqs))
	for depKey, c := range prereqs {
		text := ""
		if c != nil {
			text = c.String()
		}
		edges = append(edges, prerequisiteEdge{Database: depKey.Database, Name: depKey.Name, Constraint: text})
	}
	data, err := json.Marshal(edges)
	if err != nil {
		return &RecordError{Op: "marshal", Key: key.String(), Err: err}
	}

	return db.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketPrerequisites))
		if bucket == nil {
			return &DatabaseError{Op: "get bucket", Bucket: BucketPrerequisites, Err: ErrBucketNotFound}
		}
		return bucket.Put(selectedKey(key), data)
	})
}

func prerequisitesLocked(tx *bolt.Tx, key plan.PackageKey) (map[plan.PackageKey]*version.Constraint, error) {
	bucket := tx.Bucket([]byte(BucketPrerequisites))
	if bucket == nil {
		return nil, &DatabaseError{Op: "get bucket", Bucket: BucketPrerequisites, Err: ErrBucketNotFound}
	}
	data := bucket.Get(selectedKey(key))
	if data == nil {
		return nil, nil
	}
	var edges []prerequisiteEdge
	if err := json.Unmarshal(data, &edges); err != nil {
		return nil, &RecordError{Op: "unmarshal", Key: key.String(), Err: err}
	}
	out := make(map[plan.PackageKey]*version.Constraint, len(edges))
	for _, e := range edges {
		depKey := plan.PackageKey{Database: e.Database, Name: e.Name}
		if e.Constraint == "" {
			out[depKey] = nil
			continue
		}
		c, err := version.ParseConstraint(e.Constraint)
		if err != nil {
			return nil, &RecordError{Op: "parse constraint", Key: key.String(), Err: err}
		}
		out[depKey] = &c
	}
	return out, nil
}

// configBlob is the JSON-on-disk shape of a package's configuration
// variables and checksum.
type configBlob struct {
	Values   map[string]string `json:"values"`
	Checksum string            `json:"checksum"`
}

// PutConfig persists a package's configuration-variable snapshot and
// its checksum.
func (db *DB) PutConfig(key plan.PackageKey, values map[string]string, checksum string) error {
	data, err := json.Marshal(&configBlob{Values: values, Checksum: checksum})
	if err != nil {
		return &RecordError{Op: "marshal", Key: key.String(), Err: err}
	}
	return db.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketConfig))
		if bucket == nil {
			return &DatabaseError{Op: "get bucket", Bucket: BucketConfig, Err: ErrBucketNotFound}
		}
		return bucket.Put(selectedKey(key), data)
	})
}

func configLocked(tx *bolt.Tx, key plan.PackageKey) (map[string]string, string, error) {
	bucket := tx.Bucket([]byte(BucketConfig))
	if bucket == nil {
		return nil, "", &DatabaseError{Op: "get bucket", Bucket: BucketConfig, Err: ErrBucketNotFound}
	}
	data := bucket.Get(selectedKey(key))
	if data == nil {
		return nil, "", nil
	}
	var blob configBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return nil, "", &RecordError{Op: "unmarshal", Key: key.String(), Err: err}
	}
	return blob.Values, blob.Checksum, nil
}

// AuditEntry is one append-only record of a replaced-version or
// postponed-dependency decision made during collection, kept so
// `pkgsynth status` can explain why the plan looks the way it does
// even after the run that produced it has exited.
type AuditEntry struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"` // "replaced" | "postponed"
	Database  string    `json:"database"`
	Name      string    `json:"name"`
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
}

// RecordAudit appends entry to the audit trail, stamping a fresh ID if
// none was supplied.
func (db *DB) RecordAudit(entry AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	data, err := json.Marshal(&entry)
	if err != nil {
		return &RecordError{Op: "marshal", Key: entry.ID, Err: err}
	}
	return db.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketAudit))
		if bucket == nil {
			return &DatabaseError{Op: "get bucket", Bucket: BucketAudit, Err: ErrBucketNotFound}
		}
		return bucket.Put([]byte(entry.ID), data)
	})
}

// ListAudit returns every audit entry, in the (unspecified, bbolt key
// order) that bbolt's ForEach yields, for `pkgsynth status` to sort
// and render as it sees fit.
func (db *DB) ListAudit() ([]AuditEntry, error) {
	var out []AuditEntry
	err := db.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketAudit))
		if bucket == nil {
			return &DatabaseError{Op: "get bucket", Bucket: BucketAudit, Err: ErrBucketNotFound}
		}
		return bucket.ForEach(func(_, v []byte) error {
			var e AuditEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return &RecordError{Op: "unmarshal", Err: err}
			}
			out = append(out, e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
