package service

import (
	"fmt"
	"os"

	"pkgsynth/statedb"
)

// dbFileName is the state database's filename under ConfigDir,
// matching NewService's OpenDB call.
const dbFileName = "state.db"

// ResetDatabase removes the persisted planner state database,
// discarding every selected package, prerequisite edge, configuration
// blob, and audit entry it held. This is destructive; the caller is
// responsible for confirming with the user before calling it.
//
// The service's own database handle is closed and left nil — any
// further call through s.Database() returns nil until ReopenDatabase
// is called or a fresh Service is created.
func (s *Service) ResetDatabase() (*DatabaseResult, error) {
	result := &DatabaseResult{Path: s.cfg.ConfigDir + "/" + dbFileName}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return nil, fmt.Errorf("closing database before reset: %w", err)
		}
		s.db = nil
	}

	if _, err := os.Stat(result.Path); os.IsNotExist(err) {
		return result, nil
	}

	if err := os.Remove(result.Path); err != nil {
		return nil, fmt.Errorf("removing database %s: %w", result.Path, err)
	}
	result.DatabaseRemoved = true
	s.logger.Info("state database removed: %s", result.Path)

	return result, nil
}

// DatabaseExists reports whether the state database file exists.
func (s *Service) DatabaseExists() bool {
	_, err := os.Stat(s.cfg.ConfigDir + "/" + dbFileName)
	return err == nil
}

// ReopenDatabase reopens the state database after a ResetDatabase
// call, for a caller (e.g. `pkgsynth init` immediately after a reset)
// that wants to keep using the same Service rather than constructing
// a fresh one.
func (s *Service) ReopenDatabase() error {
	db, err := statedb.OpenDB(s.cfg.ConfigDir + "/" + dbFileName)
	if err != nil {
		return fmt.Errorf("reopening state database: %w", err)
	}
	s.db = db
	return nil
}
