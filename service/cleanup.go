package service

import (
	"fmt"

	"pkgsynth/source"
)

// Cleanup scans the repositories directory for a broken checkout
// cache — one left with a moved-out repository directory because a
// prior process crashed mid-checkout — and clears any cache entries
// still active in this process. It is the basis for `pkgsynth
// rep-fetch`'s crash-recovery step: a non-empty cache left behind by
// a crash means the repository state is broken and must be repaired.
func (s *Service) Cleanup(opts CleanupOptions) (*CleanupResult, error) {
	result := &CleanupResult{}

	broken, err := source.DetectBrokenCache(s.cfg.RepositoriesDir)
	if err != nil {
		return nil, fmt.Errorf("scanning repositories directory: %w", err)
	}
	result.BrokenRepositories = broken
	for _, dir := range broken {
		s.logger.Warn("repository state broken, left moved-out at %s: run rep-fetch to repair", dir)
	}

	s.cleanupMu.Lock()
	cache := s.activeCache
	s.activeCache = nil
	s.cleanupMu.Unlock()

	if cache != nil {
		if err := cache.Clear(opts.IgnoreErrors, s.fetch.FixupWorktree); err != nil {
			if _, ok := err.(*source.BrokenCacheError); ok {
				return result, nil
			}
			return nil, fmt.Errorf("clearing checkout cache: %w", err)
		}
		result.ClearedEntries++
	}

	return result, nil
}
