// Package service provides reusable business logic for pkgsynth's
// commands.
//
// The service layer sits between the CLI (cmd/, main.go) and the
// library layer (plan, source, syspkg, statedb), providing a clean
// separation of concerns:
//
//   - CLI layer (cmd/, main.go): handles user interaction, prompts,
//     formatting, arg parsing
//   - Service layer (service/): orchestrates business logic, coordinates
//     between libraries
//   - Library layer (plan, source, syspkg, statedb): provides core
//     functionality with no I/O coupling
//
// This design enables the service layer to be reused in different
// contexts: the CLI tool (current usage), a future long-running
// daemon, or test harnesses. All service methods use the LibraryLogger
// interface for output, ensuring they can be used in any context
// without terminal coupling.
package service

import (
	"fmt"
	"sync"

	"pkgsynth/config"
	"pkgsynth/log"
	"pkgsynth/source"
	"pkgsynth/statedb"
	"pkgsynth/syspkg"
)

// Service coordinates business logic across pkgsynth's subsystems.
//
// It manages the lifecycle of shared resources (logger, state database)
// and provides high-level operations for planning, status queries, and
// maintenance.
//
//	cfg, _ := config.LoadConfig("")
//	svc, err := service.NewService(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close()
//
//	result, err := svc.Plan(service.PlanOptions{Roots: []string{"app"}})
type Service struct {
	cfg    *config.Config
	logger *log.Logger
	db     *statedb.DB
	fetch  *source.GitFetcher
	sysmgr syspkg.Manager

	activeCache *source.CheckoutCache
	cleanupMu   sync.Mutex
}

// NewService creates a Service bound to cfg. It opens the logger, the
// persisted planner state database at <cfg.ConfigDir>/state.db, a
// git-backed source fetcher rooted at cfg.RepositoriesDir, and a Debian
// system package manager seeded from /etc/os-release. The caller must
// call Close() once done, typically via defer.
func NewService(cfg *config.Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	logger, err := log.NewLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	db, err := statedb.OpenDB(cfg.ConfigDir + "/state.db")
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("opening state database: %w", err)
	}

	osRelease := readOSRelease()

	return &Service{
		cfg:    cfg,
		logger: logger,
		db:     db,
		fetch:  source.NewGitFetcher(cfg.RepositoriesDir),
		sysmgr: syspkg.NewDebianManager(osRelease),
	}, nil
}

// Close releases resources held by the service (logger, database). It
// does not clear an active checkout cache; a caller interrupted
// mid-checkout should call ClearActiveCache first.
func (s *Service) Close() error {
	var errs []error

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database close: %w", err))
		}
	}
	if s.logger != nil {
		s.logger.Close()
	}

	if len(errs) > 0 {
		return fmt.Errorf("service close errors: %v", errs)
	}
	return nil
}

// Config returns the service's configuration.
func (s *Service) Config() *config.Config { return s.cfg }

// Logger returns the service's logger.
func (s *Service) Logger() *log.Logger { return s.logger }

// Database returns the service's state database.
func (s *Service) Database() *statedb.DB { return s.db }

// Fetcher returns the service's source-acquisition collaborator.
func (s *Service) Fetcher() *source.GitFetcher { return s.fetch }

// SystemManager returns the service's system package manager collaborator.
func (s *Service) SystemManager() syspkg.Manager { return s.sysmgr }

// SetActiveCache records the checkout cache backing the in-flight
// pkg-checkout/pkg-build invocation, so a signal handler can restore any
// moved-out repository directories on interrupt instead of leaving the
// repositories directory broken.
func (s *Service) SetActiveCache(cache *source.CheckoutCache) {
	s.cleanupMu.Lock()
	s.activeCache = cache
	s.cleanupMu.Unlock()
}

// ClearActiveCache releases the active checkout cache, if any, ignoring
// per-entry errors (signal handling has no good way to surface them), and
// returns a *source.BrokenCacheError if any entry could not be restored.
func (s *Service) ClearActiveCache() error {
	s.cleanupMu.Lock()
	cache := s.activeCache
	s.activeCache = nil
	s.cleanupMu.Unlock()

	if cache == nil {
		return nil
	}
	return cache.Clear(true, s.fetch.FixupWorktree)
}
