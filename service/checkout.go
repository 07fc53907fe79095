package service

import (
	"context"
	"fmt"
	"time"

	"pkgsynth/log"
	"pkgsynth/plan"
	"pkgsynth/source"
)

// CheckoutOptions carries pkg-checkout's flags.
type CheckoutOptions struct {
	Database string
	DestRoot string // --checkout-root
	Replace  bool
	Purge    bool // --checkout-purge
	Simulate bool
}

// Checkout materializes ap's source via the service's
// source.PackageCheckout collaborator (CheckoutPackage), recording the
// resulting SelectedPackage in the state database. fragment must be
// the Fragment ap's chosen location came from — the caller (typically
// holding the result of a recent Plan/fetch) is responsible for
// supplying it, since the planner core itself never acquires sources.
func (s *Service) Checkout(ap *plan.AvailablePackage, fragment source.Fragment, opts CheckoutOptions) (*CheckoutResult, error) {
	if ap == nil {
		return nil, fmt.Errorf("no package given to check out")
	}

	database := opts.Database
	if database == "" {
		database = "host"
	}

	req := source.CheckoutRequest{
		Package:  ap.Name,
		Version:  ap.Version,
		DestRoot: opts.DestRoot,
		Replace:  opts.Replace,
		Purge:    opts.Purge,
		Simulate: opts.Simulate,
	}

	key := plan.PackageKey{Database: database, Name: ap.Name}
	pl := log.NewPackageLogger(s.cfg, key.String())
	defer pl.Close()
	pl.WriteHeader()
	pl.WritePhase("checkout")
	pl.WriteCommand(fmt.Sprintf("checkout %s/%s from %s", ap.Name, ap.Version, fragment.FriendlyName))

	start := time.Now()
	sp, err := s.fetch.CheckoutPackage(context.Background(), req, fragment)
	if err != nil {
		pl.WriteFailure(time.Since(start), err.Error())
		return nil, fmt.Errorf("checking out %s %s: %w", ap.Name, ap.Version, err)
	}
	pl.WriteSuccess(time.Since(start))

	if err := s.db.PutSelected(key, sp); err != nil {
		return nil, fmt.Errorf("recording checkout of %s: %w", key, err)
	}

	return &CheckoutResult{
		Package:    ap.Name,
		Version:    ap.Version.String(),
		SourceRoot: sp.SourceRoot,
		Duration:   time.Since(start),
	}, nil
}
