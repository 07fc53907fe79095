package service

import (
	"pkgsynth/plan"
	"pkgsynth/syspkg"
)

// SystemStatus queries the service's system package manager
// collaborator for ap, mapping its SystemVersion table into the
// AvailableMapping shape Manager.Status expects. A non-nil result with
// Status != NotInstalled means a build of ap can be substituted by the
// already-installed (or installable) system package instead.
func (s *Service) SystemStatus(ap *plan.AvailablePackage) (*syspkg.PackageStatus, error) {
	mapping := []syspkg.AvailableMapping{{
		BpkgVersion:   ap.Version.String(),
		SystemVersion: ap.SystemVersion,
	}}
	return s.sysmgr.Status(ap.Name, mapping)
}

// InstallSystemPackages installs names via the service's system
// package manager collaborator.
func (s *Service) InstallSystemPackages(names []string) error {
	return s.sysmgr.Install(names)
}
