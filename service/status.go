package service

import (
	"pkgsynth/plan"
)

// Status reports the configuration database's currently selected
// packages plus the accumulated audit trail, the basis for `pkgsynth
// status`. When opts.Keys is non-empty, only matching "database/name"
// keys are included in Selected; the audit trail is always reported
// in full since an entry may concern a package no longer selected.
func (s *Service) Status(opts StatusOptions) (*StatusResult, error) {
	keys, err := s.db.ListSelected()
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(opts.Keys))
	for _, k := range opts.Keys {
		wanted[k] = true
	}

	result := &StatusResult{}
	for _, key := range keys {
		if len(wanted) > 0 && !wanted[key.String()] {
			continue
		}
		sp, err := s.db.GetSelected(key)
		if err != nil {
			return nil, err
		}
		if sp != nil {
			result.Selected = append(result.Selected, sp)
		}
	}

	audit, err := s.db.ListAudit()
	if err != nil {
		return nil, err
	}
	result.Audit = audit

	return result, nil
}

// DescribeSelected renders one selected package's one-line status
// text for CLI output, e.g. "libfoo 1.2.3 configured".
func DescribeSelected(sp *plan.SelectedPackage) string {
	state := "fetched"
	switch sp.State {
	case plan.StateUnpacked:
		state = "unpacked"
	case plan.StateConfigured:
		state = "configured"
	case plan.StateBroken:
		state = "broken"
	}
	if sp.Substate == plan.SubstateSystem {
		state += " (system)"
	}
	return sp.Name + " " + sp.Version.String() + " " + state
}
