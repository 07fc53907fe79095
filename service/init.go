package service

import (
	"fmt"
	"os"
	"path/filepath"

	"pkgsynth/config"
)

// Initialize scaffolds a fresh configuration directory: the
// repositories directory, checkout root, logs directory, and a
// commented pkgsynth.ini reflecting cfg's current settings
// (config.WriteDefaultConfig). It is idempotent — calling it again on
// an already-initialized directory just reports AlreadyInit and leaves
// the existing pkgsynth.ini untouched.
//
// This method handles all the business logic but does not interact
// with the user; the caller is responsible for prompting before
// overwriting anything and for displaying the result.
func (s *Service) Initialize() (*InitResult, error) {
	result := &InitResult{CreatedDirs: make([]string, 0)}

	dirs := map[string]string{
		"repositories": s.cfg.RepositoriesDir,
		"checkout":     s.cfg.CheckoutRoot,
		"logs":         s.cfg.LogsDir,
	}
	for label, dir := range dirs {
		existed := false
		if _, err := os.Stat(dir); err == nil {
			existed = true
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating %s directory %s: %w", label, dir, err)
		}
		if !existed {
			result.CreatedDirs = append(result.CreatedDirs, dir)
			s.logger.Info("created %s directory: %s", label, dir)
		}
	}

	iniPath := filepath.Join(s.cfg.ConfigDir, "pkgsynth.ini")
	if _, err := os.Stat(iniPath); err == nil {
		result.AlreadyInit = true
		result.ConfigFile = iniPath
		return result, nil
	}

	if err := config.WriteDefaultConfig(iniPath, s.cfg); err != nil {
		return nil, fmt.Errorf("writing %s: %w", iniPath, err)
	}
	result.ConfigFile = iniPath
	s.logger.Info("wrote configuration file: %s", iniPath)

	return result, nil
}
