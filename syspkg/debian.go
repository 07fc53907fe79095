package syspkg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// OSRelease is the subset of /etc/os-release this manager consults to
// pick which manifest mapping keys apply: the distribution ID, its
// version ID, and the distributions it declares compatibility with
// (ID_LIKE), tried in that order as the fallback chain's later steps.
type OSRelease struct {
	ID      string
	Version string
	Like    []string
}

// ParseOSRelease reads os-release-formatted content (as found at
// /etc/os-release) into an OSRelease.
func ParseOSRelease(data []byte) OSRelease {
	var r OSRelease
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.Trim(value, `"`)
		switch key {
		case "ID":
			r.ID = value
		case "VERSION_ID":
			r.Version = value
		case "ID_LIKE":
			r.Like = strings.Fields(value)
		}
	}
	return r
}

// MapPackageName resolves a bpkg package name to the distribution
// package name to query/install, following the fallback chain: an
// explicit `<ID>_<version>-name` manifest entry for the host's own
// distribution, then `<ID>-name`, then `<like>-name` for each ID_LIKE
// distribution in order, then a derived name — `name + "-dev"` for a
// library package, the bare name otherwise.
func MapPackageName(manifest map[string]string, os OSRelease, isLib bool, name string) string {
	distros := append([]string{os.ID}, os.Like...)
	for _, distro := range distros {
		if os.Version != "" && distro == os.ID {
			if n, ok := manifest[distro+"_"+os.Version+"-name"]; ok {
				return n
			}
		}
		if n, ok := manifest[distro+"-name"]; ok {
			return n
		}
	}
	if isLib {
		return name + "-dev"
	}
	return name
}

// StripBuildMetadata strips a Debian package version's build-metadata
// suffix (everything from the first unescaped '+') before attempting
// to parse what remains as a bpkg upstream version, matching the
// original tool's dominant fallback case rather than its full
// progressively-stripped retry loop.
func StripBuildMetadata(systemVersion string) string {
	for i := 0; i < len(systemVersion); i++ {
		if systemVersion[i] == '+' && (i == 0 || systemVersion[i-1] != '\\') {
			return systemVersion[:i]
		}
	}
	return systemVersion
}

// DebianManager implements Manager using dpkg-query to check status
// and apt-get to install, the Debian-flavored system package manager
// collaborator.
type DebianManager struct {
	OS    OSRelease
	cache map[string]*PackageStatus
}

// NewDebianManager creates a manager for the given os-release
// identification.
func NewDebianManager(os OSRelease) *DebianManager {
	return &DebianManager{OS: os, cache: make(map[string]*PackageStatus)}
}

// Status reports pkgName's installed status via dpkg-query, mapping
// its name to the system package name first. A cache hit short-
// circuits the subprocess call entirely.
func (m *DebianManager) Status(pkgName string, availablePackages []AvailableMapping) (*PackageStatus, error) {
	if s, ok := m.cache[pkgName]; ok {
		return s, nil
	}

	isLib := strings.HasPrefix(pkgName, "lib")
	systemName := pkgName
	if isLib {
		systemName = pkgName + "-dev"
	}
	for _, am := range availablePackages {
		if am.SystemVersion != nil {
			systemName = MapPackageName(am.SystemVersion, m.OS, isLib, pkgName)
			break
		}
	}

	out, err := exec.CommandContext(context.Background(), "dpkg-query", "-W", "-f=${Status} ${Version}\n", systemName).Output()
	if err != nil {
		// dpkg-query exits non-zero when the package is unknown to dpkg,
		// which this collaborator treats as "not installed" rather than
		// a hard failure.
		m.cache[pkgName] = nil
		return nil, nil
	}

	status, version := parseDpkgQueryOutput(string(out))
	var mapped string
	for _, am := range availablePackages {
		if StripBuildMetadata(version) == am.BpkgVersion {
			mapped = am.BpkgVersion
			break
		}
	}

	ps := &PackageStatus{
		Status:        status,
		SystemName:    systemName,
		SystemVersion: version,
		Version:       mapped,
	}
	m.cache[pkgName] = ps
	return ps, nil
}

func parseDpkgQueryOutput(out string) (StatusKind, string) {
	fields := strings.Fields(out)
	if len(fields) < 4 {
		return NotInstalled, ""
	}
	// dpkg-query's ${Status} expands to three words: want, flag, status.
	installState := fields[2]
	version := fields[3]
	switch installState {
	case "installed":
		return Installed, version
	case "half-installed", "unpacked", "half-configured", "triggers-awaited", "triggers-pending":
		return PartiallyInstalled, version
	default:
		return NotInstalled, version
	}
}

// Install installs pkgNames via apt-get, then verifies the resulting
// installed versions against what Status had already cached — a
// mismatch means the system changed underneath this process.
func (m *DebianManager) Install(pkgNames []string) error {
	if len(pkgNames) == 0 {
		return nil
	}

	args := append([]string{"install", "-y"}, pkgNames...)
	cmd := exec.CommandContext(context.Background(), "apt-get", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("apt-get install %s: %w: %s", strings.Join(pkgNames, " "), err, out)
	}

	for pkgName, promised := range m.cache {
		if promised == nil {
			continue
		}
		found := false
		for _, n := range pkgNames {
			if n == promised.SystemName {
				found = true
				break
			}
		}
		if !found {
			continue
		}

		out, err := exec.CommandContext(context.Background(), "dpkg-query", "-W", "-f=${Status} ${Version}\n", promised.SystemName).Output()
		if err != nil {
			return fmt.Errorf("verifying install of %s: %w", promised.SystemName, err)
		}
		_, actual := parseDpkgQueryOutput(string(out))
		if actual != promised.SystemVersion {
			return &SystemVersionChanged{Package: pkgName, Promised: promised.SystemVersion, Actual: actual}
		}
	}
	return nil
}
