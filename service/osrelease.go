package service

import (
	"os"

	"pkgsynth/syspkg"
)

// readOSRelease loads /etc/os-release for the running host, returning an
// OSRelease with only ID "linux" set if the file can't be read — the
// Debian distro-version mapping fallback chain still works via its
// derived-name path in that case, it just never matches a manifest's
// distro-specific entries.
func readOSRelease() syspkg.OSRelease {
	data, err := os.ReadFile("/etc/os-release")
	if err != nil {
		return syspkg.OSRelease{ID: "linux"}
	}
	return syspkg.ParseOSRelease(data)
}
