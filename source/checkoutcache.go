package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// markerSuffix names the crash-detection marker file written before a
// repository directory is moved out to a temporary location and
// removed once it's safely moved back. A marker left behind means a
// prior process was interrupted mid-checkout.
const markerSuffix = ".checkout-in-progress"

// cacheEntry is one repository currently moved out of its permanent
// location for the duration of a checkout.
type cacheEntry struct {
	permanent string // the repositories-directory path this entry restores to
	temp      string // where it currently lives
	fixedUp   bool   // whether FixupWorktree has been applied and still needs reverting
}

// CheckoutCache owns every repository directory temporarily moved out
// of the repositories directory during a batch of checkouts. Clearing
// it restores each entry to its permanent location; if the process
// dies with entries still moved out, the marker files left behind let
// the next run detect and report the broken state rather than silently
// working against a half-restored repositories directory.
type CheckoutCache struct {
	entries map[string]*cacheEntry // keyed by permanent path
}

// NewCheckoutCache creates an empty cache.
func NewCheckoutCache() *CheckoutCache {
	return &CheckoutCache{entries: make(map[string]*cacheEntry)}
}

// Acquire moves the repository at permanent into temp, recording it in
// the cache and writing its crash marker. Call Release once the
// checkout (and any worktree fixup) against temp is finished.
func (c *CheckoutCache) Acquire(permanent, temp string) error {
	if _, ok := c.entries[permanent]; ok {
		return fmt.Errorf("checkout cache: %s is already moved out", permanent)
	}
	if _, err := os.Stat(temp); err == nil {
		if err := os.RemoveAll(temp); err != nil {
			return fmt.Errorf("checkout cache: clearing stale temp dir: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(temp), 0755); err != nil {
		return fmt.Errorf("checkout cache: preparing temp dir: %w", err)
	}
	// The marker is written next to the permanent location before the
	// move, so its mere presence after a crash — regardless of whether
	// the permanent directory is gone — is enough to flag the repository
	// as broken.
	if err := os.WriteFile(permanent+markerSuffix, []byte(temp), 0644); err != nil {
		return fmt.Errorf("checkout cache: writing crash marker: %w", err)
	}
	if err := os.Rename(permanent, temp); err != nil {
		os.Remove(permanent + markerSuffix)
		return fmt.Errorf("checkout cache: moving %s to %s: %w", permanent, temp, err)
	}
	c.entries[permanent] = &cacheEntry{permanent: permanent, temp: temp}
	return nil
}

// MarkFixedUp records that the entry's worktree has been fixed up, so
// Release knows to revert the fixup before moving it back.
func (c *CheckoutCache) MarkFixedUp(permanent string, fixedUp bool) {
	if e, ok := c.entries[permanent]; ok {
		e.fixedUp = fixedUp
	}
}

// Release moves one entry back to its permanent location and clears
// its crash marker. fixup, if non-nil, is called to revert any
// worktree fixup the entry was marked as carrying.
func (c *CheckoutCache) Release(permanent string, fixup func(dest string, revert bool) error) error {
	e, ok := c.entries[permanent]
	if !ok {
		return nil
	}

	if e.fixedUp && fixup != nil {
		e.fixedUp = false
		if err := fixup(e.temp, true); err != nil {
			return fmt.Errorf("checkout cache: reverting fixup for %s: %w", permanent, err)
		}
	}

	if err := os.Rename(e.temp, permanent); err != nil {
		return fmt.Errorf("checkout cache: restoring %s: %w", permanent, err)
	}
	os.Remove(permanent + markerSuffix)
	delete(c.entries, permanent)
	return nil
}

// Clear releases every remaining entry, used both at the end of a
// successful checkout batch and from a deferred cleanup on the error
// path. ignoreErrors continues past a failed release instead of
// stopping at the first one, mirroring the best-effort destructor
// behavior a cache needs when it's unwinding after something already
// went wrong.
func (c *CheckoutCache) Clear(ignoreErrors bool, fixup func(dest string, revert bool) error) error {
	for permanent := range c.entries {
		if err := c.Release(permanent, fixup); err != nil {
			if !ignoreErrors {
				return err
			}
		}
	}
	if len(c.entries) > 0 && ignoreErrors {
		remaining := make([]string, 0, len(c.entries))
		for permanent := range c.entries {
			remaining = append(remaining, permanent)
		}
		return &BrokenCacheError{RepositoryDirs: remaining}
	}
	return nil
}

// DetectBrokenCache scans repoDir for leftover crash markers from a
// prior process that died mid-checkout, returning the permanent paths
// that were left moved out. Call this once at startup before any
// checkout proceeds.
func DetectBrokenCache(repoDir string) ([]string, error) {
	entries, err := os.ReadDir(repoDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("checkout cache: scanning %s: %w", repoDir, err)
	}

	var broken []string
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), markerSuffix) {
			continue
		}
		broken = append(broken, strings.TrimSuffix(filepath.Join(repoDir, ent.Name()), markerSuffix))
	}
	return broken, nil
}
