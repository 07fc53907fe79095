//go:build !windows

package source

// fixupWorktree is a no-op on every platform but Windows: a checked-out
// git working tree's symlinks are already native here, so there is
// nothing to replace or revert.
func fixupWorktree(dest string, revert bool) error {
	return nil
}
