//go:build windows

package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// fixupWorktree scans dest for git's filesystem-agnostic symlinks —
// plain regular files whose entire content is the link target path,
// the form git on Windows produces when core.symlinks is disabled —
// and replaces each with a real symlink (for file and directory targets
// alike). With revert set it does the opposite, restoring the
// plain-text form so a subsequent git operation doesn't see an
// unexpected native symlink in the tree.
func fixupWorktree(dest string, revert bool) error {
	return filepath.Walk(dest, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == dest || strings.HasPrefix(filepath.Base(path), ".git") {
			return nil
		}

		if revert {
			return revertSymlink(dest, path, info)
		}
		return fixupCandidate(dest, path, info)
	})
}

func fixupCandidate(root, path string, info os.FileInfo) error {
	if info.IsDir() || info.Size() == 0 || info.Size() > 4096 {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	target := strings.TrimSpace(string(data))
	if target == "" || strings.ContainsAny(target, "\x00\n\r") {
		return nil
	}

	if filepath.IsAbs(target) {
		return nil
	}
	resolved := filepath.Clean(filepath.Join(filepath.Dir(path), target))
	rel, err := filepath.Rel(root, resolved)
	if err != nil || strings.HasPrefix(rel, "..") {
		return &SymlinkEscape{Root: root, Target: target}
	}

	if err := os.Remove(path); err != nil {
		return err
	}
	if err := os.Symlink(target, path); err != nil {
		return fmt.Errorf("creating symlink %s -> %s: %w", path, target, err)
	}
	return nil
}

func revertSymlink(root, path string, info os.FileInfo) error {
	if info.Mode()&os.ModeSymlink == 0 {
		return nil
	}
	target, err := os.Readlink(path)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(target), 0644)
}
