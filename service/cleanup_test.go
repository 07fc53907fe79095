package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCleanupNoBrokenRepositories(t *testing.T) {
	cfg := newTestConfig(t)

	svc, err := NewService(cfg)
	require.NoError(t, err)
	defer svc.Close()

	result, err := svc.Cleanup(CleanupOptions{})
	require.NoError(t, err)
	require.Empty(t, result.BrokenRepositories)
	require.Zero(t, result.ClearedEntries)
}

func TestCleanupDetectsMovedOutRepository(t *testing.T) {
	cfg := newTestConfig(t)

	svc, err := NewService(cfg)
	require.NoError(t, err)
	defer svc.Close()

	require.NoError(t, os.MkdirAll(cfg.RepositoriesDir, 0755))
	marker := filepath.Join(cfg.RepositoriesDir, "abc123.checkout-in-progress")
	require.NoError(t, os.WriteFile(marker, nil, 0644))

	result, err := svc.Cleanup(CleanupOptions{})
	require.NoError(t, err)
	require.Len(t, result.BrokenRepositories, 1)
}

func TestCleanupWithoutActiveCacheReportsNothingCleared(t *testing.T) {
	cfg := newTestConfig(t)

	svc, err := NewService(cfg)
	require.NoError(t, err)
	defer svc.Close()

	result, err := svc.Cleanup(CleanupOptions{})
	require.NoError(t, err)
	require.Zero(t, result.ClearedEntries)
}
