package service

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"pkgsynth/config"
)

// newTestConfig returns a Config rooted at a fresh temp directory; the
// directories it names are created by Validate when NewService runs.
func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		ConfigDir:          dir,
		RepositoriesDir:    filepath.Join(dir, "repositories"),
		CheckoutRoot:       filepath.Join(dir, "checkout"),
		LogsDir:            filepath.Join(dir, "logs"),
		FetchTimeout:       60,
		MaxWorkersForFetch: 1,
		ConfigLinks:        map[string]string{},
	}
	return cfg
}

func TestNewServiceOpensLoggerAndDatabase(t *testing.T) {
	cfg := newTestConfig(t)

	svc, err := NewService(cfg)
	require.NoError(t, err)
	defer svc.Close()

	require.Same(t, cfg, svc.Config())
	require.NotNil(t, svc.Logger())
	require.NotNil(t, svc.Database())
	require.NotNil(t, svc.Fetcher())
	require.NotNil(t, svc.SystemManager())
}

func TestNewServiceRejectsInvalidLogsDir(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.LogsDir = "/proc/pkgsynth-test-cannot-create/logs"

	_, err := NewService(cfg)
	require.Error(t, err)
}

func TestServiceCloseIsIdempotent(t *testing.T) {
	cfg := newTestConfig(t)

	svc, err := NewService(cfg)
	require.NoError(t, err)

	require.NoError(t, svc.Close())
	require.NoError(t, svc.Close())
}

func TestServiceClearActiveCacheNoopWithoutActiveCache(t *testing.T) {
	cfg := newTestConfig(t)

	svc, err := NewService(cfg)
	require.NoError(t, err)
	defer svc.Close()

	require.NoError(t, svc.ClearActiveCache())
}
