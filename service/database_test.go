package service

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDatabaseExists(t *testing.T) {
	cfg := newTestConfig(t)

	svc, err := NewService(cfg)
	require.NoError(t, err)
	defer svc.Close()

	require.True(t, svc.DatabaseExists())
}

func TestResetDatabaseRemovesFile(t *testing.T) {
	cfg := newTestConfig(t)

	svc, err := NewService(cfg)
	require.NoError(t, err)

	require.True(t, svc.DatabaseExists())

	result, err := svc.ResetDatabase()
	require.NoError(t, err)
	require.True(t, result.DatabaseRemoved)

	_, statErr := os.Stat(result.Path)
	require.True(t, os.IsNotExist(statErr))
	require.False(t, svc.DatabaseExists())
}

func TestResetDatabaseNoFile(t *testing.T) {
	cfg := newTestConfig(t)

	svc, err := NewService(cfg)
	require.NoError(t, err)

	_, err = svc.ResetDatabase()
	require.NoError(t, err)

	result, err := svc.ResetDatabase()
	require.NoError(t, err)
	require.False(t, result.DatabaseRemoved)
}

func TestReopenDatabaseAfterReset(t *testing.T) {
	cfg := newTestConfig(t)

	svc, err := NewService(cfg)
	require.NoError(t, err)
	defer svc.Close()

	_, err = svc.ResetDatabase()
	require.NoError(t, err)

	require.NoError(t, svc.ReopenDatabase())
	require.NotNil(t, svc.Database())
	require.True(t, svc.DatabaseExists())
}
