package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"pkgsynth/source"
)

func TestCheckoutRejectsNilPackage(t *testing.T) {
	cfg := newTestConfig(t)
	svc, err := NewService(cfg)
	require.NoError(t, err)
	defer svc.Close()

	_, err = svc.Checkout(nil, source.Fragment{}, CheckoutOptions{})
	require.Error(t, err)
}
