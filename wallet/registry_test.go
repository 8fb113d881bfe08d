package wallet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestRegistryFromConfig verifies seed-based registry construction.
func TestRegistryFromConfig(t *testing.T) {
	t.Parallel()

	_, payoutSeed, err := Generate(RolePayout)
	require.NoError(t, err)

	r, err := NewRegistry(&Config{
		IssuerSeed: knownSecpSeed,
		PayoutSeed: payoutSeed,
	})
	require.NoError(t, err)

	issuer, err := r.Issuer()
	require.NoError(t, err)
	require.Equal(t, knownSecpAddress, issuer.Address())
	require.Equal(t, RoleIssuer, issuer.Role())

	payout, err := r.Payout()
	require.NoError(t, err)
	require.Equal(t, RolePayout, payout.Role())

	byAddr, err := r.ByAddress(issuer.Address())
	require.NoError(t, err)
	require.Same(t, issuer, byAddr)

	require.Len(t, r.Wallets(), 2)
}

// TestRegistryUnconfiguredRoles verifies role resolution failures.
func TestRegistryUnconfiguredRoles(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry(nil)
	require.NoError(t, err)

	_, err = r.Issuer()
	require.ErrorIs(t, err, ErrWalletNotConfigured)

	_, err = r.Payout()
	require.ErrorIs(t, err, ErrWalletNotConfigured)

	_, err = r.ByAddress(knownSecpAddress)
	require.ErrorIs(t, err, ErrWalletNotFound)
}

// TestRegistryRoleOccupied verifies a role can only be claimed once.
func TestRegistryRoleOccupied(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry(&Config{IssuerSeed: knownSecpSeed})
	require.NoError(t, err)

	other, _, err := Generate(RoleIssuer)
	require.NoError(t, err)

	require.ErrorIs(t, r.SetIssuer(other), ErrRoleOccupied)

	payout, _, err := Generate(RolePayout)
	require.NoError(t, err)
	require.NoError(t, r.SetPayout(payout))
	require.ErrorIs(t, r.SetPayout(payout), ErrRoleOccupied)
}

// TestRegistryAddEphemeral verifies sandbox wallets resolve by address.
func TestRegistryAddEphemeral(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry(nil)
	require.NoError(t, err)

	w, _, err := Generate(RoleEphemeral)
	require.NoError(t, err)

	r.AddEphemeral(w)

	got, err := r.ByAddress(w.Address())
	require.NoError(t, err)
	require.Same(t, w, got)
}
