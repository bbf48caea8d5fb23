package blockchain

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyring_GenerateProducesDistinctOpenableKeys(t *testing.T) {
	keyring, err := NewKeyring("test-secret")
	require.NoError(t, err)

	addr1, sealed1, err := keyring.Generate()
	require.NoError(t, err)
	addr2, sealed2, err := keyring.Generate()
	require.NoError(t, err)

	assert.NotEqual(t, addr1, addr2)
	assert.NotEqual(t, sealed1, sealed2)
	assert.True(t, ValidateWalletAddress(addr1))

	key, err := keyring.Open(sealed1)
	require.NoError(t, err)
	assert.Equal(t, addr1, key.PublicKey().String())
}

func TestKeyring_OpenRejectsForeignOrCorruptCredentials(t *testing.T) {
	keyring, err := NewKeyring("secret-a")
	require.NoError(t, err)
	other, err := NewKeyring("secret-b")
	require.NoError(t, err)

	_, sealed, err := keyring.Generate()
	require.NoError(t, err)

	_, err = other.Open(sealed)
	assert.ErrorIs(t, err, ErrInvalidCredential)

	_, err = keyring.Open("0OIl")
	assert.ErrorIs(t, err, ErrInvalidCredential)

	_, err = keyring.Open("")
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestKeyring_SealUsesFreshNonce(t *testing.T) {
	keyring, err := NewKeyring("secret")
	require.NoError(t, err)

	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	a, err := keyring.Seal(key)
	require.NoError(t, err)
	b, err := keyring.Seal(key)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestNewKeyring_RequiresSecret(t *testing.T) {
	_, err := NewKeyring("")
	assert.Error(t, err)
}
