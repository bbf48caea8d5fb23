package blockchain

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var ErrInvalidCredential = errors.New("invalid sealed credential")

// Keyring generates custodial keypairs and seals their secret keys at rest
type Keyring struct {
	key [32]byte
}

// NewKeyring derives the sealing key from a configured secret
func NewKeyring(secret string) (*Keyring, error) {
	if secret == "" {
		return nil, fmt.Errorf("credential secret is required")
	}
	return &Keyring{key: sha256.Sum256([]byte(secret))}, nil
}

// Generate creates a fresh keypair and returns its address and sealed secret key
func (k *Keyring) Generate() (address string, sealed string, err error) {
	privateKey, err := solana.NewRandomPrivateKey()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate keypair: %w", err)
	}

	sealed, err = k.Seal(privateKey)
	if err != nil {
		return "", "", err
	}
	return privateKey.PublicKey().String(), sealed, nil
}

// Seal encrypts a private key; the result is base58(nonce || box)
func (k *Keyring) Seal(privateKey solana.PrivateKey) (string, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("failed to read nonce: %w", err)
	}

	box := secretbox.Seal(nonce[:], privateKey, &nonce, &k.key)
	return base58.Encode(box), nil
}

// Open decrypts a sealed private key
func (k *Keyring) Open(sealed string) (solana.PrivateKey, error) {
	raw, err := base58.Decode(sealed)
	if err != nil || len(raw) <= nonceSize {
		return nil, ErrInvalidCredential
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])

	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &k.key)
	if !ok {
		return nil, ErrInvalidCredential
	}
	return solana.PrivateKey(plain), nil
}
