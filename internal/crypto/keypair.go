package crypto

import (
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/relaymesh/channelsdk/internal/wire"
)

const keyFileName = "identity_key"

// EnsureKeyPair loads the X25519 keypair in dir, generating and
// persisting a new one if none exists. Returns the base64-encoded
// public key.
func EnsureKeyPair(dir string) (string, error) {
	keyPath := filepath.Join(dir, keyFileName)

	if data, err := os.ReadFile(keyPath); err == nil && len(data) > 0 {
		priv, err := parsePrivateKey(data)
		if err != nil {
			return "", err
		}
		return base64.StdEncoding.EncodeToString(priv.PublicKey().Bytes()), nil
	}

	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return "", fmt.Errorf("generate keypair: %w: %v", wire.ErrCrypto, err)
	}

	encoded := base64.StdEncoding.EncodeToString(priv.Bytes())
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create key dir: %w: %v", wire.ErrConfig, err)
	}
	if err := os.WriteFile(keyPath, []byte(encoded), 0600); err != nil {
		return "", fmt.Errorf("write key: %w: %v", wire.ErrConfig, err)
	}

	return base64.StdEncoding.EncodeToString(priv.PublicKey().Bytes()), nil
}

// LoadPrivateKey loads the X25519 private key persisted by EnsureKeyPair.
func LoadPrivateKey(dir string) (*ecdh.PrivateKey, error) {
	data, err := os.ReadFile(filepath.Join(dir, keyFileName))
	if err != nil {
		return nil, fmt.Errorf("read key: %w: %v", wire.ErrConfig, err)
	}
	return parsePrivateKey(data)
}

func parsePrivateKey(data []byte) (*ecdh.PrivateKey, error) {
	privBytes, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil {
		return nil, fmt.Errorf("decode key: %w: %v", wire.ErrCrypto, err)
	}
	priv, err := ecdh.X25519().NewPrivateKey(privBytes)
	if err != nil {
		return nil, fmt.Errorf("parse key: %w: %v", wire.ErrCrypto, err)
	}
	return priv, nil
}
