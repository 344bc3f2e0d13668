package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"

	"github.com/relaymesh/channelsdk/internal/wire"
)

// RSAEncrypt encrypts a short secret (e.g. a one-time request password)
// with RSA-2048 OAEP-SHA256, for the request-password sub-flow.
func RSAEncrypt(pub *rsa.PublicKey, plaintext []byte) ([]byte, error) {
	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, plaintext, nil)
	if err != nil {
		return nil, fmt.Errorf("rsa oaep encrypt: %w: %v", wire.ErrCrypto, err)
	}
	return ciphertext, nil
}

// RSADecrypt decrypts a ciphertext produced by RSAEncrypt.
func RSADecrypt(priv *rsa.PrivateKey, ciphertext []byte) ([]byte, error) {
	plaintext, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("rsa oaep decrypt: %w: %v", wire.ErrCrypto, err)
	}
	return plaintext, nil
}
