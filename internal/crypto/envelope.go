package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/relaymesh/channelsdk/internal/wire"
)

// EnvelopeAlg identifies the algorithm combination used by Wrap/Unwrap.
const EnvelopeAlg = "X25519-HKDF-SHA256-AES256GCM"

// Envelope is the on-channel representation of an end-to-end encrypted
// payload.
type Envelope struct {
	EphemeralPub string `json:"ephemeralPub"`
	Nonce        string `json:"nonce"`
	Ciphertext   string `json:"ciphertext"`
	Alg          string `json:"alg"`
}

// Wrap encrypts plaintext for recipientPub (base64 X25519 public key),
// binding the ciphertext to channelId and recipientName via HKDF info
// and AES-GCM AAD so it cannot be replayed against a different channel
// or recipient.
func Wrap(recipientPub string, plaintext []byte, channelID, recipientName string) (Envelope, error) {
	peerPubBytes, err := base64.StdEncoding.DecodeString(recipientPub)
	if err != nil {
		return Envelope{}, fmt.Errorf("decode recipient public key: %w: %v", wire.ErrCrypto, err)
	}
	peerPub, err := ecdh.X25519().NewPublicKey(peerPubBytes)
	if err != nil {
		return Envelope{}, fmt.Errorf("parse recipient public key: %w: %v", wire.ErrCrypto, err)
	}

	ephemeral, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return Envelope{}, fmt.Errorf("generate ephemeral key: %w: %v", wire.ErrCrypto, err)
	}

	gcm, err := deriveAEAD(ephemeral, peerPub, channelID, recipientName)
	if err != nil {
		return Envelope{}, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return Envelope{}, fmt.Errorf("generate nonce: %w: %v", wire.ErrCrypto, err)
	}
	aad := []byte(channelID + "|" + recipientName)
	ciphertext := gcm.Seal(nil, nonce, plaintext, aad)

	return Envelope{
		EphemeralPub: base64.StdEncoding.EncodeToString(ephemeral.PublicKey().Bytes()),
		Nonce:        base64.StdEncoding.EncodeToString(nonce),
		Ciphertext:   base64.StdEncoding.EncodeToString(ciphertext),
		Alg:          EnvelopeAlg,
	}, nil
}

// Unwrap decrypts an Envelope using the recipient's X25519 private key.
// It fails with a wrapped wire.ErrCrypto on authentication failure, and
// MUST be called with the same channelId/recipientName used to Wrap.
func Unwrap(recipientPriv *ecdh.PrivateKey, env Envelope, channelID, recipientName string) ([]byte, error) {
	if env.Alg != "" && env.Alg != EnvelopeAlg {
		return nil, fmt.Errorf("unsupported envelope algorithm %q: %w", env.Alg, wire.ErrCrypto)
	}
	ephemeralBytes, err := base64.StdEncoding.DecodeString(env.EphemeralPub)
	if err != nil {
		return nil, fmt.Errorf("decode ephemeral public key: %w: %v", wire.ErrCrypto, err)
	}
	ephemeralPub, err := ecdh.X25519().NewPublicKey(ephemeralBytes)
	if err != nil {
		return nil, fmt.Errorf("parse ephemeral public key: %w: %v", wire.ErrCrypto, err)
	}

	gcm, err := deriveAEAD(recipientPriv, ephemeralPub, channelID, recipientName)
	if err != nil {
		return nil, err
	}

	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("decode nonce: %w: %v", wire.ErrCrypto, err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w: %v", wire.ErrCrypto, err)
	}
	aad := []byte(channelID + "|" + recipientName)

	plaintext, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("authenticate envelope: %w: %v", wire.ErrCrypto, err)
	}
	return plaintext, nil
}

// deriveAEAD performs X25519 ECDH between priv and peerPub, then
// HKDF-SHA256 with info "channel-envelope|<channelId>|<recipientName>"
// to produce a 32-byte AES-256-GCM key.
func deriveAEAD(priv *ecdh.PrivateKey, peerPub *ecdh.PublicKey, channelID, recipientName string) (cipher.AEAD, error) {
	shared, err := priv.ECDH(peerPub)
	if err != nil {
		return nil, fmt.Errorf("ecdh: %w: %v", wire.ErrCrypto, err)
	}

	info := []byte("channel-envelope|" + channelID + "|" + recipientName)
	salt := make([]byte, 32)
	kdf := hkdf.New(sha256.New, shared, salt, info)
	aesKey := make([]byte, 32)
	if _, err := io.ReadFull(kdf, aesKey); err != nil {
		return nil, fmt.Errorf("hkdf: %w: %v", wire.ErrCrypto, err)
	}

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, fmt.Errorf("aes: %w: %v", wire.ErrCrypto, err)
	}
	return cipher.NewGCM(block)
}
