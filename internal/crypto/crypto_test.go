package crypto

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/relaymesh/channelsdk/internal/wire"
)

func TestGenerateChannelIDIsPure(t *testing.T) {
	a := GenerateChannelID("lobby", "hunter2", "dev-secret")
	b := GenerateChannelID("lobby", "hunter2", "dev-secret")
	if a != b {
		t.Fatalf("expected deterministic channel id, got %q and %q", a, b)
	}
	if c := GenerateChannelID("lobby", "hunter2", "other-secret"); c == a {
		t.Fatalf("expected different developerKeySecret to change the channel id")
	}
}

func TestHashPasswordIsDeterministic(t *testing.T) {
	secret := DeriveChannelSecret("lobby", "hunter2")
	a := HashPassword("hunter2", secret)
	b := HashPassword("hunter2", secret)
	if a != b {
		t.Fatalf("expected deterministic hash, got %q and %q", a, b)
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	recipientPriv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate recipient key: %v", err)
	}
	recipientPub := recipientPriv.PublicKey()

	plaintext := []byte("hello from the channel")
	env, err := Wrap(encodeKey(recipientPub), plaintext, "chan-1", "bob")
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if env.Alg != EnvelopeAlg {
		t.Fatalf("alg = %q, want %q", env.Alg, EnvelopeAlg)
	}

	got, err := Unwrap(recipientPriv, env, "chan-1", "bob")
	if err != nil {
		t.Fatalf("unwrap: %v", err)
	}
	if string(got) != string(plaintext) {
		t.Fatalf("unwrap = %q, want %q", got, plaintext)
	}
}

func TestEnvelopeFailsOnChannelMismatch(t *testing.T) {
	recipientPriv, _ := ecdh.X25519().GenerateKey(rand.Reader)
	env, err := Wrap(encodeKey(recipientPriv.PublicKey()), []byte("secret"), "chan-1", "bob")
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if _, err := Unwrap(recipientPriv, env, "chan-2", "bob"); err == nil {
		t.Fatal("expected unwrap to fail with a different channelId")
	} else if !errors.Is(err, wire.ErrCrypto) {
		t.Fatalf("expected wire.ErrCrypto, got %v", err)
	}
}

func TestEnvelopeFailsOnRecipientMismatch(t *testing.T) {
	recipientPriv, _ := ecdh.X25519().GenerateKey(rand.Reader)
	env, err := Wrap(encodeKey(recipientPriv.PublicKey()), []byte("secret"), "chan-1", "bob")
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if _, err := Unwrap(recipientPriv, env, "chan-1", "eve"); err == nil {
		t.Fatal("expected unwrap to fail with a different recipientName")
	}
}

func TestRSARoundTrip(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	ciphertext, err := RSAEncrypt(&priv.PublicKey, []byte("one-time-password"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	plaintext, err := RSADecrypt(priv, ciphertext)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(plaintext) != "one-time-password" {
		t.Fatalf("decrypt = %q, want %q", plaintext, "one-time-password")
	}
}

func TestEnsureKeyPairPersistsAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	pub1, err := EnsureKeyPair(dir)
	if err != nil {
		t.Fatalf("ensure keypair: %v", err)
	}
	pub2, err := EnsureKeyPair(dir)
	if err != nil {
		t.Fatalf("ensure keypair (reload): %v", err)
	}
	if pub1 != pub2 {
		t.Fatalf("expected stable public key across reloads, got %q and %q", pub1, pub2)
	}

	priv, err := LoadPrivateKey(dir)
	if err != nil {
		t.Fatalf("load private key: %v", err)
	}
	if got := encodeKey(priv.PublicKey()); got != pub1 {
		t.Fatalf("loaded private key public = %q, want %q", got, pub1)
	}

	if _, err := os.Stat(filepath.Join(dir, keyFileName)); err != nil {
		t.Fatalf("expected key file on disk: %v", err)
	}
}

func encodeKey(pub *ecdh.PublicKey) string {
	return base64.StdEncoding.EncodeToString(pub.Bytes())
}
