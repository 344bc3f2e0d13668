// Package crypto provides the deterministic helpers channel identity
// and payload protection are built on. All functions here
// are stateless and safe for concurrent use.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// DeriveChannelSecret computes base64(SHA256(name||password)), the
// local derivation used to hash a channel password before it is sent
// over the wire.
func DeriveChannelSecret(name, password string) string {
	sum := sha256.Sum256([]byte(name + password))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// HashPassword computes base64(HMAC_SHA256(secret, password)), the
// value actually transmitted as "channelPassword" on /connect and
// /create-channel.
func HashPassword(password, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(password))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// GenerateChannelID computes hex(SHA256(name||password||developerKeySecret)),
// a pure function: equal inputs always produce equal channel IDs.
// Callers in "public" scope pass an empty developerKeySecret so the
// channel ID does not depend on the caller's developer key.
func GenerateChannelID(name, password, developerKeySecret string) string {
	sum := sha256.Sum256([]byte(name + password + developerKeySecret))
	return hex.EncodeToString(sum[:])
}
