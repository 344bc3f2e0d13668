package wire

import (
	"encoding/json"
	"fmt"
)

// DecodeEnvelope unmarshals the outer {status, data, statusMessage}
// envelope and decodes Data into T. Returns the envelope's status and
// statusMessage alongside the decoded payload so callers can classify
// failures (auth vs protocol vs not-found).
func DecodeEnvelope[T any](body []byte) (status string, statusMessage string, data T, err error) {
	var env envelope
	if uerr := json.Unmarshal(body, &env); uerr != nil {
		err = fmt.Errorf("decode envelope: %w: %v", ErrProtocol, uerr)
		return
	}
	status = env.Status
	statusMessage = env.StatusMessage
	if len(env.Data) == 0 {
		return
	}
	if uerr := json.Unmarshal(env.Data, &data); uerr != nil {
		err = fmt.Errorf("decode data: %w: %v", ErrProtocol, uerr)
		return
	}
	return
}

// EncodeEnvelope builds the outer envelope for a given status/data,
// used by tests and by fakes that stand in for the remote service.
func EncodeEnvelope(status string, data any, statusMessage string) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Status: status, Data: raw, StatusMessage: statusMessage})
}

// IsUnknownSessionMessage reports whether a statusMessage looks like
// the server telling us our session no longer exists. Implementations MUST NOT depend on an exhaustive list of server
// strings beyond this best-effort substring match; HTTP 401/404 are the
// authoritative signal and are checked separately by callers.
func IsUnknownSessionMessage(msg string) bool {
	for _, needle := range []string{"unknown session", "session expired", "invalid session", "session not found"} {
		if containsFold(msg, needle) {
			return true
		}
	}
	return false
}

func containsFold(haystack, needle string) bool {
	h := []rune(haystack)
	n := []rune(needle)
	if len(n) == 0 || len(n) > len(h) {
		return len(n) == 0
	}
	toLower := func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}
	for i := 0; i+len(n) <= len(h); i++ {
		match := true
		for j := range n {
			if toLower(h[i+j]) != toLower(n[j]) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
