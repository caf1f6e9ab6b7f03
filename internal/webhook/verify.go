// Package webhook authenticates inbound source webhooks.
//
// Signatures use the form "sha256=<hex>" where hex is the lowercase
// HMAC-SHA256 of the raw request body keyed by the verification token.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

const (
	// SignatureHeader carries the body signature on inbound requests.
	SignatureHeader = "X-Notion-Signature"
	signaturePrefix = "sha256="
	maskKeep        = 12
)

// Sign returns the header value a sender with secret would attach to body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signatureHeader is the signature of rawBody under
// secret. rawBody must be the bytes exactly as received. An empty header
// never verifies.
func Verify(secret, signatureHeader string, rawBody []byte) bool {
	if signatureHeader == "" {
		return false
	}
	return constantTimeEqual(Sign(secret, rawBody), signatureHeader)
}

// constantTimeEqual compares lengths first, then folds every byte pair
// through XOR so the running time does not depend on where a mismatch sits.
func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := 0; i < len(a); i++ {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}

// MaskSignature shortens sig for logs: first and last 12 characters around
// "...". Signatures of 24 characters or fewer are returned unchanged.
func MaskSignature(sig string) string {
	if len(sig) <= 2*maskKeep {
		return sig
	}
	return sig[:maskKeep] + "..." + sig[len(sig)-maskKeep:]
}

// ExtractVerificationToken returns the verification_token of a subscription
// handshake body. Bodies that are not JSON objects, or whose token is not a
// string, yield false.
func ExtractVerificationToken(rawBody []byte) (string, bool) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(rawBody, &probe); err != nil {
		return "", false
	}
	raw, ok := probe["verification_token"]
	if !ok {
		return "", false
	}
	var token string
	if err := json.Unmarshal(raw, &token); err != nil {
		return "", false
	}
	return token, true
}
