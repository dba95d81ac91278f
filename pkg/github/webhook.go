package github

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrBadSignature reports a webhook payload whose signature does not
// match the shared secret.
var ErrBadSignature = errors.New("webhook signature mismatch")

// VerifySignature checks the X-Hub-Signature-256 header against the
// payload using constant-time comparison. An empty secret disables
// verification only when the header is also absent.
func VerifySignature(secret, signature string, payload []byte) error {
	if secret == "" && signature == "" {
		return nil
	}
	if secret == "" || signature == "" {
		return ErrBadSignature
	}

	expected := ComputeSignature(secret, payload)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}

// ComputeSignature produces the sha256= header value GitHub sends.
func ComputeSignature(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// IsManifestPath reports whether a changed file is worth estimating:
// YAML under the repo, excluding CI workflow definitions.
func IsManifestPath(path string) bool {
	if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
		return false
	}
	return !strings.HasPrefix(path, ".github/")
}
