// Package integrity signs and verifies content hashes for stored captures.
//
// The scheme is HMAC-SHA256 over the content hash string (for example
// "sha256:<hex>"), rendered as "hmac-sha256:<hex>". It is a lightweight
// deterministic check, not a KMS-backed signing pipeline.
package integrity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
)

// devSecret keeps local runs working when no secret is configured.
const devSecret = "dev-ingestion-signing-secret-CHANGE-IN-PRODUCTION"

// Signer produces and checks content-hash signatures.
type Signer struct {
	secret []byte
}

// NewSigner builds a Signer from the configured secret. An empty secret
// falls back to the insecure dev default and logs a warning.
func NewSigner(secret string) *Signer {
	if strings.TrimSpace(secret) == "" {
		slog.Warn("INGESTION_SIGNING_SECRET not set; using insecure dev default. Set INGESTION_SIGNING_SECRET in production.")
		secret = devSecret
	}
	return &Signer{secret: []byte(secret)}
}

// Sign returns the signature over a content hash string.
func (s *Signer) Sign(contentHash string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(contentHash))
	return "hmac-sha256:" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches contentHash, in constant time.
func (s *Signer) Verify(contentHash, signature string) bool {
	if signature == "" {
		return false
	}
	expected := s.Sign(contentHash)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// HashContent returns the "sha256:<hex>" content hash of raw text.
func HashContent(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "sha256:" + hex.EncodeToString(sum[:])
}
