// Package idutil provides the small set of deterministic and random
// identifier helpers shared across reviewd: session IDs, PKCE challenges,
// opaque tokens, and timestamp formatting.
package idutil

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// isoLayout is millisecond-precision ISO-8601 UTC, e.g. 2026-07-31T12:00:00.000Z.
const isoLayout = "2006-01-02T15:04:05.000Z"

// SessionID derives the deterministic session identifier for a
// project/branch pair: lowercase hex SHA-256 of "<project>||<branch>".
func SessionID(project, branch string) string {
	sum := sha256.Sum256([]byte(project + "||" + branch))
	return hex.EncodeToString(sum[:])
}

// NewToken returns a random base64url (no padding) token of n raw bytes.
func NewToken(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic("idutil: failed to read random bytes: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// Challenge computes the PKCE S256 code_challenge for a given verifier.
func Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// NewUUID returns a random (v4) UUID string.
func NewUUID() string {
	return uuid.NewString()
}

// NowISO returns the current time formatted as millisecond-precision
// ISO-8601 UTC.
func NowISO() string {
	return time.Now().UTC().Format(isoLayout)
}

// FormatISO formats t the same way NowISO formats the current time.
func FormatISO(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// ParseISO parses a timestamp produced by NowISO/FormatISO.
func ParseISO(s string) (time.Time, error) {
	return time.Parse(isoLayout, s)
}

// HashLine returns the hex SHA-256 digest of a single line's content,
// used as the staleness anchor stored alongside a comment.
func HashLine(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
