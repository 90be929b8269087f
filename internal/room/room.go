// Package room implements the rendezvous scheme: short human-shareable codes
// and the deterministic derivation of transport peer identifiers from them.
//
// Both sides of a session derive the same host identifier from the code alone,
// so no third party has to hand out addresses; the single-use property of a
// code is enforced by the signaling service, not here.
package room

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// codeAlphabet omits the lookalikes 0/O, 1/I/L so a code survives being read
// out loud or scribbled on paper.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// CodeLength is the room code length. 31^6 ≈ 890M codes, which makes a
// collision within a session's lifetime negligible.
const CodeLength = 6

// ErrInvalidCode is returned for codes of the wrong length or alphabet.
var ErrInvalidCode = errors.New("room: invalid room code")

// Role distinguishes the two ends of a session.
type Role string

const (
	RoleHost   Role = "host"
	RoleClient Role = "client"
)

// NewCode generates a fresh room code.
func NewCode() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate room code: %w", err)
	}
	code := make([]byte, CodeLength)
	for i, b := range buf {
		code[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(code), nil
}

// Normalize upper-cases and trims a user-entered code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Valid reports whether code is a well-formed room code.
func Valid(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for _, r := range code {
		if !strings.ContainsRune(codeAlphabet, r) {
			return false
		}
	}
	return true
}

// HostID derives the host peer identifier for a code. Every participant
// computes the same value, which is what lets the client find the host.
func HostID(code string) string {
	return derive(code, RoleHost)
}

// ClientID derives a client peer identifier for a code. A per-attempt
// uniquifier is appended so two join attempts never collide on one host.
func ClientID(code string) string {
	return derive(code, RoleClient) + "-" + uuid.New().String()[:8]
}

func derive(code string, role Role) string {
	sum := sha256.Sum256([]byte("centimo/" + Normalize(code) + "/" + string(role)))
	return "centimo-" + hex.EncodeToString(sum[:8])
}
