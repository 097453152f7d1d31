package dialog

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// Booking code format: "NL-" followed by 16 characters from a 32-symbol
// alphabet with look-alike letters removed, giving 80 bits of entropy from
// crypto/rand. Codes are shared verbally and typed into the secure page.
const (
	codePrefix   = "NL-"
	codeLength   = 16
	codeAlphabet = "ABCDEFGHJKMNPQRSTVWXYZ0123456789"

	// maxMintAttempts bounds collision re-minting. At 80 bits a collision
	// is already negligible; hitting the bound means the entropy source is broken.
	maxMintAttempts = 5
)

var codePattern = regexp.MustCompile(`\bNL-[A-Z0-9]{4,16}\b`)

// ExtractBookingCode pulls the first booking code quoted in free text,
// or returns "" when none is present.
func ExtractBookingCode(text string) string {
	return codePattern.FindString(strings.ToUpper(text))
}

// CodeMinter mints booking codes. Implemented by CodeIssuer; the interface
// exists so tests can substitute a deterministic minter.
type CodeMinter interface {
	Mint() (string, error)
}

// CodeIssuer generates unique, hard-to-guess booking codes. The taken
// callback reports whether a candidate code is already in use; collisions
// are retried internally and never surface to the caller.
type CodeIssuer struct {
	taken func(code string) bool
}

// NewCodeIssuer creates a CodeIssuer. taken may be nil if uniqueness is
// enforced elsewhere.
func NewCodeIssuer(taken func(code string) bool) *CodeIssuer {
	return &CodeIssuer{taken: taken}
}

// Mint produces a new booking code, re-minting on collision.
func (i *CodeIssuer) Mint() (string, error) {
	for attempt := 0; attempt < maxMintAttempts; attempt++ {
		buf := make([]byte, codeLength)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes for booking code: %w", err)
		}
		var b strings.Builder
		b.Grow(len(codePrefix) + codeLength)
		b.WriteString(codePrefix)
		for _, by := range buf {
			b.WriteByte(codeAlphabet[int(by)%len(codeAlphabet)])
		}
		code := b.String()
		if i.taken != nil && i.taken(code) {
			slog.Debug("CodeIssuer.Mint: collision, re-minting", "attempt", attempt+1)
			continue
		}
		return code, nil
	}
	return "", fmt.Errorf("failed to mint a unique booking code after %d attempts", maxMintAttempts)
}
