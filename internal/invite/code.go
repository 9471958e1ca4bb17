package invite

import (
	"crypto/rand"
	"fmt"
)

// codeAlphabet omits visually ambiguous characters (0/O, 1/l/I). Codes are
// opaque capability tokens, not secrets: collision-resistant and not bulk
// guessable, which rules out sequential schemes, but cryptographic strength
// is not the goal.
const codeAlphabet = "23456789abcdefghjkmnpqrstuvwxyz"

const codeLength = 10

// newCode draws a random code from the alphabet using crypto/rand.
func newCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("invite code: %w", err)
	}
	out := make([]byte, codeLength)
	for i, b := range buf {
		out[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(out), nil
}
