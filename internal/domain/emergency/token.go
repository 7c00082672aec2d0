package emergency

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
)

const (
	tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	tokenLength   = 12
	tokenGroup    = 4
)

// 36*7: bytes >= 252 se descartan para no sesgar el módulo.
const rejectAbove = byte(len(tokenAlphabet) * (256 / len(tokenAlphabet)))

// Generator produce códigos XXXX-XXXX-XXXX (~62 bits) desde una fuente
// criptográfica.
type Generator struct {
	entropy io.Reader
}

func NewGenerator(entropy io.Reader) *Generator {
	if entropy == nil {
		entropy = rand.Reader
	}
	return &Generator{entropy: entropy}
}

func (g *Generator) Generate() (string, error) {
	out := make([]byte, 0, tokenLength)
	buf := make([]byte, tokenLength*2)

	for len(out) < tokenLength {
		if _, err := io.ReadFull(g.entropy, buf); err != nil {
			return "", fmt.Errorf("emergency: read entropy: %w", err)
		}
		for _, b := range buf {
			if b >= rejectAbove {
				continue
			}
			out = append(out, tokenAlphabet[int(b)%len(tokenAlphabet)])
			if len(out) == tokenLength {
				break
			}
		}
	}
	return group(string(out)), nil
}

// Normalize acepta el código como lo tipea una persona: minúsculas,
// espacios o sin guiones.
func Normalize(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(raw) {
		if r == '-' || r == ' ' || r == '\t' {
			continue
		}
		b.WriteRune(r)
	}
	s := b.String()
	if len(s) != tokenLength {
		return s
	}
	return group(s)
}

func group(s string) string {
	parts := make([]string, 0, len(s)/tokenGroup)
	for i := 0; i < len(s); i += tokenGroup {
		parts = append(parts, s[i:i+tokenGroup])
	}
	return strings.Join(parts, "-")
}
