package room

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
)

const (
	CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	CodeLength   = 8
)

// CodeGenerator draws candidate room codes. Uniqueness is enforced by the store.
type CodeGenerator interface {
	Generate() (string, error)
}

// CodeGeneratorFunc adapts a function to CodeGenerator.
type CodeGeneratorFunc func() (string, error)

func (f CodeGeneratorFunc) Generate() (string, error) { return f() }

// RandomCodeGenerator は暗号学的乱数からルームコードを生成します。
type RandomCodeGenerator struct {
	src io.Reader
}

// NewRandomCodeGenerator returns a generator backed by src, or crypto/rand when src is nil.
func NewRandomCodeGenerator(src io.Reader) *RandomCodeGenerator {
	if src == nil {
		src = rand.Reader
	}
	return &RandomCodeGenerator{src: src}
}

func (g *RandomCodeGenerator) Generate() (string, error) {
	// 252 is the largest multiple of 36 below 256; bytes above it are rejected to keep the draw uniform.
	const limit = 256 - 256%len(CodeAlphabet)

	code := make([]byte, 0, CodeLength)
	buf := make([]byte, CodeLength*2)
	for len(code) < CodeLength {
		if _, err := io.ReadFull(g.src, buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			code = append(code, CodeAlphabet[int(b)%len(CodeAlphabet)])
			if len(code) == CodeLength {
				break
			}
		}
	}
	return string(code), nil
}

// NormalizeCode trims and upper-cases a user supplied code and checks its shape.
func NormalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !ValidCode(code) {
		return "", ErrInvalidCode
	}
	return code, nil
}

// ValidCode reports whether code has the exact length and alphabet of a room code.
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(CodeAlphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
