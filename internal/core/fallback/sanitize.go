package fallback

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"regexp"
	"strings"
)

const maskChar = "*"

var longDigitRun = regexp.MustCompile(`\d{8,}`)

// SanitizeText masks digit runs of eight or more, keeping the first two and
// last two digits.
func SanitizeText(text string) string {
	return longDigitRun.ReplaceAllStringFunc(text, func(run string) string {
		return run[:2] + strings.Repeat(maskChar, len(run)-4) + run[len(run)-2:]
	})
}

// HashText returns the hex SHA-256 of text.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// HashFile returns the hex SHA-256 of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
