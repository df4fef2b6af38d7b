package files

import (
	"crypto/rand"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	// maxBaseLength clamps the sanitized name (without suffix and
	// extension).
	maxBaseLength = 100

	// suffixLength is the random uniqueness suffix appended to every
	// stored filename.
	suffixLength = 10
)

var (
	unsafeChars   = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)
	collapsedRuns = regexp.MustCompile(`_{2,}`)
	suffixAlpha   = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// SanitizeFilename converts an uploaded filename into a filesystem-safe
// stored name: basename only, unsafe characters replaced, runs
// collapsed, length clamped, extension lowercased, and a random
// 10-character suffix appended for uniqueness.
func SanitizeFilename(name string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(name, `\`, `/`))
	ext := strings.ToLower(filepath.Ext(base))
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	stem = unsafeChars.ReplaceAllString(stem, "_")
	stem = collapsedRuns.ReplaceAllString(stem, "_")
	stem = strings.Trim(stem, "._")
	if stem == "" {
		stem = "file"
	}
	if len(stem) > maxBaseLength {
		stem = stem[:maxBaseLength]
	}

	suffix, err := randomSuffix()
	if err != nil {
		return "", err
	}
	return stem + "_" + suffix + ext, nil
}

func randomSuffix() (string, error) {
	buf := make([]byte, suffixLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate filename suffix: %w", err)
	}
	out := make([]byte, suffixLength)
	for i, b := range buf {
		out[i] = suffixAlpha[int(b)%len(suffixAlpha)]
	}
	return string(out), nil
}

// MatchMIME reports whether contentType matches pattern. Patterns are
// "*/*", "kind/*" or an exact type.
func MatchMIME(pattern, contentType string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	// Strip parameters like "; charset=utf-8".
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	if pattern == "*/*" || pattern == "*" {
		return true
	}
	if kind, ok := strings.CutSuffix(pattern, "/*"); ok {
		return strings.HasPrefix(contentType, kind+"/")
	}
	return pattern == contentType
}
