package intake

import (
	"path"
	"strings"
	"unicode"
)

const fallbackFileName = "image"

// sanitizeFileName reduces a client file name to a flat, URL-safe object key suffix.
func sanitizeFileName(name string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if base == "." || base == "/" || base == ".." {
		return fallbackFileName
	}
	var builder strings.Builder
	for _, r := range base {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			builder.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			builder.WriteRune(r)
		default:
			builder.WriteRune('_')
		}
	}
	cleaned := strings.Trim(builder.String(), ".")
	if cleaned == "" {
		return fallbackFileName
	}
	return cleaned
}
