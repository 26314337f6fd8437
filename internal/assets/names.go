package assets

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

const maxBaseNameLength = 64

// SanitizeFilename strips any directory components from name and replaces
// every character outside [A-Za-z0-9._-] with an underscore.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "\x00", "")

	var b strings.Builder
	for _, r := range name {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	name = strings.TrimLeft(b.String(), ".")
	if name == "" || name == "/" {
		return "unnamed"
	}
	return name
}

// splitName returns the base name and the lowercased extension of a
// sanitized filename.
func splitName(sanitized string) (string, string) {
	ext := strings.ToLower(filepath.Ext(sanitized))
	base := strings.TrimSuffix(sanitized, filepath.Ext(sanitized))
	if base == "" {
		base = "file"
	}
	if len(base) > maxBaseNameLength {
		base = base[:maxBaseNameLength]
	}
	return base, ext
}

// randomToken returns a short random string for generated names.
func randomToken() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")[:12]
}

// GenerateName builds {epochMillis}-{randomToken}-{sanitizedBaseName}{ext}.
// The timestamp and token make names unique across concurrent uploads
// without any coordination.
func GenerateName(now time.Time, token string, sanitized string) string {
	base, ext := splitName(sanitized)
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + token + "-" + base + ext
}
