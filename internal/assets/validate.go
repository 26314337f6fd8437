package assets

import (
	"slices"
	"strings"
)

const (
	MiB = 1 << 20

	// MaxUploadBytes is the hard ceiling that applies to every category.
	MaxUploadBytes int64 = 10 * MiB
)

var (
	imageMimeTypes = []string{
		"image/jpeg",
		"image/jpg",
		"image/png",
		"image/gif",
		"image/webp",
	}

	documentMimeTypes = []string{
		"application/pdf",
		"image/jpeg",
		"image/jpg",
		"image/png",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	}
)

// Rule is the validation rule set for one category.
type Rule struct {
	MimeTypes []string
	MaxBytes  int64
}

// RuleFor returns the active rule for a category. Logos and photos share the
// image rule and its 5 MiB ceiling.
func RuleFor(c Category) Rule {
	switch c {
	case CategoryLogo, CategoryPhoto:
		return Rule{MimeTypes: imageMimeTypes, MaxBytes: 5 * MiB}
	default:
		return Rule{MimeTypes: documentMimeTypes, MaxBytes: MaxUploadBytes}
	}
}

// provisionalRule accepts anything some category would accept. It is used
// while the category is still unknown because the file part arrived before
// the form fields.
func provisionalRule() Rule {
	mimes := slices.Clone(documentMimeTypes)
	for _, m := range imageMimeTypes {
		if !slices.Contains(mimes, m) {
			mimes = append(mimes, m)
		}
	}
	return Rule{MimeTypes: mimes, MaxBytes: MaxUploadBytes}
}

func (r Rule) limit() int64 {
	return min(r.MaxBytes, MaxUploadBytes)
}

// checkMime reports a ValidationError when mimeType is not allowed.
func (r Rule) checkMime(c Category, mimeType string) error {
	if !slices.Contains(r.MimeTypes, normalizeMime(mimeType)) {
		if c == "" {
			return validationError(CodeInvalidFileType, "file type %q is not allowed", mimeType)
		}
		return validationError(CodeInvalidFileType, "file type %q is not allowed for %s uploads", mimeType, c)
	}
	return nil
}

func (r Rule) checkSize(size int64) error {
	if size > r.limit() {
		return validationError(CodeFileTooLarge, "file is too large: %d bytes exceeds the %d MiB limit", size, r.limit()/MiB)
	}
	return nil
}

// Validate checks a file's declared mime type and size against the rule for
// its category. A negative size means the size is not known yet, in which
// case only the mime type is checked and the limit is enforced while the
// bytes are streamed.
func Validate(c Category, mimeType string, size int64) error {
	rule := RuleFor(c)
	if err := rule.checkMime(c, mimeType); err != nil {
		return err
	}
	if size >= 0 {
		return rule.checkSize(size)
	}
	return nil
}

// normalizeMime strips parameters (e.g. "; charset=binary") and lowercases.
func normalizeMime(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}
