package attachment

import (
	"fmt"
	"mime"
	"strings"
)

// MIME types accepted for resumes.
const (
	TypePDF  = "application/pdf"
	TypeDOC  = "application/msword"
	TypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

const megabyte = 1024 * 1024

// Validation failure codes.
const (
	CodeBadType  = "bad-type"
	CodeTooLarge = "too-large"
)

// Rules is the upload policy a selected file is checked against.
type Rules struct {
	AllowedTypes []string
	MaxBytes     int64
}

// DefaultRules is the careers form policy: a PDF no larger than 3 MB.
func DefaultRules() Rules {
	return Rules{
		AllowedTypes: []string{TypePDF},
		MaxBytes:     3 * megabyte,
	}
}

// FileInfo is what the validator needs to know about a selected file.
type FileInfo struct {
	MimeType  string
	SizeBytes int64
}

// Result of a validation. Code is empty when the file passed.
type Result struct {
	Code    string
	Message string
}

// OK reports whether the file may be submitted.
func (r Result) OK() bool { return r.Code == "" }

// Validate checks a file against rules. Type is checked before size, so a file of the
// wrong kind is always reported as CodeBadType.
func Validate(file FileInfo, rules Rules) Result {
	if !rules.Allows(file.MimeType) {
		return Result{Code: CodeBadType, Message: fmt.Sprintf("Please upload a %s file.", rules.kinds())}
	}
	if file.SizeBytes > rules.MaxBytes {
		return Result{
			Code:    CodeTooLarge,
			Message: fmt.Sprintf("File is too large (%s). Max %s.", FormatBytes(file.SizeBytes), FormatBytes(rules.MaxBytes)),
		}
	}
	return Result{}
}

// Allows reports whether mimeType is on the allow-list. Parameters and case are ignored.
func (r Rules) Allows(mimeType string) bool {
	mediaType := normalize(mimeType)
	if mediaType == "" {
		return false
	}
	for _, allowed := range r.AllowedTypes {
		if normalize(allowed) == mediaType {
			return true
		}
	}
	return false
}

// Placeholder is the label shown while no file is selected.
func (r Rules) Placeholder() string {
	return fmt.Sprintf("Choose a %s (max %s)", r.kinds(), limitLabel(r.MaxBytes))
}

// Hint is shown under a selected file that passed validation.
func (r Rules) Hint() string {
	return fmt.Sprintf("Looks good. %s under %s.", r.kinds(), FormatBytes(r.MaxBytes))
}

// Summary is the banner used when submit is blocked by an invalid file.
func (r Rules) Summary() string {
	return fmt.Sprintf("Please choose a valid %s under %s.", r.kinds(), limitLabel(r.MaxBytes))
}

func (r Rules) kinds() string {
	var names []string
	seen := map[string]bool{}
	for _, t := range r.AllowedTypes {
		name := kindName(normalize(t))
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	switch len(names) {
	case 0:
		return "supported"
	case 1:
		return names[0]
	default:
		return strings.Join(names[:len(names)-1], ", ") + " or " + names[len(names)-1]
	}
}

func kindName(mediaType string) string {
	switch mediaType {
	case TypePDF:
		return "PDF"
	case TypeDOC, TypeDOCX:
		return "Word"
	default:
		return mediaType
	}
}

// FormatBytes renders n in megabytes: two decimals below 0.1 MB, one otherwise.
func FormatBytes(n int64) string {
	mb := float64(n) / megabyte
	if mb < 0.1 {
		return fmt.Sprintf("%.2f MB", mb)
	}
	return fmt.Sprintf("%.1f MB", mb)
}

// limitLabel renders a size limit compactly: "3MB" for whole megabytes, else "5.5MB".
func limitLabel(n int64) string {
	if n%megabyte == 0 {
		return fmt.Sprintf("%dMB", n/megabyte)
	}
	return strings.ReplaceAll(FormatBytes(n), " ", "")
}

func normalize(mimeType string) string {
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		return ""
	}
	if mediaType, _, err := mime.ParseMediaType(mimeType); err == nil {
		return mediaType
	}
	return strings.ToLower(mimeType)
}
