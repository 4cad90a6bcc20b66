package validation

import (
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"

	"github.com/fedutinova/invoice-extractor/internal/common"
	"github.com/fedutinova/invoice-extractor/internal/upload"
)

const (
	MaxFileSize   = 10 << 20 // 10mb
	MaxTextLength = 4000
)

// AllowedExtensions is the allow-list offered by the file picker.
var AllowedExtensions = []string{"jpg", "jpeg", "png", "pdf"}

var AllowedMimeTypes = map[string]bool{
	upload.MediaTypeJPEG: true,
	upload.MediaTypePNG:  true,
	upload.MediaTypePDF:  true,
}

var validate = validator.New()

type ValidationErrors []common.ValidationError

func (e ValidationErrors) Error() string {
	var messages []string
	for _, err := range e {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

func (e ValidationErrors) Is(target error) bool {
	return target == common.ErrValidation
}

// Err returns nil for an empty set so callers can use the usual err != nil check.
func (e ValidationErrors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

type Limits struct {
	MaxFileSize   int64
	MaxTextLength int
}

func DefaultLimits() Limits {
	return Limits{MaxFileSize: MaxFileSize, MaxTextLength: MaxTextLength}
}

// ValidateUpload checks one selected file against the allow-list and size
// limit. A nil header is not a validation error: it is the missing input case
// and is reported by the upload package.
func ValidateUpload(file *multipart.FileHeader, limits Limits) ValidationErrors {
	var errors ValidationErrors
	if file == nil {
		return nil
	}

	if file.Size > limits.MaxFileSize {
		errors = append(errors, common.ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("file %s exceeds maximum size of %d bytes", file.Filename, limits.MaxFileSize),
		})
		return errors
	}

	if file.Size == 0 {
		errors = append(errors, common.ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("file %s is empty", file.Filename),
		})
		return errors
	}

	ext := upload.NormalizeExt(filepath.Ext(file.Filename))
	if !isAllowedExtension(ext) {
		errors = append(errors, common.ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("file %s has unsupported extension %q (supported: %s)", file.Filename, ext, strings.Join(AllowedExtensions, ", ")),
		})
		return errors
	}

	contentType := upload.Canonical(file.Header.Get("Content-Type"))
	if contentType != "" && contentType != "application/octet-stream" && !AllowedMimeTypes[contentType] {
		errors = append(errors, common.ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("file %s has unsupported content type: %s", file.Filename, contentType),
		})
	}

	if sniffed, err := sniff(file); err == nil && !AllowedMimeTypes[sniffed] {
		errors = append(errors, common.ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("file %s content looks like %s, not an image or PDF", file.Filename, sniffed),
		})
	}

	return errors
}

// ValidateInstruction bounds the free-text instruction. Its content is not
// inspected.
func ValidateInstruction(instruction string, limits Limits) ValidationErrors {
	if err := validate.Var(instruction, fmt.Sprintf("max=%d", limits.MaxTextLength)); err != nil {
		return ValidationErrors{{
			Field:   "instruction",
			Message: fmt.Sprintf("instruction exceeds maximum length of %d characters", limits.MaxTextLength),
		}}
	}
	return nil
}

func isAllowedExtension(ext string) bool {
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func sniff(file *multipart.FileHeader) (string, error) {
	f, err := file.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()

	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return "", err
	}
	return upload.Canonical(mt.String()), nil
}
