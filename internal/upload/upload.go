// Package upload turns one user-selected invoice file into raw bytes plus a
// media type. It never touches the disk and does not enforce the allow-list;
// callers validate before reading.
package upload

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/fedutinova/invoice-extractor/internal/common"
)

const (
	MediaTypeJPEG = "image/jpeg"
	MediaTypePNG  = "image/png"
	MediaTypePDF  = "application/pdf"

	octetStream = "application/octet-stream"
)

// ExtensionTypes maps accepted file extensions to their media type.
var ExtensionTypes = map[string]string{
	"jpg":  MediaTypeJPEG,
	"jpeg": MediaTypeJPEG,
	"png":  MediaTypePNG,
	"pdf":  MediaTypePDF,
}

var aliases = map[string]string{
	"image/jpg":         MediaTypeJPEG,
	"image/pjpeg":       MediaTypeJPEG,
	"image/x-png":       MediaTypePNG,
	"application/x-pdf": MediaTypePDF,
}

// File is an uploaded invoice held in memory for one session.
type File struct {
	Name      string `json:"name"`
	Data      []byte `json:"data"`
	MediaType string `json:"media_type"`
}

func (f *File) Size() int {
	if f == nil {
		return 0
	}
	return len(f.Data)
}

// IsImage reports whether the file can be previewed with an <img> tag.
func (f *File) IsImage() bool {
	return f != nil && strings.HasPrefix(f.MediaType, "image/")
}

// Clone returns a copy that does not share the byte slice.
func (f *File) Clone() *File {
	if f == nil {
		return nil
	}
	cp := *f
	cp.Data = bytes.Clone(f.Data)
	return &cp
}

// FromMultipart reads a multipart file header. A nil header means the user
// never selected a file.
func FromMultipart(fh *multipart.FileHeader) (*File, error) {
	if fh == nil {
		return nil, common.MissingInputError{}
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer f.Close()

	return Read(fh.Filename, f, fh.Header.Get("Content-Type"))
}

// Read consumes r and returns its bytes unchanged together with the declared
// media type. The type is sniffed only when nothing useful was declared.
func Read(name string, r io.Reader, declared string) (*File, error) {
	if r == nil {
		return nil, common.MissingInputError{}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read file data: %w", err)
	}
	if len(data) == 0 {
		return nil, common.MissingInputError{Reason: fmt.Sprintf("file %s is empty", name)}
	}

	return &File{
		Name:      filepath.Base(name),
		Data:      data,
		MediaType: ResolveMediaType(declared, name, data),
	}, nil
}

// ResolveMediaType canonicalises the declared type, falling back to content
// sniffing and then to the file extension.
func ResolveMediaType(declared, name string, data []byte) string {
	if mt := Canonical(declared); mt != "" && mt != octetStream {
		return mt
	}
	if len(data) > 0 {
		if detected := Canonical(mimetype.Detect(data).String()); detected != octetStream && detected != "text/plain" {
			return detected
		}
	}
	if mt, ok := ExtensionTypes[NormalizeExt(filepath.Ext(name))]; ok {
		return mt
	}
	return octetStream
}

// Canonical strips parameters, lowercases and resolves common aliases.
func Canonical(mediaType string) string {
	mediaType = strings.TrimSpace(mediaType)
	if mediaType == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(mediaType); err == nil {
		mediaType = parsed
	}
	mediaType = strings.ToLower(mediaType)
	if alias, ok := aliases[mediaType]; ok {
		return alias
	}
	return mediaType
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
