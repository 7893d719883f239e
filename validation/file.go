package validation

import (
	"errors"
	"fmt"
	"strings"
)

// MaxFileSize is the upload ceiling shared by the API and the client queue.
const MaxFileSize int64 = 10 * 1024 * 1024

var (
	ErrFileTooLarge    = errors.New("file too large")
	ErrFileEmpty       = errors.New("file is empty")
	ErrUnsupportedType = errors.New("unsupported file type")
)

// AllowedFileTypes is the MIME allow-list for audit documents.
var AllowedFileTypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"image/jpeg",
	"image/jpg",
	"image/png",
	"image/gif",
	"text/plain",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// FileError carries the user-facing message for a rejected file. Kind is one
// of the sentinel errors above and is matched with errors.Is.
type FileError struct {
	Kind    error
	Message string
}

func (e *FileError) Error() string { return e.Message }

func (e *FileError) Unwrap() error { return e.Kind }

// NormalizeMIME lowercases and strips parameters (text/plain; charset=utf-8).
func NormalizeMIME(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	return mimeType
}

// AllowedFileType reports whether mimeType is on the allow-list.
func AllowedFileType(mimeType string) bool {
	mimeType = NormalizeMIME(mimeType)
	for _, allowed := range AllowedFileTypes {
		if mimeType == allowed {
			return true
		}
	}
	return false
}

// File checks size first, then type, against the given ceiling. A maxSize of
// zero or less means MaxFileSize.
func File(mimeType string, size int64, maxSize int64) error {
	if maxSize <= 0 {
		maxSize = MaxFileSize
	}
	if size > maxSize {
		return &FileError{
			Kind:    ErrFileTooLarge,
			Message: fmt.Sprintf("File size must be less than %dMB", maxSize/1024/1024),
		}
	}
	if size <= 0 {
		return &FileError{Kind: ErrFileEmpty, Message: "File is empty"}
	}
	if !AllowedFileType(mimeType) {
		return &FileError{
			Kind:    ErrUnsupportedType,
			Message: "File type not supported. Please upload PDF, Word, Excel, or image files.",
		}
	}
	return nil
}
