// Package blob stores uploaded audit documents and hands back a public URL.
package blob

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Object is a file ready to be stored. Size must be exact.
type Object struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Stored is where an object ended up.
type Stored struct {
	Key string
	URL string
}

type Store interface {
	Put(ctx context.Context, obj Object) (Stored, error)
}

// NewKey returns a collision-free object key that keeps the original
// extension, e.g. 1b4e28ba-2fa1-11d2-883f-0016d3cca427.pdf.
func NewKey(name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if len(ext) > 10 || strings.ContainsAny(ext, `/\ `) {
		ext = ""
	}
	return uuid.NewString() + ext
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
