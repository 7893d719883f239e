package uploader

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditmgt/models"
)

type scriptedUploader struct {
	mu       sync.Mutex
	order    []string
	failures map[string]int
}

func (u *scriptedUploader) Upload(_ context.Context, name, contentType string, body io.Reader) (*models.UploadedFile, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.order = append(u.order, name)
	if u.failures[name] > 0 {
		u.failures[name]--
		return nil, errors.New("500 Internal server error")
	}
	return &models.UploadedFile{
		ID:   "id-" + name,
		Name: name,
		Size: int64(len(data)),
		Type: contentType,
		URL:  "/files/" + name,
	}, nil
}

func text(s string) OpenFunc {
	return func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader(s)), nil }
}

func TestQueue_ValidatesOnAdd(t *testing.T) {
	up := &scriptedUploader{}
	q := NewQueue(up, 0)

	big := q.Add("huge.pdf", "application/pdf", 15<<20, text(""))
	assert.Equal(t, StatusError, big.Status)
	assert.Equal(t, "File size must be less than 10MB", big.Error)

	exe := q.Add("setup.exe", "application/x-msdownload", 1024, text("MZ"))
	assert.Equal(t, StatusError, exe.Status)
	assert.Contains(t, exe.Error, "File type not supported")

	ok := q.Add("notes.txt", "text/plain; charset=utf-8", 5, text("hello"))
	assert.Equal(t, StatusPending, ok.Status)
	assert.Equal(t, "text/plain", ok.Type)

	require.NoError(t, q.Run(context.Background()))
	assert.Equal(t, []string{"notes.txt"}, up.order)
}

func TestQueue_RunIsSequentialInOrder(t *testing.T) {
	up := &scriptedUploader{failures: map[string]int{"b.pdf": 1}}
	q := NewQueue(up, 0)

	var seen []Status
	q.OnChange = func(it Item) {
		if it.Name == "a.pdf" {
			seen = append(seen, it.Status)
		}
	}

	q.Add("a.pdf", "application/pdf", 3, text("aaa"))
	b := q.Add("b.pdf", "application/pdf", 3, text("bbb"))
	q.Add("c.png", "image/png", 3, text("ccc"))

	require.NoError(t, q.Run(context.Background()))
	assert.Equal(t, []string{"a.pdf", "b.pdf", "c.png"}, up.order)
	assert.Equal(t, []Status{StatusPending, StatusUploading, StatusSuccess}, seen)
	assert.True(t, q.Settled())

	items := q.Items()
	require.Len(t, items, 3)
	assert.Equal(t, StatusSuccess, items[0].Status)
	assert.Equal(t, StatusError, items[1].Status)
	assert.Equal(t, "500 Internal server error", items[1].Error)
	assert.Equal(t, StatusSuccess, items[2].Status)

	docs := q.Documents()
	require.Len(t, docs, 2)
	assert.Equal(t, "a.pdf", docs[0].Name)
	assert.Equal(t, "/files/c.png", docs[1].URL)

	retried, err := q.Retry(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, retried.Status)
	assert.Equal(t, []string{"a.pdf", "b.pdf", "c.png", "b.pdf"}, up.order)

	docs = q.Documents()
	require.Len(t, docs, 3)
	assert.Equal(t, "b.pdf", docs[1].Name)
}

func TestQueue_RetryRevalidates(t *testing.T) {
	up := &scriptedUploader{}
	q := NewQueue(up, 0)
	exe := q.Add("setup.exe", "application/x-msdownload", 10, text("MZ"))

	_, err := q.Retry(context.Background(), exe.ID)
	require.Error(t, err)
	assert.Empty(t, up.order)

	_, err = q.Retry(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUnknownItem)
}

func TestQueue_RunStopsOnCancel(t *testing.T) {
	up := &scriptedUploader{}
	q := NewQueue(up, 0)
	q.Add("a.pdf", "application/pdf", 1, text("a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, q.Run(ctx), context.Canceled)
	assert.Empty(t, up.order)
	assert.False(t, q.Settled())
}

func TestQueue_OpenFailure(t *testing.T) {
	q := NewQueue(&scriptedUploader{}, 0)
	it := q.Add("gone.pdf", "application/pdf", 1, func() (io.ReadCloser, error) {
		return nil, os.ErrNotExist
	})
	require.NoError(t, q.Run(context.Background()))
	items := q.Items()
	assert.Equal(t, it.ID, items[0].ID)
	assert.Equal(t, StatusError, items[0].Status)
}

func TestQueue_AddFileDetectsType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scan")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4\n%%EOF\n"), 0o600))

	up := &scriptedUploader{}
	q := NewQueue(up, 0)
	it, err := q.AddFile(path)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", it.Type)
	assert.Equal(t, StatusPending, it.Status)

	_, err = q.AddFile(filepath.Join(dir, "missing.pdf"))
	assert.Error(t, err)

	require.NoError(t, q.Run(context.Background()))
	assert.Equal(t, []string{"scan"}, up.order)
}

func TestQueue_Remove(t *testing.T) {
	q := NewQueue(&scriptedUploader{}, 0)
	it := q.Add("a.pdf", "application/pdf", 1, text("a"))
	require.NoError(t, q.Remove(it.ID))
	assert.Empty(t, q.Items())
	assert.ErrorIs(t, q.Remove(it.ID), ErrUnknownItem)
}
