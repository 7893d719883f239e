// Package uploader is the client-side document queue. Files are checked
// when added, so rejected ones never reach the network, then uploaded one at
// a time in the order they were added.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"auditmgt/models"
	"auditmgt/validation"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
)

var ErrUnknownItem = errors.New("no such file in the queue")

// Uploader sends one file. The API client satisfies it.
type Uploader interface {
	Upload(ctx context.Context, name, contentType string, body io.Reader) (*models.UploadedFile, error)
}

// OpenFunc yields the file body each time an upload is attempted.
type OpenFunc func() (io.ReadCloser, error)

// Item is a snapshot of one queued file.
type Item struct {
	ID     string
	Name   string
	Size   int64
	Type   string
	Status Status
	Error  string
	Result *models.UploadedFile
}

type entry struct {
	Item
	open OpenFunc
}

type Queue struct {
	up       Uploader
	maxBytes int64
	// OnChange, when set, sees every status transition.
	OnChange func(Item)

	mu    sync.Mutex
	items []*entry
}

// NewQueue returns a queue that rejects files over maxBytes. Zero means
// validation.MaxFileSize.
func NewQueue(up Uploader, maxBytes int64) *Queue {
	if maxBytes <= 0 {
		maxBytes = validation.MaxFileSize
	}
	return &Queue{up: up, maxBytes: maxBytes}
}

// Add queues a file. Invalid files are queued straight into the error state
// with the reason.
func (q *Queue) Add(name, contentType string, size int64, open OpenFunc) Item {
	e := &entry{
		Item: Item{
			ID:     uuid.NewString(),
			Name:   name,
			Size:   size,
			Type:   validation.NormalizeMIME(contentType),
			Status: StatusPending,
		},
		open: open,
	}
	if err := validation.File(contentType, size, q.maxBytes); err != nil {
		e.Status = StatusError
		e.Error = err.Error()
	}

	q.mu.Lock()
	q.items = append(q.items, e)
	snap := e.Item
	q.mu.Unlock()

	q.notify(snap)
	return snap
}

// AddFile queues a file from disk, detecting its type from content.
func (q *Queue) AddFile(path string) (Item, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Item{}, err
	}
	if info.IsDir() {
		return Item{}, fmt.Errorf("%s is a directory", path)
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return Item{}, fmt.Errorf("detect type of %s: %w", path, err)
	}
	open := func() (io.ReadCloser, error) { return os.Open(path) }
	return q.Add(filepath.Base(path), mt.String(), info.Size(), open), nil
}

// Remove drops a file that is not currently uploading.
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.items {
		if e.ID != id {
			continue
		}
		if e.Status == StatusUploading {
			return fmt.Errorf("%s is uploading", e.Name)
		}
		q.items = append(q.items[:i], q.items[i+1:]...)
		return nil
	}
	return ErrUnknownItem
}

func (q *Queue) Items() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Item, 0, len(q.items))
	for _, e := range q.items {
		out = append(out, e.Item)
	}
	return out
}

// Run uploads every pending file, one at a time, in queue order. Per-file
// failures are recorded on the item; only a cancelled context stops the run.
func (q *Queue) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		e := q.nextPending()
		if e == nil {
			return nil
		}
		q.upload(ctx, e)
	}
}

// Retry uploads a single file again, whatever its current state, unless it
// is uploading right now or fails validation again.
func (q *Queue) Retry(ctx context.Context, id string) (Item, error) {
	q.mu.Lock()
	var e *entry
	for _, it := range q.items {
		if it.ID == id {
			e = it
			break
		}
	}
	if e == nil {
		q.mu.Unlock()
		return Item{}, ErrUnknownItem
	}
	if e.Status == StatusUploading {
		q.mu.Unlock()
		return e.Item, fmt.Errorf("%s is uploading", e.Name)
	}
	if err := validation.File(e.Type, e.Size, q.maxBytes); err != nil {
		e.Status = StatusError
		e.Error = err.Error()
		snap := e.Item
		q.mu.Unlock()
		return snap, err
	}
	q.mu.Unlock()

	q.upload(ctx, e)

	q.mu.Lock()
	defer q.mu.Unlock()
	if e.Status == StatusError {
		return e.Item, errors.New(e.Error)
	}
	return e.Item, nil
}

// Documents lists the successful uploads in queue order, ready for the
// documents section of the audit form.
func (q *Queue) Documents() []models.DocumentRef {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []models.DocumentRef
	for _, e := range q.items {
		if e.Status == StatusSuccess && e.Result != nil {
			out = append(out, e.Result.Ref())
		}
	}
	return out
}

// Settled reports whether no file is pending or uploading.
func (q *Queue) Settled() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.items {
		if e.Status == StatusPending || e.Status == StatusUploading {
			return false
		}
	}
	return true
}

func (q *Queue) nextPending() *entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.items {
		if e.Status == StatusPending {
			return e
		}
	}
	return nil
}

func (q *Queue) upload(ctx context.Context, e *entry) {
	q.transition(e, StatusUploading, "", nil)

	body, err := e.open()
	if err != nil {
		q.transition(e, StatusError, err.Error(), nil)
		return
	}
	res, err := q.up.Upload(ctx, e.Name, e.Type, body)
	body.Close()
	if err != nil {
		q.transition(e, StatusError, err.Error(), nil)
		return
	}
	q.transition(e, StatusSuccess, "", res)
}

func (q *Queue) transition(e *entry, status Status, msg string, res *models.UploadedFile) {
	q.mu.Lock()
	e.Status = status
	e.Error = msg
	if res != nil {
		e.Result = res
	}
	snap := e.Item
	q.mu.Unlock()
	q.notify(snap)
}

func (q *Queue) notify(it Item) {
	if q.OnChange != nil {
		q.OnChange(it)
	}
}
