package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditmgt/models"
)

func multipartBody(t *testing.T, field, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
		if contentType != "" {
			h.Set("Content-Type", contentType)
		}
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	} else {
		require.NoError(t, mw.WriteField("note", "no file here"))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func upload(t *testing.T, h *UploadHandler, field, filename, contentType string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, field, filename, contentType, content)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.Upload(rec, req)
	return rec
}

func TestUploadHandler_StoresAllowedFile(t *testing.T) {
	blobs := &fakeBlobStore{}
	h := NewUploadHandler(blobs, 0, nil, nil)
	h.now = func() time.Time { return time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC) }

	content := bytes.Repeat([]byte("a"), 2048)
	rec := upload(t, h, "file", "report.pdf", "application/pdf", content)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Success bool                `json:"success"`
		File    models.UploadedFile `json:"file"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.NotEmpty(t, body.File.ID)
	assert.Equal(t, "report.pdf", body.File.Name)
	assert.Equal(t, int64(2048), body.File.Size)
	assert.Equal(t, "application/pdf", body.File.Type)
	assert.Equal(t, "https://files.example.com/stored-key", body.File.URL)
	assert.Equal(t, "2024-03-01T09:30:00.000Z", body.File.UploadedAt)

	assert.Equal(t, 1, blobs.calls)
	assert.Equal(t, int64(2048), blobs.written)
	assert.Equal(t, "application/pdf", blobs.last.ContentType)
}

func TestUploadHandler_RejectsOversizedFile(t *testing.T) {
	blobs := &fakeBlobStore{}
	h := NewUploadHandler(blobs, 0, nil, nil)

	rec := upload(t, h, "file", "huge.pdf", "application/pdf", make([]byte, 15<<20))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, blobs.calls)
}

func TestUploadHandler_SizeMessageUsesConfiguredLimit(t *testing.T) {
	blobs := &fakeBlobStore{}
	h := NewUploadHandler(blobs, 1<<20, nil, nil)

	rec := upload(t, h, "file", "big.pdf", "application/pdf", make([]byte, 1<<20+512))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "File size must be less than 1MB", decodeError(t, rec).Error)
	assert.Zero(t, blobs.calls)
}

func TestUploadHandler_RejectsDisallowedType(t *testing.T) {
	blobs := &fakeBlobStore{}
	h := NewUploadHandler(blobs, 0, nil, nil)

	rec := upload(t, h, "file", "setup.exe", "application/x-msdownload", []byte("MZ\x90\x00"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "File type not supported. Please upload PDF, Word, Excel, or image files.", decodeError(t, rec).Error)
	assert.Zero(t, blobs.calls)
}

func TestUploadHandler_MissingFile(t *testing.T) {
	blobs := &fakeBlobStore{}
	h := NewUploadHandler(blobs, 0, nil, nil)

	rec := upload(t, h, "", "", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file provided", decodeError(t, rec).Error)

	req := httptest.NewRequest(http.MethodPost, "/api/upload", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	h.Upload(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file provided", decodeError(t, rec).Error)
	assert.Zero(t, blobs.calls)
}

func TestUploadHandler_SniffsGenericType(t *testing.T) {
	blobs := &fakeBlobStore{}
	h := NewUploadHandler(blobs, 0, nil, nil)

	pdf := []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n%%EOF\n")
	rec := upload(t, h, "file", "scan", "application/octet-stream", pdf)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", blobs.last.ContentType)
	assert.Equal(t, int64(len(pdf)), blobs.written)

	rec = upload(t, h, "file", "blob.bin", "application/octet-stream", []byte{0x00, 0x01, 0x02, 0x03})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 1, blobs.calls)
}

func TestUploadHandler_BackendFailure(t *testing.T) {
	blobs := &fakeBlobStore{err: errors.New("bucket unreachable")}
	h := NewUploadHandler(blobs, 0, nil, nil)

	rec := upload(t, h, "file", "notes.txt", "text/plain; charset=utf-8", []byte("hello"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", decodeError(t, rec).Error)
	assert.Equal(t, "text/plain", blobs.last.ContentType)
}
