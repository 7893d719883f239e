package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"auditmgt/blob"
	"auditmgt/middleware"
	"auditmgt/models"
	"auditmgt/store"
	"auditmgt/utils"
	"auditmgt/validation"
)

const (
	uploadField = "file"
	// multipartOverhead covers boundaries and part headers on top of the
	// file itself.
	multipartOverhead = 1 << 20
	uploadMemory      = 8 << 20
	uploadTimeout     = 2 * time.Minute
)

type UploadHandler struct {
	blobs    blob.Store
	maxBytes int64
	metrics  *middleware.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

func NewUploadHandler(blobs blob.Store, maxBytes int64, metrics *middleware.Metrics, logger *slog.Logger) *UploadHandler {
	if maxBytes <= 0 {
		maxBytes = validation.MaxFileSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadHandler{blobs: blobs, maxBytes: maxBytes, metrics: metrics, logger: logger, now: time.Now}
}

// Upload handles POST /api/upload. Size and type are checked before the blob
// backend is touched.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(uploadMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.reject(w, validation.File("", h.maxBytes+1, h.maxBytes))
			return
		}
		if !errors.Is(err, http.ErrNotMultipart) && !errors.Is(err, http.ErrMissingBoundary) {
			h.logger.DebugContext(r.Context(), "unreadable multipart body", "error", err)
		}
		h.metrics.ObserveUpload("rejected", 0)
		utils.RespondWithError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		h.metrics.ObserveUpload("rejected", 0)
		utils.RespondWithError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	if header.Size <= h.maxBytes && needsSniff(mimeType) {
		mimeType, err = sniff(file)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "sniff upload type", "error", err)
			utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
	}
	if err := validation.File(mimeType, header.Size, h.maxBytes); err != nil {
		h.reject(w, err)
		return
	}
	mimeType = validation.NormalizeMIME(mimeType)

	ctx, cancel := context.WithTimeout(r.Context(), uploadTimeout)
	defer cancel()

	stored, err := h.blobs.Put(ctx, blob.Object{
		Name:        header.Filename,
		ContentType: mimeType,
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		h.metrics.ObserveUpload("error", 0)
		h.logger.ErrorContext(r.Context(), "store upload",
			"error", err,
			"name", header.Filename,
			"size", header.Size,
			"request_id", middleware.GetRequestID(r.Context()),
		)
		utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	uploaded := models.UploadedFile{
		ID:         uuid.NewString(),
		Name:       header.Filename,
		Size:       header.Size,
		Type:       mimeType,
		URL:        stored.URL,
		UploadedAt: h.now().UTC().Format(store.TimeLayout),
	}
	h.metrics.ObserveUpload("ok", header.Size)

	attrs := []any{"key", stored.Key, "size", header.Size, "type", mimeType}
	if sess, ok := middleware.SessionFrom(r.Context()); ok {
		attrs = append(attrs, "user_id", sess.UserID)
	}
	h.logger.InfoContext(r.Context(), "file uploaded", attrs...)

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"file":    uploaded,
	})
}

func (h *UploadHandler) reject(w http.ResponseWriter, err error) {
	h.metrics.ObserveUpload("rejected", 0)
	utils.RespondWithError(w, http.StatusBadRequest, err.Error())
}

func needsSniff(mimeType string) bool {
	switch validation.NormalizeMIME(mimeType) {
	case "", "application/octet-stream":
		return true
	}
	return false
}

// sniff detects the type from content and rewinds the file.
func sniff(file multipart.File) (string, error) {
	mt, err := mimetype.DetectReader(file)
	if err != nil {
		return "", err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return mt.String(), nil
}
