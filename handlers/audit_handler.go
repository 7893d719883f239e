package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"auditmgt/config"
	"auditmgt/middleware"
	"auditmgt/models"
	"auditmgt/store"
	"auditmgt/utils"
	"auditmgt/validation"
	"auditmgt/websocket"
)

const storeTimeout = 10 * time.Second

// AuditStore is the persistence the audit endpoints need.
type AuditStore interface {
	Create(ctx context.Context, in store.CreateAuditInput) (*models.Audit, error)
	GetByID(ctx context.Context, id string) (*models.Audit, error)
	ListByUser(ctx context.Context, userID string) ([]models.Audit, error)
	ListByUserAndStatus(ctx context.Context, userID string, status models.Status) ([]models.Audit, error)
	Update(ctx context.Context, id string, upd store.AuditUpdate) (*models.Audit, error)
	Delete(ctx context.Context, id string) (bool, error)
	StatsByUser(ctx context.Context, userID string) (models.AuditStats, error)
}

// EventPublisher receives audit change notifications for an owner.
type EventPublisher interface {
	Publish(userID string, event websocket.AuditEvent)
}

type AuditHandler struct {
	store   AuditStore
	policy  config.OwnershipPolicy
	events  EventPublisher
	metrics *middleware.Metrics
	logger  *slog.Logger
}

func NewAuditHandler(s AuditStore, policy config.OwnershipPolicy, events EventPublisher, metrics *middleware.Metrics, logger *slog.Logger) *AuditHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if policy == "" {
		policy = config.PolicySplit
	}
	return &AuditHandler{store: s, policy: policy, events: events, metrics: metrics, logger: logger}
}

// ownershipStatus is the response code a non-owner gets. Reads and writes
// differ only under the split policy.
func ownershipStatus(policy config.OwnershipPolicy, mutating bool) int {
	switch policy {
	case config.PolicyConceal:
		return http.StatusNotFound
	case config.PolicyReveal:
		return http.StatusForbidden
	}
	if mutating {
		return http.StatusNotFound
	}
	return http.StatusForbidden
}

func (h *AuditHandler) respondNotOwner(w http.ResponseWriter, mutating bool) {
	if ownershipStatus(h.policy, mutating) == http.StatusForbidden {
		utils.RespondWithError(w, http.StatusForbidden, "Forbidden")
		return
	}
	utils.RespondWithError(w, http.StatusNotFound, "Audit not found")
}

func (h *AuditHandler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.ErrorContext(r.Context(), msg,
		"error", err,
		"request_id", middleware.GetRequestID(r.Context()),
		"path", r.URL.Path,
	)
	utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
}

func (h *AuditHandler) publish(userID, eventType, auditID string, data interface{}) {
	if h.events == nil {
		return
	}
	h.events.Publish(userID, websocket.AuditEvent{Type: eventType, AuditID: auditID, Data: data})
}

func setETag(w http.ResponseWriter, a *models.Audit) {
	w.Header().Set("ETag", `"`+strconv.FormatInt(a.Version, 10)+`"`)
}

// parseIfMatch returns the version the client expects, nil when there is no
// precondition, or ok=false when the header cannot match any version.
func parseIfMatch(r *http.Request) (version *int64, ok bool) {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	if raw == "" || raw == "*" {
		return nil, true
	}
	raw = strings.TrimPrefix(raw, "W/")
	raw = strings.Trim(raw, `"`)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, false
	}
	return &v, true
}

// loadOwned runs the shared gates for /api/audits/{id}: session, existence,
// ownership. It writes the error response itself and returns nil on failure.
func (h *AuditHandler) loadOwned(ctx context.Context, w http.ResponseWriter, r *http.Request, mutating bool) (*models.Audit, middleware.Session) {
	sess, ok := middleware.SessionFrom(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return nil, sess
	}

	id := mux.Vars(r)["id"]
	audit, err := h.store.GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		utils.RespondWithError(w, http.StatusNotFound, "Audit not found")
		return nil, sess
	}
	if err != nil {
		h.internalError(w, r, "load audit", err)
		return nil, sess
	}

	if audit.UserID != sess.UserID {
		h.logger.WarnContext(r.Context(), "audit access by non-owner",
			"audit_id", id, "user_id", sess.UserID, "method", r.Method)
		h.respondNotOwner(w, mutating)
		return nil, sess
	}
	return audit, sess
}

// ListAudits handles GET /api/audits[?status=].
func (h *AuditHandler) ListAudits(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFrom(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	var (
		audits []models.Audit
		err    error
	)
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := models.Status(raw)
		if !status.Valid() {
			utils.RespondWithValidation(w, validation.Errors{{
				Path:    "status",
				Message: "Must be one of: completed, in-progress, pending, draft",
			}})
			return
		}
		audits, err = h.store.ListByUserAndStatus(ctx, sess.UserID, status)
	} else {
		audits, err = h.store.ListByUser(ctx, sess.UserID)
	}
	if err != nil {
		h.internalError(w, r, "list audits", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"audits": audits})
}

// CreateAudit handles POST /api/audits.
func (h *AuditHandler) CreateAudit(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFrom(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req validation.CreateAuditRequest
	if errs := validation.Decode(r.Body, &req); errs != nil {
		utils.RespondWithValidation(w, errs)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	audit, err := h.store.Create(ctx, store.CreateAuditInput{
		AuditName: req.AuditName,
		Company:   req.Company,
		AuditDate: req.AuditDate,
		Auditor:   req.Auditor,
		AuditType: req.AuditType,
		UserID:    sess.UserID,
		FormData:  req.FormData,
	})
	if err != nil {
		h.metrics.IncAuditOperation("create", "error")
		h.internalError(w, r, "create audit", err)
		return
	}

	h.metrics.IncAuditOperation("create", "ok")
	h.publish(sess.UserID, websocket.EventAuditCreated, audit.ID, audit)
	h.logger.InfoContext(r.Context(), "audit created", "audit_id", audit.ID, "user_id", sess.UserID, "status", audit.Status)

	setETag(w, audit)
	utils.RespondWithJSON(w, http.StatusCreated, map[string]interface{}{"audit": audit})
}

// GetStats handles GET /api/audits/stats.
func (h *AuditHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFrom(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	stats, err := h.store.StatsByUser(ctx, sess.UserID)
	if err != nil {
		h.internalError(w, r, "audit stats", err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"stats": stats})
}

// GetAudit handles GET /api/audits/{id}.
func (h *AuditHandler) GetAudit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	audit, _ := h.loadOwned(ctx, w, r, false)
	if audit == nil {
		return
	}
	setETag(w, audit)
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"audit": audit})
}

// UpdateAudit handles PUT /api/audits/{id}. Without If-Match the last write
// wins.
func (h *AuditHandler) UpdateAudit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	existing, sess := h.loadOwned(ctx, w, r, true)
	if existing == nil {
		return
	}

	var req validation.UpdateAuditRequest
	if errs := validation.Decode(r.Body, &req); errs != nil {
		utils.RespondWithValidation(w, errs)
		return
	}

	expected, ok := parseIfMatch(r)
	if !ok || (expected != nil && *expected != existing.Version) {
		h.metrics.IncAuditOperation("update", "precondition_failed")
		setETag(w, existing)
		utils.RespondWithError(w, http.StatusPreconditionFailed, "Audit was modified by someone else")
		return
	}

	audit, err := h.store.Update(ctx, existing.ID, store.AuditUpdate{
		AuditName:       req.AuditName,
		Company:         req.Company,
		AuditDate:       req.AuditDate,
		Auditor:         req.Auditor,
		Status:          req.Status,
		AuditType:       req.AuditType,
		FormData:        req.FormData,
		ExpectedVersion: expected,
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.metrics.IncAuditOperation("update", "not_found")
		utils.RespondWithError(w, http.StatusNotFound, "Audit not found")
		return
	case errors.Is(err, store.ErrVersionConflict):
		h.metrics.IncAuditOperation("update", "precondition_failed")
		utils.RespondWithError(w, http.StatusPreconditionFailed, "Audit was modified by someone else")
		return
	case err != nil:
		h.metrics.IncAuditOperation("update", "error")
		h.internalError(w, r, "update audit", err)
		return
	}

	h.metrics.IncAuditOperation("update", "ok")
	h.publish(sess.UserID, websocket.EventAuditUpdated, audit.ID, audit)

	setETag(w, audit)
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"audit": audit})
}

// DeleteAudit handles DELETE /api/audits/{id}.
func (h *AuditHandler) DeleteAudit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	existing, sess := h.loadOwned(ctx, w, r, true)
	if existing == nil {
		return
	}

	removed, err := h.store.Delete(ctx, existing.ID)
	if err != nil {
		h.metrics.IncAuditOperation("delete", "error")
		h.internalError(w, r, "delete audit", err)
		return
	}
	if !removed {
		h.metrics.IncAuditOperation("delete", "error")
		h.logger.ErrorContext(r.Context(), "audit vanished before delete", "audit_id", existing.ID)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to delete audit")
		return
	}

	h.metrics.IncAuditOperation("delete", "ok")
	h.publish(sess.UserID, websocket.EventAuditDeleted, existing.ID, nil)
	h.logger.InfoContext(r.Context(), "audit deleted", "audit_id", existing.ID, "user_id", sess.UserID)

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
