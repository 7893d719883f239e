package validation

import (
	"auditmgt/models"
)

// CreateAuditRequest is the POST /api/audits payload. FormData, when present,
// is checked against the full five-section schema.
type CreateAuditRequest struct {
	AuditName string           `json:"auditName" validate:"required"`
	Company   string           `json:"company" validate:"required"`
	AuditDate string           `json:"auditDate" validate:"required"`
	Auditor   string           `json:"auditor" validate:"required"`
	AuditType models.AuditType `json:"auditType" validate:"required,oneof=financial operational compliance security quality"`
	FormData  *models.FormData `json:"formData,omitempty"`
}

// UpdateAuditRequest is the PUT /api/audits/{id} payload. Nil fields are
// left untouched. There is no id or userId field, so those keys in a body
// are dropped.
type UpdateAuditRequest struct {
	AuditName *string           `json:"auditName,omitempty" validate:"omitnil,min=1"`
	Company   *string           `json:"company,omitempty" validate:"omitnil,min=1"`
	AuditDate *string           `json:"auditDate,omitempty" validate:"omitnil,min=1"`
	Auditor   *string           `json:"auditor,omitempty" validate:"omitnil,min=1"`
	Status    *models.Status    `json:"status,omitempty" validate:"omitnil,oneof=completed in-progress pending draft"`
	AuditType *models.AuditType `json:"auditType,omitempty" validate:"omitnil,oneof=financial operational compliance security quality"`
	FormData  *models.FormData  `json:"formData,omitempty"`
}

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=60"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}
