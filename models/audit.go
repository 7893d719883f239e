// models/audit.go
package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Status string

const (
	StatusCompleted  Status = "completed"
	StatusInProgress Status = "in-progress"
	StatusPending    Status = "pending"
	StatusDraft      Status = "draft"
)

// Statuses lists every status value in display order.
var Statuses = []Status{StatusCompleted, StatusInProgress, StatusPending, StatusDraft}

func (s Status) Valid() bool {
	switch s {
	case StatusCompleted, StatusInProgress, StatusPending, StatusDraft:
		return true
	}
	return false
}

type AuditType string

const (
	AuditTypeFinancial   AuditType = "financial"
	AuditTypeOperational AuditType = "operational"
	AuditTypeCompliance  AuditType = "compliance"
	AuditTypeSecurity    AuditType = "security"
	AuditTypeQuality     AuditType = "quality"
)

// Audit is one persisted compliance review. ID is the public identifier
// (AUD-<year>-<suffix>); MongoID is assigned by the database and never used
// for lookups.
type Audit struct {
	MongoID   primitive.ObjectID `bson:"_id,omitempty" json:"_id,omitempty"`
	ID        string             `bson:"id" json:"id"`
	AuditName string             `bson:"auditName" json:"auditName"`
	Company   string             `bson:"company" json:"company"`
	AuditDate string             `bson:"auditDate" json:"auditDate"`
	Auditor   string             `bson:"auditor" json:"auditor"`
	Status    Status             `bson:"status" json:"status"`
	AuditType AuditType          `bson:"auditType" json:"auditType"`
	UserID    string             `bson:"userId" json:"userId"`
	FormData  *FormData          `bson:"formData,omitempty" json:"formData,omitempty"`
	Version   int64              `bson:"version" json:"version"`
	CreatedAt string             `bson:"createdAt" json:"createdAt"`
	UpdatedAt string             `bson:"updatedAt" json:"updatedAt"`
}

// AuditStats is the per-owner status breakdown. Other counts stored statuses
// that are not part of the Status enum so the buckets always add up to Total.
type AuditStats struct {
	Total      int64 `json:"total"`
	Completed  int64 `json:"completed"`
	InProgress int64 `json:"inProgress"`
	Pending    int64 `json:"pending"`
	Draft      int64 `json:"draft"`
	Other      int64 `json:"other,omitempty"`
}
