// models/form_data.go
package models

// FormData is the five-section composite produced by the new-audit wizard.
// The validate tags are the schema applied both by the wizard and by the API.
type FormData struct {
	BasicInfo         BasicInfo         `bson:"basicInfo" json:"basicInfo"`
	Quiz              Quiz              `bson:"quiz" json:"quiz"`
	ProcessEvaluation ProcessEvaluation `bson:"processEvaluation" json:"processEvaluation"`
	LegalCompliance   LegalCompliance   `bson:"legalCompliance" json:"legalCompliance"`
	DocumentUpload    DocumentUpload    `bson:"documentUpload" json:"documentUpload"`
}

type BasicInfo struct {
	AuditName   string    `bson:"auditName" json:"auditName" validate:"required"`
	Company     string    `bson:"company" json:"company" validate:"required"`
	AuditDate   string    `bson:"auditDate" json:"auditDate" validate:"required"`
	Auditor     string    `bson:"auditor" json:"auditor" validate:"required"`
	Department  string    `bson:"department" json:"department" validate:"required"`
	AuditType   AuditType `bson:"auditType" json:"auditType" validate:"required,oneof=financial operational compliance security quality"`
	Description string    `bson:"description,omitempty" json:"description,omitempty"`
}

type Quiz struct {
	RiskAssessment         string `bson:"riskAssessment" json:"riskAssessment" validate:"required,oneof=low medium high"`
	ComplianceStatus       string `bson:"complianceStatus" json:"complianceStatus" validate:"required,oneof=compliant partial non-compliant"`
	PreviousAuditIssues    string `bson:"previousAuditIssues" json:"previousAuditIssues" validate:"required,oneof=yes no"`
	StakeholderInvolvement string `bson:"stakeholderInvolvement" json:"stakeholderInvolvement" validate:"required,oneof=minimal moderate extensive"`
	AdditionalNotes        string `bson:"additionalNotes,omitempty" json:"additionalNotes,omitempty"`
}

// ProcessEvaluation ratings are integers on a 1-10 scale.
type ProcessEvaluation struct {
	ProcessEfficiency    int    `bson:"processEfficiency" json:"processEfficiency" validate:"min=1,max=10"`
	DocumentationQuality int    `bson:"documentationQuality" json:"documentationQuality" validate:"min=1,max=10"`
	ControlEffectiveness int    `bson:"controlEffectiveness" json:"controlEffectiveness" validate:"min=1,max=10"`
	ResourceAdequacy     int    `bson:"resourceAdequacy" json:"resourceAdequacy" validate:"min=1,max=10"`
	ProcessImprovements  string `bson:"processImprovements" json:"processImprovements" validate:"required"`
	KeyFindings          string `bson:"keyFindings" json:"keyFindings" validate:"required"`
}

type LegalCompliance struct {
	RegulatoryCompliance string   `bson:"regulatoryCompliance" json:"regulatoryCompliance" validate:"required,oneof=full partial non-compliant"`
	LegalRequirements    []string `bson:"legalRequirements" json:"legalRequirements" validate:"min=1,dive,required"`
	ComplianceGaps       string   `bson:"complianceGaps,omitempty" json:"complianceGaps,omitempty"`
	RemedialActions      string   `bson:"remedialActions" json:"remedialActions" validate:"required"`
	ComplianceDeadline   string   `bson:"complianceDeadline" json:"complianceDeadline" validate:"required"`
	ResponsibleParty     string   `bson:"responsibleParty" json:"responsibleParty" validate:"required"`
}

type DocumentUpload struct {
	Documents          []DocumentRef `bson:"documents" json:"documents" validate:"min=1,dive"`
	DocumentTypes      []string      `bson:"documentTypes" json:"documentTypes" validate:"min=1,dive,required"`
	AdditionalComments string        `bson:"additionalComments,omitempty" json:"additionalComments,omitempty"`
}

// DocumentRef is the manifest entry the form keeps for each uploaded file.
type DocumentRef struct {
	ID   string `bson:"id,omitempty" json:"id,omitempty"`
	Name string `bson:"name" json:"name" validate:"required"`
	Size int64  `bson:"size" json:"size" validate:"gte=0"`
	Type string `bson:"type" json:"type"`
	URL  string `bson:"url,omitempty" json:"url,omitempty"`
}

// UploadedFile is what the upload endpoint returns for a stored file.
type UploadedFile struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	Type       string `json:"type"`
	URL        string `json:"url"`
	UploadedAt string `json:"uploadedAt"`
}

// Ref converts an upload result into a form manifest entry.
func (f UploadedFile) Ref() DocumentRef {
	return DocumentRef{ID: f.ID, Name: f.Name, Size: f.Size, Type: f.Type, URL: f.URL}
}
