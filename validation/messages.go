package validation

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// requiredMessages keeps the wording the form shows next to each input.
var requiredMessages = map[string]string{
	"auditName":              "Audit name is required",
	"company":                "Company name is required",
	"auditDate":              "Audit date is required",
	"auditor":                "Auditor name is required",
	"department":             "Department is required",
	"auditType":              "Please select an audit type",
	"riskAssessment":         "Please select a risk level",
	"complianceStatus":       "Please select compliance status",
	"previousAuditIssues":    "Please indicate if there were previous issues",
	"stakeholderInvolvement": "Please select stakeholder involvement level",
	"processImprovements":    "Process improvements are required",
	"keyFindings":            "Key findings are required",
	"regulatoryCompliance":   "Please select regulatory compliance status",
	"remedialActions":        "Remedial actions are required",
	"complianceDeadline":     "Compliance deadline is required",
	"responsibleParty":       "Responsible party is required",
	"email":                  "Valid email required",
	"password":               "Password is required",
	"name":                   "Name is required",
}

var minItemsMessages = map[string]string{
	"legalRequirements": "At least one legal requirement must be selected",
	"documents":         "At least one document must be uploaded",
	"documentTypes":     "Please select document types",
}

var ratingFields = map[string]bool{
	"processEfficiency":    true,
	"documentationQuality": true,
	"controlEffectiveness": true,
	"resourceAdequacy":     true,
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		if msg, ok := requiredMessages[field]; ok {
			return msg
		}
		return "This field is required"
	case "oneof":
		return fmt.Sprintf("Must be one of: %s", strings.Join(strings.Fields(fe.Param()), ", "))
	case "min", "max", "gte", "lte":
		if ratingFields[field] {
			return "Rating must be between 1-10"
		}
		if fe.Tag() == "min" {
			if msg, ok := minItemsMessages[field]; ok {
				return msg
			}
			if fe.Kind() == reflect.String {
				// min=1 on a string is how optional-but-non-empty fields are declared.
				if msg, ok := requiredMessages[field]; ok && fe.Param() == "1" {
					return msg
				}
				return fmt.Sprintf("Must be at least %s characters", fe.Param())
			}
		}
		if fe.Tag() == "max" && fe.Kind() == reflect.String {
			return fmt.Sprintf("Must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("Failed %s=%s", fe.Tag(), fe.Param())
	case "email":
		return "Valid email required"
	}
	return fmt.Sprintf("Failed %s validation", fe.Tag())
}
