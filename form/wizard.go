// Package form drives the five-step new-audit wizard. Each step is checked
// against its own section schema before the wizard moves on, and the last
// step submits the assembled record exactly once.
package form

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"auditmgt/models"
	"auditmgt/validation"
)

type Step int

const (
	StepBasicInfo Step = iota
	StepQuiz
	StepProcessEvaluation
	StepLegalCompliance
	StepDocuments
)

// StepCount is the number of wizard steps.
const StepCount = int(StepDocuments) + 1

var stepNames = [...]string{"basic-info", "quiz", "process-evaluation", "legal-compliance", "documents"}

func (s Step) String() string {
	if s < 0 || int(s) >= len(stepNames) {
		return fmt.Sprintf("step(%d)", int(s))
	}
	return stepNames[s]
}

var (
	ErrFirstStep     = errors.New("already on the first step")
	ErrNotLastStep   = errors.New("the audit can only be submitted from the documents step")
	ErrLastStep      = errors.New("documents is the last step; submit instead")
	ErrSubmitted     = errors.New("audit already submitted")
	ErrSubmitPending = errors.New("submission already in progress")
)

// Submitter creates the audit record. The API client satisfies it.
type Submitter interface {
	CreateAudit(ctx context.Context, req validation.CreateAuditRequest) (*models.Audit, error)
}

// Wizard holds the entered sections in memory only. It is safe for
// concurrent use, though a single interactive session is the normal caller.
type Wizard struct {
	submitter Submitter

	mu         sync.Mutex
	step       Step
	data       models.FormData
	submitting bool
	created    *models.Audit
}

func New(submitter Submitter) *Wizard {
	return &Wizard{submitter: submitter}
}

func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// Data returns a copy of everything entered so far, validated or not.
func (w *Wizard) Data() models.FormData {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.data
}

// Created is the record made by a successful Complete, or nil.
func (w *Wizard) Created() *models.Audit {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.created
}

// Next validates stepData against the current step and advances. stepData
// must be the section type of the current step (models.BasicInfo on the
// first step, and so on). On validation failure the wizard stays put, keeps
// the draft and returns validation.Errors.
func (w *Wizard) Next(stepData any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.created != nil {
		return ErrSubmitted
	}
	if w.step == StepDocuments {
		return ErrLastStep
	}
	if err := w.store(stepData); err != nil {
		return err
	}
	if errs := validation.Struct(w.section()); errs != nil {
		return errs
	}
	w.step++
	return nil
}

// Back returns to the previous step. A non-nil draft for the current step is
// kept unvalidated so it is there again when the user comes back.
func (w *Wizard) Back(draft any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.created != nil {
		return ErrSubmitted
	}
	if w.step == StepBasicInfo {
		return ErrFirstStep
	}
	if draft != nil {
		if err := w.store(draft); err != nil {
			return err
		}
	}
	w.step--
	return nil
}

// Complete validates the documents section, assembles the composite and
// submits it. On failure the wizard stays on the last step with every
// section intact so the caller can retry.
func (w *Wizard) Complete(ctx context.Context, documents models.DocumentUpload) (*models.Audit, error) {
	w.mu.Lock()
	switch {
	case w.created != nil:
		w.mu.Unlock()
		return nil, ErrSubmitted
	case w.submitting:
		w.mu.Unlock()
		return nil, ErrSubmitPending
	case w.step != StepDocuments:
		w.mu.Unlock()
		return nil, ErrNotLastStep
	}
	w.data.DocumentUpload = documents
	if errs := validation.Struct(&documents); errs != nil {
		w.mu.Unlock()
		return nil, errs
	}
	data := w.data
	w.submitting = true
	w.mu.Unlock()

	req := validation.CreateAuditRequest{
		AuditName: data.BasicInfo.AuditName,
		Company:   data.BasicInfo.Company,
		AuditDate: data.BasicInfo.AuditDate,
		Auditor:   data.BasicInfo.Auditor,
		AuditType: data.BasicInfo.AuditType,
		FormData:  &data,
	}
	audit, err := w.submitter.CreateAudit(ctx, req)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.submitting = false
	if err != nil {
		return nil, fmt.Errorf("submit audit: %w", err)
	}
	w.created = audit
	return audit, nil
}

// store writes stepData into the current section. Callers hold w.mu.
func (w *Wizard) store(stepData any) error {
	var ok bool
	switch w.step {
	case StepBasicInfo:
		w.data.BasicInfo, ok = deref[models.BasicInfo](stepData)
	case StepQuiz:
		w.data.Quiz, ok = deref[models.Quiz](stepData)
	case StepProcessEvaluation:
		w.data.ProcessEvaluation, ok = deref[models.ProcessEvaluation](stepData)
	case StepLegalCompliance:
		w.data.LegalCompliance, ok = deref[models.LegalCompliance](stepData)
	case StepDocuments:
		w.data.DocumentUpload, ok = deref[models.DocumentUpload](stepData)
	}
	if !ok {
		return fmt.Errorf("step %s does not accept %T", w.step, stepData)
	}
	return nil
}

// section returns a pointer to the current section for validation.
func (w *Wizard) section() any {
	switch w.step {
	case StepBasicInfo:
		return &w.data.BasicInfo
	case StepQuiz:
		return &w.data.Quiz
	case StepProcessEvaluation:
		return &w.data.ProcessEvaluation
	case StepLegalCompliance:
		return &w.data.LegalCompliance
	}
	return &w.data.DocumentUpload
}

func deref[T any](v any) (T, bool) {
	switch x := v.(type) {
	case T:
		return x, true
	case *T:
		if x != nil {
			return *x, true
		}
	}
	var zero T
	return zero, false
}
