package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"auditmgt/form"
	"auditmgt/models"
	"auditmgt/uploader"
	"auditmgt/validation"
)

// prompter is the subset of *liner.State the interactive commands use.
type prompter interface {
	PromptWithSuggestion(prompt, text string, pos int) (string, error)
	PasswordPrompt(prompt string) (string, error)
}

// errBack is returned by the ask helpers when the user types "<".
var errBack = errors.New("back")

const backHint = `type "<" to go back`

type asker struct {
	p   prompter
	out io.Writer
}

func (a asker) text(label, current string) (string, error) {
	line, err := a.p.PromptWithSuggestion(promptStyle.Render(label+": "), current, -1)
	if err != nil {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "<" {
		return current, errBack
	}
	return line, nil
}

func (a asker) choice(label, current string, options ...string) (string, error) {
	return a.text(fmt.Sprintf("%s [%s]", label, strings.Join(options, "/")), current)
}

func (a asker) rating(label string, current int) (int, error) {
	def := ""
	if current != 0 {
		def = strconv.Itoa(current)
	}
	for {
		s, err := a.text(label+" (1-10)", def)
		if err != nil {
			return current, err
		}
		n, err := strconv.Atoi(s)
		if err == nil {
			return n, nil
		}
		fmt.Fprintln(a.out, errorStyle.Render("  enter a whole number"))
	}
}

func (a asker) list(label string, current []string) ([]string, error) {
	s, err := a.text(label+" (comma separated)", strings.Join(current, ", "))
	if err != nil {
		return current, err
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out, nil
}

func printFieldErrors(w io.Writer, err error) {
	var errs validation.Errors
	if !errors.As(err, &errs) {
		fmt.Fprintln(w, errorStyle.Render(err.Error()))
		return
	}
	for _, fe := range errs {
		fmt.Fprintln(w, errorStyle.Render(fmt.Sprintf("  %s: %s", fe.Path, fe.Message)))
	}
}

// runWizard walks the user through every step and submits the audit.
func runWizard(ctx context.Context, p prompter, out io.Writer, sub form.Submitter, up uploader.Uploader) (*models.Audit, error) {
	w := form.New(sub)
	a := asker{p: p, out: out}
	queue := uploader.NewQueue(up, 0)

	fmt.Fprintln(out, titleStyle.Render("New audit")+" "+dimStyle.Render(backHint))
	for {
		step := w.Step()
		fmt.Fprintf(out, "\n%s %s\n", dimStyle.Render(fmt.Sprintf("step %d/%d", int(step)+1, form.StepCount)), titleStyle.Render(step.String()))

		var (
			draft any
			err   error
		)
		data := w.Data()
		switch step {
		case form.StepBasicInfo:
			draft, err = askBasicInfo(a, data.BasicInfo)
		case form.StepQuiz:
			draft, err = askQuiz(a, data.Quiz)
		case form.StepProcessEvaluation:
			draft, err = askEvaluation(a, data.ProcessEvaluation)
		case form.StepLegalCompliance:
			draft, err = askLegal(a, data.LegalCompliance)
		case form.StepDocuments:
			var docs models.DocumentUpload
			docs, err = askDocuments(ctx, a, queue, data.DocumentUpload)
			if err == nil {
				audit, cerr := w.Complete(ctx, docs)
				if cerr == nil {
					return audit, nil
				}
				var verrs validation.Errors
				if !errors.As(cerr, &verrs) {
					return nil, cerr
				}
				printFieldErrors(out, cerr)
				continue
			}
		}

		switch {
		case errors.Is(err, errBack):
			if berr := w.Back(draft); berr != nil {
				fmt.Fprintln(out, dimStyle.Render(berr.Error()))
			}
			continue
		case err != nil:
			return nil, err
		}

		if err := w.Next(draft); err != nil {
			printFieldErrors(out, err)
		}
	}
}

func askBasicInfo(a asker, cur models.BasicInfo) (models.BasicInfo, error) {
	var err error
	steps := []func() error{
		func() error { cur.AuditName, err = a.text("Audit name", cur.AuditName); return err },
		func() error { cur.Company, err = a.text("Company", cur.Company); return err },
		func() error { cur.AuditDate, err = a.text("Audit date (YYYY-MM-DD)", cur.AuditDate); return err },
		func() error { cur.Auditor, err = a.text("Auditor", cur.Auditor); return err },
		func() error { cur.Department, err = a.text("Department", cur.Department); return err },
		func() error {
			var s string
			s, err = a.choice("Audit type", string(cur.AuditType), "financial", "operational", "compliance", "security", "quality")
			cur.AuditType = models.AuditType(s)
			return err
		},
		func() error { cur.Description, err = a.text("Description (optional)", cur.Description); return err },
	}
	serr := runSteps(steps)
	return cur, serr
}

func askQuiz(a asker, cur models.Quiz) (models.Quiz, error) {
	var err error
	steps := []func() error{
		func() error {
			cur.RiskAssessment, err = a.choice("Risk assessment", cur.RiskAssessment, "low", "medium", "high")
			return err
		},
		func() error {
			cur.ComplianceStatus, err = a.choice("Compliance status", cur.ComplianceStatus, "compliant", "partial", "non-compliant")
			return err
		},
		func() error {
			cur.PreviousAuditIssues, err = a.choice("Previous audit issues", cur.PreviousAuditIssues, "yes", "no")
			return err
		},
		func() error {
			cur.StakeholderInvolvement, err = a.choice("Stakeholder involvement", cur.StakeholderInvolvement, "minimal", "moderate", "extensive")
			return err
		},
		func() error { cur.AdditionalNotes, err = a.text("Additional notes (optional)", cur.AdditionalNotes); return err },
	}
	serr := runSteps(steps)
	return cur, serr
}

func askEvaluation(a asker, cur models.ProcessEvaluation) (models.ProcessEvaluation, error) {
	var err error
	steps := []func() error{
		func() error { cur.ProcessEfficiency, err = a.rating("Process efficiency", cur.ProcessEfficiency); return err },
		func() error {
			cur.DocumentationQuality, err = a.rating("Documentation quality", cur.DocumentationQuality)
			return err
		},
		func() error {
			cur.ControlEffectiveness, err = a.rating("Control effectiveness", cur.ControlEffectiveness)
			return err
		},
		func() error { cur.ResourceAdequacy, err = a.rating("Resource adequacy", cur.ResourceAdequacy); return err },
		func() error {
			cur.ProcessImprovements, err = a.text("Process improvements", cur.ProcessImprovements)
			return err
		},
		func() error { cur.KeyFindings, err = a.text("Key findings", cur.KeyFindings); return err },
	}
	serr := runSteps(steps)
	return cur, serr
}

func askLegal(a asker, cur models.LegalCompliance) (models.LegalCompliance, error) {
	var err error
	steps := []func() error{
		func() error {
			cur.RegulatoryCompliance, err = a.choice("Regulatory compliance", cur.RegulatoryCompliance, "full", "partial", "non-compliant")
			return err
		},
		func() error { cur.LegalRequirements, err = a.list("Legal requirements", cur.LegalRequirements); return err },
		func() error { cur.ComplianceGaps, err = a.text("Compliance gaps (optional)", cur.ComplianceGaps); return err },
		func() error { cur.RemedialActions, err = a.text("Remedial actions", cur.RemedialActions); return err },
		func() error {
			cur.ComplianceDeadline, err = a.text("Compliance deadline (YYYY-MM-DD)", cur.ComplianceDeadline)
			return err
		},
		func() error { cur.ResponsibleParty, err = a.text("Responsible party", cur.ResponsibleParty); return err },
	}
	serr := runSteps(steps)
	return cur, serr
}

// askDocuments queues and uploads files until the user stops adding them,
// then collects the remaining document fields.
func askDocuments(ctx context.Context, a asker, queue *uploader.Queue, cur models.DocumentUpload) (models.DocumentUpload, error) {
	for {
		paths, err := a.list("Files to upload (empty to finish)", nil)
		if err != nil {
			return cur, err
		}
		if len(paths) == 0 {
			break
		}
		for _, path := range paths {
			if _, err := queue.AddFile(path); err != nil {
				fmt.Fprintln(a.out, errorStyle.Render("  "+err.Error()))
			}
		}
		if err := queue.Run(ctx); err != nil {
			return cur, err
		}
		printQueue(a.out, queue.Items())
		if err := retryFailed(ctx, a, queue); err != nil {
			return cur, err
		}
	}

	var err error
	cur.Documents = queue.Documents()
	if cur.DocumentTypes, err = a.list("Document types", cur.DocumentTypes); err != nil {
		return cur, err
	}
	if cur.AdditionalComments, err = a.text("Additional comments (optional)", cur.AdditionalComments); err != nil {
		return cur, err
	}
	return cur, nil
}

func retryFailed(ctx context.Context, a asker, queue *uploader.Queue) error {
	for _, it := range queue.Items() {
		if it.Status != uploader.StatusError {
			continue
		}
		ans, err := a.choice("Retry "+it.Name, "n", "y", "n")
		if err != nil {
			return err
		}
		if !strings.EqualFold(ans, "y") {
			continue
		}
		// a failed retry is reported on the item itself
		res, _ := queue.Retry(ctx, it.ID)
		printQueue(a.out, []uploader.Item{res})
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

func runSteps(steps []func() error) error {
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}
