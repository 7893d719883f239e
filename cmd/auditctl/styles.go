package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"auditmgt/models"
	"auditmgt/uploader"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(14)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
)

var statusColors = map[models.Status]lipgloss.Color{
	models.StatusCompleted:  "42",
	models.StatusInProgress: "39",
	models.StatusPending:    "214",
	models.StatusDraft:      "245",
}

func statusBadge(s models.Status) string {
	color, ok := statusColors[s]
	if !ok {
		color = "196"
	}
	return lipgloss.NewStyle().Foreground(color).Render(string(s))
}

func uploadBadge(s uploader.Status) string {
	switch s {
	case uploader.StatusSuccess:
		return successStyle.Render("uploaded")
	case uploader.StatusError:
		return errorStyle.Render("failed")
	case uploader.StatusUploading:
		return promptStyle.Render("uploading")
	}
	return dimStyle.Render("pending")
}

func printAuditTable(w io.Writer, audits []models.Audit) {
	if len(audits) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No audits yet. Run `auditctl new` to create one."))
		return
	}
	fmt.Fprintf(w, "%-16s  %-12s  %-28s  %-20s  %s\n", "ID", "STATUS", "NAME", "COMPANY", "UPDATED")
	for _, a := range audits {
		// pad before styling so escape codes do not break the columns
		status := statusBadge(a.Status) + strings.Repeat(" ", max(0, 12-len(a.Status)))
		fmt.Fprintf(w, "%-16s  %s  %-28s  %-20s  %s\n",
			a.ID, status, truncate(a.AuditName, 28), truncate(a.Company, 20), a.UpdatedAt)
	}
}

func printAudit(w io.Writer, a *models.Audit) {
	fmt.Fprintln(w, titleStyle.Render(a.AuditName))
	field := func(label, value string) {
		fmt.Fprintln(w, labelStyle.Render(label)+value)
	}
	field("ID", a.ID)
	field("Status", statusBadge(a.Status))
	field("Type", string(a.AuditType))
	field("Company", a.Company)
	field("Auditor", a.Auditor)
	field("Audit date", a.AuditDate)
	field("Created", a.CreatedAt)
	field("Updated", a.UpdatedAt)
	field("Version", fmt.Sprint(a.Version))

	if a.FormData == nil {
		return
	}
	fd := a.FormData
	field("Department", fd.BasicInfo.Department)
	field("Risk", fd.Quiz.RiskAssessment)
	field("Compliance", fd.LegalCompliance.RegulatoryCompliance)
	field("Deadline", fd.LegalCompliance.ComplianceDeadline)
	if len(fd.DocumentUpload.Documents) > 0 {
		fmt.Fprintln(w, labelStyle.Render("Documents"))
		for _, d := range fd.DocumentUpload.Documents {
			fmt.Fprintf(w, "  %s %s\n", d.Name, dimStyle.Render("("+humanize.IBytes(uint64(d.Size))+")"))
		}
	}
}

func printStats(w io.Writer, s models.AuditStats) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%d audits", s.Total)))
	rows := []struct {
		status models.Status
		n      int64
	}{
		{models.StatusCompleted, s.Completed},
		{models.StatusInProgress, s.InProgress},
		{models.StatusPending, s.Pending},
		{models.StatusDraft, s.Draft},
	}
	for _, r := range rows {
		fmt.Fprintln(w, labelStyle.Render(string(r.status))+fmt.Sprint(r.n))
	}
	if s.Other > 0 {
		fmt.Fprintln(w, labelStyle.Render("other")+fmt.Sprint(s.Other))
	}
}

func printQueue(w io.Writer, items []uploader.Item) {
	for _, it := range items {
		line := fmt.Sprintf("  %-32s %10s  %s", truncate(it.Name, 32), humanize.IBytes(uint64(max(it.Size, 0))), uploadBadge(it.Status))
		if it.Error != "" {
			line += " " + errorStyle.Render(it.Error)
		}
		fmt.Fprintln(w, line)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
