package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"auditmgt/models"
	"auditmgt/uploader"
	"auditmgt/validation"
)

var errUsage = errors.New("wrong arguments")

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string, want int) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%s: %w", fs.Name(), err)
	}
	if want >= 0 && fs.NArg() != want {
		return nil, fmt.Errorf("%s: %w, see `auditctl` for usage", fs.Name(), errUsage)
	}
	return fs.Args(), nil
}

func (a *app) remember(email string) error {
	a.session = savedSession{Server: a.api.BaseURL(), Token: a.api.Token(), Email: email}
	return saveSession(a.session)
}

func cmdRegister(ctx context.Context, a *app, args []string) error {
	fs := newFlags("register")
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "account email")
	if _, err := parseFlags(fs, args, 0); err != nil {
		return err
	}

	p, done := a.newPrompter()
	defer done()
	ask := asker{p: p, out: a.out}
	var err error
	if *name == "" {
		if *name, err = ask.text("Name", ""); err != nil {
			return err
		}
	}
	if *email == "" {
		if *email, err = ask.text("Email", ""); err != nil {
			return err
		}
	}
	password, err := p.PasswordPrompt(promptStyle.Render("Password: "))
	if err != nil {
		return err
	}

	res, err := a.api.Register(ctx, *name, *email, password)
	if err != nil {
		return err
	}
	if err := a.remember(res.User.Email); err != nil {
		return err
	}
	fmt.Fprintln(a.out, successStyle.Render("Registered and logged in as "+res.User.Email))
	return nil
}

func cmdLogin(ctx context.Context, a *app, args []string) error {
	fs := newFlags("login")
	email := fs.String("email", "", "account email")
	if _, err := parseFlags(fs, args, 0); err != nil {
		return err
	}

	p, done := a.newPrompter()
	defer done()
	if *email == "" {
		var err error
		if *email, err = (asker{p: p, out: a.out}).text("Email", a.session.Email); err != nil {
			return err
		}
	}
	password, err := p.PasswordPrompt(promptStyle.Render("Password: "))
	if err != nil {
		return err
	}

	res, err := a.api.Login(ctx, *email, password)
	if err != nil {
		return err
	}
	if err := a.remember(res.User.Email); err != nil {
		return err
	}
	fmt.Fprintln(a.out, successStyle.Render("Logged in as "+res.User.Email))
	return nil
}

func cmdLogout(_ context.Context, a *app, args []string) error {
	if _, err := parseFlags(newFlags("logout"), args, 0); err != nil {
		return err
	}
	if err := clearSession(); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func cmdWhoami(ctx context.Context, a *app, args []string) error {
	if _, err := parseFlags(newFlags("whoami"), args, 0); err != nil {
		return err
	}
	u, err := a.api.Me(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s <%s>\n", u.Name, u.Email)
	return nil
}

func cmdList(ctx context.Context, a *app, args []string) error {
	fs := newFlags("list")
	status := fs.String("status", "", "only audits with this status")
	if _, err := parseFlags(fs, args, 0); err != nil {
		return err
	}
	audits, err := a.api.ListAudits(ctx, models.Status(*status))
	if err != nil {
		return err
	}
	printAuditTable(a.out, audits)
	return nil
}

func cmdShow(ctx context.Context, a *app, args []string) error {
	rest, err := parseFlags(newFlags("show"), args, 1)
	if err != nil {
		return err
	}
	audit, err := a.api.GetAudit(ctx, rest[0])
	if err != nil {
		return err
	}
	printAudit(a.out, audit)
	return nil
}

func cmdStats(ctx context.Context, a *app, args []string) error {
	if _, err := parseFlags(newFlags("stats"), args, 0); err != nil {
		return err
	}
	stats, err := a.api.Stats(ctx)
	if err != nil {
		return err
	}
	printStats(a.out, stats)
	return nil
}

func cmdSetStatus(ctx context.Context, a *app, args []string) error {
	fs := newFlags("status")
	ifMatch := fs.Int64("if-match", 0, "only update if the audit is still at this version")
	rest, err := parseFlags(fs, args, 2)
	if err != nil {
		return err
	}

	status := models.Status(rest[1])
	if !status.Valid() {
		return fmt.Errorf("status must be one of %s", joinStatuses())
	}
	var version *int64
	if *ifMatch > 0 {
		version = ifMatch
	}

	audit, err := a.api.UpdateAudit(ctx, rest[0], validation.UpdateAuditRequest{Status: &status}, version)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s is now %s (version %d)\n", audit.ID, statusBadge(audit.Status), audit.Version)
	return nil
}

func cmdDelete(ctx context.Context, a *app, args []string) error {
	fs := newFlags("delete")
	yes := fs.Bool("yes", false, "do not ask for confirmation")
	rest, err := parseFlags(fs, args, 1)
	if err != nil {
		return err
	}
	id := rest[0]

	if !*yes {
		p, done := a.newPrompter()
		ans, err := (asker{p: p, out: a.out}).choice("Delete "+id, "n", "y", "n")
		done()
		if err != nil {
			return err
		}
		if !strings.EqualFold(ans, "y") {
			fmt.Fprintln(a.out, dimStyle.Render("kept"))
			return nil
		}
	}

	if err := a.api.DeleteAudit(ctx, id); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Deleted "+id)
	return nil
}

func cmdUpload(ctx context.Context, a *app, args []string) error {
	rest, err := parseFlags(newFlags("upload"), args, -1)
	if err != nil {
		return err
	}
	if len(rest) == 0 {
		return fmt.Errorf("upload: %w, give at least one file", errUsage)
	}

	q := uploader.NewQueue(a.api, 0)
	for _, path := range rest {
		if _, err := q.AddFile(path); err != nil {
			return err
		}
	}
	if err := q.Run(ctx); err != nil {
		return err
	}
	items := q.Items()
	printQueue(a.out, items)
	for _, it := range items {
		if it.Status == uploader.StatusSuccess && it.Result != nil {
			fmt.Fprintln(a.out, dimStyle.Render("  "+it.Result.URL))
		}
	}
	if len(q.Documents()) != len(items) {
		return errors.New("some files were not uploaded")
	}
	return nil
}

func cmdNew(ctx context.Context, a *app, args []string) error {
	if _, err := parseFlags(newFlags("new"), args, 0); err != nil {
		return err
	}
	p, done := a.newPrompter()
	defer done()

	audit, err := runWizard(ctx, p, a.out, a.api, a.api)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out)
	printAudit(a.out, audit)
	return nil
}

func joinStatuses() string {
	names := make([]string, 0, len(models.Statuses))
	for _, s := range models.Statuses {
		names = append(names, string(s))
	}
	return strings.Join(names, ", ")
}
