// Command auditctl is the terminal client for the audit service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/peterh/liner"

	"auditmgt/client"
)

const defaultServer = "http://localhost:8080"

type app struct {
	out     io.Writer
	api     *client.Client
	session savedSession
	// newPrompter is called by commands that need interactive input.
	newPrompter func() (prompter, func())
}

type command struct {
	usage string
	run   func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"register": {"register [-name N] [-email E]", cmdRegister},
	"login":    {"login [-email E]", cmdLogin},
	"logout":   {"logout", cmdLogout},
	"whoami":   {"whoami", cmdWhoami},
	"list":     {"list [-status completed|in-progress|pending|draft]", cmdList},
	"show":     {"show <id>", cmdShow},
	"stats":    {"stats", cmdStats},
	"status":   {"status [-if-match VERSION] <id> <status>", cmdSetStatus},
	"delete":   {"delete [-yes] <id>", cmdDelete},
	"upload":   {"upload <file>...", cmdUpload},
	"new":      {"new", cmdNew},
	"watch":    {"watch", cmdWatch},
}

func usage(w io.Writer) {
	fmt.Fprintln(w, titleStyle.Render("auditctl")+" - audit service client")
	fmt.Fprintln(w, "\nUsage: auditctl [-server URL] <command> [flags]")
	fmt.Fprintln(w, "\nCommands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s\n", commands[name].usage)
	}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("auditctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	server := fs.String("server", os.Getenv("AUDITCTL_SERVER"), "audit service base URL")
	fs.Usage = func() { usage(stderr) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		usage(stderr)
		return 2
	}

	cmd, ok := commands[fs.Arg(0)]
	if !ok {
		fmt.Fprintln(stderr, errorStyle.Render("unknown command "+fs.Arg(0)))
		usage(stderr)
		return 2
	}

	session, err := loadSession()
	if err != nil {
		fmt.Fprintln(stderr, errorStyle.Render(err.Error()))
		return 1
	}
	base := *server
	if base == "" {
		base = session.Server
	}
	if base == "" {
		base = defaultServer
	}
	token := session.Token
	if session.Server != "" && session.Server != base {
		token = ""
	}

	a := &app{
		out:     stdout,
		api:     client.New(client.Config{BaseURL: base, Token: token}),
		session: session,
		newPrompter: func() (prompter, func()) {
			line := liner.NewLiner()
			line.SetCtrlCAborts(true)
			return line, func() { line.Close() }
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.run(ctx, a, fs.Args()[1:]); err != nil {
		switch {
		case errors.Is(err, liner.ErrPromptAborted), errors.Is(err, context.Canceled):
			fmt.Fprintln(stderr, dimStyle.Render("cancelled"))
			return 130
		case client.IsUnauthorized(err):
			fmt.Fprintln(stderr, errorStyle.Render("not logged in or session expired; run `auditctl login`"))
		default:
			fmt.Fprintln(stderr, errorStyle.Render(err.Error()))
		}
		return 1
	}
	return 0
}
