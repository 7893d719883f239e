package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	gorillaws "github.com/gorilla/websocket"

	"auditmgt/models"
	"auditmgt/websocket"
)

type feedMessage struct {
	Type      string          `json:"type"`
	AuditID   string          `json:"auditId"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// feedURL turns the service base URL into the change feed endpoint.
func feedURL(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/ws"
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}

func cmdWatch(ctx context.Context, a *app, args []string) error {
	if _, err := parseFlags(newFlags("watch"), args, 0); err != nil {
		return err
	}
	if a.api.Token() == "" {
		return fmt.Errorf("watch needs a session; run `auditctl login` first")
	}
	target, err := feedURL(a.api.BaseURL(), a.api.Token())
	if err != nil {
		return err
	}

	conn, resp, err := gorillaws.DefaultDialer.DialContext(ctx, target, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("connect to change feed: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	fmt.Fprintln(a.out, dimStyle.Render("watching for audit changes, ctrl+c to stop"))
	for {
		var msg feedMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if gorillaws.IsCloseError(err, gorillaws.CloseNormalClosure, gorillaws.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("change feed: %w", err)
		}
		printFeedMessage(a.out, msg)
	}
}

func printFeedMessage(w io.Writer, msg feedMessage) {
	stamp := dimStyle.Render(msg.Timestamp)
	switch msg.Type {
	case websocket.EventAuditCreated, websocket.EventAuditUpdated:
		var audit models.Audit
		if err := json.Unmarshal(msg.Data, &audit); err == nil {
			fmt.Fprintf(w, "%s %-14s %s %s %s\n", stamp, msg.Type, audit.ID, statusBadge(audit.Status), audit.AuditName)
			return
		}
	case websocket.EventAuditDeleted:
		fmt.Fprintf(w, "%s %-14s %s\n", stamp, msg.Type, msg.AuditID)
		return
	case "welcome":
		fmt.Fprintln(w, successStyle.Render(msg.Message))
		return
	}
	fmt.Fprintf(w, "%s %-14s %s\n", stamp, msg.Type, msg.AuditID)
}
