// Command ws_collab is an interactive client for manual testing: it
// joins a project and mirrors the session to the terminal. Lines typed
// as "path: content" are sent as code changes.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	collab "github.com/codehive/collab-server/sdk"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_collab: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", "", "session token (optional)")
	project := flag.String("project", "demo", "project to join")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := collab.Dial(ctx, collab.Options{
		URL:           *addr,
		Token:         *token,
		Project:       *project,
		AutoReconnect: true,
	})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer session.Close()

	unsubCode := session.OnCodeUpdate(func(ev collab.CodeUpdate) {
		fmt.Printf("[%s] %s edited %s (%d bytes)\n", *project, ev.UserID, ev.FilePath, len(ev.NewContent))
	})
	defer unsubCode()

	unsubCursor := session.OnCursorUpdate(func(ev collab.CursorUpdate) {
		fmt.Printf("[%s] %s cursor %s %d:%d\n", *project, ev.UserID, ev.FilePath, ev.CursorPosition.Line, ev.CursorPosition.Column)
	})
	defer unsubCursor()

	unsubPresence := session.OnPresence(func(p collab.Presence) {
		switch p.Event {
		case "joined-project":
			fmt.Printf("joined %s (%d users)\n", p.ProjectID, p.TotalUsers)
		case "user-joined":
			fmt.Printf("%s joined (%d users)\n", p.User, p.TotalUsers)
		case "user-left":
			fmt.Printf("%s left (%d users)\n", p.User, p.TotalUsers)
		}
	})
	defer unsubPresence()

	fmt.Printf("Connected to %s, project %s\n", *addr, *project)
	fmt.Println(`Type "path: content" and press Enter to send an edit. Ctrl+C to exit.`)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			path, content, found := strings.Cut(line, ":")
			if !found {
				fmt.Println(`expected "path: content"`)
				continue
			}
			session.SendCodeChange(strings.TrimSpace(path), strings.TrimSpace(content), nil)
		case <-ctx.Done():
			return nil
		}
	}
}
