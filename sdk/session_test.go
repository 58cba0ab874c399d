package collab

import (
	"context"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/codehive/collab-server/internal/config"
	"github.com/codehive/collab-server/internal/core"
	transporthttp "github.com/codehive/collab-server/internal/transport/http"
)

func startServer(t *testing.T) string {
	t.Helper()
	ts := startBackend(t)
	return strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
}

func startBackend(t *testing.T) *httptest.Server {
	t.Helper()

	hub := core.NewHub(core.NewRegistry(), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	cfg := config.Default()
	cfg.HeartbeatInterval = 0

	logger := zerolog.Nop()
	server := transporthttp.NewServer(hub, nil, nil, cfg, &logger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return ts
}

// connRelay forwards TCP between the client and the backend so a test
// can sever live connections the way a network failure would.
type connRelay struct {
	ln      net.Listener
	backend string

	mu    sync.Mutex
	conns []net.Conn
}

func startRelay(t *testing.T, backend string) *connRelay {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("relay listen: %v", err)
	}
	r := &connRelay{ln: ln, backend: backend}
	go r.serve()
	t.Cleanup(func() {
		ln.Close()
		r.drop()
	})
	return r
}

func (r *connRelay) addr() string { return r.ln.Addr().String() }

func (r *connRelay) serve() {
	for {
		client, err := r.ln.Accept()
		if err != nil {
			return
		}
		server, err := net.Dial("tcp", r.backend)
		if err != nil {
			client.Close()
			continue
		}
		r.mu.Lock()
		r.conns = append(r.conns, client, server)
		r.mu.Unlock()
		go func() {
			io.Copy(server, client)
			server.Close()
			client.Close()
		}()
		go func() {
			io.Copy(client, server)
			client.Close()
			server.Close()
		}()
	}
}

// drop severs every open pair. New dials still succeed.
func (r *connRelay) drop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.conns {
		c.Close()
	}
	r.conns = nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSessionAutoJoinsConfiguredProject(t *testing.T) {
	url := startServer(t)
	ctx := context.Background()

	session, err := Dial(ctx, Options{URL: url, Project: "proj-42"})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer session.Close()

	waitFor(t, "join ack", func() bool { return session.Project() == "proj-42" })
	if session.State() != StateOpen {
		t.Fatalf("state = %v, want StateOpen", session.State())
	}
	if session.TotalUsers() != 1 {
		t.Fatalf("total users = %d, want 1", session.TotalUsers())
	}
}

func TestSessionCodeUpdateDelivery(t *testing.T) {
	url := startServer(t)
	ctx := context.Background()

	a, err := Dial(ctx, Options{URL: url, Project: "proj-42"})
	if err != nil {
		t.Fatalf("dial a: %v", err)
	}
	defer a.Close()

	b, err := Dial(ctx, Options{URL: url, Project: "proj-42"})
	if err != nil {
		t.Fatalf("dial b: %v", err)
	}
	defer b.Close()

	waitFor(t, "a joined", func() bool { return a.Project() == "proj-42" })
	waitFor(t, "b joined", func() bool { return b.Project() == "proj-42" })

	var mu sync.Mutex
	var bGot []CodeUpdate
	var aGot []CodeUpdate
	unsubB := b.OnCodeUpdate(func(ev CodeUpdate) {
		mu.Lock()
		bGot = append(bGot, ev)
		mu.Unlock()
	})
	defer unsubB()
	unsubA := a.OnCodeUpdate(func(ev CodeUpdate) {
		mu.Lock()
		aGot = append(aGot, ev)
		mu.Unlock()
	})
	defer unsubA()

	a.SendCodeChange("a.js", "console.log(1)", &Position{Line: 1, Column: 14})

	waitFor(t, "b received update", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(bGot) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	if bGot[0].FilePath != "a.js" || bGot[0].NewContent != "console.log(1)" {
		t.Fatalf("unexpected update: %+v", bGot[0])
	}
	if bGot[0].UserID == "" || bGot[0].Timestamp == 0 {
		t.Fatalf("update missing attribution: %+v", bGot[0])
	}
	if len(aGot) != 0 {
		t.Fatalf("originator received own update: %+v", aGot)
	}
}

func TestSessionUnsubscribeStopsDelivery(t *testing.T) {
	url := startServer(t)
	ctx := context.Background()

	a, err := Dial(ctx, Options{URL: url, Project: "proj-42"})
	if err != nil {
		t.Fatalf("dial a: %v", err)
	}
	defer a.Close()

	b, err := Dial(ctx, Options{URL: url, Project: "proj-42"})
	if err != nil {
		t.Fatalf("dial b: %v", err)
	}
	defer b.Close()

	waitFor(t, "a joined", func() bool { return a.Project() == "proj-42" })
	waitFor(t, "b joined", func() bool { return b.Project() == "proj-42" })

	var mu sync.Mutex
	count := 0
	unsub := b.OnCodeUpdate(func(CodeUpdate) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	a.SendCodeChange("a.js", "one", nil)
	waitFor(t, "first update", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	})

	unsub()
	a.SendCodeChange("a.js", "two", nil)

	// Give the second update time to arrive if unsubscribe failed.
	time.Sleep(300 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("received %d updates after unsubscribe, want 1", count)
	}
}

func TestSessionEmitBeforeJoinIsNoop(t *testing.T) {
	url := startServer(t)
	ctx := context.Background()

	// No project configured: nothing is joined.
	session, err := Dial(ctx, Options{URL: url})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer session.Close()

	// Must not panic or error; server receives nothing.
	session.SendCodeChange("a.js", "x", nil)
	session.SendCursorChange("a.js", Position{Line: 1}, nil)

	if session.Project() != "" {
		t.Fatalf("project = %q, want none", session.Project())
	}
}

func TestSessionPresenceNotifications(t *testing.T) {
	url := startServer(t)
	ctx := context.Background()

	a, err := Dial(ctx, Options{URL: url, Project: "proj-42"})
	if err != nil {
		t.Fatalf("dial a: %v", err)
	}
	defer a.Close()
	waitFor(t, "a joined", func() bool { return a.Project() == "proj-42" })

	var mu sync.Mutex
	var events []Presence
	unsub := a.OnPresence(func(p Presence) {
		mu.Lock()
		events = append(events, p)
		mu.Unlock()
	})
	defer unsub()

	b, err := Dial(ctx, Options{URL: url, Project: "proj-42"})
	if err != nil {
		t.Fatalf("dial b: %v", err)
	}
	waitFor(t, "b joined", func() bool { return b.Project() == "proj-42" })

	waitFor(t, "user-joined", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) >= 1 && events[0].Event == "user-joined"
	})
	if a.TotalUsers() != 2 {
		t.Fatalf("total users = %d, want 2", a.TotalUsers())
	}

	b.Close()
	waitFor(t, "user-left", func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, ev := range events {
			if ev.Event == "user-left" && ev.TotalUsers == 1 {
				return true
			}
		}
		return false
	})
}

func TestSessionReconnectsAndRejoins(t *testing.T) {
	ts := startBackend(t)
	relay := startRelay(t, ts.Listener.Addr().String())
	relayURL := "ws://" + relay.addr() + "/ws"
	directURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
	ctx := context.Background()

	// The session under test goes through the relay so its connection
	// can be severed; the observer connects directly.
	session, err := Dial(ctx, Options{
		URL:           relayURL,
		Project:       "proj-42",
		AutoReconnect: true,
		BackoffMin:    50 * time.Millisecond,
		BackoffMax:    200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("dial through relay: %v", err)
	}
	defer session.Close()
	waitFor(t, "initial join", func() bool { return session.Project() == "proj-42" })

	observer, err := Dial(ctx, Options{URL: directURL, Project: "proj-42"})
	if err != nil {
		t.Fatalf("dial observer: %v", err)
	}
	defer observer.Close()
	waitFor(t, "observer joined", func() bool { return observer.TotalUsers() == 2 })

	relay.drop()

	// The server sees the drop as an implicit leave...
	waitFor(t, "implicit leave", func() bool { return observer.TotalUsers() == 1 })

	// ...and the session re-dials and re-joins on its own.
	waitFor(t, "automatic re-join", func() bool { return observer.TotalUsers() == 2 })
	waitFor(t, "session open again", func() bool {
		return session.State() == StateOpen && session.Project() == "proj-42"
	})

	// Live traffic flows on the new connection.
	var mu sync.Mutex
	var got []CodeUpdate
	unsub := session.OnCodeUpdate(func(ev CodeUpdate) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})
	defer unsub()

	observer.SendCodeChange("a.js", "after reconnect", nil)
	waitFor(t, "update after reconnect", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1 && got[0].NewContent == "after reconnect"
	})
}
