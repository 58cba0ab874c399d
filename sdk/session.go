// Package collab is the client side of the collaborative session
// protocol: it keeps one WebSocket to the server, re-joins the
// configured project after reconnects, and dispatches typed updates to
// subscribers. Emits while the transport is down are warn-level no-ops
// rather than errors, so a UI can call them unconditionally.
package collab

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
)

// State is the transport state of a session.
type State int32

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
)

// Options configures a session.
type Options struct {
	// URL of the server WebSocket endpoint, e.g. ws://localhost:8080/ws.
	URL string
	// Token is an optional session token for event attribution.
	Token string
	// Project, when set, is joined automatically whenever the
	// transport opens (including after reconnects).
	Project string
	// AutoReconnect re-dials with capped exponential backoff after a
	// drop. Missed events are not replayed; the session re-joins and
	// continues from live traffic.
	AutoReconnect bool
	BackoffMin    time.Duration
	BackoffMax    time.Duration
	Logger        *zerolog.Logger
}

type inboundEnvelope struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *wireError      `json:"error,omitempty"`
}

type wireError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type outboundEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Session is one client connection to the collaboration server.
type Session struct {
	opts Options
	log  *zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	conn    *websocket.Conn
	state   State
	project string // project to (re-)join on open
	joined  string // project acked by the server
	total   int

	nextSub      int
	codeSubs     map[int]func(CodeUpdate)
	cursorSubs   map[int]func(CursorUpdate)
	presenceSubs map[int]func(Presence)
}

// Dial connects to the server and starts the session. The initial
// connect is synchronous; later drops are handled by the reconnect
// loop when AutoReconnect is set.
func Dial(ctx context.Context, opts Options) (*Session, error) {
	if opts.BackoffMin <= 0 {
		opts.BackoffMin = 500 * time.Millisecond
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 15 * time.Second
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		opts:         opts,
		log:          opts.Logger,
		ctx:          sessCtx,
		cancel:       cancel,
		project:      opts.Project,
		codeSubs:     make(map[int]func(CodeUpdate)),
		cursorSubs:   make(map[int]func(CursorUpdate)),
		presenceSubs: make(map[int]func(Presence)),
	}

	if err := s.connect(ctx); err != nil {
		cancel()
		return nil, err
	}

	go s.run()
	return s, nil
}

// State returns the current transport state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Project returns the project the server has acked, empty if none.
func (s *Session) Project() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joined
}

// TotalUsers returns the last membership count the server reported.
func (s *Session) TotalUsers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// JoinProject requests membership of a project. The session remembers
// the id and re-joins it automatically after reconnects.
func (s *Session) JoinProject(projectID string) {
	s.mu.Lock()
	s.project = projectID
	open := s.state == StateOpen
	s.mu.Unlock()

	if !open {
		s.log.Warn().Str("project_id", projectID).Msg("join deferred, transport not open")
		return
	}
	s.send("join-project", map[string]string{"projectId": projectID})
}

// LeaveProject leaves the current project and stops auto-joining it.
func (s *Session) LeaveProject() {
	s.mu.Lock()
	project := s.joined
	s.project = ""
	s.joined = ""
	s.total = 0
	open := s.state == StateOpen
	s.mu.Unlock()

	if project == "" || !open {
		return
	}
	s.send("leave-project", map[string]string{"projectId": project})
}

// SendCodeChange publishes a full-file edit to the joined project.
func (s *Session) SendCodeChange(filePath, newContent string, cursor *Position) {
	project, ok := s.readyToEmit("code-change")
	if !ok {
		return
	}
	s.send("code-change", map[string]any{
		"projectId":      project,
		"filePath":       filePath,
		"newContent":     newContent,
		"cursorPosition": cursor,
	})
}

// SendCursorChange publishes a cursor move to the joined project.
func (s *Session) SendCursorChange(filePath string, cursor Position, selection *Selection) {
	project, ok := s.readyToEmit("cursor-change")
	if !ok {
		return
	}
	s.send("cursor-change", map[string]any{
		"projectId":      project,
		"filePath":       filePath,
		"cursorPosition": cursor,
		"selection":      selection,
	})
}

// OnCodeUpdate subscribes to collaborators' edits. The returned func
// removes the subscription.
func (s *Session) OnCodeUpdate(fn func(CodeUpdate)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.codeSubs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.codeSubs, id)
	}
}

// OnCursorUpdate subscribes to collaborators' cursor moves.
func (s *Session) OnCursorUpdate(fn func(CursorUpdate)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.cursorSubs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.cursorSubs, id)
	}
}

// OnPresence subscribes to membership changes of the joined project.
func (s *Session) OnPresence(fn func(Presence)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.presenceSubs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.presenceSubs, id)
	}
}

// Close tears the session down: the transport is closed and the
// implicit leave happens server-side.
func (s *Session) Close() {
	s.cancel()
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.state = StateClosed
	s.joined = ""
	s.mu.Unlock()
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "bye")
	}
}

func (s *Session) readyToEmit(what string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		s.log.Warn().Str("event", what).Msg("emit dropped, transport not open")
		return "", false
	}
	if s.joined == "" {
		s.log.Warn().Str("event", what).Msg("emit dropped, no project joined")
		return "", false
	}
	return s.joined, true
}

func (s *Session) connect(ctx context.Context) error {
	s.mu.Lock()
	s.state = StateConnecting
	s.mu.Unlock()

	addr := s.opts.URL
	if s.opts.Token != "" {
		u, err := url.Parse(addr)
		if err != nil {
			return err
		}
		q := u.Query()
		q.Set("token", s.opts.Token)
		u.RawQuery = q.Encode()
		addr = u.String()
	}

	conn, _, err := websocket.Dial(ctx, addr, nil)
	if err != nil {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.state = StateOpen
	project := s.project
	s.mu.Unlock()

	s.log.Debug().Str("url", s.opts.URL).Msg("transport open")
	if project != "" {
		s.send("join-project", map[string]string{"projectId": project})
	}
	return nil
}

// run reads events until the connection drops, then reconnects with
// backoff if configured. There is no session resumption: events missed
// while disconnected are gone, the session simply re-joins.
func (s *Session) run() {
	backoff := s.opts.BackoffMin
	for {
		err := s.readLoop()
		if s.ctx.Err() != nil {
			return
		}
		s.mu.Lock()
		s.state = StateClosed
		s.joined = ""
		s.conn = nil
		s.mu.Unlock()

		if !s.opts.AutoReconnect {
			s.log.Warn().Err(err).Msg("connection lost")
			return
		}

		s.log.Warn().Err(err).Dur("backoff", backoff).Msg("connection lost, reconnecting")
		select {
		case <-time.After(backoff):
		case <-s.ctx.Done():
			return
		}
		backoff *= 2
		if backoff > s.opts.BackoffMax {
			backoff = s.opts.BackoffMax
		}

		if err := s.connect(s.ctx); err != nil {
			continue
		}
		backoff = s.opts.BackoffMin
	}
}

func (s *Session) readLoop() error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil
	}

	for {
		var env inboundEnvelope
		if err := wsjson.Read(s.ctx, conn, &env); err != nil {
			return err
		}
		s.dispatch(env)
	}
}

func (s *Session) dispatch(env inboundEnvelope) {
	if env.Type == "error" {
		if env.Error != nil {
			s.log.Warn().Str("code", env.Error.Code).Str("message", env.Error.Message).Msg("server rejected event")
		}
		return
	}

	switch env.Event {
	case "joined-project":
		var ev struct {
			ProjectID  string `json:"projectId"`
			TotalUsers int    `json:"totalUsers"`
		}
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			s.log.Warn().Err(err).Msg("unmarshal joined-project")
			return
		}
		s.mu.Lock()
		s.joined = ev.ProjectID
		s.total = ev.TotalUsers
		s.mu.Unlock()
		s.notifyPresence(Presence{Event: env.Event, ProjectID: ev.ProjectID, TotalUsers: ev.TotalUsers})

	case "user-joined", "user-left":
		var ev struct {
			User       string `json:"user"`
			TotalUsers int    `json:"totalUsers"`
		}
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			s.log.Warn().Err(err).Msg("unmarshal presence event")
			return
		}
		s.mu.Lock()
		s.total = ev.TotalUsers
		project := s.joined
		s.mu.Unlock()
		s.notifyPresence(Presence{Event: env.Event, ProjectID: project, User: ev.User, TotalUsers: ev.TotalUsers})

	case "code-update":
		var ev CodeUpdate
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			s.log.Warn().Err(err).Msg("unmarshal code-update")
			return
		}
		s.mu.Lock()
		subs := make([]func(CodeUpdate), 0, len(s.codeSubs))
		for _, fn := range s.codeSubs {
			subs = append(subs, fn)
		}
		s.mu.Unlock()
		for _, fn := range subs {
			fn(ev)
		}

	case "cursor-update":
		var ev CursorUpdate
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			s.log.Warn().Err(err).Msg("unmarshal cursor-update")
			return
		}
		s.mu.Lock()
		subs := make([]func(CursorUpdate), 0, len(s.cursorSubs))
		for _, fn := range s.cursorSubs {
			subs = append(subs, fn)
		}
		s.mu.Unlock()
		for _, fn := range subs {
			fn(ev)
		}
	}
}

func (s *Session) notifyPresence(p Presence) {
	s.mu.Lock()
	subs := make([]func(Presence), 0, len(s.presenceSubs))
	for _, fn := range s.presenceSubs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn(p)
	}
}

func (s *Session) send(msgType string, data any) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		s.log.Warn().Str("type", msgType).Msg("send dropped, no connection")
		return
	}
	if err := wsjson.Write(s.ctx, conn, outboundEnvelope{Type: msgType, Data: data}); err != nil {
		s.log.Warn().Err(err).Str("type", msgType).Msg("send failed")
	}
}
