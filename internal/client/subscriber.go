package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"campuschat/internal/realtime"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

type StateChange struct {
	From State
	To   State
	Err  error
}

// Event is one server push delivered to a subscribed group.
type Event struct {
	Name    string
	Group   string
	Payload json.RawMessage
}

func (e Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second

	clientWriteWait = 10 * time.Second
	clientReadWait  = 70 * time.Second
)

// Subscriber keeps one websocket to the server alive and re-joins every
// desired group whenever the connection is re-established.
type Subscriber struct {
	wsURL   string
	session *Session
	dialer  *websocket.Dialer
	log     *zap.Logger

	minBackoff time.Duration
	maxBackoff time.Duration

	mu      sync.Mutex
	state   State
	desired map[string]realtime.Invocation
	pending map[string]pendingCall
	conn    *websocket.Conn
	seq     uint64

	writeMu sync.Mutex

	events chan Event
	states chan StateChange
	resync chan struct{}
	joined chan string
}

// pendingCall is an invocation awaiting the server's ack or error frame.
type pendingCall struct {
	group string
	join  bool
}

// NewSubscriber takes the server's base URL (http or https) and derives the /ws endpoint.
func NewSubscriber(baseURL string, session *Session, log *zap.Logger) (*Subscriber, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = "/ws"

	if log == nil {
		log = zap.NewNop()
	}
	return &Subscriber{
		wsURL:      u.String(),
		session:    session,
		dialer:     websocket.DefaultDialer,
		log:        log,
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
		desired:    make(map[string]realtime.Invocation),
		pending:    make(map[string]pendingCall),
		events:     make(chan Event, 256),
		states:     make(chan StateChange, 32),
		resync:     make(chan struct{}, 1),
		joined:     make(chan string, 64),
	}, nil
}

// Events must be drained; the read loop blocks while it is full.
func (s *Subscriber) Events() <-chan Event { return s.events }

// States reports transitions. Changes are dropped if nobody is reading.
func (s *Subscriber) States() <-chan StateChange { return s.states }

// Resync fires after every reconnect; consumers should re-fetch anything they cache.
func (s *Subscriber) Resync() <-chan struct{} { return s.resync }

// Joined reports each group the server has confirmed, including re-joins after a reconnect.
// Confirmations are dropped if nobody is reading.
func (s *Subscriber) Joined() <-chan string { return s.joined }

func (s *Subscriber) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Subscriber) JoinChat(chatID int64) error {
	return s.join(realtime.ChatGroup(chatID), realtime.MethodJoinChatGroup, chatID)
}

func (s *Subscriber) LeaveChat(chatID int64) error {
	return s.leave(realtime.ChatGroup(chatID), realtime.MethodLeaveChatGroup, chatID)
}

func (s *Subscriber) JoinCourse(courseID int64) error {
	return s.join(realtime.CourseGroup(courseID), realtime.MethodJoinCourseGroup, courseID)
}

func (s *Subscriber) LeaveCourse(courseID int64) error {
	return s.leave(realtime.CourseGroup(courseID), realtime.MethodLeaveCourseGroup, courseID)
}

// JoinUser subscribes to the session user's personal notifications.
func (s *Subscriber) JoinUser() error {
	if !s.session.Valid() {
		return ErrSignedOut
	}
	return s.join(realtime.UserGroup(s.session.UserID), realtime.MethodJoinUserGroup, s.session.UserID)
}

// Groups returns the groups that will be joined on every (re)connect.
func (s *Subscriber) Groups() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.desired))
	for g := range s.desired {
		out = append(out, g)
	}
	return out
}

func (s *Subscriber) join(group, method string, target int64) error {
	s.mu.Lock()
	inv := realtime.Invocation{Method: method, Target: target}
	s.desired[group] = inv
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	return s.invoke(conn, group, inv, true)
}

func (s *Subscriber) leave(group, method string, target int64) error {
	s.mu.Lock()
	delete(s.desired, group)
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	return s.invoke(conn, group, realtime.Invocation{Method: method, Target: target}, false)
}

func (s *Subscriber) invoke(conn *websocket.Conn, group string, inv realtime.Invocation, join bool) error {
	s.mu.Lock()
	s.seq++
	inv.ID = strconv.FormatUint(s.seq, 10)
	s.pending[inv.ID] = pendingCall{group: group, join: join}
	s.mu.Unlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
	return conn.WriteJSON(inv)
}

// Run connects and keeps reconnecting with exponential backoff until ctx ends.
// The Events channel is closed when Run returns.
func (s *Subscriber) Run(ctx context.Context) error {
	defer close(s.events)
	defer s.setState(Disconnected, nil)

	backoff := s.minBackoff
	connectedBefore := false
	for {
		if connectedBefore {
			s.setState(Reconnecting, nil)
		} else {
			s.setState(Connecting, nil)
		}

		conn, err := s.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, ErrSignedOut) {
				return err
			}
			s.log.Warn("websocket dial failed", zap.Duration("retry_in", backoff), zap.Error(err))
			s.emitState(s.State(), s.State(), err)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff, s.maxBackoff)
			continue
		}
		backoff = s.minBackoff

		s.attach(conn)
		s.setState(Connected, nil)
		if err := s.rejoin(conn); err != nil {
			s.log.Warn("rejoin failed", zap.Error(err))
		}
		if connectedBefore {
			select {
			case s.resync <- struct{}{}:
			default:
			}
		}
		connectedBefore = true

		err = s.readLoop(ctx, conn)
		s.detach(conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Info("websocket closed, reconnecting", zap.Error(err))
	}
}

func (s *Subscriber) dial(ctx context.Context) (*websocket.Conn, error) {
	if !s.session.Valid() {
		return nil, ErrSignedOut
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.session.Token)
	conn, _, err := s.dialer.DialContext(ctx, s.wsURL, header)
	return conn, err
}

func (s *Subscriber) attach(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
	s.pending = make(map[string]pendingCall)
}

func (s *Subscriber) detach(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
	conn.Close()
}

func (s *Subscriber) rejoin(conn *websocket.Conn) error {
	s.mu.Lock()
	groups := make(map[string]realtime.Invocation, len(s.desired))
	for g, inv := range s.desired {
		groups[g] = inv
	}
	s.mu.Unlock()

	for group, inv := range groups {
		if err := s.invoke(conn, group, inv, true); err != nil {
			return err
		}
	}
	return nil
}

func (s *Subscriber) readLoop(ctx context.Context, conn *websocket.Conn) error {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	conn.SetReadDeadline(time.Now().Add(clientReadWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(clientReadWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(clientWriteWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(clientReadWait))

		// The server batches queued frames into one message separated by newlines.
		for _, line := range bytes.Split(data, []byte{'\n'}) {
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			var frame realtime.Frame
			if err := json.Unmarshal(line, &frame); err != nil {
				s.log.Warn("bad frame", zap.Error(err))
				continue
			}
			if !s.handleFrame(ctx, frame) {
				return ctx.Err()
			}
		}
	}
}

func (s *Subscriber) handleFrame(ctx context.Context, frame realtime.Frame) bool {
	switch frame.Type {
	case realtime.FrameEvent:
		select {
		case s.events <- Event{Name: frame.Event, Group: frame.Group, Payload: frame.Payload}:
		case <-ctx.Done():
			return false
		}
	case realtime.FrameAck:
		s.mu.Lock()
		call, ok := s.pending[frame.ID]
		delete(s.pending, frame.ID)
		s.mu.Unlock()
		if ok && call.join {
			select {
			case s.joined <- call.group:
			default:
			}
		}
	case realtime.FrameError:
		// A refused join is not retried on the next reconnect.
		s.mu.Lock()
		call, ok := s.pending[frame.ID]
		delete(s.pending, frame.ID)
		if ok && call.join {
			delete(s.desired, call.group)
		}
		s.mu.Unlock()
		s.log.Warn("server refused invocation", zap.String("group", call.group), zap.String("error", frame.Error))
	}
	return true
}

func (s *Subscriber) setState(to State, err error) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()
	if from != to {
		s.emitState(from, to, err)
	}
}

func (s *Subscriber) emitState(from, to State, err error) {
	select {
	case s.states <- StateChange{From: from, To: to, Err: err}:
	default:
	}
}

func nextBackoff(current, limit time.Duration) time.Duration {
	next := current * 2
	if next > limit {
		return limit
	}
	return next
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
