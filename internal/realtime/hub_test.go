package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	myMiddleware "campuschat/internal/middleware"
)

type pairAuthorizer struct {
	members map[int64][2]int64
}

func (a pairAuthorizer) IsParticipant(_ context.Context, chatID, userID int64) (bool, error) {
	pair, ok := a.members[chatID]
	return ok && (pair[0] == userID || pair[1] == userID), nil
}

type testConn struct {
	t       *testing.T
	conn    *websocket.Conn
	pending [][]byte
}

func (c *testConn) invoke(id, method string, target int64) {
	c.t.Helper()
	if err := c.conn.WriteJSON(Invocation{ID: id, Method: method, Target: target}); err != nil {
		c.t.Fatalf("write invocation: %v", err)
	}
}

func (c *testConn) next(timeout time.Duration) (Frame, bool) {
	c.t.Helper()
	if len(c.pending) == 0 {
		c.conn.SetReadDeadline(time.Now().Add(timeout))
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return Frame{}, false
		}
		c.pending = bytes.Split(data, []byte{'\n'})
	}
	raw := c.pending[0]
	c.pending = c.pending[1:]
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.t.Fatalf("decode frame %q: %v", raw, err)
	}
	return frame, true
}

func (c *testConn) expect(frameType string) Frame {
	c.t.Helper()
	frame, ok := c.next(2 * time.Second)
	if !ok {
		c.t.Fatalf("expected %s frame, got nothing", frameType)
	}
	if frame.Type != frameType {
		c.t.Fatalf("expected %s frame, got %+v", frameType, frame)
	}
	return frame
}

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(NewLocalBroker(16), nil)
	go hub.Run(ctx)
	go hub.Subscribe(ctx)

	handler := NewHandler(hub, pairAuthorizer{members: map[int64][2]int64{7: {1, 2}}}, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, _ := strconv.ParseInt(r.URL.Query().Get("uid"), 10, 64)
		handler.ServeWs(w, r.WithContext(myMiddleware.WithUser(r.Context(), uid, "u"+r.URL.Query().Get("uid"))))
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, uid int64) *testConn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?uid=" + strconv.FormatInt(uid, 10)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &testConn{t: t, conn: conn}
}

func TestPublishReachesOnlyGroupMembers(t *testing.T) {
	hub, srv := startHub(t)
	alice := dial(t, srv, 1)
	bob := dial(t, srv, 2)

	alice.invoke("j1", MethodJoinChatGroup, 7)
	ack := alice.expect(FrameAck)
	if ack.ID != "j1" || ack.Group != "chat_7" {
		t.Fatalf("unexpected ack %+v", ack)
	}

	payload := map[string]interface{}{"id": 11, "content": "hi", "chatId": 7}
	if err := hub.Publish(context.Background(), ChatGroup(7), EventReceivePrivateMessage, payload); err != nil {
		t.Fatalf("publish: %v", err)
	}

	event := alice.expect(FrameEvent)
	if event.Event != EventReceivePrivateMessage || event.Group != "chat_7" {
		t.Fatalf("unexpected event %+v", event)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(event.Payload, &got); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if got["content"] != "hi" {
		t.Fatalf("unexpected payload %v", got)
	}

	if frame, ok := bob.next(200 * time.Millisecond); ok {
		t.Fatalf("unsubscribed client received %+v", frame)
	}
}

func TestJoinAuthorization(t *testing.T) {
	_, srv := startHub(t)
	mallory := dial(t, srv, 3)

	mallory.invoke("a", MethodJoinChatGroup, 7)
	if frame := mallory.expect(FrameError); frame.ID != "a" {
		t.Fatalf("unexpected frame %+v", frame)
	}

	mallory.invoke("b", MethodJoinUserGroup, 1)
	mallory.expect(FrameError)

	mallory.invoke("c", MethodJoinUserGroup, 3)
	if frame := mallory.expect(FrameAck); frame.Group != "user_3" {
		t.Fatalf("unexpected ack %+v", frame)
	}

	mallory.invoke("d", "Shout", 3)
	mallory.expect(FrameError)
}

func TestLeaveStopsDelivery(t *testing.T) {
	hub, srv := startHub(t)
	c := dial(t, srv, 5)

	c.invoke("1", MethodJoinCourseGroup, 42)
	c.expect(FrameAck)
	c.invoke("2", MethodLeaveCourseGroup, 42)
	c.expect(FrameAck)

	if err := hub.Publish(context.Background(), CourseGroup(42), EventReceiveCourseMessage, map[string]string{"content": "x"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if frame, ok := c.next(200 * time.Millisecond); ok {
		t.Fatalf("expected no delivery after leave, got %+v", frame)
	}
}

func TestDeliveryOrderWithinGroup(t *testing.T) {
	hub, srv := startHub(t)
	c := dial(t, srv, 1)
	c.invoke("1", MethodJoinCourseGroup, 9)
	c.expect(FrameAck)

	for i := 0; i < 20; i++ {
		if err := hub.Publish(context.Background(), CourseGroup(9), EventReceiveCourseMessage, map[string]int{"seq": i}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	for i := 0; i < 20; i++ {
		frame := c.expect(FrameEvent)
		var body map[string]int
		if err := json.Unmarshal(frame.Payload, &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["seq"] != i {
			t.Fatalf("expected seq %d, got %d", i, body["seq"])
		}
	}
}

func TestGroupNames(t *testing.T) {
	if ChatGroup(7) != "chat_7" || CourseGroup(3) != "course_3" || UserGroup(12) != "user_12" {
		t.Fatalf("unexpected group names")
	}
}
