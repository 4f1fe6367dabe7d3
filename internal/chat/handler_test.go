package chat

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

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	myMiddleware "campuschat/internal/middleware"
	"campuschat/internal/realtime"
)

// testIdentity stands in for the JWT middleware: the caller's id comes from X-User-ID.
func testIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(r.Header.Get("X-User-ID"), 10, 64)
		if id == 0 {
			id, _ = strconv.ParseInt(r.URL.Query().Get("as"), 10, 64)
		}
		next.ServeHTTP(w, r.WithContext(myMiddleware.WithUser(r.Context(), id, "user"+strconv.FormatInt(id, 10))))
	})
}

type harness struct {
	t   *testing.T
	srv *httptest.Server
}

func newHarness(t *testing.T, store *memStore, conns *fakeConnections) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := realtime.NewHub(realtime.NewLocalBroker(64), nil)
	go hub.Run(ctx)
	go hub.Subscribe(ctx)

	svc := NewService(store, conns, hub, nil)
	h := NewHandler(svc, nil)
	ws := realtime.NewHandler(hub, svc, nil)

	r := chi.NewRouter()
	r.Use(testIdentity)
	r.Get("/ws", ws.ServeWs)
	r.Route("/api/chats", func(r chi.Router) {
		r.Get("/user/{userId}", h.ListForUser)
		r.Post("/create", h.Create)
		r.Get("/{chatId}", h.Header)
		r.Delete("/{chatId}", h.Delete)
		r.Get("/{chatId}/messages", h.Messages)
		r.Post("/{chatId}/messages", h.Send)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return &harness{t: t, srv: srv}
}

func (h *harness) do(method, path string, as int64, body interface{}, out interface{}) int {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			h.t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, h.srv.URL+path, &buf)
	if err != nil {
		h.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("X-User-ID", strconv.FormatInt(as, 10))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			h.t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (h *harness) dial(as int64) *websocket.Conn {
	h.t.Helper()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws?as=" + strconv.FormatInt(as, 10)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		h.t.Fatalf("dial: %v", err)
	}
	h.t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) (realtime.Frame, bool) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return realtime.Frame{}, false
	}
	var frame realtime.Frame
	if err := json.Unmarshal(bytes.Split(data, []byte{'\n'})[0], &frame); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return frame, true
}

func TestPrivateChatScenario(t *testing.T) {
	h := newHarness(t, newMemStore(1, 2, 3), connected([2]int64{1, 2}))

	var created createChatResponse
	if code := h.do(http.MethodPost, "/api/chats/create", 1, map[string]int64{"user1Id": 1, "user2Id": 2}, &created); code != http.StatusOK {
		t.Fatalf("create chat status %d", code)
	}
	chatPath := "/api/chats/" + strconv.FormatInt(created.ChatID, 10)

	bob := h.dial(2)
	if err := bob.WriteJSON(realtime.Invocation{ID: "j", Method: realtime.MethodJoinChatGroup, Target: created.ChatID}); err != nil {
		t.Fatalf("join: %v", err)
	}
	if frame, ok := readFrame(t, bob, 2*time.Second); !ok || frame.Type != realtime.FrameAck {
		t.Fatalf("expected join ack, got %+v", frame)
	}
	carol := h.dial(3)

	var sent sendMessageResponse
	if code := h.do(http.MethodPost, chatPath+"/messages", 1, map[string]interface{}{"senderId": 1, "content": "hi"}, &sent); code != http.StatusOK {
		t.Fatalf("send status %d", code)
	}
	if !sent.Success || sent.MessageID == 0 {
		t.Fatalf("unexpected send response %+v", sent)
	}

	frame, ok := readFrame(t, bob, 2*time.Second)
	if !ok || frame.Event != realtime.EventReceivePrivateMessage {
		t.Fatalf("expected pushed message, got %+v", frame)
	}
	var pushed Message
	if err := json.Unmarshal(frame.Payload, &pushed); err != nil {
		t.Fatalf("decode pushed: %v", err)
	}
	if pushed.ID != sent.MessageID || pushed.Content != "hi" || pushed.SenderID != 1 {
		t.Fatalf("unexpected pushed message %+v", pushed)
	}
	if frame, ok := readFrame(t, carol, 200*time.Millisecond); ok {
		t.Fatalf("unsubscribed client got %+v", frame)
	}

	var summaries []Summary
	h.do(http.MethodGet, "/api/chats/user/2", 2, nil, &summaries)
	if len(summaries) != 1 || summaries[0].UnreadCount != 1 {
		t.Fatalf("expected one unread before opening, got %+v", summaries)
	}

	var msgs []Message
	if code := h.do(http.MethodGet, chatPath+"/messages?userId=2", 2, nil, &msgs); code != http.StatusOK {
		t.Fatalf("messages status %d", code)
	}
	if len(msgs) != 1 || msgs[0].Content != "hi" || msgs[0].IsFromMe {
		t.Fatalf("unexpected messages %+v", msgs)
	}

	h.do(http.MethodGet, "/api/chats/user/2", 2, nil, &summaries)
	if summaries[0].UnreadCount != 0 {
		t.Fatalf("expected zero unread after opening, got %d", summaries[0].UnreadCount)
	}

	var header Header
	if code := h.do(http.MethodGet, chatPath+"?userId=2", 2, nil, &header); code != http.StatusOK || header.OtherUser.ID != 1 {
		t.Fatalf("unexpected header %d %+v", code, header)
	}
}

func TestChatEndpointErrors(t *testing.T) {
	h := newHarness(t, newMemStore(1, 2, 3), connected([2]int64{1, 2}))

	if code := h.do(http.MethodPost, "/api/chats/create", 1, map[string]int64{"user1Id": 1, "user2Id": 3}, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unconnected users, got %d", code)
	}

	var created createChatResponse
	h.do(http.MethodPost, "/api/chats/create", 2, map[string]int64{"user1Id": 1, "user2Id": 2}, &created)
	chatPath := "/api/chats/" + strconv.FormatInt(created.ChatID, 10)

	if code := h.do(http.MethodGet, chatPath+"/messages?userId=3", 3, nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 for outsider, got %d", code)
	}
	if code := h.do(http.MethodGet, chatPath+"/messages?userId=1", 3, nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 when impersonating, got %d", code)
	}
	if code := h.do(http.MethodPost, chatPath+"/messages", 1, map[string]interface{}{"senderId": 1, "content": " "}, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank content, got %d", code)
	}
	if code := h.do(http.MethodDelete, chatPath+"?userId=3", 3, nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 deleting foreign chat, got %d", code)
	}
	if code := h.do(http.MethodDelete, chatPath+"?userId=1", 1, nil, nil); code != http.StatusOK {
		t.Fatalf("expected 200 deleting own chat, got %d", code)
	}
	if code := h.do(http.MethodGet, chatPath+"?userId=1", 1, nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", code)
	}
}
