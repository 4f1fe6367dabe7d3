package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"campuschat/internal/chat"
	"campuschat/internal/connection"
	"campuschat/internal/course"
	"campuschat/internal/user"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("campuschat: %d %s", e.Status, e.Message)
}

// API is a typed REST client. It holds no identity; pass a Session to every call.
type API struct {
	baseURL string
	http    *http.Client
}

func NewAPI(baseURL string, httpClient *http.Client) *API {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &API{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// ---------------------------------------------
// Request and response bodies
// ---------------------------------------------

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	ID          int64  `json:"id"`
	Username    string `json:"username"`
}

type connectionRequest struct {
	RequesterID int64 `json:"requesterId"`
	ReceiverID  int64 `json:"receiverId"`
}

type connectionResponse struct {
	Success      bool  `json:"success"`
	ConnectionID int64 `json:"connectionId"`
}

type createChatRequest struct {
	User1ID int64 `json:"user1Id"`
	User2ID int64 `json:"user2Id"`
}

type createChatResponse struct {
	ChatID int64 `json:"chatId"`
}

type sendMessageRequest struct {
	SenderID int64  `json:"senderId"`
	Content  string `json:"content"`
}

type sendMessageResponse struct {
	Success   bool  `json:"success"`
	MessageID int64 `json:"messageId"`
}

type createCourseRequest struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type enrollRequest struct {
	UserID int64 `json:"userId"`
}

// ---------------------------------------------
// Users
// ---------------------------------------------

func (a *API) Register(ctx context.Context, req user.RegisterRequest) (*user.PublicProfile, error) {
	var out user.PublicProfile
	if err := a.do(ctx, nil, http.MethodPost, "/register", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) Login(ctx context.Context, username, password string) (*Session, error) {
	var out loginResponse
	if err := a.do(ctx, nil, http.MethodPost, "/login", loginRequest{Username: username, Password: password}, &out); err != nil {
		return nil, err
	}
	return &Session{Token: out.AccessToken, UserID: out.ID, Username: out.Username}, nil
}

func (a *API) SearchUsers(ctx context.Context, s *Session, query string) ([]user.PublicProfile, error) {
	var out []user.PublicProfile
	err := a.do(ctx, s, http.MethodGet, "/api/users/search?q="+url.QueryEscape(query), nil, &out)
	return out, err
}

func (a *API) Profile(ctx context.Context, s *Session, userID int64) (*user.PublicProfile, error) {
	var out user.PublicProfile
	if err := a.do(ctx, s, http.MethodGet, "/api/users/"+id(userID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ---------------------------------------------
// Connections
// ---------------------------------------------

func (a *API) RequestConnection(ctx context.Context, s *Session, receiverID int64) (int64, error) {
	if !s.Valid() {
		return 0, ErrSignedOut
	}
	var out connectionResponse
	err := a.do(ctx, s, http.MethodPost, "/api/connections/request",
		connectionRequest{RequesterID: s.UserID, ReceiverID: receiverID}, &out)
	return out.ConnectionID, err
}

func (a *API) AcceptConnection(ctx context.Context, s *Session, connectionID int64) error {
	return a.do(ctx, s, http.MethodPost, "/api/connections/"+id(connectionID)+"/accept", nil, nil)
}

func (a *API) RejectConnection(ctx context.Context, s *Session, connectionID int64) error {
	return a.do(ctx, s, http.MethodPost, "/api/connections/"+id(connectionID)+"/reject", nil, nil)
}

func (a *API) RemoveConnection(ctx context.Context, s *Session, connectionID int64) error {
	return a.do(ctx, s, http.MethodDelete, "/api/connections/"+id(connectionID), nil, nil)
}

func (a *API) Connections(ctx context.Context, s *Session) ([]connection.Entry, error) {
	return a.ownEntries(ctx, s, "/api/connections/user/")
}

func (a *API) PendingRequests(ctx context.Context, s *Session) ([]connection.Entry, error) {
	return a.ownEntries(ctx, s, "/api/connections/pending/")
}

func (a *API) SentRequests(ctx context.Context, s *Session) ([]connection.Entry, error) {
	return a.ownEntries(ctx, s, "/api/connections/sent/")
}

func (a *API) Suggestions(ctx context.Context, s *Session) ([]user.PublicProfile, error) {
	if !s.Valid() {
		return nil, ErrSignedOut
	}
	var out []user.PublicProfile
	err := a.do(ctx, s, http.MethodGet, "/api/connections/suggestions/"+id(s.UserID), nil, &out)
	return out, err
}

func (a *API) ownEntries(ctx context.Context, s *Session, prefix string) ([]connection.Entry, error) {
	if !s.Valid() {
		return nil, ErrSignedOut
	}
	var out []connection.Entry
	err := a.do(ctx, s, http.MethodGet, prefix+id(s.UserID), nil, &out)
	return out, err
}

// ---------------------------------------------
// Private chats
// ---------------------------------------------

func (a *API) Chats(ctx context.Context, s *Session) ([]chat.Summary, error) {
	if !s.Valid() {
		return nil, ErrSignedOut
	}
	var out []chat.Summary
	err := a.do(ctx, s, http.MethodGet, "/api/chats/user/"+id(s.UserID), nil, &out)
	return out, err
}

// OpenChat returns the chat with otherUserID, creating it on first use.
func (a *API) OpenChat(ctx context.Context, s *Session, otherUserID int64) (int64, error) {
	if !s.Valid() {
		return 0, ErrSignedOut
	}
	var out createChatResponse
	err := a.do(ctx, s, http.MethodPost, "/api/chats/create",
		createChatRequest{User1ID: s.UserID, User2ID: otherUserID}, &out)
	return out.ChatID, err
}

// Messages fetches the history and marks it read for the session's user.
func (a *API) Messages(ctx context.Context, s *Session, chatID int64) ([]chat.Message, error) {
	if !s.Valid() {
		return nil, ErrSignedOut
	}
	var out []chat.Message
	err := a.do(ctx, s, http.MethodGet, "/api/chats/"+id(chatID)+"/messages?userId="+id(s.UserID), nil, &out)
	return out, err
}

func (a *API) SendMessage(ctx context.Context, s *Session, chatID int64, content string) (int64, error) {
	if !s.Valid() {
		return 0, ErrSignedOut
	}
	var out sendMessageResponse
	err := a.do(ctx, s, http.MethodPost, "/api/chats/"+id(chatID)+"/messages",
		sendMessageRequest{SenderID: s.UserID, Content: content}, &out)
	return out.MessageID, err
}

func (a *API) ChatHeader(ctx context.Context, s *Session, chatID int64) (*chat.Header, error) {
	if !s.Valid() {
		return nil, ErrSignedOut
	}
	var out chat.Header
	if err := a.do(ctx, s, http.MethodGet, "/api/chats/"+id(chatID)+"?userId="+id(s.UserID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) DeleteChat(ctx context.Context, s *Session, chatID int64) error {
	if !s.Valid() {
		return ErrSignedOut
	}
	return a.do(ctx, s, http.MethodDelete, "/api/chats/"+id(chatID)+"?userId="+id(s.UserID), nil, nil)
}

// ---------------------------------------------
// Courses
// ---------------------------------------------

func (a *API) Courses(ctx context.Context, s *Session) ([]course.Course, error) {
	var out []course.Course
	err := a.do(ctx, s, http.MethodGet, "/api/courses", nil, &out)
	return out, err
}

func (a *API) CreateCourse(ctx context.Context, s *Session, code, name, description string) (*course.Course, error) {
	var out course.Course
	err := a.do(ctx, s, http.MethodPost, "/api/courses",
		createCourseRequest{Code: code, Name: name, Description: description}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) Enroll(ctx context.Context, s *Session, courseID int64) error {
	if !s.Valid() {
		return ErrSignedOut
	}
	return a.do(ctx, s, http.MethodPost, "/api/courses/"+id(courseID)+"/enroll", enrollRequest{UserID: s.UserID}, nil)
}

func (a *API) MyCourses(ctx context.Context, s *Session) ([]course.Course, error) {
	if !s.Valid() {
		return nil, ErrSignedOut
	}
	var out []course.Course
	err := a.do(ctx, s, http.MethodGet, "/api/courses/user/"+id(s.UserID), nil, &out)
	return out, err
}

func (a *API) CourseMessages(ctx context.Context, s *Session, courseID int64) ([]course.Message, error) {
	var out []course.Message
	err := a.do(ctx, s, http.MethodGet, "/api/courses/"+id(courseID)+"/messages", nil, &out)
	return out, err
}

func (a *API) SendCourseMessage(ctx context.Context, s *Session, courseID int64, content string) (int64, error) {
	if !s.Valid() {
		return 0, ErrSignedOut
	}
	var out sendMessageResponse
	err := a.do(ctx, s, http.MethodPost, "/api/courses/"+id(courseID)+"/messages",
		sendMessageRequest{SenderID: s.UserID, Content: content}, &out)
	return out.MessageID, err
}

// do sends one request. A nil session means a public endpoint.
func (a *API) do(ctx context.Context, s *Session, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s != nil {
		if !s.Valid() {
			return ErrSignedOut
		}
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}

func id(v int64) string {
	return strconv.FormatInt(v, 10)
}
