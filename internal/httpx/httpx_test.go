package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"campuschat/internal/apperr"
)

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperr.Validation("content is required"), http.StatusBadRequest},
		{apperr.Precondition("users are not connected"), http.StatusBadRequest},
		{apperr.ErrNotFound, http.StatusNotFound},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := StatusOf(tc.err); got != tc.want {
			t.Fatalf("StatusOf(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestWriteErrorHidesUnhandledCause(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/chats/1", nil)
	WriteError(rec, nil, req, errors.New("pq: relation does not exist"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "internal server error" {
		t.Fatalf("expected generic message, got %q", body["error"])
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"senderId":1,"extra":true}`))
	var out struct {
		SenderID int64 `json:"senderId"`
	}
	err := DecodeJSON(req, &out)
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPathAndQueryInt64(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/chats/7?userId=3", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("chatId", "7")
	req = req.WithContext(chiContext(req, rctx))

	id, err := PathInt64(req, "chatId")
	if err != nil || id != 7 {
		t.Fatalf("expected 7, got %d (%v)", id, err)
	}
	userID, err := QueryInt64(req, "userId")
	if err != nil || userID != 3 {
		t.Fatalf("expected 3, got %d (%v)", userID, err)
	}
	if _, err := QueryInt64(req, "missing"); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error for missing query, got %v", err)
	}
}
