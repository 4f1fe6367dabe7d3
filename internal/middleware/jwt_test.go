package myMiddleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"campuschat/internal/apperr"
)

type stubValidator struct{}

func (stubValidator) ValidateToken(token string) (int64, string, error) {
	if token == "good" {
		return 42, "ada", nil
	}
	return 0, "", errors.New("bad token")
}

func TestAuthMiddleware(t *testing.T) {
	var gotID int64
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := NewAuthMiddleware(stubValidator{}).Handle(next)

	cases := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"invalid", "Bearer nope", "", http.StatusUnauthorized},
		{"header", "Bearer good", "", http.StatusNoContent},
		{"query fallback", "", "?token=good", http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gotID = 0
			req := httptest.NewRequest(http.MethodGet, "/ws"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
			if tc.want == http.StatusNoContent && gotID != 42 {
				t.Fatalf("expected user 42 in context, got %d", gotID)
			}
		})
	}
}

func TestRequireSelf(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithUser(req.Context(), 5, "bo"))
	if err := RequireSelf(req, 5); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
	if err := RequireSelf(req, 6); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
