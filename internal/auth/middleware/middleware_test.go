package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/coursework/internal/rbac"
)

func TestJWTMiddleware_SetsSubjectAndRole(t *testing.T) {
	a := NewAuthService("secret")
	tok, err := a.IssueJWT("u1", "student")
	if err != nil {
		t.Fatal(err)
	}
	var sub, role string
	h := JWTMiddleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub = SubjectFromContext(r.Context())
		role = rbac.RoleFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || sub != "u1" || role != "student" {
		t.Fatalf("code %d sub %q role %q", rec.Code, sub, role)
	}

	for _, hdr := range []string{"", "Bearer nope", "Basic abc"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if hdr != "" {
			req.Header.Set("Authorization", hdr)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%q: code %d", hdr, rec.Code)
		}
	}
}

func TestParse_RejectsOtherSecretAndExpired(t *testing.T) {
	a := NewAuthService("secret")
	tok, _ := NewAuthService("other").IssueJWT("u1", "student")
	if _, err := a.Parse(tok); err == nil {
		t.Fatal("token signed with another secret accepted")
	}

	old := NewAuthService("secret")
	old.now = func() time.Time { return time.Now().Add(-9 * time.Hour) }
	tok, _ = old.IssueJWT("u1", "student")
	if _, err := a.Parse(tok); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestLogin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	a := NewAuthService("secret")
	l := Login{Auth: a, AdminUser: "admin", AdminPassHash: string(hash), DevLogins: true}

	tests := []struct {
		body string
		code int
		role string
	}{
		{`{"username":"admin","password":"s3cret"}`, http.StatusOK, "admin"},
		{`{"username":"admin","password":"admin","role":"teacher"}`, http.StatusUnauthorized, ""},
		{`{"username":"t1","password":"t1","role":"teacher"}`, http.StatusOK, "teacher"},
		{`{"username":"s1","password":"s1","role":"student"}`, http.StatusOK, "student"},
		{`{"username":"s1","password":"s1","role":"admin"}`, http.StatusUnauthorized, ""},
		{`{"username":"s1","password":"x","role":"student"}`, http.StatusUnauthorized, ""},
		{`not json`, http.StatusBadRequest, ""},
	}
	for _, tc := range tests {
		rec := httptest.NewRecorder()
		l.Handler()(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(tc.body)))
		if rec.Code != tc.code {
			t.Fatalf("%s: code %d want %d", tc.body, rec.Code, tc.code)
		}
		if tc.role != "" && !strings.Contains(rec.Body.String(), `"role":"`+tc.role+`"`) {
			t.Fatalf("%s: body %s", tc.body, rec.Body.String())
		}
	}

	prod := Login{Auth: a, AdminUser: "admin", AdminPassHash: string(hash)}
	rec := httptest.NewRecorder()
	prod.Handler()(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"t1","password":"t1","role":"teacher"}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("dev login accepted with DevLogins off: %d", rec.Code)
	}
}
