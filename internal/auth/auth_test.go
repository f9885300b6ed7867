package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-itembank/internal/rbac"
)

func TestAccounts(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	ac := Accounts{AdminUser: "admin", AdminPassHash: string(hash), DevLogins: true}
	cases := []struct {
		user, pass string
		role       string
		ok         bool
	}{
		{"admin", "s3cret", "admin", true},
		{"admin", "admin", "", false},
		{"teacher", "teacher", "teacher", true},
		{"reviewer", "reviewer", "reviewer", true},
		{"student", "student", "", false},
		{"teacher", "nope", "", false},
		{"", "", "", false},
	}
	for _, tc := range cases {
		role, ok := ac.Check(tc.user, tc.pass)
		if role != tc.role || ok != tc.ok {
			t.Errorf("Check(%q, %q) = %q, %v", tc.user, tc.pass, role, ok)
		}
	}
	ac.DevLogins = false
	if _, ok := ac.Check("teacher", "teacher"); ok {
		t.Error("dev login accepted while disabled")
	}
}

func TestLoginAndMiddleware(t *testing.T) {
	a := NewAuthService("test-secret")
	login := LoginHandler(a, Accounts{DevLogins: true})
	rec := httptest.NewRecorder()
	login(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"teacher","password":"teacher"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("login code %d: %s", rec.Code, rec.Body)
	}
	var out struct {
		AccessToken string `json:"access_token"`
		Role        string `json:"role"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Role != "teacher" || out.AccessToken == "" {
		t.Fatalf("login = %+v", out)
	}

	var seen rbac.Principal
	h := JWTMiddleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = rbac.PrincipalFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/imports/x", nil)
	req.Header.Set("Authorization", "Bearer "+out.AccessToken)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || seen.Subject != "teacher" || seen.Role != "teacher" {
		t.Fatalf("code %d principal %+v", rec.Code, seen)
	}

	for _, hdr := range []string{"", "Bearer garbage", "Basic abc"} {
		req := httptest.NewRequest(http.MethodGet, "/imports/x", nil)
		if hdr != "" {
			req.Header.Set("Authorization", hdr)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("header %q: code %d", hdr, rec.Code)
		}
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	a := NewAuthService("k")
	a.now = func() time.Time { return time.Unix(1_000_000, 0) }
	tok, _, err := a.IssueJWT("teacher", "teacher")
	if err != nil {
		t.Fatal(err)
	}
	a.now = func() time.Time { return time.Unix(1_000_000, 0).Add(9 * time.Hour) }
	if _, err := a.Parse(tok); err == nil {
		t.Fatal("expired token accepted")
	}
	other := NewAuthService("other")
	other.now = func() time.Time { return time.Unix(1_000_000, 0) }
	if _, err := other.Parse(tok); err == nil {
		t.Fatal("token signed with another key accepted")
	}
}
