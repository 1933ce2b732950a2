package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/starford/wstore/internal/apperr"
)

func testGate(t *testing.T) *Gate {
	t.Helper()
	g, err := NewGate(Credential{Username: "admin", Password: "s3cret"})
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	return g
}

func TestVerify(t *testing.T) {
	g := testGate(t)

	cases := []struct {
		name       string
		user, pass string
		present    bool
		wantErr    bool
	}{
		{"match", "admin", "s3cret", true, false},
		{"absent", "", "", false, true},
		{"wrong password", "admin", "nope", true, true},
		{"wrong user", "root", "s3cret", true, true},
		{"prefix password", "admin", "s3cre", true, true},
		{"empty", "", "", true, true},
	}
	for _, c := range cases {
		err := g.Verify(c.user, c.pass, c.present)
		if c.wantErr && !errors.Is(err, apperr.ErrUnauthorized) {
			t.Errorf("%s: err = %v, want ErrUnauthorized", c.name, err)
		}
		if !c.wantErr && err != nil {
			t.Errorf("%s: unexpected err %v", c.name, err)
		}
	}
}

func TestVerifyBcryptHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-pass"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	g, err := NewGate(Credential{Username: "admin", PasswordHash: string(hash), Password: "ignored"})
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	if err := g.Verify("admin", "hashed-pass", true); err != nil {
		t.Errorf("hash match rejected: %v", err)
	}
	if err := g.Verify("admin", "ignored", true); err == nil {
		t.Error("plain password accepted when hash is configured")
	}
}

func TestNewGateValidation(t *testing.T) {
	if _, err := NewGate(Credential{Password: "x"}); err == nil {
		t.Error("missing username accepted")
	}
	if _, err := NewGate(Credential{Username: "u"}); err == nil {
		t.Error("missing password accepted")
	}
	if _, err := NewGate(Credential{Username: "u", PasswordHash: "not-a-hash"}); err == nil {
		t.Error("malformed hash accepted")
	}
}

func TestMiddleware(t *testing.T) {
	g := testGate(t)
	called := false
	h := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPut, "/a.txt", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no credential = %d, want 401", w.Code)
	}
	if called {
		t.Error("wrapped handler ran without credential")
	}
	if got := w.Header().Get("WWW-Authenticate"); !strings.HasPrefix(got, `Basic realm="wstore"`) {
		t.Errorf("challenge = %q", got)
	}
	if strings.TrimSpace(w.Body.String()) != UnauthorizedMessage {
		t.Errorf("body = %q", w.Body.String())
	}

	req = httptest.NewRequest(http.MethodPut, "/a.txt", nil)
	req.SetBasicAuth("admin", "wrong")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized || called {
		t.Errorf("wrong credential = %d, called = %v", w.Code, called)
	}

	req = httptest.NewRequest(http.MethodPut, "/a.txt", nil)
	req.SetBasicAuth("admin", "s3cret")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent || !called {
		t.Errorf("valid credential = %d, called = %v", w.Code, called)
	}
}
