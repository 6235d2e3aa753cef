package httpapi

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mbartova/medscreen/internal/eventlog"
)

func testRouter() *Router {
	return &Router{
		cfg: RouterConfig{
			JWTSecret:     "test-secret",
			JWTExpiry:     time.Hour,
			AdminUsername: "coordinator",
			AdminPassword: "swordfish",
		},
		logger:   log.New(io.Discard, "", 0),
		eventLog: eventlog.New(nil),
		registry: NewSessionRegistry(),
		mux:      http.NewServeMux(),
	}
}

func TestLoginSuccess(t *testing.T) {
	r := testRouter()

	req := httptest.NewRequest("POST", "/auth/login",
		strings.NewReader(`{"username":"coordinator","password":"swordfish"}`))
	w := httptest.NewRecorder()
	r.handleLogin(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp loginResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Token == "" {
		t.Error("token should not be empty")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	r := testRouter()

	req := httptest.NewRequest("POST", "/auth/login",
		strings.NewReader(`{"username":"coordinator","password":"wrong"}`))
	w := httptest.NewRecorder()
	r.handleLogin(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestLoginDisabledWithoutCredentials(t *testing.T) {
	r := testRouter()
	r.cfg.AdminPassword = ""

	req := httptest.NewRequest("POST", "/auth/login",
		strings.NewReader(`{"username":"coordinator","password":""}`))
	w := httptest.NewRecorder()
	r.handleLogin(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestWithAuthMissingHeader(t *testing.T) {
	r := testRouter()

	handler := r.withAuth(func(w http.ResponseWriter, req *http.Request) {
		t.Error("handler should not run without a token")
	})

	req := httptest.NewRequest("GET", "/admin/interviews", nil)
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestWithAuthInvalidToken(t *testing.T) {
	r := testRouter()

	handler := r.withAuth(func(w http.ResponseWriter, req *http.Request) {
		t.Error("handler should not run with a bad token")
	})

	req := httptest.NewRequest("GET", "/admin/interviews", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestWithAuthValidToken(t *testing.T) {
	r := testRouter()

	token, _, err := r.generateJWT("coordinator")
	if err != nil {
		t.Fatalf("generateJWT failed: %v", err)
	}

	called := false
	handler := r.withAuth(func(w http.ResponseWriter, req *http.Request) {
		called = true
		user := getAuthUser(req.Context())
		if user == nil || user.Username != "coordinator" {
			t.Errorf("auth user = %+v, want coordinator", user)
		}
	})

	req := httptest.NewRequest("GET", "/admin/interviews", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler(w, req)

	if !called {
		t.Error("handler should run with a valid token")
	}
}

func TestWithAuthRejectsTokenFromOtherSecret(t *testing.T) {
	other := testRouter()
	other.cfg.JWTSecret = "different-secret"
	token, _, err := other.generateJWT("coordinator")
	if err != nil {
		t.Fatalf("generateJWT failed: %v", err)
	}

	r := testRouter()
	handler := r.withAuth(func(w http.ResponseWriter, req *http.Request) {
		t.Error("handler should not run with a foreign token")
	})

	req := httptest.NewRequest("GET", "/admin/interviews", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestWithAdminPassesAdminClaims(t *testing.T) {
	r := testRouter()

	token, _, err := r.generateJWT("coordinator")
	if err != nil {
		t.Fatalf("generateJWT failed: %v", err)
	}

	called := false
	handler := r.withAdmin(func(w http.ResponseWriter, req *http.Request) {
		called = true
	})

	req := httptest.NewRequest("GET", "/admin/interviews", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler(w, req)

	if !called {
		t.Error("admin handler should run for admin token")
	}
}
