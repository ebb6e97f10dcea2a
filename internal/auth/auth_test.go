package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func initTestSecret(t *testing.T) {
	t.Helper()
	if err := Init("test-secret-0123456789", time.Hour); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { jwtSecret = nil; tokenTTL = DefaultTokenTTL })
}

func TestInitRejectsShortSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if err := Init("", 0); err == nil {
		t.Fatalf("expected error for empty secret")
	}
	if err := Init("short", 0); err == nil {
		t.Fatalf("expected error for short secret")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	initTestSecret(t)
	token, err := GenerateToken("ana", "operator")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	claims, err := ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Username != "ana" || claims.Role != "operator" {
		t.Fatalf("claims = %+v", claims)
	}
	if _, err := ParseToken(token + "x"); err == nil {
		t.Fatalf("expected error for tampered token")
	}
}

func TestJWTMiddleware(t *testing.T) {
	initTestSecret(t)
	token, _ := GenerateToken("ana", "operator")

	var seen string
	h := JWTMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, err := GetClaimsFromContext(r.Context()); err == nil {
			seen = claims.Username
		}
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"health is public", "/health", "", http.StatusOK},
		{"login is public", "/api/login", "", http.StatusOK},
		{"missing token", "/api/scan", "", http.StatusUnauthorized},
		{"bad token", "/api/scan", "Bearer nope", http.StatusUnauthorized},
		{"valid header", "/api/scan", "Bearer " + token, http.StatusOK},
		{"valid query", "/api/events/stream?token=" + token, "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
	if seen != "ana" {
		t.Fatalf("claims not propagated, saw %q", seen)
	}
}

func TestLoginHandler(t *testing.T) {
	initTestSecret(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	h := LoginHandler([]Operator{{Username: "ana", PasswordHash: string(hash)}})

	post := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(body)))
		return rec
	}

	if rec := post(`{"username":"ana","password":"wrong"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d", rec.Code)
	}
	if rec := post(`{"username":"ana"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing password status = %d", rec.Code)
	}
	if rec := post(`not json`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad body status = %d", rec.Code)
	}

	rec := post(`{"username":"ana","password":"hunter22"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d body %s", rec.Code, rec.Body.String())
	}
	var resp LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Role != "operator" || resp.Token == "" {
		t.Fatalf("response = %+v", resp)
	}
	if _, err := ParseToken(resp.Token); err != nil {
		t.Fatalf("issued token invalid: %v", err)
	}
}

func TestCheckPasswordHash(t *testing.T) {
	hash, err := HashPassword("pw")
	if err != nil {
		t.Fatal(err)
	}
	if !CheckPasswordHash("pw", hash) || CheckPasswordHash("other", hash) {
		t.Fatalf("CheckPasswordHash mismatch")
	}
}
