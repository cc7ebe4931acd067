package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/medstock/medstock-backend/pkg/auth"
	"github.com/medstock/medstock-backend/pkg/config"
	"github.com/medstock/medstock-backend/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60}
}

func TestAuthRejectsMissingToken(t *testing.T) {
	handler := Auth(testJWTConfig(), nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	handler := Auth(testJWTConfig(), nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsTokenFromAnotherIssuer(t *testing.T) {
	foreign := testJWTConfig()
	foreign.Issuer = "someone-else"
	token := mintTestToken(t, foreign, uuid.New(), enums.UserRoleAdmin)

	handler := Auth(testJWTConfig(), nil)(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthAllowsValidToken(t *testing.T) {
	cfg := testJWTConfig()
	userID := uuid.New()
	token := mintTestToken(t, cfg, userID, enums.UserRoleSeller)

	var captured struct {
		user  string
		role  string
		actor uuid.UUID
	}
	handler := Auth(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.user = UserIDFromContext(r.Context())
		captured.role = RoleFromContext(r.Context())
		actor, err := ActorID(r.Context())
		if err != nil {
			t.Fatalf("ActorID: %v", err)
		}
		captured.actor = actor
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured.user != userID.String() || captured.actor != userID {
		t.Fatalf("expected user %s got %s", userID, captured.user)
	}
	if captured.role != string(enums.UserRoleSeller) {
		t.Fatalf("expected role seller got %s", captured.role)
	}
}

func TestAuthRequiresBearerScheme(t *testing.T) {
	cfg := testJWTConfig()
	token := mintTestToken(t, cfg, uuid.New(), enums.UserRoleBuyer)
	handler := Auth(cfg, nil)(okHandler())

	for _, header := range []string{token, "Basic " + token, "Bearer ", "bearer " + token} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		want := http.StatusUnauthorized
		if strings.HasPrefix(header, "bearer ") {
			want = http.StatusOK
		}
		if resp.Code != want {
			t.Fatalf("header %q: expected %d got %d", header, want, resp.Code)
		}
	}
}

func TestWithRoleKeepsUserID(t *testing.T) {
	ctx := WithRole(WithUserID(context.Background(), "u-1"), "admin")
	if UserIDFromContext(ctx) != "u-1" || RoleFromContext(ctx) != "admin" {
		t.Fatalf("expected both user and role, got %q %q", UserIDFromContext(ctx), RoleFromContext(ctx))
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name string
		role string
		want int
	}{
		{"admin allowed", string(enums.UserRoleAdmin), http.StatusOK},
		{"seller allowed", string(enums.UserRoleSeller), http.StatusOK},
		{"buyer forbidden", string(enums.UserRoleBuyer), http.StatusForbidden},
		{"missing role", "", http.StatusForbidden},
	}
	handler := RequireRole(nil, enums.UserRoleAdmin, enums.UserRoleSeller)(okHandler())
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithRole(req.Context(), tt.role))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != tt.want {
			t.Fatalf("%s: expected %d got %d", tt.name, tt.want, resp.Code)
		}
	}
}

func TestActorIDRejectsMissingOrMalformedUser(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, err := ActorID(req.Context()); err == nil {
		t.Fatal("expected error for missing user")
	}
	ctx := WithUserID(req.Context(), "not-a-uuid")
	if _, err := ActorID(ctx); err == nil {
		t.Fatal("expected error for malformed user")
	}
}

func mintTestToken(t *testing.T, cfg config.JWTConfig, userID uuid.UUID, role enums.UserRole) string {
	t.Helper()
	token, err := auth.MintAccessToken(cfg, time.Now(), auth.AccessTokenPayload{UserID: userID, Role: role})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}
