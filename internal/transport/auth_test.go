package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gatehouse-io/gatehouse/internal/config"
	"github.com/gatehouse-io/gatehouse/model"
)

const testSecret = "transport-test-secret"

func testAuthConfig(t *testing.T) config.AuthConfig {
	t.Helper()
	t.Setenv("GATEHOUSE_TEST_JWT_SECRET", testSecret)
	return config.AuthConfig{
		Issuer:    "https://issuer.example.com",
		Audience:  "gatehouse",
		SecretEnv: "GATEHOUSE_TEST_JWT_SECRET",
	}
}

func signToken(t *testing.T, secret string, mutate func(jwt.MapClaims)) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":    "alice",
		"iss":    "https://issuer.example.com",
		"aud":    "gatehouse",
		"exp":    time.Now().Add(time.Hour).Unix(),
		"roles":  []any{"manager", "admin"},
		"groups": []any{"finance"},
	}
	if mutate != nil {
		mutate(claims)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// authProbe runs the middleware against a handler that records the resolved
// UserContext.
func authProbe(t *testing.T, cfg config.AuthConfig, authorization string) (*httptest.ResponseRecorder, *model.UserContext) {
	t.Helper()
	var captured *model.UserContext
	handler := JWTAuthenticator(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = model.UserContextFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/requests", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, captured
}

func TestJWTAuthenticator_validToken(t *testing.T) {
	cfg := testAuthConfig(t)
	rec, user := authProbe(t, cfg, "Bearer "+signToken(t, testSecret, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if user == nil {
		t.Fatal("expected UserContext in request context")
	}
	if user.ID != "alice" {
		t.Errorf("ID = %q, want alice", user.ID)
	}
	if !user.HasRole("manager") || !user.HasRole("admin") {
		t.Errorf("roles = %v", user.Roles)
	}
	if !user.HasGroup("finance") {
		t.Errorf("groups = %v", user.Groups)
	}
}

func TestJWTAuthenticator_rejections(t *testing.T) {
	cfg := testAuthConfig(t)

	tests := []struct {
		name          string
		authorization string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"garbage token", "Bearer not.a.token"},
		{"wrong secret", "Bearer " + signToken(t, "other-secret", nil)},
		{"expired", "Bearer " + signToken(t, testSecret, func(c jwt.MapClaims) {
			c["exp"] = time.Now().Add(-2 * time.Hour).Unix()
		})},
		{"wrong issuer", "Bearer " + signToken(t, testSecret, func(c jwt.MapClaims) {
			c["iss"] = "https://evil.example.com"
		})},
		{"wrong audience", "Bearer " + signToken(t, testSecret, func(c jwt.MapClaims) {
			c["aud"] = "other-service"
		})},
		{"no expiry", "Bearer " + signToken(t, testSecret, func(c jwt.MapClaims) {
			delete(c, "exp")
		})},
		{"no subject", "Bearer " + signToken(t, testSecret, func(c jwt.MapClaims) {
			delete(c, "sub")
		})},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec, user := authProbe(t, cfg, tc.authorization)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401, body %s", rec.Code, rec.Body.String())
			}
			if user != nil {
				t.Error("handler ran despite rejection")
			}
		})
	}
}

func TestJWTAuthenticator_noneAlgorithmRejected(t *testing.T) {
	cfg := testAuthConfig(t)

	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "alice",
		"iss": cfg.Issuer,
		"aud": cfg.Audience,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	rec, _ := authProbe(t, cfg, "Bearer "+signed)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
