package transport

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gatehouse-io/gatehouse/internal/config"
	"github.com/gatehouse-io/gatehouse/model"
)

// JWTAuthenticator returns middleware that verifies HMAC-signed bearer
// tokens and stores the resulting UserContext in the request context. The
// subject claim becomes the user ID; "roles" and "groups" claims become the
// authorization inputs for every engine call behind this middleware.
func JWTAuthenticator(cfg config.AuthConfig) func(http.Handler) http.Handler {
	secret := []byte(cfg.Secret())

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				WriteError(w, model.NewUnauthorizedError("Missing authorization header"))
				return
			}
			if !strings.HasPrefix(auth, "Bearer ") {
				WriteError(w, model.NewUnauthorizedError("Invalid authorization header format"))
				return
			}
			tokenStr := auth[7:]

			opts := []jwt.ParserOption{
				jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
				jwt.WithLeeway(30 * time.Second),
				jwt.WithExpirationRequired(),
			}
			if cfg.Issuer != "" {
				opts = append(opts, jwt.WithIssuer(cfg.Issuer))
			}
			if cfg.Audience != "" {
				opts = append(opts, jwt.WithAudience(cfg.Audience))
			}

			token, err := jwt.Parse(tokenStr,
				func(token *jwt.Token) (any, error) {
					if len(secret) == 0 {
						return nil, fmt.Errorf("signing secret not configured")
					}
					return secret, nil
				},
				opts...,
			)
			if err != nil {
				WriteError(w, model.NewUnauthorizedError(classifyJWTError(err)))
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok || !token.Valid {
				WriteError(w, model.NewUnauthorizedError("Invalid token"))
				return
			}

			user := userFromClaims(claims)
			if user.ID == "" {
				WriteError(w, model.NewUnauthorizedError("Token missing subject"))
				return
			}

			ctx := model.WithUserContext(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func userFromClaims(claims jwt.MapClaims) *model.UserContext {
	sub, _ := claims["sub"].(string)
	return &model.UserContext{
		ID:     sub,
		Roles:  claimStringSlice(claims, "roles"),
		Groups: claimStringSlice(claims, "groups"),
	}
}

func claimStringSlice(claims jwt.MapClaims, key string) []string {
	raw, ok := claims[key].([]any)
	if !ok {
		return nil
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			result = append(result, s)
		}
	}
	return result
}

func classifyJWTError(err error) string {
	s := err.Error()
	switch {
	case strings.Contains(s, "expired"):
		return "Token expired"
	case strings.Contains(s, "issuer"):
		return "Invalid token issuer"
	case strings.Contains(s, "audience"):
		return "Invalid token audience"
	case strings.Contains(s, "signing method"):
		return "Disallowed signing algorithm"
	case strings.Contains(s, "signature"):
		return "Invalid token signature"
	default:
		return "Invalid token"
	}
}
