package integration

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testIssuer    = "https://issuer.test"
	testAudience  = "gatehouse-test"
	testSecret    = "integration-test-secret"
	testSecretEnv = "GATEHOUSE_INTEGRATION_JWT_SECRET"
)

// GenerateToken signs an HS256 token accepted by the harness server.
func (h *TestHarness) GenerateToken(claims jwt.MapClaims) string {
	h.t.Helper()
	base := jwt.MapClaims{
		"iss": testIssuer,
		"aud": testAudience,
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}
	for k, v := range claims {
		base[k] = v
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, base).SignedString([]byte(testSecret))
	if err != nil {
		h.t.Fatalf("sign token: %v", err)
	}
	return signed
}

// ManagerClaims returns claims for a user holding the manager role.
func ManagerClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":   "alice",
		"roles": []string{"manager"},
	}
}

// EmployeeClaims returns claims for an unprivileged user.
func EmployeeClaims(sub string) jwt.MapClaims {
	return jwt.MapClaims{
		"sub":   sub,
		"roles": []string{"employee"},
	}
}

// FinanceClaims returns claims for a user in the finance group.
func FinanceClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":    "carol",
		"groups": []string{"finance"},
	}
}
