package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func protectedApp() *fiber.App {
	app := fiber.New()
	app.Use(JWTProtected(NewTokenVerifier(testSecret)))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		role, _ := c.Locals("user_role").(string)
		return c.JSON(fiber.Map{"user": c.Locals("user_id"), "role": role})
	})
	return app
}

func TestVerifierExtractsStringAndNumericSubjects(t *testing.T) {
	verifier := NewTokenVerifier(testSecret)

	identity, err := verifier.Verify(signToken(t, testSecret, jwt.MapClaims{"sub": "user-a", "role": "Admin"}))
	require.NoError(t, err)
	require.Equal(t, "user-a", identity.UserID)
	require.Equal(t, "admin", identity.Role)

	identity, err = verifier.Verify(signToken(t, testSecret, jwt.MapClaims{"user_id": 42, "roles": []string{"service"}}))
	require.NoError(t, err)
	require.Equal(t, "42", identity.UserID)
	require.Equal(t, "service", identity.Role)
}

func TestVerifierRejectsBadTokens(t *testing.T) {
	verifier := NewTokenVerifier(testSecret)

	cases := map[string]string{
		"empty":         "",
		"wrong secret":  signToken(t, "other", jwt.MapClaims{"sub": "user-a"}),
		"no subject":    signToken(t, testSecret, jwt.MapClaims{"role": "admin"}),
		"expired":       signToken(t, testSecret, jwt.MapClaims{"sub": "user-a", "exp": time.Now().Add(-time.Minute).Unix()}),
		"garbage input": "not-a-jwt",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := verifier.Verify(token)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestJWTProtectedSetsLocals(t *testing.T) {
	app := protectedApp()

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, jwt.MapClaims{"sub": "user-a"}))
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "user-a", body["user"])
	require.Empty(t, body["role"])
}

func TestJWTProtectedRejectsMissingOrMalformedHeader(t *testing.T) {
	app := protectedApp()

	for _, header := range []string{"", "Token abc", "Bearer "} {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, header)
	}
}

func TestJWTProtectedIgnoresQueryTokenOutsideUpgrade(t *testing.T) {
	app := protectedApp()

	token := signToken(t, testSecret, jwt.MapClaims{"sub": "user-a"})
	req := httptest.NewRequest(http.MethodGet, "/whoami?token="+token, nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
