package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func TestCorrelationIDPropagatesIncomingHeader(t *testing.T) {
	app := fiber.New()
	app.Use(CorrelationID())

	var fromContext string
	app.Get("/", func(c *fiber.Ctx) error {
		fromContext = CorrelationIDFromContext(c.UserContext())
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-123")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, "req-123", resp.Header.Get("X-Correlation-ID"))
	require.Equal(t, "req-123", fromContext)
}

func TestCorrelationIDGeneratesWhenMissingOrInvalid(t *testing.T) {
	app := fiber.New()
	app.Use(CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", "has spaces")
	resp, err := app.Test(req)
	require.NoError(t, err)

	id := resp.Header.Get("X-Correlation-ID")
	require.NotEmpty(t, id)
	require.False(t, strings.Contains(id, " "))
}

func TestContextWithCorrelation(t *testing.T) {
	ctx := ContextWithCorrelation(context.Background(), "  abc ")
	require.Equal(t, "abc", CorrelationIDFromContext(ctx))

	require.Empty(t, CorrelationIDFromContext(ContextWithCorrelation(context.Background(), "")))
}
