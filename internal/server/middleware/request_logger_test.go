package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLoggerRecordsRequest(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	app := fiber.New()
	app.Use(requestid.New())
	app.Use(RequestLogger(zap.New(core).Sugar()))
	app.Get("/data", func(c *fiber.Ctx) error { return c.SendStatus(http.StatusTeapot) })
	app.Get("/missing", func(*fiber.Ctx) error { return fiber.ErrNotFound })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/data", nil))
	require.NoError(t, err)
	_ = resp.Body.Close()
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.NoError(t, err)
	_ = resp.Body.Close()

	entries := logs.FilterMessage("http").All()
	require.Len(t, entries, 2)
	fields := entries[0].ContextMap()
	require.Equal(t, "GET", fields["method"])
	require.Equal(t, "/data", fields["path"])
	require.EqualValues(t, http.StatusTeapot, fields["status"])
	require.NotEmpty(t, fields["request_id"])
	require.EqualValues(t, http.StatusNotFound, entries[1].ContextMap()["status"])
}
