package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T, perMinute int) (*fiber.App, *RateLimiter, *time.Time) {
	t.Helper()
	rl := New(Config{MaxRequestsPerMinute: perMinute, SkipPaths: []string{"/metrics"}})
	t.Cleanup(rl.Stop)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	app := fiber.New()
	app.Use(rl.Middleware())
	app.Get("/*", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	return app, rl, &now
}

func get(t *testing.T, app *fiber.App, path, clientID string) int {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	if clientID != "" {
		req.Header.Set("X-Client-ID", clientID)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestMiddleware_ThrottlesAndRefills(t *testing.T) {
	app, _, now := newTestApp(t, 2)

	assert.Equal(t, fiber.StatusOK, get(t, app, "/api", "a"))
	assert.Equal(t, fiber.StatusOK, get(t, app, "/api", "a"))
	assert.Equal(t, fiber.StatusTooManyRequests, get(t, app, "/api", "a"))

	// Other clients have their own bucket.
	assert.Equal(t, fiber.StatusOK, get(t, app, "/api", "b"))

	*now = now.Add(30 * time.Second)
	assert.Equal(t, fiber.StatusOK, get(t, app, "/api", "a"))
	assert.Equal(t, fiber.StatusTooManyRequests, get(t, app, "/api", "a"))
}

func TestMiddleware_SkipPathsAndHeaders(t *testing.T) {
	app, _, _ := newTestApp(t, 1)

	for i := 0; i < 3; i++ {
		assert.Equal(t, fiber.StatusOK, get(t, app, "/metrics", "a"))
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/api", nil))
	require.NoError(t, err)
	assert.Equal(t, "1", resp.Header.Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))

	resp, err = app.Test(httptest.NewRequest("GET", "/api", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "61", resp.Header.Get(fiber.HeaderRetryAfter))
}

func TestEvictIdle(t *testing.T) {
	_, rl, now := newTestApp(t, 5)
	rl.allow("a")
	*now = now.Add(idleBucketTTL + time.Second)
	rl.allow("b")

	rl.evictIdle()

	rl.mu.RLock()
	defer rl.mu.RUnlock()
	assert.NotContains(t, rl.buckets, "a")
	assert.Contains(t, rl.buckets, "b")
}
