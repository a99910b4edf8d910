package validation

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp() *fiber.App {
	app := fiber.New()
	app.Use(Middleware(Config{MaxCommentLength: 20}))
	ok := func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) }
	app.Post("/api/v1/feedback", ok)
	app.Post("/api/v1/ingest", ok)
	app.Post("/api/v1/other", ok)
	app.Put("/api/v1/settings", ok)
	return app
}

func post(t *testing.T, app *fiber.App, method, path, contentType, body string) int {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestMiddleware(t *testing.T) {
	const jsonType = "application/json"
	tests := []struct {
		name        string
		method      string
		path        string
		contentType string
		body        string
		want        int
	}{
		{"valid feedback", "POST", "/api/v1/feedback", jsonType, `{"faqId":"f1","feedbackType":"helpful","comment":"great"}`, 200},
		{"charset suffix", "POST", "/api/v1/feedback", jsonType + "; charset=utf-8", `{"faqId":"f1","feedbackType":"helpful"}`, 200},
		{"missing faq id", "POST", "/api/v1/feedback", jsonType, `{"feedbackType":"helpful"}`, 400},
		{"missing type", "POST", "/api/v1/feedback", jsonType, `{"faqId":"f1"}`, 400},
		{"comment too long", "POST", "/api/v1/feedback", jsonType, `{"faqId":"f1","feedbackType":"helpful","comment":"` + strings.Repeat("x", 21) + `"}`, 400},
		{"script in comment", "POST", "/api/v1/feedback", jsonType, `{"faqId":"f1","feedbackType":"helpful","comment":"<script>x</script>"}`, 400},
		{"broken json", "POST", "/api/v1/feedback", jsonType, `{"faqId":`, 400},
		{"valid candidate", "POST", "/api/v1/ingest", jsonType, `{"data":{"question":"How?","answer":"<p>Like this.</p>","source":"chat"}}`, 200},
		{"candidate without question", "POST", "/api/v1/ingest", jsonType, `{"data":{"answer":"a"}}`, 400},
		{"javascript url in answer", "POST", "/api/v1/ingest", jsonType, `{"data":{"question":"q","answer":"<a href='javascript:x'>"}}`, 400},
		{"unknown path passes", "POST", "/api/v1/other", jsonType, `{}`, 200},
		{"form content type", "POST", "/api/v1/feedback", "text/plain", `faqId=f1`, 415},
		{"put is type checked only", "PUT", "/api/v1/settings", jsonType, `{}`, 200},
	}

	app := newTestApp()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, post(t, app, tt.method, tt.path, tt.contentType, tt.body))
		})
	}
}
