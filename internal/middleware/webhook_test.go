package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSigningKey = "test-signing-key"

func signBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSigningKey))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func newWebhookApp(t *testing.T) *fiber.App {
	t.Helper()
	app := fiber.New()
	app.Post("/webhook", WebhookAuthMiddleware(testSigningKey), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"signature": GetWebhookSignature(c)})
	})
	return app
}

func TestWebhookAuthAcceptsValidSignature(t *testing.T) {
	app := newWebhookApp(t)
	body := []byte(`{"payment_id":"pay_1","status":"approved"}`)

	req := httptest.NewRequest("POST", "/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", signBody(body))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(payload), signBody(body))
}

func TestWebhookAuthRejectsMissingSignature(t *testing.T) {
	app := newWebhookApp(t)

	req := httptest.NewRequest("POST", "/webhook", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestWebhookAuthRejectsTamperedBody(t *testing.T) {
	app := newWebhookApp(t)
	signed := []byte(`{"payment_id":"pay_1","status":"approved"}`)
	tampered := []byte(`{"payment_id":"pay_1","status":"refunded"}`)

	req := httptest.NewRequest("POST", "/webhook", bytes.NewReader(tampered))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", signBody(signed))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestWebhookAuthRejectsMalformedSignature(t *testing.T) {
	app := newWebhookApp(t)
	body := []byte(`{}`)

	req := httptest.NewRequest("POST", "/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", "not-hex!!")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
