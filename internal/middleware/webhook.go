package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/gofiber/fiber/v2"
)

const webhookSignatureKey = "webhookSignature"

// WebhookAuthMiddleware verifies the provider's HMAC-SHA256 signature over
// the raw request body before any payload parsing. The verified signature
// is stashed in context because it also feeds event deduplication.
func WebhookAuthMiddleware(signingKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		signature := c.Get("X-Webhook-Signature")
		if signature == "" {
			return writeWebhookAuthError(c)
		}

		mac := hmac.New(sha256.New, []byte(signingKey))
		mac.Write(c.Body())
		expected := mac.Sum(nil)

		provided, err := hex.DecodeString(signature)
		if err != nil || !hmac.Equal(provided, expected) {
			return writeWebhookAuthError(c)
		}

		c.Locals(webhookSignatureKey, signature)
		return c.Next()
	}
}

// GetWebhookSignature extracts the verified signature from context.
func GetWebhookSignature(c *fiber.Ctx) string {
	if sig, ok := c.Locals(webhookSignatureKey).(string); ok {
		return sig
	}
	return ""
}

func writeWebhookAuthError(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"success": false,
		"code":    "INVALID_SIGNATURE",
		"message": "webhook signature verification failed",
	})
}
