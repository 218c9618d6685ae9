package middleware

import (
	"github.com/gofiber/fiber/v2"
)

// ServerKey authenticates the proxy with a shared key.
func ServerKey(expectedKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get("X-Server-Key")
		if key == "" || key != expectedKey {
			return c.Status(403).JSON(fiber.Map{"error": "invalid server key"})
		}
		return c.Next()
	}
}

// AdminKey authenticates operator tooling with a shared key.
func AdminKey(expectedKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get("X-Admin-Key")
		if key == "" || key != expectedKey {
			return c.Status(403).JSON(fiber.Map{"error": "invalid admin key"})
		}
		return c.Next()
	}
}
