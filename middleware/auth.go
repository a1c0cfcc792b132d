package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
)

// TokenParser resolves a bearer token to a user id.
type TokenParser interface {
	ParseToken(raw string) (string, error)
}

// UserID returns the authenticated user set by RequireUser.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}

// RequireUser validates the Bearer token and stores the user id in
// c.Locals("user_id"). Failures answer 401 {detail}.
func RequireUser(parser TokenParser) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"detail": "Not authenticated",
			})
		}

		userID, err := parser.ParseToken(token)
		if err != nil {
			log.WithField("path", c.Path()).Debugf("[AUTH] rejected token: %v", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"detail": err.Error(),
			})
		}

		c.Locals("user_id", userID)
		return c.Next()
	}
}

// bearerToken extracts the credentials of a Bearer authorization header.
// The scheme is case-insensitive.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
