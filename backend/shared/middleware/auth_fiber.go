package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	jwtv "github.com/fathima-sithara/social-platform/backend/shared/jwt"
	"github.com/fathima-sithara/social-platform/backend/shared/utils"
)

// UserIDHeader carries the authenticated caller from the gateway to the services.
const UserIDHeader = "x-user-id"

const localUserID = "user_id"

// JWTAuth verifies the bearer token and forwards the caller id in UserIDHeader,
// overwriting whatever the client sent.
func JWTAuth(verifier *jwtv.Verifier, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Request().Header.Del(UserIDHeader)

		auth := c.Get(fiber.HeaderAuthorization)
		if auth == "" {
			return utils.JSONError(c, fiber.StatusUnauthorized, "authentication required")
		}
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return utils.JSONError(c, fiber.StatusUnauthorized, "invalid authorization header")
		}

		claims, err := verifier.VerifyToken(parts[1])
		if err != nil {
			log.Debug("jwt rejected", zap.Error(err))
			return utils.JSONError(c, fiber.StatusUnauthorized, "invalid or expired token")
		}
		uid, ok := jwtv.UserID(claims)
		if !ok {
			return utils.JSONError(c, fiber.StatusUnauthorized, "missing user id in token")
		}

		c.Locals(localUserID, uid)
		c.Request().Header.Set(UserIDHeader, uid)
		return c.Next()
	}
}

// RequireUser rejects requests that did not come through the gateway with a caller id.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		uid := strings.TrimSpace(c.Get(UserIDHeader))
		if uid == "" {
			return utils.JSONError(c, fiber.StatusUnauthorized, "authentication required, please login to continue")
		}
		c.Locals(localUserID, uid)
		return c.Next()
	}
}

// UserID returns the caller set by JWTAuth or RequireUser.
func UserID(c *fiber.Ctx) string {
	uid, _ := c.Locals(localUserID).(string)
	return uid
}
