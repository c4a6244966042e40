package middleware

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Alwanly/service-heartbeat-pipeline/pkg/logger"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/wrapper"
)

const (
	OwnerIDContextKey = "owner_id"
	HeaderOwnerID     = "X-Owner-ID"
)

// OwnerIdentity reads the acting account asserted by the dashboard. It must
// sit behind BasicAuth, which authenticates the dashboard itself.
func OwnerIdentity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ownerID := c.Get(HeaderOwnerID)
		if ownerID == "" {
			return c.Status(http.StatusUnauthorized).JSON(wrapper.ResponseFailed(http.StatusUnauthorized, "missing owner identity", nil))
		}
		c.Locals(OwnerIDContextKey, ownerID)
		logger.AddToContext(c.UserContext(), zap.String(logger.FieldOwnerID, ownerID))
		return c.Next()
	}
}

// OwnerID returns the identity stored by OwnerIdentity.
func OwnerID(c *fiber.Ctx) string {
	id, _ := c.Locals(OwnerIDContextKey).(string)
	return id
}
