package deps

import (
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/logger"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/middleware"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/poll"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/pubsub"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// App bundles the shared dependencies handed to each HTTP module.
type App struct {
	Fiber      *fiber.App
	Logger     *logger.CanonicalLogger
	Database   *gorm.DB
	Middleware *middleware.AuthMiddleware
	Poller     poll.Poller
	Pub        pubsub.PubSub
}
