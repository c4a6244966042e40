package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	authentication "github.com/Alwanly/service-heartbeat-pipeline/pkg/auth"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/logger"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/wrapper"
)

const (
	RoleDashboard = "dashboard"
	RoleAdmin     = "admin"

	// CodeUnauthorized is the rejection code for missing or wrong credentials.
	CodeUnauthorized = "unauthorized"
)

type IAuthMiddleware interface {
	// BasicAuth admits the owner dashboard, which then names the owner in X-Owner-ID.
	BasicAuth() fiber.Handler

	// BasicAuthAdmin admits operators for queue-wide endpoints.
	BasicAuthAdmin() fiber.Handler
}

type AuthMiddleware struct {
	Basic authentication.IBasicAuthService
}

type AuthConfig func(*AuthOpts)

type AuthOpts struct {
	*authentication.BasicAuthTConfig
}

func SetBasicAuth(basicAuthConfig *authentication.BasicAuthTConfig) AuthConfig {
	return func(o *AuthOpts) {
		o.BasicAuthTConfig = basicAuthConfig
	}
}

func NewAuthMiddleware(opts ...AuthConfig) *AuthMiddleware {
	var o AuthOpts
	for _, opt := range opts {
		opt(&o)
	}
	if o.BasicAuthTConfig == nil {
		o.BasicAuthTConfig = &authentication.BasicAuthTConfig{}
	}

	return &AuthMiddleware{
		Basic: authentication.NewBasicAuthService(o.BasicAuthTConfig),
	}
}

func (a *AuthMiddleware) BasicAuth() fiber.Handler {
	return a.basic(RoleDashboard, a.Basic.Validate)
}

func (a *AuthMiddleware) BasicAuthAdmin() fiber.Handler {
	return a.basic(RoleAdmin, a.Basic.ValidateAdmin)
}

func (a *AuthMiddleware) basic(role string, validate func(username, password string) bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(header, "Basic ") {
			return unauthorized(c, role, "missing credentials")
		}

		username, password := a.Basic.DecodeFromHeader(header)
		if !validate(username, password) {
			return unauthorized(c, role, "invalid credentials")
		}
		logger.AddToContext(c.UserContext(), zap.String("auth_role", role))
		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx, role, message string) error {
	c.Set(fiber.HeaderWWWAuthenticate, `Basic realm="heartbeat-`+role+`"`)
	logger.AddToContext(c.UserContext(), zap.String("auth_role", role), zap.String(logger.FieldRejection, CodeUnauthorized))
	return c.Status(http.StatusUnauthorized).JSON(wrapper.ResponseRejected(http.StatusUnauthorized, CodeUnauthorized, message))
}
