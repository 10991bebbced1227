package router

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/fathima-sithara/social-platform/backend/api-gateway/internal/proxy"
	jwtv "github.com/fathima-sithara/social-platform/backend/shared/jwt"
	"github.com/fathima-sithara/social-platform/backend/shared/middleware"
)

// Route maps a public prefix to a service path prefix.
type Route struct {
	Prefix  string
	Service string
	Target  string
}

var Routes = []Route{
	{Prefix: "/v1/posts", Service: "post-service", Target: "/api/posts"},
	{Prefix: "/v1/media", Service: "media-service", Target: "/api/media"},
	{Prefix: "/v1/search", Service: "search-service", Target: "/api/search"},
}

// RegisterRoutes mounts every route behind JWT auth and the rate limiter.
func RegisterRoutes(app *fiber.App, p *proxy.Proxy, verifier *jwtv.Verifier, limiter middleware.Limiter, logger *zap.Logger) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	protected := app.Group("/v1",
		middleware.JWTAuth(verifier, logger),
		middleware.RateLimit(limiter, rateKey, logger),
	)
	for _, r := range Routes {
		h := p.Forward(r.Service, r.Prefix, r.Target)
		sub := r.Prefix[len("/v1"):]
		protected.All(sub, h)
		protected.All(sub+"/*", h)
	}

	logger.Info("routes registered", zap.Int("count", len(Routes)))
}

func rateKey(c *fiber.Ctx) string {
	if uid := middleware.UserID(c); uid != "" {
		return "user:" + uid
	}
	return "ip:" + c.IP()
}
