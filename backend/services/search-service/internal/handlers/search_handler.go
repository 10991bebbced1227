package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/fathima-sithara/social-platform/backend/services/search-service/internal/models"
	"github.com/fathima-sithara/social-platform/backend/shared/middleware"
	"github.com/fathima-sithara/social-platform/backend/shared/utils"
)

type SearchService interface {
	Search(ctx context.Context, query string) ([]models.SearchPost, error)
}

type Handler struct {
	svc SearchService
	log *zap.Logger
}

func NewHandler(svc SearchService, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, log: log}
}

func (h *Handler) Register(app fiber.Router) {
	g := app.Group("/api/search", middleware.RequireUser())
	g.Get("/posts", h.SearchPosts)
}

// GET /api/search/posts?query=
func (h *Handler) SearchPosts(c *fiber.Ctx) error {
	results, err := h.svc.Search(c.UserContext(), c.Query("query"))
	if err != nil {
		status := utils.StatusFor(err)
		if status >= fiber.StatusInternalServerError {
			h.log.Error("search failed", zap.Error(err))
			return utils.JSONError(c, status, "Error while searching post")
		}
		return utils.Fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "results": results})
}
