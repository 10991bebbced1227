package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	models "github.com/fathima-sithara/social-platform/backend/services/media-service/internal/media"
	"github.com/fathima-sithara/social-platform/backend/shared/middleware"
	"github.com/fathima-sithara/social-platform/backend/shared/utils"
)

type MediaService interface {
	ListForUser(ctx context.Context, userID string) ([]models.Media, error)
	URL(ctx context.Context, id, userID string) (string, error)
}

type Handler struct {
	svc MediaService
	log *zap.Logger
}

func NewHandler(svc MediaService, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, log: log}
}

func (h *Handler) Register(app fiber.Router) {
	g := app.Group("/api/media", middleware.RequireUser())
	g.Get("/get", h.List)
	g.Get("/:id/url", h.GetSignedURL)
}

// GET /api/media/get
func (h *Handler) List(c *fiber.Ctx) error {
	medias, err := h.svc.ListForUser(c.UserContext(), middleware.UserID(c))
	if err != nil {
		h.log.Error("list media", zap.Error(err))
		return utils.JSONError(c, fiber.StatusInternalServerError, "Error fetching medias")
	}
	return c.JSON(fiber.Map{"success": true, "medias": medias})
}

// GET /api/media/:id/url
func (h *Handler) GetSignedURL(c *fiber.Ctx) error {
	url, err := h.svc.URL(c.UserContext(), c.Params("id"), middleware.UserID(c))
	if err != nil {
		if utils.StatusFor(err) == fiber.StatusNotFound {
			return utils.JSONError(c, fiber.StatusNotFound, "Media not found")
		}
		h.log.Error("media url", zap.String("media_id", c.Params("id")), zap.Error(err))
		return utils.JSONError(c, fiber.StatusInternalServerError, "Error fetching media url")
	}
	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{"url": url})
}
