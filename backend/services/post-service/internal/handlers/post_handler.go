package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/fathima-sithara/social-platform/backend/services/post-service/internal/models"
	"github.com/fathima-sithara/social-platform/backend/shared/apperr"
	"github.com/fathima-sithara/social-platform/backend/shared/middleware"
	"github.com/fathima-sithara/social-platform/backend/shared/utils"
)

type PostService interface {
	Create(ctx context.Context, userID string, req models.CreatePostRequest) (*models.Post, error)
	Get(ctx context.Context, id string) (*models.Post, error)
	List(ctx context.Context, page, limit int) (*models.PostPage, error)
	Delete(ctx context.Context, userID, id string) error
}

type Handler struct {
	svc PostService
	log *zap.Logger
}

func NewHandler(svc PostService, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, log: log}
}

// Register mounts the routes under /api/posts. Every route needs the gateway's user header.
func (h *Handler) Register(app fiber.Router) {
	g := app.Group("/api/posts", middleware.RequireUser())
	g.Post("/create-post", h.Create)
	g.Get("/all-posts", h.List)
	g.Get("/:id", h.Get)
	g.Delete("/delete-post/:id", h.Delete)
}

// POST /api/posts/create-post
func (h *Handler) Create(c *fiber.Ctx) error {
	var req models.CreatePostRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.JSONError(c, fiber.StatusBadRequest, "invalid request body")
	}
	p, err := h.svc.Create(c.UserContext(), middleware.UserID(c), req)
	if err != nil {
		return h.fail(c, "create post", err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "Post created successfully",
		"postId":  p.ID.Hex(),
	})
}

// GET /api/posts/all-posts?page=&limit=
func (h *Handler) List(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 10)
	result, err := h.svc.List(c.UserContext(), page, limit)
	if err != nil {
		return h.fail(c, "list posts", err)
	}
	return c.JSON(fiber.Map{"success": true, "result": result})
}

// GET /api/posts/:id
func (h *Handler) Get(c *fiber.Ctx) error {
	p, err := h.svc.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, "get post", err)
	}
	return c.JSON(fiber.Map{"success": true, "post": p})
}

// DELETE /api/posts/delete-post/:id
func (h *Handler) Delete(c *fiber.Ctx) error {
	if err := h.svc.Delete(c.UserContext(), middleware.UserID(c), c.Params("id")); err != nil {
		return h.fail(c, "delete post", err)
	}
	return utils.JSONMessage(c, fiber.StatusOK, "Post deleted successfully")
}

func (h *Handler) fail(c *fiber.Ctx, op string, err error) error {
	status := utils.StatusFor(err)
	switch {
	case status == fiber.StatusNotFound:
		return utils.JSONError(c, status, "Post not found")
	case status >= fiber.StatusInternalServerError:
		h.log.Error(op+" failed", zap.Error(err))
		return utils.JSONError(c, status, "Error while trying to "+op)
	case status == fiber.StatusBadRequest:
		return utils.JSONError(c, status, trimSentinel(err))
	}
	return utils.Fail(c, err)
}

// trimSentinel drops the "bad request: " prefix so clients see only the validation message.
func trimSentinel(err error) string {
	msg := err.Error()
	prefix := apperr.ErrBadRequest.Error() + ": "
	if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return msg
}
