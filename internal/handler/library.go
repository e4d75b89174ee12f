package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/genresorter/api/internal/middleware"
	"github.com/genresorter/api/internal/service"
	"github.com/genresorter/api/pkg/response"
)

const maxPlaylistPage = 50

type LibraryHandler struct {
	service *service.LibraryService
}

func NewLibraryHandler(svc *service.LibraryService) *LibraryHandler {
	return &LibraryHandler{service: svc}
}

// Snapshot handles POST /api/library/snapshot
func (h *LibraryHandler) Snapshot(c *fiber.Ctx) error {
	refresh := c.QueryBool("refresh", false)

	result, err := h.service.Snapshot(c.UserContext(), middleware.GetSessionKey(c), middleware.GetProviderToken(c), refresh)
	if err != nil {
		return handleServiceError(c, err)
	}

	return response.OK(c, result)
}

// ClearSession handles DELETE /api/session
func (h *LibraryHandler) ClearSession(c *fiber.Ctx) error {
	h.service.ClearSession(middleware.GetSessionKey(c))
	return response.NoContent(c)
}

// Playlists handles GET /api/playlists
func (h *LibraryHandler) Playlists(c *fiber.Ctx) error {
	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", 20)
	if offset < 0 {
		return response.ValidationError(c, "Invalid offset", map[string]string{"offset": "min"})
	}
	if limit < 1 || limit > maxPlaylistPage {
		return response.ValidationError(c, "Invalid limit", map[string]string{"limit": "range"})
	}

	result, err := h.service.Playlists(c.UserContext(), middleware.GetProviderToken(c), offset, limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	return response.OK(c, result)
}
