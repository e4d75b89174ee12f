package handler

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/genresorter/api/internal/client"
	"github.com/genresorter/api/internal/middleware"
	"github.com/genresorter/api/internal/model"
	"github.com/genresorter/api/internal/service"
	"github.com/genresorter/api/pkg/response"
)

type PlaylistHandler struct {
	service   *service.PlaylistService
	provider  client.Provider
	validator *validator.Validate
}

func NewPlaylistHandler(svc *service.PlaylistService, provider client.Provider, v *validator.Validate) *PlaylistHandler {
	return &PlaylistHandler{
		service:   svc,
		provider:  provider,
		validator: v,
	}
}

// Create handles POST /api/playlists
func (h *PlaylistHandler) Create(c *fiber.Ctx) error {
	var req model.CreatePlaylistsRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	id, err := model.ParseJobID(req.JobID)
	if err != nil {
		return handleServiceError(c, err)
	}

	ctx := c.UserContext()
	writer, err := h.provider.Connect(ctx, middleware.GetProviderToken(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	report, err := h.service.CreatePlaylists(ctx, middleware.GetSessionKey(c), writer, id, req.Genres)
	if err != nil {
		return handleServiceError(c, err)
	}

	return response.OK(c, &model.CreatePlaylistsResponse{
		PlaylistCreationReport: report,
		Message:                fmt.Sprintf("%d playlists created, %d failed", len(report.CreatedGenres), len(report.FailedGenres)),
	})
}
