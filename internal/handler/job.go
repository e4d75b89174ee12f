package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/genresorter/api/internal/model"
	"github.com/genresorter/api/internal/service"
	"github.com/genresorter/api/pkg/response"
)

type JobHandler struct {
	service   *service.JobService
	validator *validator.Validate
}

func NewJobHandler(svc *service.JobService, v *validator.Validate) *JobHandler {
	return &JobHandler{
		service:   svc,
		validator: v,
	}
}

// Start handles POST /api/jobs/start
func (h *JobHandler) Start(c *fiber.Ctx) error {
	var req model.StartJobRequest
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

	result, err := h.service.StartJob(c.UserContext(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/jobs/:jobId
func (h *JobHandler) Status(c *fiber.Ctx) error {
	id, ok := jobIDParam(c)
	if !ok {
		return response.ValidationError(c, "Invalid job ID", nil)
	}

	result, err := h.service.GetStatus(c.UserContext(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return response.OK(c, result)
}

// Genres handles GET /api/jobs/:jobId/genres
func (h *JobHandler) Genres(c *fiber.Ctx) error {
	id, ok := jobIDParam(c)
	if !ok {
		return response.ValidationError(c, "Invalid job ID", nil)
	}

	result, err := h.service.GetGenres(c.UserContext(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return response.OK(c, result)
}
