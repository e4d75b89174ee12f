package handler

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/genresorter/api/internal/client"
	"github.com/genresorter/api/internal/model"
	"github.com/genresorter/api/pkg/response"
)

func formatValidationErrors(err error) interface{} {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		errs := make(map[string]string)
		for _, e := range validationErrors {
			errs[e.Field()] = e.Tag()
		}
		return errs
	}
	return nil
}

// jobIDParam reads the :jobId route parameter.
func jobIDParam(c *fiber.Ctx) (model.JobID, bool) {
	id, err := model.ParseJobID(c.Params("jobId"))
	if err != nil {
		return "", false
	}
	return id, true
}

// handleServiceError maps domain errors to the error envelope.
func handleServiceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return response.NotFound(c, "Job not found")
	case errors.Is(err, model.ErrAlreadyStarted):
		return response.Conflict(c, response.CodeAlreadyStarted, "Job already started")
	case errors.Is(err, model.ErrInvalidTransition):
		return response.Conflict(c, response.CodeInvalidTransition, err.Error())
	case errors.Is(err, model.ErrResultNotReady):
		return response.Conflict(c, response.CodeResultNotReady, "Job has not completed yet")
	case errors.Is(err, model.ErrJobFailed):
		return response.JobFailed(c, err.Error())
	case errors.Is(err, model.ErrInvalidJobID):
		return response.ValidationError(c, "Invalid job ID", nil)
	case errors.Is(err, model.ErrMissingProviderToken):
		return response.Unauthorized(c, "Missing provider token")
	case client.IsAPIStatus(err, http.StatusUnauthorized):
		return response.Unauthorized(c, "Provider rejected the access token")
	case errors.Is(err, model.ErrProviderNotConfigured):
		return response.Error(c, fiber.StatusServiceUnavailable, response.CodeProviderError, "Provider not configured", nil)
	case errors.Is(err, model.ErrProviderFailure):
		return response.ProviderError(c, err.Error())
	default:
		return response.ServiceError(c, err.Error())
	}
}
