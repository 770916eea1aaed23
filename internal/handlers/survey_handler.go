package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/models"
	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/services"
	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/utils"

	"github.com/gofiber/fiber/v3"
)

type SurveyHandler struct {
	submissionService *services.SubmissionService
	locationService   *services.LocationService
}

func NewSurveyHandler(submissionService *services.SubmissionService, locationService *services.LocationService) *SurveyHandler {
	return &SurveyHandler{
		submissionService: submissionService,
		locationService:   locationService,
	}
}

func (h *SurveyHandler) Register(app *fiber.App) {
	api := app.Group("paddy/api/v1")

	api.Post("/submissions", h.CreateSubmission)
	api.Get("/locations/resolve", h.ResolveLocation)
}

// CreateSubmission accepts one field observation from the mini-app and stores
// it as a pending record.
func (h *SurveyHandler) CreateSubmission(c fiber.Ctx) error {
	var req models.SubmissionRequest
	if err := c.Bind().Body(&req); err != nil {
		slog.Error("failed to parse submission body", "error", err)
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("BAD_REQUEST", "Invalid request body"))
	}

	resp, err := h.submissionService.Submit(c.Context(), &req)
	if err != nil {
		if strings.Contains(err.Error(), "badrequest") {
			return c.Status(http.StatusBadRequest).JSON(
				utils.CreateErrorResponse("VALIDATION_FAILED", err.Error()))
		}
		if errors.Is(err, models.ErrInvalidCoordinates) {
			return c.Status(http.StatusBadRequest).JSON(
				utils.CreateErrorResponse("INVALID_COORDINATES", "Latitude or longitude is out of range"))
		}
		if errors.Is(err, models.ErrLocationNotFound) {
			return c.Status(http.StatusNotFound).JSON(
				utils.CreateErrorResponse("OUTSIDE_COVERAGE", "The reported position is outside the surveyed provinces"))
		}
		if errors.Is(err, models.ErrStoreUnavailable) {
			return c.Status(http.StatusServiceUnavailable).JSON(
				utils.CreateErrorResponse("STORE_UNAVAILABLE", "The area store is temporarily unavailable, retry shortly"))
		}
		if errors.Is(err, models.ErrObjectStorageMisconfigured) {
			return c.Status(http.StatusServiceUnavailable).JSON(
				utils.CreateErrorResponse("PHOTO_STORAGE_UNAVAILABLE", "Photo storage is not configured on this deployment"))
		}
		slog.Error("Failed to accept submission", "telegram_id", req.TelegramID, "error", err)
		return c.Status(http.StatusInternalServerError).JSON(
			utils.CreateErrorResponse("SUBMISSION_FAILED", "Failed to store the observation"))
	}

	return c.Status(http.StatusCreated).JSON(utils.CreateSuccessResponse(resp))
}

// ResolveLocation maps a GPS coordinate to its administrative location code.
func (h *SurveyHandler) ResolveLocation(c fiber.Ctx) error {
	lat, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("INVALID_COORDINATES", "lat must be a number"))
	}
	lon, err := strconv.ParseFloat(c.Query("lon"), 64)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("INVALID_COORDINATES", "lon must be a number"))
	}

	info, err := h.locationService.Resolve(c.Context(), lat, lon)
	if err != nil {
		if errors.Is(err, models.ErrInvalidCoordinates) {
			return c.Status(http.StatusBadRequest).JSON(
				utils.CreateErrorResponse("INVALID_COORDINATES", "Latitude or longitude is out of range"))
		}
		if errors.Is(err, models.ErrLocationNotFound) {
			return c.Status(http.StatusNotFound).JSON(
				utils.CreateErrorResponse("OUTSIDE_COVERAGE", "No administrative area contains this position"))
		}
		if errors.Is(err, models.ErrStoreUnavailable) {
			return c.Status(http.StatusServiceUnavailable).JSON(
				utils.CreateErrorResponse("STORE_UNAVAILABLE", "The area store is temporarily unavailable, retry shortly"))
		}
		slog.Error("Failed to resolve location", "lat", lat, "lon", lon, "error", err)
		return c.Status(http.StatusInternalServerError).JSON(
			utils.CreateErrorResponse("RESOLUTION_FAILED", "Failed to resolve the position"))
	}

	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(info))
}
