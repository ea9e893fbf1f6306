package controllers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/licensedesk/licensedesk/app/models"
	"github.com/licensedesk/licensedesk/app/repository"
)

type createAssignmentRequest struct {
	LicenseID uint   `json:"license_id"`
	UserID    uint   `json:"user_id"`
	SeatLabel string `json:"seat_label"`
}

// HandleListAssignments lists seat assignments, filtered by license_id or
// user_id query param.
func HandleListAssignments(c *fiber.Ctx) error {
	repo := repository.GetGlobalFactory().GetAssignmentRepository()

	if v := c.Query("license_id"); v != "" {
		licenseID, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid license_id"})
		}
		assignments, err := repo.GetByLicenseID(uint(licenseID))
		if err != nil {
			log.Errorf("[API] Assignment list by license failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load assignments"})
		}
		return c.JSON(fiber.Map{"assignments": assignments, "total": len(assignments)})
	}

	if v := c.Query("user_id"); v != "" {
		userID, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid user_id"})
		}
		assignments, err := repo.GetByUserID(uint(userID))
		if err != nil {
			log.Errorf("[API] Assignment list by user failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load assignments"})
		}
		return c.JSON(fiber.Map{"assignments": assignments, "total": len(assignments)})
	}

	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "license_id or user_id query param is required"})
}

// HandleCreateAssignment assigns a seat on a license to a user. Seat capacity
// is enforced against the license's seats_total.
func HandleCreateAssignment(c *fiber.Ctx) error {
	var req createAssignmentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid assignment payload"})
	}
	if req.LicenseID == 0 || req.UserID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "license_id and user_id are required"})
	}

	factory := repository.GetGlobalFactory()
	license, err := factory.GetLicenseRepository().GetByID(req.LicenseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "License not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load license"})
	}
	if _, err := factory.GetUserRepository().GetByID(req.UserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load user"})
	}

	repo := factory.GetAssignmentRepository()
	taken, err := repo.CountByLicenseID(req.LicenseID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to check seat capacity"})
	}
	if taken >= int64(license.SeatsTotal) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "seats_exhausted", "message": "All seats on this license are assigned"})
	}

	assignment := &models.Assignment{
		LicenseID: req.LicenseID,
		UserID:    req.UserID,
		SeatLabel: req.SeatLabel,
	}
	if err := repo.Create(assignment); err != nil {
		log.Errorf("[API] Assignment create failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to create assignment"})
	}
	return c.Status(fiber.StatusCreated).JSON(assignment)
}

// HandleDeleteAssignment releases a seat.
func HandleDeleteAssignment(c *fiber.Ctx) error {
	id, err := parseIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid assignment id"})
	}

	if err := repository.GetGlobalFactory().GetAssignmentRepository().Delete(id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Assignment not found"})
		}
		log.Errorf("[API] Assignment delete failed for id %d: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to delete assignment"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
