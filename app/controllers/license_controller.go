package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/licensedesk/licensedesk/app/models"
	"github.com/licensedesk/licensedesk/app/repository"
)

// licenseUpdateRequest carries the dashboard-editable license fields. Pointer
// fields distinguish "not sent" from "set to zero value". Sync bookkeeping
// fields are deliberately not accepted here.
type licenseUpdateRequest struct {
	Product    *string  `json:"product"`
	Plan       *string  `json:"plan"`
	Notes      *string  `json:"notes"`
	Term       *string  `json:"term"`
	SeatsTotal *int     `json:"seats_total"`
	AgentsName *string  `json:"agents_name"`
	AgentsCost *float64 `json:"agents_cost"`

	DBA *string `json:"dba"`
	Zip *string `json:"zip"`

	ExternalAppID   *string `json:"external_app_id"`
	ExternalEmail   *string `json:"external_email"`
	ExternalCountID *int    `json:"external_count_id"`
}

func (r *licenseUpdateRequest) apply(l *models.License) {
	if r.Product != nil {
		l.Product = *r.Product
	}
	if r.Plan != nil {
		l.Plan = *r.Plan
	}
	if r.Notes != nil {
		l.Notes = *r.Notes
	}
	if r.Term != nil {
		l.Term = *r.Term
	}
	if r.SeatsTotal != nil {
		l.SeatsTotal = *r.SeatsTotal
	}
	if r.AgentsName != nil {
		l.AgentsName = *r.AgentsName
	}
	if r.AgentsCost != nil {
		l.AgentsCost = *r.AgentsCost
	}
	if r.DBA != nil {
		l.DBA = *r.DBA
	}
	if r.Zip != nil {
		l.Zip = *r.Zip
	}
	if r.ExternalAppID != nil {
		l.ExternalAppID = *r.ExternalAppID
	}
	if r.ExternalEmail != nil {
		l.ExternalEmail = *r.ExternalEmail
	}
	if r.ExternalCountID != nil {
		l.ExternalCountID = *r.ExternalCountID
	}
}

// HandleListLicenses returns a page of licenses; ?q= switches to search.
func HandleListLicenses(c *fiber.Ctx) error {
	repo := repository.GetGlobalFactory().GetLicenseRepository()

	if q := c.Query("q"); q != "" {
		licenses, err := repo.Search(q)
		if err != nil {
			log.Errorf("[API] License search failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Search failed"})
		}
		return c.JSON(fiber.Map{"licenses": licenses, "total": len(licenses)})
	}

	offset, limit := parsePagination(c)
	licenses, err := repo.List(offset, limit)
	if err != nil {
		log.Errorf("[API] License list failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load licenses"})
	}
	total, err := repo.Count()
	if err != nil {
		log.Errorf("[API] License count failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load licenses"})
	}

	return c.JSON(fiber.Map{"licenses": licenses, "total": total})
}

// HandleGetLicense returns one license by id.
func HandleGetLicense(c *fiber.Ctx) error {
	id, err := parseIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid license id"})
	}

	license, err := repository.GetGlobalFactory().GetLicenseRepository().GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "License not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load license"})
	}
	return c.JSON(license)
}

// HandleCreateLicense creates a dashboard-owned license row. The key is
// generated when not provided.
func HandleCreateLicense(c *fiber.Ctx) error {
	var license models.License
	if err := c.BodyParser(&license); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid license payload"})
	}

	license.ID = 0
	if license.Key == "" {
		license.Key = models.NewLicenseKey()
	}
	if license.SeatsTotal == 0 {
		license.SeatsTotal = 1
	}
	if license.ExternalSyncStatus == "" {
		license.ExternalSyncStatus = models.SYNC_STATUS_PENDING
	}
	if err := license.Validate(); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	if err := repository.GetGlobalFactory().GetLicenseRepository().Create(&license); err != nil {
		log.Errorf("[API] License create failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to create license"})
	}
	return c.Status(fiber.StatusCreated).JSON(license)
}

// HandleUpdateLicense applies a partial update to the dashboard-editable
// fields of a license.
func HandleUpdateLicense(c *fiber.Ctx) error {
	id, err := parseIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid license id"})
	}

	var req licenseUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid license payload"})
	}

	repo := repository.GetGlobalFactory().GetLicenseRepository()
	license, err := repo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "License not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load license"})
	}

	req.apply(license)
	if err := license.Validate(); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}
	if err := repo.Update(license); err != nil {
		log.Errorf("[API] License update failed for id %d: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to update license"})
	}
	return c.JSON(license)
}

// HandleDeleteLicense soft deletes a license.
func HandleDeleteLicense(c *fiber.Ctx) error {
	id, err := parseIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid license id"})
	}

	if err := repository.GetGlobalFactory().GetLicenseRepository().Delete(id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "License not found"})
		}
		log.Errorf("[API] License delete failed for id %d: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to delete license"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
