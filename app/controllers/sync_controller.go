package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/licensedesk/licensedesk/internal/pkg/licensesync"
	"github.com/licensedesk/licensedesk/internal/pkg/metrics/counter"
)

// HandleTriggerSync runs a license reconciliation against the vendor API and
// returns the full run result. The request body is optional; an empty body
// runs with defaults.
func HandleTriggerSync(c *fiber.Ctx) error {
	var opts licensesync.Options
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&opts); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid sync options"})
		}
	}

	result, err := licensesync.GetEngine().RunSync(c.Context(), opts)
	if err != nil {
		switch {
		case errors.Is(err, licensesync.ErrSyncAlreadyRunning):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "sync_already_running", "message": "A sync run is already in progress"})
		case errors.Is(err, licensesync.ErrSourceUnavailable):
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "source_unavailable", "message": err.Error()})
		case errors.Is(err, licensesync.ErrSyncTimedOut):
			// The run produced a partial result before hitting the budget.
			return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{
				"error":   "sync_timed_out",
				"message": "Sync exceeded its time budget; unprocessed records were skipped",
				"result":  result,
			})
		default:
			log.Errorf("[LicenseSync] Unexpected sync failure: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Sync failed"})
		}
	}

	if !result.DryRun {
		if cerr := counter.AddSyncRun(result.Created, result.Updated, result.FailedCount(), result.Pushed); cerr != nil {
			log.Warnf("[LicenseSync] Updating lifetime counters failed: %v", cerr)
		}
	}

	return c.JSON(result)
}

// HandleSyncStatus returns whether a sync is running, the last run result and
// the lifetime counters.
func HandleSyncStatus(c *fiber.Ctx) error {
	status := licensesync.GetEngine().Status()

	totals, err := counter.Totals()
	if err != nil {
		log.Warnf("[LicenseSync] Reading lifetime counters failed: %v", err)
		return c.JSON(status)
	}
	return c.JSON(fiber.Map{
		"in_progress": status.InProgress,
		"last_result": status.LastResult,
		"totals":      totals,
	})
}
