package controllers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
)

const (
	defaultPageSize = 25
	maxPageSize     = 200
)

// parsePagination reads page/per_page query params and returns offset+limit.
func parsePagination(c *fiber.Ctx) (int, int) {
	page, err := strconv.Atoi(c.Query("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	perPage, err := strconv.Atoi(c.Query("per_page", strconv.Itoa(defaultPageSize)))
	if err != nil || perPage < 1 {
		perPage = defaultPageSize
	}
	if perPage > maxPageSize {
		perPage = maxPageSize
	}
	return (page - 1) * perPage, perPage
}

// parseIDParam reads the :id path param as an unsigned integer.
func parseIDParam(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	return uint(id), nil
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
