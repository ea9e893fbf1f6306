package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/licensedesk/licensedesk/app/models"
	"github.com/licensedesk/licensedesk/app/repository"
	"github.com/licensedesk/licensedesk/internal/pkg/usercontext"
)

type createUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type updateUserRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
	Role     *string `json:"role"`
	Status   *string `json:"status"`
}

func userResponse(u *models.User) fiber.Map {
	return fiber.Map{
		"id":                   u.ID,
		"name":                 u.Name,
		"email":                u.Email,
		"role":                 u.Role,
		"status":               u.Status,
		"has_api_key":          u.HasActiveAPIKey(),
		"api_key_prefix":       u.APIKeyPrefix,
		"api_key_last_used_at": formatTimePtr(u.APIKeyLastUsedAt),
		"last_login_at":        formatTimePtr(u.LastLoginAt),
		"created_at":           u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// HandleGetAccount returns the authenticated user's own account.
func HandleGetAccount(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	user, err := repository.GetGlobalFactory().GetUserRepository().GetByID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load user"})
	}
	return c.JSON(userResponse(user))
}

// HandleListUsers returns a page of users; ?q= switches to search.
func HandleListUsers(c *fiber.Ctx) error {
	repo := repository.GetGlobalFactory().GetUserRepository()

	var users []models.User
	var total int64
	var err error
	if q := c.Query("q"); q != "" {
		users, err = repo.Search(q)
		total = int64(len(users))
	} else {
		offset, limit := parsePagination(c)
		users, err = repo.List(offset, limit)
		if err == nil {
			total, err = repo.Count()
		}
	}
	if err != nil {
		log.Errorf("[API] User list failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load users"})
	}

	out := make([]fiber.Map, 0, len(users))
	for i := range users {
		out = append(out, userResponse(&users[i]))
	}
	return c.JSON(fiber.Map{"users": out, "total": total})
}

// HandleGetUser returns one user by id.
func HandleGetUser(c *fiber.Ctx) error {
	id, err := parseIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid user id"})
	}

	user, err := repository.GetGlobalFactory().GetUserRepository().GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load user"})
	}
	return c.JSON(userResponse(user))
}

// HandleCreateUser creates a dashboard account.
func HandleCreateUser(c *fiber.Ctx) error {
	var req createUserRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid user payload"})
	}

	user, err := models.CreateUser(req.Name, req.Email, req.Password)
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}
	if req.Role == models.ROLE_ADMIN {
		user.Role = models.ROLE_ADMIN
	}

	if err := repository.GetGlobalFactory().GetUserRepository().Create(user); err != nil {
		log.Errorf("[API] User create failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to create user"})
	}
	return c.Status(fiber.StatusCreated).JSON(userResponse(user))
}

// HandleUpdateUser applies a partial update to a user.
func HandleUpdateUser(c *fiber.Ctx) error {
	id, err := parseIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid user id"})
	}

	var req updateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid user payload"})
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	user, err := repo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load user"})
	}

	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.Password != nil {
		if err := user.SetPassword(*req.Password); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to set password"})
		}
	}
	if req.Role != nil {
		user.Role = *req.Role
	}
	if req.Status != nil {
		user.Status = *req.Status
	}

	if err := user.Validate(); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}
	if err := repo.Update(user); err != nil {
		log.Errorf("[API] User update failed for id %d: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to update user"})
	}
	return c.JSON(userResponse(user))
}

// HandleDeleteUser soft deletes a user.
func HandleDeleteUser(c *fiber.Ctx) error {
	id, err := parseIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid user id"})
	}
	if id == usercontext.GetUserID(c) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "Cannot delete your own account"})
	}

	if err := repository.GetGlobalFactory().GetUserRepository().Delete(id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "User not found"})
		}
		log.Errorf("[API] User delete failed for id %d: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to delete user"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleIssueAPIKey rotates the user's API key and returns the raw key. The
// key is shown exactly once; only its hash is stored.
func HandleIssueAPIKey(c *fiber.Ctx) error {
	id, err := parseIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid user id"})
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	user, err := repo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load user"})
	}

	rawKey, err := user.IssueAPIKey()
	if err != nil {
		log.Errorf("[API] API key generation failed for user %d: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to generate API key"})
	}
	if err := repo.Update(user); err != nil {
		log.Errorf("[API] API key persist failed for user %d: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to store API key"})
	}

	return c.JSON(fiber.Map{
		"api_key":        rawKey,
		"api_key_prefix": user.APIKeyPrefix,
		"created_at":     formatTimePtr(user.APIKeyCreatedAt),
	})
}

// HandleRevokeAPIKey invalidates the user's API key.
func HandleRevokeAPIKey(c *fiber.Ctx) error {
	id, err := parseIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid user id"})
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	user, err := repo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load user"})
	}

	user.RevokeAPIKey()
	if err := repo.Update(user); err != nil {
		log.Errorf("[API] API key revoke failed for user %d: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to revoke API key"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
