package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/licensedesk/licensedesk/app/controllers"
	"github.com/licensedesk/licensedesk/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")
	v1.Get("/ping", func(ctx *fiber.Ctx) error {
		return ctx.JSON(fiber.Map{"status": "ok"})
	})

	protected := v1.Group("", middleware.APIKeyAuthMiddleware())
	protected.Get("/account", controllers.HandleGetAccount)

	// Sync routes must be registered before the parameterized license routes.
	protected.Post("/licenses/sync", controllers.HandleTriggerSync)
	protected.Get("/licenses/sync/status", controllers.HandleSyncStatus)

	protected.Get("/licenses", controllers.HandleListLicenses)
	protected.Post("/licenses", controllers.HandleCreateLicense)
	protected.Get("/licenses/:id", controllers.HandleGetLicense)
	protected.Put("/licenses/:id", controllers.HandleUpdateLicense)
	protected.Delete("/licenses/:id", controllers.HandleDeleteLicense)

	protected.Get("/assignments", controllers.HandleListAssignments)
	protected.Post("/assignments", controllers.HandleCreateAssignment)
	protected.Delete("/assignments/:id", controllers.HandleDeleteAssignment)

	admin := protected.Group("/users", middleware.AdminOnlyMiddleware())
	admin.Get("/", controllers.HandleListUsers)
	admin.Post("/", controllers.HandleCreateUser)
	admin.Get("/:id", controllers.HandleGetUser)
	admin.Put("/:id", controllers.HandleUpdateUser)
	admin.Delete("/:id", controllers.HandleDeleteUser)
	admin.Post("/:id/api-key", controllers.HandleIssueAPIKey)
	admin.Delete("/:id/api-key", controllers.HandleRevokeAPIKey)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
