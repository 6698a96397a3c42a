package router

import (
	"github.com/PayFoxApp/PayFox/app/controllers"
	"github.com/PayFoxApp/PayFox/internal/pkg/constants"
	"github.com/PayFoxApp/PayFox/internal/pkg/env"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type ApiRouter struct {
}

// InstallRouter mounts the proxy server registry admin API. Authentication
// of the admin panel itself is the host's concern; the API is fronted with
// basic auth the same way the metrics endpoint is.
func (h ApiRouter) InstallRouter(app *fiber.App) {
	controllers.InitializeAdminServerController()
	ac := controllers.GetAdminServerController()

	admin := app.Group(constants.AdminAPIRoute, limiter.New(), basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("ADMIN_USER", "admin"): env.GetEnv("ADMIN_PASSWORD", "admin"),
		},
	}))

	servers := admin.Group("/servers")
	servers.Get("/", ac.HandleList)
	servers.Get("/stats", ac.HandleStats)
	servers.Post("/", ac.HandleCreate)
	servers.Get("/:id", ac.HandleGet)
	servers.Put("/:id", ac.HandleUpdate)
	servers.Delete("/:id", ac.HandleDelete)
	servers.Post("/:id/select", ac.HandleSelect)
	servers.Post("/:id/reset-usage", ac.HandleResetUsage)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
