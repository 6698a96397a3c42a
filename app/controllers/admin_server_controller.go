package controllers

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/PayFoxApp/PayFox/app/models"
	"github.com/PayFoxApp/PayFox/app/repository"
	"github.com/PayFoxApp/PayFox/internal/pkg/cache"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

const serverStatsCacheKey = "proxy_server_stats"
const serverStatsCacheTTL = 30 * time.Second

// AdminServerController handles the proxy server registry admin API
type AdminServerController struct {
	serverRepo repository.ProxyServerRepository
}

// NewAdminServerController creates a new admin server controller with repository
func NewAdminServerController(serverRepo repository.ProxyServerRepository) *AdminServerController {
	return &AdminServerController{serverRepo: serverRepo}
}

var adminServerController *AdminServerController

// InitializeAdminServerController wires the controller to the global repositories
func InitializeAdminServerController() {
	adminServerController = NewAdminServerController(
		repository.GetGlobalFactory().GetProxyServerRepository(),
	)
}

// GetAdminServerController returns the initialized controller instance
func GetAdminServerController() *AdminServerController {
	if adminServerController == nil {
		panic("AdminServerController not initialized. Call InitializeAdminServerController first.")
	}
	return adminServerController
}

type serverPayload struct {
	Name          string  `json:"name"`
	URL           string  `json:"url"`
	APIKey        string  `json:"api_key"`
	APISecret     string  `json:"api_secret"`
	CapacityLimit float64 `json:"capacity_limit"`
	IsActive      *bool   `json:"is_active"`
	Priority      int     `json:"priority"`
}

// HandleList returns all configured servers ordered by priority.
func (ac *AdminServerController) HandleList(c *fiber.Ctx) error {
	servers, err := ac.serverRepo.GetAll()
	if err != nil {
		return ac.handleError(c, "failed to load servers", err)
	}
	return c.JSON(fiber.Map{"success": true, "servers": servers})
}

// HandleGet returns a single server.
func (ac *AdminServerController) HandleGet(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return badRequest(c, "invalid server id")
	}
	server, err := ac.serverRepo.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(c, "server not found")
		}
		return ac.handleError(c, "failed to load server", err)
	}
	return c.JSON(fiber.Map{"success": true, "server": server})
}

// HandleCreate adds a new server to the registry. New servers are never
// pinned automatically.
func (ac *AdminServerController) HandleCreate(c *fiber.Ctx) error {
	var payload serverPayload
	if err := c.BodyParser(&payload); err != nil {
		return badRequest(c, "invalid request body")
	}

	server := &models.ProxyServer{
		Name:          payload.Name,
		URL:           payload.URL,
		APIKey:        payload.APIKey,
		APISecret:     payload.APISecret,
		CapacityLimit: payload.CapacityLimit,
		IsActive:      payload.IsActive == nil || *payload.IsActive,
		Priority:      payload.Priority,
	}
	if server.CapacityLimit == 0 {
		server.CapacityLimit = 1000
	}

	if err := ac.serverRepo.Create(server); err != nil {
		return badRequest(c, "invalid server data: "+err.Error())
	}

	ac.invalidateStats()
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "server": server})
}

// HandleUpdate edits an existing server. The pinned flag is not editable
// here; pinning goes through HandleSelect.
func (ac *AdminServerController) HandleUpdate(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return badRequest(c, "invalid server id")
	}

	server, err := ac.serverRepo.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(c, "server not found")
		}
		return ac.handleError(c, "failed to load server", err)
	}

	var payload serverPayload
	if err := c.BodyParser(&payload); err != nil {
		return badRequest(c, "invalid request body")
	}

	server.Name = payload.Name
	server.URL = payload.URL
	server.APIKey = payload.APIKey
	server.APISecret = payload.APISecret
	if payload.CapacityLimit > 0 {
		server.CapacityLimit = payload.CapacityLimit
	}
	if payload.IsActive != nil {
		server.IsActive = *payload.IsActive
	}
	server.Priority = payload.Priority

	if err := ac.serverRepo.Update(server); err != nil {
		return badRequest(c, "invalid server data: "+err.Error())
	}

	ac.invalidateStats()
	return c.JSON(fiber.Map{"success": true, "server": server})
}

// HandleDelete removes a server. The last remaining server is protected so
// the registry can always route.
func (ac *AdminServerController) HandleDelete(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return badRequest(c, "invalid server id")
	}

	if err := ac.serverRepo.Delete(uint(id)); err != nil {
		if errors.Is(err, repository.ErrLastServer) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(c, "server not found")
		}
		return ac.handleError(c, "failed to delete server", err)
	}

	ac.invalidateStats()
	return c.JSON(fiber.Map{"success": true})
}

// HandleSelect pins one server so all routing goes through it.
func (ac *AdminServerController) HandleSelect(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return badRequest(c, "invalid server id")
	}

	if err := ac.serverRepo.SetSelected(uint(id)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(c, "server not found")
		}
		return ac.handleError(c, "failed to select server", err)
	}

	log.Infof("[Admin] server %d pinned for all payment routing", id)
	return c.JSON(fiber.Map{"success": true})
}

// HandleResetUsage clears the usage counter of a server.
func (ac *AdminServerController) HandleResetUsage(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return badRequest(c, "invalid server id")
	}

	if err := ac.serverRepo.ResetUsage(uint(id)); err != nil {
		return ac.handleError(c, "failed to reset usage", err)
	}

	ac.invalidateStats()
	return c.JSON(fiber.Map{"success": true})
}

// HandleStats returns the capacity/usage view of the registry. The result
// is cached briefly since the admin dashboard polls it.
func (ac *AdminServerController) HandleStats(c *fiber.Ctx) error {
	if cached, err := cache.Get(serverStatsCacheKey); err == nil && cached != "" {
		var stats []models.ProxyServerStats
		if json.Unmarshal([]byte(cached), &stats) == nil {
			return c.JSON(fiber.Map{"success": true, "stats": stats})
		}
	}

	stats, err := ac.serverRepo.GetAllStats()
	if err != nil {
		return ac.handleError(c, "failed to load server stats", err)
	}

	if encoded, err := json.Marshal(stats); err == nil {
		if err := cache.Set(serverStatsCacheKey, string(encoded), serverStatsCacheTTL); err != nil {
			log.Debugf("[Admin] stats cache write failed: %v", err)
		}
	}

	return c.JSON(fiber.Map{"success": true, "stats": stats})
}

func (ac *AdminServerController) invalidateStats() {
	if err := cache.Delete(serverStatsCacheKey); err != nil {
		log.Debugf("[Admin] stats cache invalidation failed: %v", err)
	}
}

func (ac *AdminServerController) handleError(c *fiber.Ctx, message string, err error) error {
	log.Errorf("[Admin] %s: %v", message, err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"message": message,
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": message})
}

func notFound(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": message})
}
