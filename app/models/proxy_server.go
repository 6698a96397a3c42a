package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// ProxyServer represents a remote PayPal proxy endpoint that holds the real
// PayPal credentials. Payment traffic is distributed across servers based on
// priority and capacity; an administrator can pin one server so that all
// routing goes through it.
type ProxyServer struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Name          string     `gorm:"type:varchar(255);not null" json:"name" validate:"required,min=1,max=255"`
	URL           string     `gorm:"type:varchar(255);not null" json:"url" validate:"required,url"`
	APIKey        string     `gorm:"column:api_key;type:varchar(255);not null" json:"api_key" validate:"required"`
	APISecret     string     `gorm:"column:api_secret;type:varchar(255);not null" json:"-" validate:"required"`
	CapacityLimit float64    `gorm:"type:decimal(12,2);not null;default:1000" json:"capacity_limit" validate:"gt=0"`
	CurrentUsage  float64    `gorm:"type:decimal(12,2);not null;default:0" json:"current_usage"`
	IsActive      bool       `gorm:"default:true" json:"is_active"`
	IsSelected    bool       `gorm:"default:false" json:"is_selected"` // at most one row may be selected
	Priority      int        `gorm:"default:0" json:"priority"`        // lower number = tried first
	LastUsed      *time.Time `json:"last_used"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// ProxyServerStats is the admin-facing view of a server's load.
type ProxyServerStats struct {
	ID            uint    `json:"id"`
	Name          string  `json:"name"`
	URL           string  `json:"url"`
	CurrentUsage  float64 `json:"current_usage"`
	CapacityLimit float64 `json:"capacity_limit"`
	UsageRatio    float64 `json:"usage_ratio"`
	IsActive      bool    `json:"is_active"`
	IsSelected    bool    `json:"is_selected"`
	Priority      int     `json:"priority"`
}

var proxyServerValidator = validator.New()

// Validate checks the admin-supplied fields before create/update.
func (s *ProxyServer) Validate() error {
	return proxyServerValidator.Struct(s)
}

// UsageRatio returns current usage relative to the capacity limit.
func (s *ProxyServer) UsageRatio() float64 {
	if s.CapacityLimit <= 0 {
		return 0
	}
	return s.CurrentUsage / s.CapacityLimit
}

// HasHeadroom reports whether the server is below its capacity limit.
func (s *ProxyServer) HasHeadroom() bool {
	return s.CurrentUsage < s.CapacityLimit
}

// Stats builds the admin view for this server.
func (s *ProxyServer) Stats() ProxyServerStats {
	return ProxyServerStats{
		ID:            s.ID,
		Name:          s.Name,
		URL:           s.URL,
		CurrentUsage:  s.CurrentUsage,
		CapacityLimit: s.CapacityLimit,
		UsageRatio:    s.UsageRatio(),
		IsActive:      s.IsActive,
		IsSelected:    s.IsSelected,
		Priority:      s.Priority,
	}
}

// --- Static Functions ---

// FindProxyServerByID finds a proxy server by ID.
func FindProxyServerByID(db *gorm.DB, id uint) (*ProxyServer, error) {
	var server ProxyServer
	result := db.Where("id = ?", id).First(&server)
	return &server, result.Error
}

// FindAllProxyServers returns all servers ordered by priority then id.
func FindAllProxyServers(db *gorm.DB) ([]ProxyServer, error) {
	var servers []ProxyServer
	result := db.Order("priority ASC, id ASC").Find(&servers)
	return servers, result.Error
}

// FindSelectedProxyServer returns the pinned server, if any.
func FindSelectedProxyServer(db *gorm.DB) (*ProxyServer, error) {
	var server ProxyServer
	result := db.Where("is_selected = ?", true).First(&server)
	return &server, result.Error
}

// CountProxyServers returns the number of configured servers.
func CountProxyServers(db *gorm.DB) (int64, error) {
	var count int64
	err := db.Model(&ProxyServer{}).Count(&count).Error
	return count, err
}
