package repository

import (
	"errors"
	"time"

	"github.com/PayFoxApp/PayFox/app/models"
	"gorm.io/gorm"
)

// ErrLastServer is returned when a delete would empty the registry.
var ErrLastServer = errors.New("cannot delete the last proxy server, at least one server must exist")

// proxyServerRepository implements the ProxyServerRepository interface
type proxyServerRepository struct {
	db *gorm.DB
}

// NewProxyServerRepository creates a new proxy server repository instance
func NewProxyServerRepository(db *gorm.DB) ProxyServerRepository {
	return &proxyServerRepository{db: db}
}

// Create inserts a new proxy server. New servers are never pinned on create.
func (r *proxyServerRepository) Create(server *models.ProxyServer) error {
	if err := server.Validate(); err != nil {
		return err
	}
	server.IsSelected = false
	return r.db.Create(server).Error
}

// GetByID retrieves a proxy server by its ID
func (r *proxyServerRepository) GetByID(id uint) (*models.ProxyServer, error) {
	return models.FindProxyServerByID(r.db, id)
}

// GetAll retrieves all proxy servers ordered by priority then id
func (r *proxyServerRepository) GetAll() ([]models.ProxyServer, error) {
	return models.FindAllProxyServers(r.db)
}

// Update saves admin edits to a server. The pinned flag is not touched here,
// pinning goes through SetSelected only.
func (r *proxyServerRepository) Update(server *models.ProxyServer) error {
	if err := server.Validate(); err != nil {
		return err
	}
	return r.db.Model(&models.ProxyServer{}).Where("id = ?", server.ID).
		Updates(map[string]interface{}{
			"name":           server.Name,
			"url":            server.URL,
			"api_key":        server.APIKey,
			"api_secret":     server.APISecret,
			"capacity_limit": server.CapacityLimit,
			"is_active":      server.IsActive,
			"priority":       server.Priority,
		}).Error
}

// Delete removes a server. The last remaining row is protected, and deleting
// the pinned server hands the pin to the next candidate inside the same
// transaction.
func (r *proxyServerRepository) Delete(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.ProxyServer{}).Count(&count).Error; err != nil {
			return err
		}
		if count <= 1 {
			return ErrLastServer
		}

		server, err := models.FindProxyServerByID(tx, id)
		if err != nil {
			return err
		}

		if err := tx.Delete(&models.ProxyServer{}, id).Error; err != nil {
			return err
		}

		if server.IsSelected {
			candidate, err := firstSelectionCandidate(tx)
			if err != nil {
				return err
			}
			return tx.Model(&models.ProxyServer{}).Where("id = ?", candidate.ID).
				UpdateColumn("is_selected", true).Error
		}
		return nil
	})
}

// GetSelected returns the pinned server without side effects.
func (r *proxyServerRepository) GetSelected() (*models.ProxyServer, error) {
	return models.FindSelectedProxyServer(r.db)
}

// EnsureSelected returns the pinned server, pinning one first if the
// selection state was lost. Callers must tolerate the write on this
// nominally-read operation.
func (r *proxyServerRepository) EnsureSelected() (*models.ProxyServer, error) {
	server, err := r.GetSelected()
	if err == nil {
		return server, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	candidate, err := firstSelectionCandidate(r.db)
	if err != nil {
		return nil, err
	}
	if err := r.SetSelected(candidate.ID); err != nil {
		return nil, err
	}
	candidate.IsSelected = true
	return candidate, nil
}

// SetSelected pins one server, clearing every other pin in the same
// transaction.
func (r *proxyServerRepository) SetSelected(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.ProxyServer{}).Where("is_selected = ?", true).
			UpdateColumn("is_selected", false).Error; err != nil {
			return err
		}
		result := tx.Model(&models.ProxyServer{}).Where("id = ?", id).
			UpdateColumn("is_selected", true)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// SelectForRouting picks the server for a fresh payment, first rule that
// yields a row wins:
//  1. the pinned server, regardless of its capacity state
//  2. active servers below capacity, by (priority, last_used, id)
//  3. active servers by usage ratio, tie-broken by (priority, id)
//  4. any active server by (priority, id)
//  5. any server at all by id
func (r *proxyServerRepository) SelectForRouting() (*models.ProxyServer, error) {
	server, err := r.GetSelected()
	if err == nil {
		return server, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var s models.ProxyServer
	err = r.db.Where("is_active = ? AND current_usage < capacity_limit", true).
		Order("priority ASC, last_used ASC, id ASC").
		First(&s).Error
	if err == nil {
		return &s, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	err = r.db.Where("is_active = ?", true).
		Order("(current_usage / capacity_limit) ASC, priority ASC, id ASC").
		First(&s).Error
	if err == nil {
		return &s, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	err = r.db.Where("is_active = ?", true).
		Order("priority ASC, id ASC").
		First(&s).Error
	if err == nil {
		return &s, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// Last resort: never fail just because every server is inactive.
	err = r.db.Order("id ASC").First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// RecordUsage atomically adds amount to the usage counter and stamps
// last_used. The increment is evaluated by the database so concurrent
// registrations never lose updates.
func (r *proxyServerRepository) RecordUsage(id uint, amount float64) (bool, error) {
	if id == 0 || amount <= 0 {
		return false, nil
	}
	result := r.db.Model(&models.ProxyServer{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"current_usage": gorm.Expr("current_usage + ?", amount),
			"last_used":     time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ResetUsage clears the usage counter of a server
func (r *proxyServerRepository) ResetUsage(id uint) error {
	return r.db.Model(&models.ProxyServer{}).Where("id = ?", id).
		UpdateColumn("current_usage", 0).Error
}

// SeedDefault creates a single pinned server from legacy flat configuration
// when the registry is empty.
func (r *proxyServerRepository) SeedDefault(name, url, apiKey, apiSecret string) error {
	if url == "" || apiKey == "" {
		return nil
	}
	count, err := r.Count()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	server := &models.ProxyServer{
		Name:          name,
		URL:           url,
		APIKey:        apiKey,
		APISecret:     apiSecret,
		CapacityLimit: 1000,
		IsActive:      true,
		IsSelected:    true,
		Priority:      0,
	}
	return r.db.Create(server).Error
}

// Count returns the number of configured servers
func (r *proxyServerRepository) Count() (int64, error) {
	return models.CountProxyServers(r.db)
}

// GetAllStats returns the admin load view for every server
func (r *proxyServerRepository) GetAllStats() ([]models.ProxyServerStats, error) {
	servers, err := r.GetAll()
	if err != nil {
		return nil, err
	}
	stats := make([]models.ProxyServerStats, len(servers))
	for i, server := range servers {
		stats[i] = server.Stats()
	}
	return stats, nil
}

// firstSelectionCandidate returns the first active server by (priority, id),
// falling back to the first row by id when none is active.
func firstSelectionCandidate(db *gorm.DB) (*models.ProxyServer, error) {
	var server models.ProxyServer
	err := db.Where("is_active = ?", true).Order("priority ASC, id ASC").First(&server).Error
	if err == nil {
		return &server, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	err = db.Order("id ASC").First(&server).Error
	if err != nil {
		return nil, err
	}
	return &server, nil
}
