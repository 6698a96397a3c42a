package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/PayFoxApp/PayFox/app/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.ProxyServer{}, &models.Order{}, &models.OrderItem{}))
	return db
}

type serverOpts struct {
	priority int
	capacity float64
	usage    float64
	inactive bool
	lastUsed *time.Time
}

func mustCreateServer(t *testing.T, db *gorm.DB, repo ProxyServerRepository, name string, opts serverOpts) *models.ProxyServer {
	t.Helper()
	if opts.capacity == 0 {
		opts.capacity = 1000
	}
	server := &models.ProxyServer{
		Name:          name,
		URL:           "https://" + name + ".example",
		APIKey:        "pk_" + name,
		APISecret:     "sk_" + name,
		CapacityLimit: opts.capacity,
		IsActive:      true,
		Priority:      opts.priority,
	}
	require.NoError(t, repo.Create(server))

	// Zero-valued fields with gorm defaults cannot be set through Create.
	updates := map[string]interface{}{}
	if opts.usage != 0 {
		updates["current_usage"] = opts.usage
	}
	if opts.inactive {
		updates["is_active"] = false
	}
	if opts.lastUsed != nil {
		updates["last_used"] = *opts.lastUsed
	}
	if len(updates) > 0 {
		require.NoError(t, db.Model(&models.ProxyServer{}).Where("id = ?", server.ID).Updates(updates).Error)
	}
	return server
}

func TestCreateForcesUnpinned(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProxyServerRepository(db)

	server := &models.ProxyServer{
		Name:          "Primary",
		URL:           "https://proxy1.example",
		APIKey:        "pk_1",
		APISecret:     "sk_1",
		CapacityLimit: 1000,
		IsActive:      true,
		IsSelected:    true,
	}
	require.NoError(t, repo.Create(server))

	got, err := repo.GetByID(server.ID)
	require.NoError(t, err)
	assert.False(t, got.IsSelected, "new servers must never come in pinned")
}

func TestCreateValidatesInput(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProxyServerRepository(db)

	err := repo.Create(&models.ProxyServer{
		Name:          "Broken",
		URL:           "not a url",
		APIKey:        "pk",
		APISecret:     "sk",
		CapacityLimit: 1000,
	})
	require.Error(t, err)

	err = repo.Create(&models.ProxyServer{
		Name:          "NoCapacity",
		URL:           "https://proxy1.example",
		APIKey:        "pk",
		APISecret:     "sk",
		CapacityLimit: 0,
	})
	require.Error(t, err)
}

func TestSetSelectedKeepsSingleRowPinned(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProxyServerRepository(db)

	mustCreateServer(t, db, repo, "proxy1", serverOpts{})
	s2 := mustCreateServer(t, db, repo, "proxy2", serverOpts{})
	s3 := mustCreateServer(t, db, repo, "proxy3", serverOpts{})

	require.NoError(t, repo.SetSelected(s2.ID))
	require.NoError(t, repo.SetSelected(s3.ID))

	var pinned []models.ProxyServer
	require.NoError(t, db.Where("is_selected = ?", true).Find(&pinned).Error)
	require.Len(t, pinned, 1, "at most one server may be pinned")
	assert.Equal(t, s3.ID, pinned[0].ID)

	err := repo.SetSelected(9999)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// The failed call must not have cleared the previous pin permanently:
	// the transaction rolls back as a whole.
	got, err := repo.GetSelected()
	require.NoError(t, err)
	assert.Equal(t, s3.ID, got.ID)
}

func TestSelectForRoutingPinnedWinsOverCapacity(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProxyServerRepository(db)

	pinned := mustCreateServer(t, db, repo, "proxy1", serverOpts{priority: 5, usage: 5000, capacity: 1000})
	mustCreateServer(t, db, repo, "proxy2", serverOpts{priority: 0})
	require.NoError(t, repo.SetSelected(pinned.ID))

	got, err := repo.SelectForRouting()
	require.NoError(t, err)
	assert.Equal(t, pinned.ID, got.ID, "pinned server wins even when saturated")
}

func TestSelectForRoutingPrefersHeadroomByPriority(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProxyServerRepository(db)

	s1 := mustCreateServer(t, db, repo, "proxy1", serverOpts{priority: 1, usage: 900, capacity: 1000})
	mustCreateServer(t, db, repo, "proxy2", serverOpts{priority: 2, usage: 200, capacity: 1000})

	got, err := repo.SelectForRouting()
	require.NoError(t, err)
	assert.Equal(t, s1.ID, got.ID, "priority beats free capacity while headroom exists")
}

func TestSelectForRoutingLastUsedBreaksPriorityTies(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProxyServerRepository(db)

	older := time.Now().Add(-2 * time.Hour)
	newer := time.Now().Add(-1 * time.Minute)
	mustCreateServer(t, db, repo, "proxy1", serverOpts{priority: 1, lastUsed: &newer})
	s2 := mustCreateServer(t, db, repo, "proxy2", serverOpts{priority: 1, lastUsed: &older})

	got, err := repo.SelectForRouting()
	require.NoError(t, err)
	assert.Equal(t, s2.ID, got.ID, "least recently used wins within the same priority")
}

func TestSelectForRoutingFallsBackToLeastSaturated(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProxyServerRepository(db)

	s1 := mustCreateServer(t, db, repo, "proxy1", serverOpts{priority: 2, usage: 1100, capacity: 1000})
	mustCreateServer(t, db, repo, "proxy2", serverOpts{priority: 1, usage: 2500, capacity: 1000})

	got, err := repo.SelectForRouting()
	require.NoError(t, err)
	assert.Equal(t, s1.ID, got.ID, "lowest usage ratio wins once everyone is over capacity")
}

func TestSelectForRoutingLastResortIgnoresActiveFlag(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProxyServerRepository(db)

	s1 := mustCreateServer(t, db, repo, "proxy1", serverOpts{inactive: true})
	mustCreateServer(t, db, repo, "proxy2", serverOpts{inactive: true})

	got, err := repo.SelectForRouting()
	require.NoError(t, err)
	assert.Equal(t, s1.ID, got.ID, "an all-inactive registry still routes somewhere")
}

func TestSelectForRoutingEmptyRegistry(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProxyServerRepository(db)

	_, err := repo.SelectForRouting()
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRecordUsage(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProxyServerRepository(db)

	server := mustCreateServer(t, db, repo, "proxy1", serverOpts{})

	recorded, err := repo.RecordUsage(server.ID, 19.99)
	require.NoError(t, err)
	assert.True(t, recorded)
	recorded, err = repo.RecordUsage(server.ID, 30.01)
	require.NoError(t, err)
	assert.True(t, recorded)

	got, err := repo.GetByID(server.ID)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, got.CurrentUsage, 0.001)
	require.NotNil(t, got.LastUsed)

	// Unknown ids and non-positive amounts change nothing.
	recorded, err = repo.RecordUsage(9999, 10)
	require.NoError(t, err)
	assert.False(t, recorded)
	recorded, err = repo.RecordUsage(server.ID, 0)
	require.NoError(t, err)
	assert.False(t, recorded)
	recorded, err = repo.RecordUsage(server.ID, -5)
	require.NoError(t, err)
	assert.False(t, recorded)

	got, err = repo.GetByID(server.ID)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, got.CurrentUsage, 0.001)
}

func TestResetUsage(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProxyServerRepository(db)

	server := mustCreateServer(t, db, repo, "proxy1", serverOpts{usage: 800})
	require.NoError(t, repo.ResetUsage(server.ID))

	got, err := repo.GetByID(server.ID)
	require.NoError(t, err)
	assert.Zero(t, got.CurrentUsage)
}

func TestDeleteRefusesLastServer(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProxyServerRepository(db)

	server := mustCreateServer(t, db, repo, "proxy1", serverOpts{})
	err := repo.Delete(server.ID)
	require.ErrorIs(t, err, ErrLastServer)

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestDeletePinnedServerReselects(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProxyServerRepository(db)

	pinned := mustCreateServer(t, db, repo, "proxy1", serverOpts{priority: 5})
	next := mustCreateServer(t, db, repo, "proxy2", serverOpts{priority: 1})
	mustCreateServer(t, db, repo, "proxy3", serverOpts{priority: 2})
	require.NoError(t, repo.SetSelected(pinned.ID))

	require.NoError(t, repo.Delete(pinned.ID))

	got, err := repo.GetSelected()
	require.NoError(t, err)
	assert.Equal(t, next.ID, got.ID, "pin moves to the best active candidate")
}

func TestDeleteUnpinnedServerKeepsPin(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProxyServerRepository(db)

	pinned := mustCreateServer(t, db, repo, "proxy1", serverOpts{})
	other := mustCreateServer(t, db, repo, "proxy2", serverOpts{})
	require.NoError(t, repo.SetSelected(pinned.ID))

	require.NoError(t, repo.Delete(other.ID))

	got, err := repo.GetSelected()
	require.NoError(t, err)
	assert.Equal(t, pinned.ID, got.ID)
}

func TestEnsureSelectedHealsLostPin(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProxyServerRepository(db)

	mustCreateServer(t, db, repo, "proxy1", serverOpts{priority: 3})
	best := mustCreateServer(t, db, repo, "proxy2", serverOpts{priority: 1})

	// No pin exists yet; GetSelected stays a pure read.
	_, err := repo.GetSelected()
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	got, err := repo.EnsureSelected()
	require.NoError(t, err)
	assert.Equal(t, best.ID, got.ID)
	assert.True(t, got.IsSelected)

	// Stable on repeat.
	again, err := repo.EnsureSelected()
	require.NoError(t, err)
	assert.Equal(t, best.ID, again.ID)
}

func TestEnsureSelectedFallsBackToInactiveRows(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProxyServerRepository(db)

	s1 := mustCreateServer(t, db, repo, "proxy1", serverOpts{inactive: true})

	got, err := repo.EnsureSelected()
	require.NoError(t, err)
	assert.Equal(t, s1.ID, got.ID)
}

func TestSeedDefault(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProxyServerRepository(db)

	// Missing configuration seeds nothing.
	require.NoError(t, repo.SeedDefault("Default", "", "pk", "sk"))
	count, err := repo.Count()
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, repo.SeedDefault("Default", "https://proxy1.example", "pk", "sk"))
	got, err := repo.GetSelected()
	require.NoError(t, err)
	assert.Equal(t, "Default", got.Name)
	assert.True(t, got.IsSelected)
	assert.Equal(t, float64(1000), got.CapacityLimit)

	// A populated registry is never reseeded.
	require.NoError(t, repo.SeedDefault("Other", "https://proxy2.example", "pk2", "sk2"))
	count, err = repo.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestUpdateDoesNotTouchPin(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProxyServerRepository(db)

	server := mustCreateServer(t, db, repo, "proxy1", serverOpts{})
	require.NoError(t, repo.SetSelected(server.ID))

	server.Name = "Renamed"
	server.IsSelected = false
	require.NoError(t, repo.Update(server))

	got, err := repo.GetByID(server.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.True(t, got.IsSelected, "admin edits never move the pin")
}

func TestGetAllStats(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProxyServerRepository(db)

	mustCreateServer(t, db, repo, "proxy1", serverOpts{priority: 1, usage: 250, capacity: 1000})
	mustCreateServer(t, db, repo, "proxy2", serverOpts{priority: 2, usage: 500, capacity: 500})

	stats, err := repo.GetAllStats()
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.InDelta(t, 0.25, stats[0].UsageRatio, 0.001)
	assert.InDelta(t, 1.0, stats[1].UsageRatio, 0.001)
}

func TestErrLastServerIsDistinct(t *testing.T) {
	assert.False(t, errors.Is(ErrLastServer, gorm.ErrRecordNotFound))
}
