package database

import (
	"fmt"
	"log"
	"time"

	"github.com/PayFoxApp/PayFox/app/models"
	"github.com/PayFoxApp/PayFox/app/repository"
	"github.com/PayFoxApp/PayFox/internal/pkg/env"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var DB *gorm.DB

const maxRetries = 5
const retryDelay = 5 * time.Second

func SetupDatabase() {
	var err error
	// "user:pass@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&parseTime=True&loc=Local"
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		env.GetEnv("DB_USER", ""),
		env.GetEnv("DB_PASSWORD", ""),
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", ""),
	)

	for i := 0; i < maxRetries; i++ {
		DB, err = gorm.Open(mysql.New(mysql.Config{
			DSN:                       dsn,   // data source name
			DefaultStringSize:         256,   // default size for string fields
			DisableDatetimePrecision:  true,  // disable datetime precision, which not supported before MySQL 5.6
			DontSupportRenameIndex:    true,  // drop & create when rename index, rename index not supported before MySQL 5.7, MariaDB
			DontSupportRenameColumn:   true,  // `change` when rename column, rename column not supported before MySQL 8, MariaDB
			SkipInitializeWithVersion: false, // auto configure based on currently MySQL version
		}), &gorm.Config{})
		if err == nil {
			DB.AutoMigrate(
				&models.ProxyServer{},
				&models.Order{},
				&models.OrderItem{},
			)

			seedRegistry()
			return
		}

		log.Printf("Failed to connect to database (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Printf("Retry in %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}

	if err != nil {
		panic(err)
	}
}

// GetDB returns the shared database handle.
func GetDB() *gorm.DB {
	return DB
}

// seedRegistry creates a default proxy server from the legacy flat config
// keys when the registry table is empty, so existing single-server setups
// keep working after the upgrade to the multi-server registry.
func seedRegistry() {
	servers := repository.NewProxyServerRepository(DB)
	err := servers.SeedDefault(
		env.GetEnv("PAYPAL_PROXY_NAME", "Default Server"),
		env.GetEnv("PAYPAL_PROXY_URL", ""),
		env.GetEnv("PAYPAL_PROXY_API_KEY", ""),
		env.GetEnv("PAYPAL_PROXY_API_SECRET", ""),
	)
	if err != nil {
		log.Printf("Failed to seed proxy server registry: %v", err)
	}
}
