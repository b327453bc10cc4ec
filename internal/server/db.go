// Package server manages the OTMap database layer and REST API.
// It initializes GORM with SQLite and seeds the lookup rows discovery
// imports rely on.
package server

import (
	"fmt"
	"log"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dmarzo/otmap/internal/config"
	"github.com/dmarzo/otmap/internal/models"
)

var DB *gorm.DB

// InitDB opens the database and runs AutoMigrate.
func InitDB(cfg *config.Config) error {
	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.Asset{},
		&models.Interface{},
		&models.Manufacturer{},
		&models.AssetType{},
		&models.AssetStatus{},
		&models.Site{},
		&models.Communication{},
		&models.Connection{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	DB = db
	log.Printf("[db] opened sqlite/%s", cfg.DBPath)
	return seedDefaults(db, cfg)
}

// seedDefaults inserts the rows a fresh install needs: the "Active" status
// the synchronizer prefers and one site for the admin tenant.
func seedDefaults(db *gorm.DB, cfg *config.Config) error {
	var statusCount int64
	if err := db.Model(&models.AssetStatus{}).Count(&statusCount).Error; err != nil {
		return err
	}
	if statusCount == 0 {
		statuses := []models.AssetStatus{
			{Name: "Active"}, {Name: "Inactive"}, {Name: "Dismissed"},
		}
		if err := db.Create(&statuses).Error; err != nil {
			return fmt.Errorf("seeding statuses: %w", err)
		}
	}

	var siteCount int64
	if err := db.Model(&models.Site{}).Where("tenant_id = ?", cfg.AdminTenantID).Count(&siteCount).Error; err != nil {
		return err
	}
	if siteCount == 0 {
		site := models.Site{TenantID: cfg.AdminTenantID, Name: "Main Site"}
		if err := db.Create(&site).Error; err != nil {
			return fmt.Errorf("seeding site: %w", err)
		}
		log.Printf("[db] seeded default site %q (id=%d)", site.Name, site.ID)
	}
	return nil
}
