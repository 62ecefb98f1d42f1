package database

import (
	"fmt"

	"gorm.io/gorm"

	"crosslister/internal/model"
	"crosslister/pkg/log"
)

// AutoMigrate auto migrate database table schema
func AutoMigrate(db *gorm.DB) error {
	log.Info("Starting database migration...")

	models := []interface{}{
		&model.ListingRecord{},
		&model.SaleRecord{},
		&model.SyncDivergence{},
	}

	for _, m := range models {
		if err := db.AutoMigrate(m); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", m, err)
		}
		log.Infof("Migrated model: %T", m)
	}

	log.Info("Database migration completed successfully")
	return nil
}

// CreateIndexes create additional indexes
func CreateIndexes(db *gorm.DB) error {
	log.Info("Creating additional indexes...")

	indexes := []struct {
		table string
		name  string
		sql   string
	}{
		{
			table: "sales",
			name:  "idx_sales_platform_date",
			sql:   "CREATE INDEX IF NOT EXISTS idx_sales_platform_date ON sales (platform, sale_date)",
		},
		{
			table: "sync_divergences",
			name:  "idx_divergences_listing_resolution",
			sql:   "CREATE INDEX IF NOT EXISTS idx_divergences_listing_resolution ON sync_divergences (listing_id, resolution)",
		},
	}

	for _, idx := range indexes {
		if err := db.Exec(idx.sql).Error; err != nil {
			log.Warnf("Failed to create index %s on table %s: %v", idx.name, idx.table, err)
		} else {
			log.Infof("Created index: %s on table %s", idx.name, idx.table)
		}
	}

	log.Info("Index creation completed")
	return nil
}

// DropTables drop all tables
func DropTables(db *gorm.DB) error {
	log.Warn("Dropping all tables...")

	tables := []string{
		"sync_divergences",
		"sales",
		"listings",
	}

	for _, table := range tables {
		if err := db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", table)).Error; err != nil {
			log.Warnf("Failed to drop table %s: %v", table, err)
		} else {
			log.Infof("Dropped table: %s", table)
		}
	}

	log.Warn("All tables dropped")
	return nil
}
