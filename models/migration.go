package models

import (
	"log"

	"github.com/kev-hfmn/review-reply-app-sub003/config"
)

// MigrateTable runs gorm AutoMigrate for all models. Skippable via SKIP_MIGRATIONS.
func MigrateTable() {
	db := config.GetDB()
	err := db.AutoMigrate(
		&Business{},
		&BusinessSettings{},
		&GoogleCredential{},
		&Review{},
		&ActivityLog{},
	)
	if err != nil {
		log.Printf("auto migrate failed: %v", err)
		return
	}
	log.Println("database migration completed")
}
