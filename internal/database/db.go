package database

import (
	"log"

	"github.com/justsurfingit/jobseekr/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func Connect(dsn string) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	log.Println("Database connection established")

	// Migration: creates/updates the tables automatically
	log.Println("Running Migrations...")
	if err := Migrate(db); err != nil {
		log.Fatal("Migration failed:", err)
	}
	return db
}

// Migrate runs AutoMigrate for every model. Split out so tests can run it
// against an in-memory database.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Thread{},
		&models.Comment{},
		&models.Analysis{},
		&models.BulkSession{},
		&models.ProcessedJob{},
		&models.SearchSession{},
	)
}
