package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"deploy-orchestrator-backend/internal/config"
	"deploy-orchestrator-backend/internal/database"
	"deploy-orchestrator-backend/internal/database/models"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// AppData directly matches the apps table
type AppData struct {
	Name      string `yaml:"name"`
	Subdomain string `yaml:"subdomain"`
}

type AppsFile struct {
	Apps []AppData `yaml:"apps"`
}

func main() {
	log.Println("🚀 Loading initial data from YAML files...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database with retry (for dockerized Postgres startup)
	db, err := connectWithRetry(cfg.DatabaseURL, 60, time.Second)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Load data from YAML files
	if err := loadDataFromYAMLFiles(db, "scripts/data"); err != nil {
		log.Fatalf("Failed to load data from YAML files: %v", err)
	}

	log.Println("✅ Initial data loaded successfully!")
}

func connectWithRetry(dsn string, maxAttempts int, delay time.Duration) (*gorm.DB, error) {
	// Configure database options to suppress verbose logging during data loading
	opts := &database.Options{
		LogLevel: logger.Silent, // Suppress all GORM logs including SQL queries and "record not found"
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		db, err := database.Initialize(dsn, opts)
		if err == nil {
			return db, nil
		}
		// Only log every 10 attempts to reduce noise
		if attempt%10 == 0 || attempt == maxAttempts {
			log.Printf("Database not ready (%d/%d): %v", attempt, maxAttempts, err)
		}
		time.Sleep(delay)
	}
	return nil, fmt.Errorf("database not ready after %d attempts", maxAttempts)
}

func loadDataFromYAMLFiles(db *gorm.DB, dataDir string) error {
	apps, err := loadApps(dataDir)
	if err != nil {
		return fmt.Errorf("failed to load apps: %w", err)
	}

	created, skipped := 0, 0
	for _, data := range apps {
		var existing models.App
		err := db.Where("subdomain = ?", data.Subdomain).First(&existing).Error
		if err == nil {
			skipped++
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		app := models.App{
			Name:      data.Name,
			Subdomain: data.Subdomain,
		}
		if err := db.Create(&app).Error; err != nil {
			return fmt.Errorf("failed to create app %q: %w", data.Subdomain, err)
		}
		created++
	}

	log.Printf("Apps: %d created, %d already present", created, skipped)
	return nil
}

func loadApps(dataDir string) ([]AppData, error) {
	var allApps []AppData

	err := filepath.WalkDir(dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() && strings.HasSuffix(path, ".yaml") && strings.Contains(path, "apps") {
			var file AppsFile
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}

			if err := yaml.Unmarshal(data, &file); err != nil {
				return err
			}

			allApps = append(allApps, file.Apps...)
		}
		return nil
	})

	return allApps, err
}
