//go:build ignore

package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/nmorgan8/scanforge/internal/database"
	"github.com/nmorgan8/scanforge/internal/database/models"
	"github.com/nmorgan8/scanforge/internal/schedule"
	"github.com/nmorgan8/scanforge/pkg/config"
	"github.com/nmorgan8/scanforge/pkg/util"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Server.Env)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	projectName := os.Getenv("SEED_PROJECT_NAME")
	if projectName == "" {
		projectName = "Demo Project"
	}
	cloneURL := os.Getenv("SEED_CLONE_URL")
	if cloneURL == "" {
		cloneURL = "https://github.com/OWASP/NodeGoat.git"
	}
	hostname := os.Getenv("SEED_DOMAIN")
	if hostname == "" {
		hostname = "example.com"
	}

	project := &models.Project{
		Name:        projectName,
		Description: "Seeded for local development",
	}
	if err := db.Create(project).Error; err != nil {
		log.Fatalf("failed to create project: %v", err)
	}

	repo := &models.Repository{
		ProjectID: project.ID,
		CloneURL:  cloneURL,
		Branch:    "main",
	}
	if err := db.Create(repo).Error; err != nil {
		log.Fatalf("failed to create repository: %v", err)
	}

	domain := &models.Domain{
		ProjectID: project.ID,
		Hostname:  hostname,
	}
	if err := db.Create(domain).Error; err != nil {
		log.Fatalf("failed to create domain: %v", err)
	}

	schedulers := schedule.NewService(db, logger)
	scheduler := &models.Scheduler{
		ProjectID:  project.ID,
		Recurrence: models.RecurrenceDaily,
		TimeOfDay:  "02:00",
	}
	if _, err := schedulers.Create(context.Background(), scheduler); err != nil {
		log.Fatalf("failed to create scheduler: %v", err)
	}

	fmt.Println("Seed data created:")
	fmt.Printf("  Project:    %s (%s)\n", project.Name, project.ID)
	fmt.Printf("  Repository: %s\n", repo.CloneURL)
	fmt.Printf("  Domain:     %s\n", domain.Hostname)
	fmt.Printf("  Scheduler:  daily at %s UTC, next run %d\n", scheduler.TimeOfDay, scheduler.NextRunAt)
}
