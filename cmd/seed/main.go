package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/Baaaki/postboard/internal/config"
	"github.com/Baaaki/postboard/internal/database"
	"github.com/Baaaki/postboard/internal/repository"
	"github.com/Baaaki/postboard/internal/seed"
)

func main() {
	demo := flag.Int("demo", 0, "number of fake valid users to create with posts and likes")
	flag.Parse()

	cfg := config.Load()
	if err := database.Connect(cfg); err != nil {
		log.Fatal("Failed to connect database:", err)
	}
	if err := database.Migrate(); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	adminUsername := os.Getenv("ADMIN_USERNAME")
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminUsername == "" || adminEmail == "" || adminPassword == "" {
		log.Fatal("Missing environment variables: ADMIN_USERNAME, ADMIN_EMAIL, ADMIN_PASSWORD")
	}

	ctx := context.Background()
	seeder := seed.New(
		repository.NewUserRepository(database.DB),
		repository.NewPostRepository(database.DB),
		time.Now().UnixNano(),
	)

	admin, created, err := seeder.EnsureSuperuser(ctx, adminUsername, adminEmail, adminPassword)
	if err != nil {
		log.Fatal("Failed to create superuser:", err)
	}
	if created {
		log.Println("Superuser created successfully")
	} else {
		log.Println("Superuser already exists")
	}
	log.Println("   Username:", admin.Username)
	log.Println("   Email:", admin.Email)

	if *demo > 0 {
		result, err := seeder.Demo(ctx, *demo)
		if err != nil {
			log.Fatal("Failed to create demo data:", err)
		}
		log.Printf("Demo data: %d users, %d posts, %d likes (password %q)",
			result.Users, result.Posts, result.Likes, seed.DemoPassword)
	}
}
