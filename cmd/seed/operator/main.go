package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/ibrasoft/cobranca/internal/config"
	"github.com/ibrasoft/cobranca/internal/domain"
	"github.com/ibrasoft/cobranca/internal/repository"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/crypto/bcrypt"
)

// Seeds the first operator account so the admin API can be logged into.
func main() {
	name := flag.String("name", "Administrador", "operator display name")
	email := flag.String("email", "", "operator login email (required)")
	password := flag.String("password", "", "operator password (required)")
	role := flag.String("role", domain.RoleAdmin, "operator role: admin | operator")
	flag.Parse()

	if *email == "" || *password == "" {
		log.Fatal("usage: seed/operator -email <email> -password <password> [-name <name>] [-role admin|operator]")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoDB.URI))
	if err != nil {
		log.Fatalf("Failed to connect to Mongo: %v", err)
	}
	defer client.Disconnect(ctx)

	db := client.Database(cfg.MongoDB.Database)
	users := repository.NewMongoUserRepository(db)

	if existing, err := users.GetByEmail(ctx, *email); err == nil {
		log.Fatalf("Operator %s already exists (id %s)", existing.Email, existing.ID)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	user := &domain.User{
		Name:         *name,
		Email:        *email,
		PasswordHash: string(hash),
		Role:         *role,
	}
	if err := users.Create(ctx, user); err != nil {
		log.Fatalf("Failed to create operator: %v", err)
	}

	log.Printf("✓ Operator %s (%s) created with id %s", user.Name, user.Email, user.ID)
}
