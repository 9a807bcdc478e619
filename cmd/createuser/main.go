package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/nimbuschat/nimbus-backend/internal/config"
	"github.com/nimbuschat/nimbus-backend/internal/database"
)

func main() {
	var (
		email    = flag.String("email", "test@example.com", "User email")
		password = flag.String("password", "password123", "User password")
		username = flag.String("username", "testuser", "Username")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	db, err := sqlx.Connect("postgres", database.GetDSN(cfg.Database))
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), 12)
	if err != nil {
		log.Fatal("Failed to generate password hash:", err)
	}

	userID := uuid.New()
	ctx := context.Background()

	query := `
		INSERT INTO users (id, email, username, password_hash, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (email) DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			username = EXCLUDED.username,
			updated_at = EXCLUDED.updated_at
		RETURNING id`

	var resultID uuid.UUID
	err = db.GetContext(ctx, &resultID, query,
		userID, *email, *username, string(hash), true, time.Now(), time.Now())
	if err != nil {
		log.Fatal("Failed to create user:", err)
	}

	if resultID == userID {
		fmt.Printf("Created user:\n")
	} else {
		fmt.Printf("Updated existing user:\n")
	}

	fmt.Printf("   Email: %s\n", *email)
	fmt.Printf("   Username: %s\n", *username)
	fmt.Printf("   ID: %s\n", resultID)
}
