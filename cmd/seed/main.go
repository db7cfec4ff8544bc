package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"usersvc/internal/auth"
	"usersvc/internal/config"
	"usersvc/internal/db"
	apperrors "usersvc/internal/errors"
	"usersvc/internal/logger"
	"usersvc/internal/model"
	"usersvc/internal/repository"
	"usersvc/internal/validation"
)

// SeedUser is one account entry of the seed file.
type SeedUser struct {
	Username string `json:"username" validate:"required,username"`
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role" validate:"omitempty,oneof=user admin"`
}

func main() {
	file := flag.String("file", "", "JSON file holding an array of accounts to seed")
	username := flag.String("username", "admin", "admin username, used when -file is empty")
	name := flag.String("name", "Administrator", "admin display name, used when -file is empty")
	email := flag.String("email", os.Getenv("SEED_ADMIN_EMAIL"), "admin email, used when -file is empty")
	flag.Parse()

	logger.Info("Starting seed script...")

	cfg, err := config.Load()
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}

	var users []SeedUser
	if *file != "" {
		users, err = loadSeedUsers(*file)
		if err != nil {
			fatalf("Failed to read seed file: %v", err)
		}
	} else {
		users = []SeedUser{{
			Username: *username,
			Name:     *name,
			Email:    *email,
			Password: os.Getenv("SEED_ADMIN_PASSWORD"),
			Role:     model.RoleAdmin,
		}}
	}

	gormDB, err := db.Open(cfg.DBDriver, cfg.MySQLDSN, cfg.SQLitePath)
	if err != nil {
		fatalf("Failed to connect to database: %v", err)
	}
	if err := db.Migrate(gormDB, false); err != nil {
		fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Database migrations completed")

	repo := repository.NewUserRepository(gormDB)
	seeded, updated, err := seedUsers(context.Background(), repo, users)
	if err != nil {
		fatalf("Failed to seed users: %v", err)
	}

	logger.Info("Seed completed successfully!")
	logger.Infof("  - New accounts created: %d", seeded)
	logger.Infof("  - Existing accounts updated: %d", updated)
}

// loadSeedUsers reads a JSON array of accounts from path.
func loadSeedUsers(path string) ([]SeedUser, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var users []SeedUser
	if err := json.Unmarshal(body, &users); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return users, nil
}

// seedUsers creates verified accounts, or refreshes the name, role and password
// of accounts whose email already exists.
func seedUsers(ctx context.Context, repo repository.UserRepository, users []SeedUser) (seeded int, updated int, err error) {
	v := validation.NewValidator()

	for _, u := range users {
		u.Email = strings.ToLower(strings.TrimSpace(u.Email))
		if u.Role == "" {
			u.Role = model.RoleUser
		}
		if err := v.Validate(&u); err != nil {
			return seeded, updated, fmt.Errorf("invalid seed account %q: %w", u.Email, err)
		}

		hashed, err := auth.HashPassword(u.Password)
		if err != nil {
			return seeded, updated, err
		}

		existing, err := repo.FindByEmail(ctx, u.Email)
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return seeded, updated, fmt.Errorf("error checking account %s: %w", u.Email, err)
		}

		if existing != nil {
			if err := repo.UpdateFields(ctx, existing.ID, map[string]interface{}{
				repository.FieldName:            u.Name,
				repository.FieldRole:            u.Role,
				repository.FieldPasswordHash:    hashed,
				repository.FieldIsEmailVerified: true,
			}); err != nil {
				return seeded, updated, fmt.Errorf("error updating account %s: %w", u.Email, err)
			}
			updated++
			continue
		}

		if err := repo.Create(ctx, &model.User{
			Username:        u.Username,
			Name:            u.Name,
			Email:           u.Email,
			PasswordHash:    hashed,
			Role:            u.Role,
			IsEmailVerified: true,
		}); err != nil {
			return seeded, updated, fmt.Errorf("error creating account %s: %w", u.Email, err)
		}
		seeded++
	}

	return seeded, updated, nil
}

func fatalf(format string, args ...any) {
	logger.Errorf(format, args...)
	os.Exit(1)
}
