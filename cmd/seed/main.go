package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"natours/internal/auth"
	"natours/internal/config"
	"natours/internal/db"
	apperr "natours/internal/errors"
	"natours/internal/logging"
	"natours/internal/mailer"
	"natours/internal/model"
	"natours/internal/password"
	"natours/internal/repository"
	"natours/internal/service"
)

// SeedUser is one entry of the seed file. Passwords are plaintext and go
// through the same hashing as a signup.
type SeedUser struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func main() {
	source := flag.String("source", "dev-data/users.json", "path or http(s) URL of a JSON array of users")
	reset := flag.Bool("reset", false, "drop the users table before importing")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.IsProduction())

	if err := run(cfg, logger, *source, *reset); err != nil {
		logger.Error("seed failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, source string, reset bool) error {
	if cfg.DBDriver == "memory" {
		return errors.New("seeding needs a database, DB_DRIVER is memory")
	}

	gormDB, err := db.Open(cfg.DBDriver, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	logger.Info("connected to database", "driver", cfg.DBDriver)

	if reset {
		if err := repository.DropUsers(gormDB); err != nil {
			return fmt.Errorf("drop users: %w", err)
		}
		logger.Info("users table dropped")
	}
	if err := repository.AutoMigrate(gormDB); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	users, err := loadUsers(source)
	if err != nil {
		return err
	}
	logger.Info("loaded seed users", "source", source, "count", len(users))

	hasher, err := password.NewHasher(cfg.Hashing())
	if err != nil {
		return err
	}
	tokens, err := auth.NewJWTService(cfg.Tokens())
	if err != nil {
		return err
	}
	authService := service.NewAuthService(
		repository.NewUserRepository(gormDB),
		tokens,
		hasher,
		mailer.NewLogMailer(logging.Discard(), cfg.ResetWindow),
		nil,
		service.AuthConfig{
			PasswordChangeSkew: cfg.PasswordChangeSkew,
			PasswordMinLength:  cfg.PasswordMinLength,
			SignupRoles:        model.Roles(),
		},
		logger,
	)

	created, skipped, err := seedUsers(context.Background(), authService, users, logger)
	if err != nil {
		return err
	}
	logger.Info("seed completed", "created", created, "skipped", skipped)
	return nil
}

// loadUsers reads the seed array from a file or fetches it over HTTP.
func loadUsers(source string) ([]SeedUser, error) {
	var body []byte
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		client := &http.Client{Timeout: 30 * time.Second}
		resp, err := client.Get(source)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch seed data: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("seed source returned status code: %d", resp.StatusCode)
		}
		if body, err = io.ReadAll(resp.Body); err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
	} else {
		var err error
		if body, err = os.ReadFile(source); err != nil {
			return nil, fmt.Errorf("failed to read seed file: %w", err)
		}
	}

	var users []SeedUser
	if err := json.Unmarshal(body, &users); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return users, nil
}

// seedUsers signs up every user. Existing emails and invalid entries are
// skipped; anything else aborts the import.
func seedUsers(ctx context.Context, authService service.AuthService, users []SeedUser, logger *slog.Logger) (created, skipped int, err error) {
	for _, u := range users {
		_, err := authService.Signup(ctx, service.SignupInput{
			Name:            u.Name,
			Email:           u.Email,
			Password:        u.Password,
			PasswordConfirm: u.Password,
			Role:            u.Role,
		}, "")
		if err == nil {
			created++
			continue
		}

		var appErr *apperr.AppError
		if errors.As(err, &appErr) && appErr.Kind == apperr.KindValidation {
			logger.Warn("skipping user", "email", u.Email, "reason", appErr.Message)
			skipped++
			continue
		}
		return created, skipped, fmt.Errorf("error creating user %s: %w", u.Email, err)
	}
	return created, skipped, nil
}
