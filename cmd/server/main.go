package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"natours/docs" // swagger docs

	"natours/internal/auth"
	"natours/internal/cache"
	"natours/internal/config"
	"natours/internal/db"
	"natours/internal/handler"
	"natours/internal/logging"
	"natours/internal/mailer"
	appmw "natours/internal/middleware"
	"natours/internal/password"
	"natours/internal/repository"
	"natours/internal/router"
	"natours/internal/service"
)

// @title Natours API
// @version 1.0
// @description Account, session and password reset endpoints of the Natours API.
// @host localhost:8080
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.IsProduction())
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	users, err := openUsers(cfg, logger)
	if err != nil {
		return err
	}

	var (
		cacheClient *cache.Client
		limiter     service.Limiter
		rateStore   middleware.RateLimiterStore
	)
	if cfg.RedisAddr != "" {
		cacheClient = cache.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		defer cacheClient.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := cacheClient.Ping(pingCtx); err != nil {
			// Counters fail open, so an unreachable redis only weakens limiting.
			logger.Warn("redis unreachable at startup", "addr", cfg.RedisAddr, "error", err)
		}
		cancel()

		limiter = cacheClient
		rateStore = appmw.NewRedisRateLimitStore(cacheClient, cfg.RateLimitMax, cfg.RateLimitWindow, logger)
	} else {
		logger.Info("REDIS_ADDR not set, rate limiting per process and reset requests unthrottled")
		rateStore = appmw.NewMemoryRateLimitStore(cfg.RateLimitMax, cfg.RateLimitWindow)
	}

	hasher, err := password.NewHasher(cfg.Hashing())
	if err != nil {
		return err
	}
	tokens, err := auth.NewJWTService(cfg.Tokens())
	if err != nil {
		return err
	}

	mail, err := newMailer(cfg, logger)
	if err != nil {
		return err
	}

	authService := service.NewAuthService(users, tokens, hasher, mail, limiter, service.AuthConfig{
		ResetWindow:             cfg.ResetWindow,
		ResetRequestLimit:       cfg.ResetRequestLimit,
		RevealUnknownResetEmail: cfg.RevealUnknownResetEmail,
		PasswordChangeSkew:      cfg.PasswordChangeSkew,
		PasswordMinLength:       cfg.PasswordMinLength,
		SignupRoles:             cfg.SignupRoles,
	}, logger)
	userService := service.NewUserService(users, logger)

	authHandler := handler.NewAuthHandler(authService, handler.CookieConfig{
		TTL:    cfg.CookieExpiresIn,
		Secure: cfg.IsProduction(),
	}, cfg.PublicURL)
	userHandler := handler.NewUserHandler(userService)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	router.Register(e, router.Options{
		Logger:         logger,
		AuthService:    authService,
		RateLimitStore: rateStore,
	}, authHandler, userHandler)

	logger.Info("swagger documentation available", "url", swaggerURL(cfg))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.ServerPort
		logger.Info("listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func openUsers(cfg *config.Config, logger *slog.Logger) (repository.UserRepository, error) {
	if cfg.DBDriver == "memory" {
		logger.Warn("using in-memory user store, accounts are lost on restart")
		return repository.NewMemoryUserRepository(), nil
	}

	gormDB, err := db.Open(cfg.DBDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	if err := repository.AutoMigrate(gormDB); err != nil {
		return nil, err
	}
	return repository.NewUserRepository(gormDB), nil
}

func newMailer(cfg *config.Config, logger *slog.Logger) (mailer.Mailer, error) {
	if cfg.SMTPHost == "" {
		if cfg.IsProduction() {
			logger.Warn("SMTP_HOST not set, emails are logged instead of sent")
		}
		return mailer.NewLogMailer(logger, cfg.ResetWindow), nil
	}
	return mailer.NewSMTPMailer(mailer.SMTPConfig{
		Host:       cfg.SMTPHost,
		Port:       cfg.SMTPPort,
		Username:   cfg.SMTPUser,
		Password:   cfg.SMTPPass,
		From:       cfg.MailFrom,
		ResetValid: cfg.ResetWindow,
	})
}

func swaggerURL(cfg *config.Config) string {
	host := cfg.SwaggerHost
	if host == "" {
		return "http://localhost:" + cfg.ServerPort + "/swagger/index.html"
	}
	docs.SwaggerInfo.Host = strings.TrimPrefix(strings.TrimPrefix(host, "https://"), "http://")
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	return host + "/swagger/index.html"
}
