package router

import (
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"

	apperr "natours/internal/errors"
	"natours/internal/handler"
	appmw "natours/internal/middleware"
	"natours/internal/model"
	"natours/internal/service"
)

// Options carries what Register needs besides the handlers.
type Options struct {
	Logger      *slog.Logger
	AuthService service.AuthService
	// RateLimitStore limits /api per client IP; nil disables limiting.
	RateLimitStore middleware.RateLimiterStore
}

// Register wires routes and middleware.
func Register(
	e *echo.Echo,
	opts Options,
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
) {
	e.HTTPErrorHandler = handler.HTTPErrorHandler(opts.Logger)
	e.Validator = NewValidator()

	e.Use(middleware.RequestID())
	e.Use(appmw.RequestLogger(opts.Logger))
	e.Use(middleware.Recover())
	e.Use(middleware.Secure())
	e.Use(middleware.BodyLimit("10K"))

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e.GET("/swagger/*", echoSwagger.WrapHandler)

	var apiMiddleware []echo.MiddlewareFunc
	if opts.RateLimitStore != nil {
		apiMiddleware = append(apiMiddleware, appmw.RateLimit(opts.RateLimitStore))
	}
	api := e.Group("/api", apiMiddleware...)
	users := api.Group("/v1/users")

	// Public routes
	users.POST("/signup", authHandler.Signup)
	users.POST("/login", authHandler.Login)
	users.GET("/logout", authHandler.Logout)
	users.POST("/forgotPassword", authHandler.ForgotPassword)
	users.PATCH("/resetPassword/:token", authHandler.ResetPassword)

	// Everything below requires a session
	protected := users.Group("", appmw.Protect(opts.AuthService))

	protected.PATCH("/updateMyPassword", authHandler.UpdatePassword)
	protected.GET("/me", userHandler.GetMe)
	protected.PATCH("/updateMe", userHandler.UpdateMe)
	protected.DELETE("/deleteMe", userHandler.DeleteMe)

	protected.GET("/:id", userHandler.GetUser, appmw.RestrictTo(opts.Logger, model.RoleAdmin))
}

// CustomValidator wraps validator for Echo.
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator reports field names as they appear in JSON.
func NewValidator() *CustomValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &CustomValidator{validator: v}
}

// Validate implements echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	err := cv.validator.Struct(i)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation("Invalid input data")
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return apperr.Validation("Invalid input data. " + strings.Join(msgs, ". "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Please provide " + fe.Field()
	case "email":
		return "Please provide a valid email"
	case "oneof":
		return fe.Field() + " is either: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return "Invalid " + fe.Field()
	}
}
