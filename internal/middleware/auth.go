package middleware

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	apperr "natours/internal/errors"
	"natours/internal/model"
	"natours/internal/service"
)

const (
	// CookieName is the session cookie.
	CookieName = "jwt"

	userContextKey = "user"
	bearerPrefix   = "Bearer "
)

var errMissingToken = errors.New("missing session token")

type ctxKey struct{}

// WithUser attaches user to ctx.
func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, user)
}

// UserFromContext returns the authenticated user, or nil.
func UserFromContext(ctx context.Context) *model.User {
	u, _ := ctx.Value(ctxKey{}).(*model.User)
	return u
}

// CurrentUser returns the user resolved by Protect, or nil.
func CurrentUser(c echo.Context) *model.User {
	u, _ := c.Get(userContextKey).(*model.User)
	return u
}

// sessionToken returns the bearer token when an Authorization header uses the
// Bearer scheme, and the session cookie only when it does not. A bad bearer
// token never falls through to the cookie.
func sessionToken(c echo.Context) ([]string, error) {
	if h := c.Request().Header.Get(echo.HeaderAuthorization); strings.HasPrefix(h, bearerPrefix) {
		if token := strings.TrimSpace(h[len(bearerPrefix):]); token != "" {
			return []string{token}, nil
		}
		return nil, errMissingToken
	}
	if cookie, err := c.Cookie(CookieName); err == nil && cookie.Value != "" {
		return []string{cookie.Value}, nil
	}
	return nil, errMissingToken
}

// Protect authenticates the request from a bearer token, falling back to the
// session cookie, and attaches the resolved user.
func Protect(authService service.AuthService) echo.MiddlewareFunc {
	mw, err := echojwt.Config{
		TokenLookupFuncs: []middleware.ValuesExtractor{sessionToken},
		ContextKey:       userContextKey,
		ParseTokenFunc: func(c echo.Context, token string) (interface{}, error) {
			return authService.Authenticate(c.Request().Context(), token)
		},
		SuccessHandler: func(c echo.Context) {
			if u := CurrentUser(c); u != nil {
				c.SetRequest(c.Request().WithContext(WithUser(c.Request().Context(), u)))
			}
		},
		ErrorHandler: func(c echo.Context, err error) error {
			var appErr *apperr.AppError
			if errors.As(err, &appErr) {
				return appErr
			}
			// Extraction failures: no header and no cookie.
			return apperr.ErrUnauthenticated.Wrap(err)
		},
	}.ToMiddleware()
	if err != nil {
		panic("middleware: protect: " + err.Error())
	}
	return mw
}

// RestrictTo allows only callers holding one of roles. It must run after
// Protect; without an identity it fails closed.
func RestrictTo(logger *slog.Logger, roles ...model.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := service.Authorize(CurrentUser(c), roles...); err != nil {
				if errors.Is(err, apperr.ErrNoIdentity) {
					logger.ErrorContext(c.Request().Context(), "role check without authentication",
						"path", c.Path(),
						"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
					)
				}
				return err
			}
			return next(c)
		}
	}
}
