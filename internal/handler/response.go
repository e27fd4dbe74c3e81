package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	apperr "natours/internal/errors"
	"natours/internal/middleware"
	"natours/internal/model"
	"natours/internal/service"
)

const statusSuccess = "success"

// UserData wraps a user in the data envelope.
type UserData struct {
	User *model.User `json:"user"`
}

// SessionResponse is returned whenever a session token is issued.
type SessionResponse struct {
	Status string   `json:"status"`
	Token  string   `json:"token"`
	Data   UserData `json:"data"`
}

// UserResponse is the success envelope around a user.
type UserResponse struct {
	Status string   `json:"status"`
	Data   UserData `json:"data"`
}

// MessageResponse is a success envelope with a message.
type MessageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// CookieConfig controls the session cookie.
type CookieConfig struct {
	TTL time.Duration
	// Secure forces the Secure attribute; it is also set for TLS requests.
	Secure bool
}

func (cc CookieConfig) session(c echo.Context, token string, now time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     middleware.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  now.Add(cc.TTL),
		MaxAge:   int(cc.TTL.Seconds()),
		HttpOnly: true,
		Secure:   cc.Secure || c.IsTLS(),
		SameSite: http.SameSiteLaxMode,
	}
}

func (cc CookieConfig) expired(c echo.Context) *http.Cookie {
	return &http.Cookie{
		Name:     middleware.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cc.Secure || c.IsTLS(),
		SameSite: http.SameSiteLaxMode,
	}
}

// sendSession sets the cookie and writes the session envelope.
func sendSession(c echo.Context, cc CookieConfig, status int, s *service.Session) error {
	c.SetCookie(cc.session(c, s.Token, time.Now()))
	return c.JSON(status, SessionResponse{
		Status: statusSuccess,
		Token:  s.Token,
		Data:   UserData{User: s.User},
	})
}

// HTTPErrorHandler renders every error as the failure envelope. Anything
// that is not operational is logged and reported as a generic 500.
func HTTPErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var mapped *apperr.HTTPError
		var he *echo.HTTPError
		if errors.As(err, &he) {
			mapped = fromEchoError(he)
		} else {
			mapped = apperr.MapErrorToHTTP(err)
		}

		if mapped.StatusCode >= http.StatusInternalServerError {
			logger.ErrorContext(c.Request().Context(), "request failed",
				"status", mapped.StatusCode,
				"route", c.Path(),
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
				"error", err,
			)
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(mapped.StatusCode)
		} else {
			writeErr = c.JSON(mapped.StatusCode, mapped.ToErrorResponse())
		}
		if writeErr != nil {
			logger.Error("write error response", "error", writeErr)
		}
	}
}

func fromEchoError(he *echo.HTTPError) *apperr.HTTPError {
	if he.Code >= http.StatusInternalServerError {
		return apperr.MapErrorToHTTP(he)
	}
	msg, ok := he.Message.(string)
	if !ok || msg == "" {
		msg = http.StatusText(he.Code)
	}
	if he.Code == http.StatusNotFound && msg == http.StatusText(http.StatusNotFound) {
		msg = "Can't find this route on this server!"
	}
	return apperr.NewHTTPError(he.Code, msg)
}

func baseURL(c echo.Context, publicURL string) string {
	if publicURL != "" {
		return publicURL
	}
	return fmt.Sprintf("%s://%s", c.Scheme(), c.Request().Host)
}
