package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"natours/internal/middleware"
	"natours/internal/service"
)

const resetPath = "/api/v1/users/resetPassword/"

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService service.AuthService
	cookies     CookieConfig
	publicURL   string
}

// NewAuthHandler creates a new auth handler. publicURL, when set, is the
// base of links sent by email; otherwise the request host is used.
func NewAuthHandler(authService service.AuthService, cookies CookieConfig, publicURL string) *AuthHandler {
	return &AuthHandler{authService: authService, cookies: cookies, publicURL: publicURL}
}

// SignupRequest represents a user registration request.
type SignupRequest struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required"`
	Role            string `json:"role,omitempty" validate:"omitempty,oneof=user guide lead-guide admin"`
}

// LoginRequest represents a user login request.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ForgotPasswordRequest starts a password reset.
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest completes a password reset.
type ResetPasswordRequest struct {
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required"`
}

// UpdatePasswordRequest changes the password of the signed-in user.
type UpdatePasswordRequest struct {
	PasswordCurrent string `json:"passwordCurrent" validate:"required"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required"`
}

// Signup godoc
// @Summary Sign up
// @Tags auth
// @Accept json
// @Produce json
// @Param request body SignupRequest true "Signup data"
// @Success 201 {object} SessionResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /users/signup [post]
func (h *AuthHandler) Signup(c echo.Context) error {
	var req SignupRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	session, err := h.authService.Signup(c.Request().Context(), service.SignupInput{
		Name:            req.Name,
		Email:           req.Email,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
		Role:            req.Role,
	}, baseURL(c, h.publicURL)+"/me")
	if err != nil {
		return err
	}
	return sendSession(c, h.cookies, http.StatusCreated, session)
}

// Login godoc
// @Summary Log in
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login credentials"
// @Success 200 {object} SessionResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /users/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	session, err := h.authService.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return sendSession(c, h.cookies, http.StatusOK, session)
}

// Logout godoc
// @Summary Log out
// @Description Overwrites the session cookie with an expired one. Bearer tokens are simply discarded by the client.
// @Tags auth
// @Success 204
// @Router /users/logout [get]
func (h *AuthHandler) Logout(c echo.Context) error {
	c.SetCookie(h.cookies.expired(c))
	return c.NoContent(http.StatusNoContent)
}

// ForgotPassword godoc
// @Summary Request a password reset email
// @Tags auth
// @Accept json
// @Produce json
// @Param request body ForgotPasswordRequest true "Account email"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 429 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /users/forgotPassword [post]
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req ForgotPasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	base := baseURL(c, h.publicURL)
	err := h.authService.ForgotPassword(c.Request().Context(), req.Email, func(secret string) string {
		return base + resetPath + secret
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MessageResponse{
		Status:  statusSuccess,
		Message: "If that email belongs to an account, a reset link has been sent to it.",
	})
}

// ResetPassword godoc
// @Summary Reset password with an emailed token
// @Tags auth
// @Accept json
// @Produce json
// @Param token path string true "Reset token from the email"
// @Param request body ResetPasswordRequest true "New password"
// @Success 200 {object} SessionResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /users/resetPassword/{token} [patch]
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	session, err := h.authService.ResetPassword(c.Request().Context(), c.Param("token"), req.Password, req.PasswordConfirm)
	if err != nil {
		return err
	}
	return sendSession(c, h.cookies, http.StatusOK, session)
}

// UpdatePassword godoc
// @Summary Change the current user's password
// @Description Every session issued before the change stops working.
// @Tags auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body UpdatePasswordRequest true "Current and new password"
// @Success 200 {object} SessionResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /users/updateMyPassword [patch]
func (h *AuthHandler) UpdatePassword(c echo.Context) error {
	var req UpdatePasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	session, err := h.authService.UpdatePassword(
		c.Request().Context(),
		middleware.CurrentUser(c),
		req.PasswordCurrent,
		req.Password,
		req.PasswordConfirm,
	)
	if err != nil {
		return err
	}
	return sendSession(c, h.cookies, http.StatusOK, session)
}

func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	return c.Validate(req)
}
