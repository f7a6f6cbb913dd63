package handler

import (
	"errors"
	"net/http"

	"gowa-multibot/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

type TokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// POST /api/token
func IssueToken(auth *service.AuthService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req TokenRequest
		if err := c.Bind(&req); err != nil {
			return ErrorResponse(c, http.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
		}
		if req.Username == "" || req.Password == "" {
			return ErrorResponse(c, http.StatusBadRequest, "Username and password are required", "VALIDATION_ERROR", "")
		}

		token, expiresAt, err := auth.Login(req.Username, req.Password)
		switch {
		case errors.Is(err, service.ErrLoginDisabled):
			return ErrorResponse(c, http.StatusNotImplemented, "Login is not configured", "LOGIN_DISABLED", "set JWT_SECRET and ADMIN_PASSWORD_HASH")
		case errors.Is(err, service.ErrInvalidCredentials):
			log.Warn().Str("username", req.Username).Str("ip", c.RealIP()).Msg("failed login")
			return ErrorResponse(c, http.StatusUnauthorized, "Invalid username or password", "INVALID_CREDENTIALS", "")
		case err != nil:
			return ErrorResponse(c, http.StatusInternalServerError, "Failed to issue token", "TOKEN_FAILED", err.Error())
		}

		return SuccessResponse(c, http.StatusOK, "Login successful", map[string]any{
			"accessToken": token,
			"tokenType":   "Bearer",
			"expiresAt":   expiresAt,
		})
	}
}
