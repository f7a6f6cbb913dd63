package handler

import (
	"errors"
	"fmt"
	"net/http"

	"gowa-multibot/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

type APIResponse struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

func SuccessResponse(c echo.Context, status int, message string, data any) error {
	return c.JSON(status, APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func ErrorResponse(c echo.Context, status int, message, code, details string) error {
	return c.JSON(status, APIResponse{
		Success: false,
		Message: message,
		Error:   &APIError{Code: code, Details: details},
	})
}

// serviceError maps errors returned by the bot manager to API responses.
func serviceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrBotNotFound):
		return ErrorResponse(c, http.StatusNotFound, "Bot not found", "BOT_NOT_FOUND", "")
	case errors.Is(err, service.ErrBotNotConnected):
		return ErrorResponse(c, http.StatusConflict, "Bot is not connected", "NOT_CONNECTED", "")
	case errors.Is(err, service.ErrBotStopped):
		return ErrorResponse(c, http.StatusConflict, "Bot is stopped", "BOT_STOPPED", "")
	case errors.Is(err, service.ErrInvalidRecipient):
		return ErrorResponse(c, http.StatusBadRequest, "Invalid recipient", "INVALID_RECIPIENT", err.Error())
	case errors.Is(err, service.ErrManagerClosed):
		return ErrorResponse(c, http.StatusServiceUnavailable, "Server is shutting down", "SHUTTING_DOWN", "")
	}
	return ErrorResponse(c, http.StatusInternalServerError, "Internal Server Error", "INTERNAL_ERROR", err.Error())
}

// HTTPErrorHandler renders echo errors in the API envelope.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "Internal Server Error"

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		message = fmt.Sprintf("%v", he.Message)
	}

	errCode := "INTERNAL_ERROR"
	switch code {
	case http.StatusUnauthorized:
		message = "Authentication required. Please login first."
		errCode = "UNAUTHORIZED"
	case http.StatusMethodNotAllowed:
		message = "Method not allowed for this endpoint"
		errCode = "METHOD_NOT_ALLOWED"
	case http.StatusNotFound:
		message = "Endpoint not found"
		errCode = "NOT_FOUND"
	case http.StatusTooManyRequests:
		errCode = "RATE_LIMITED"
	}
	if code >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request().URL.Path).Msg("request failed")
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = ErrorResponse(c, code, message, errCode, "")
}
