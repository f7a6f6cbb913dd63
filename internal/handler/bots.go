package handler

import (
	"errors"
	"net/http"
	"strings"

	"gowa-multibot/internal/helper"
	"gowa-multibot/internal/model"
	"gowa-multibot/internal/service"

	"github.com/labstack/echo/v4"
)

type SendMessageRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// GET /api/bots
func ListBots(m *service.Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		bots := m.List()
		return SuccessResponse(c, http.StatusOK, "Bots retrieved", map[string]any{
			"total": len(bots),
			"bots":  bots,
		})
	}
}

// POST /api/bots
func CreateBot(m *service.Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		bot, err := m.Create(c.Request().Context())
		if err != nil {
			return serviceError(c, err)
		}
		return SuccessResponse(c, http.StatusCreated, "Bot created, QR code required", map[string]any{
			"bot":      bot.Snapshot(),
			"nextStep": "Scan the QR from GET /api/bots/" + bot.ID() + "/qr or the dashboard",
		})
	}
}

// GET /api/bots/:id
func GetBot(m *service.Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		bot, err := m.Get(c.Param("id"))
		if err != nil {
			return serviceError(c, err)
		}
		return SuccessResponse(c, http.StatusOK, "Bot retrieved", bot.Snapshot())
	}
}

// GET /api/bots/:id/qr
func GetBotQR(m *service.Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		bot, err := m.Get(c.Param("id"))
		if err != nil {
			return serviceError(c, err)
		}

		snap := bot.Snapshot()
		if snap.IsConnected {
			return ErrorResponse(c, http.StatusConflict, "Bot is already connected", "ALREADY_CONNECTED", "")
		}
		if snap.QRCode == "" {
			return ErrorResponse(c, http.StatusNotFound, "QR code not available yet", "QR_NOT_AVAILABLE", string(snap.Status))
		}

		// ?format=text returns the raw code for terminal rendering
		if c.QueryParam("format") == "text" {
			return SuccessResponse(c, http.StatusOK, "QR code", map[string]any{
				"botId":     snap.ID,
				"qrCode":    snap.QRCode,
				"expiresAt": snap.QRExpiresAt,
			})
		}

		png, err := helper.QRPNG(snap.QRCode, helper.QRImageSize)
		if err != nil {
			return ErrorResponse(c, http.StatusInternalServerError, "Failed to render QR code", "QR_RENDER_FAILED", err.Error())
		}
		c.Response().Header().Set("Cache-Control", "no-store")
		return c.Blob(http.StatusOK, "image/png", png)
	}
}

// POST /api/bots/:id/logout
func LogoutBot(m *service.Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")
		if err := m.Logout(c.Request().Context(), id); err != nil {
			return serviceError(c, err)
		}
		return SuccessResponse(c, http.StatusOK, "Bot logged out, scan the new QR code to pair again", map[string]any{
			"botId": id,
		})
	}
}

// DELETE /api/bots/:id
func DeleteBot(m *service.Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")
		if err := m.Remove(c.Request().Context(), id); err != nil {
			return serviceError(c, err)
		}
		return SuccessResponse(c, http.StatusOK, "Bot deleted", map[string]any{
			"botId": id,
		})
	}
}

// POST /api/bots/:id/send
func SendMessage(m *service.Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req SendMessageRequest
		if err := c.Bind(&req); err != nil {
			return ErrorResponse(c, http.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
		}
		if strings.TrimSpace(req.To) == "" || strings.TrimSpace(req.Message) == "" {
			return ErrorResponse(c, http.StatusBadRequest, "Fields 'to' and 'message' are required", "VALIDATION_ERROR", "")
		}

		id := c.Param("id")
		msgID, err := m.Send(c.Request().Context(), id, req.To, req.Message)
		if err != nil {
			return serviceError(c, err)
		}

		return SuccessResponse(c, http.StatusOK, "Message sent", map[string]any{
			"botId":     id,
			"to":        req.To,
			"messageId": msgID,
		})
	}
}

type WebhookConfigRequest struct {
	URL    string `json:"url"`
	Secret string `json:"secret"`
}

// POST /api/bots/:id/webhook
func SetWebhookConfig(m *service.Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")
		if _, err := m.Get(id); err != nil {
			return serviceError(c, err)
		}

		var req WebhookConfigRequest
		if err := c.Bind(&req); err != nil {
			return ErrorResponse(c, http.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
		}

		// empty url clears the webhook
		if req.URL != "" && !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
			return ErrorResponse(c, http.StatusBadRequest, "webhook url must start with http:// or https://", "INVALID_URL", "")
		}

		if err := model.UpdateBotWebhook(id, req.URL, req.Secret); err != nil {
			if errors.Is(err, model.ErrBotNotFound) {
				return ErrorResponse(c, http.StatusNotFound, "Bot not found", "BOT_NOT_FOUND", "")
			}
			return ErrorResponse(c, http.StatusInternalServerError, "Failed to update webhook config", "WEBHOOK_UPDATE_FAILED", err.Error())
		}

		return SuccessResponse(c, http.StatusOK, "Webhook config updated", map[string]any{
			"botId":      id,
			"webhookUrl": req.URL,
			"hasSecret":  req.Secret != "",
		})
	}
}
