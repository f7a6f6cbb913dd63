package handler

import (
	"net/http"
	"slices"

	"gowa-multibot/internal/ws"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// originChecker accepts same-host requests, requests without an Origin
// header and any origin listed in CORS_ALLOW_ORIGINS ("*" allows all).
func originChecker(allowOrigins []string) func(r *http.Request) bool {
	allowAll := slices.Contains(allowOrigins, "*")
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowAll {
			return true
		}
		if origin == "http://"+r.Host || origin == "https://"+r.Host {
			return true
		}
		return slices.Contains(allowOrigins, origin)
	}
}

// WebSocketHandler upgrades GET /ws and streams hub events to the client.
func WebSocketHandler(hub *ws.Hub, allowOrigins []string) echo.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowOrigins),
	}

	return func(c echo.Context) error {
		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			// Upgrade already wrote the HTTP error
			log.Debug().Err(err).Str("origin", c.Request().Header.Get("Origin")).Msg("ws upgrade failed")
			return nil
		}

		client := ws.NewClient(hub, conn)
		hub.Register(client)

		go client.WritePump()
		go client.ReadPump()
		return nil
	}
}
