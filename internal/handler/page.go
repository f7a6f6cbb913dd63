package handler

import (
	"html/template"
	"net/http"

	"gowa-multibot/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

var dashboardTemplate = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html lang="id">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Multi WhatsApp Bot</title>
<style>
body { font-family: sans-serif; margin: 2rem; background: #f4f6f8; }
.bot { background: #fff; border-radius: 8px; padding: 1rem; margin: 1rem 0; box-shadow: 0 1px 3px rgba(0,0,0,.1); }
.bot h3 { margin-top: 0; }
button { padding: .5rem 1rem; cursor: pointer; }
</style>
</head>
<body>
<h1>Multi WhatsApp Bot</h1>
<p>Total sesi aktif: <strong>{{.Total}}</strong></p>
<form method="POST" action="/new"><button type="submit">➕ Tambah Bot Baru</button></form>
{{range .Bots}}
<div class="bot" id="{{.ID}}">
  <h3>{{.ID}}</h3>
  <p>Status: {{.StatusLabel}}</p>
  {{if .Phone}}<p>Nomor: {{.Phone}}</p>{{end}}
  {{if .QR}}
  <img src="{{.QR}}" alt="QR {{.ID}}" width="256" height="256">
  <p>Scan QR ini dari WhatsApp &gt; Perangkat tertaut.</p>
  {{end}}
</div>
{{else}}
<p>Belum ada bot yang aktif.</p>
{{end}}
{{if .LiveReload}}
<script>
(function () {
  var scheme = location.protocol === "https:" ? "wss://" : "ws://";
  var socket = new WebSocket(scheme + location.host + "/ws");
  var pending = null;
  socket.onmessage = function () {
    if (pending) return;
    pending = setTimeout(function () { location.reload(); }, 300);
  };
})();
</script>
{{end}}
</body>
</html>
`))

type dashboardBot struct {
	ID          string
	StatusLabel string
	Phone       string
	QR          template.URL
}

type dashboardData struct {
	Total      int
	Bots       []dashboardBot
	LiveReload bool
}

func newDashboardData(bots []service.BotSnapshot, liveReload bool) dashboardData {
	data := dashboardData{Total: len(bots), LiveReload: liveReload}
	for _, b := range bots {
		item := dashboardBot{ID: b.ID, StatusLabel: b.StatusLabel, Phone: b.PhoneNumber}
		if !b.IsConnected && b.QRDataURL != "" {
			// generated by helper.QRDataURL, always a data:image/png URL
			item.QR = template.URL(b.QRDataURL)
		}
		data.Bots = append(data.Bots, item)
	}
	return data
}

// GET /
func Dashboard(m *service.Manager, liveReload bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
		c.Response().Header().Set("Cache-Control", "no-store")
		c.Response().WriteHeader(http.StatusOK)
		return dashboardTemplate.Execute(c.Response(), newDashboardData(m.List(), liveReload))
	}
}

// POST /new
func DashboardNewBot(m *service.Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		bot, err := m.Create(c.Request().Context())
		if err != nil {
			log.Error().Err(err).Msg("create bot from dashboard failed")
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		log.Info().Str("bot", bot.ID()).Msg("bot created from dashboard")
		return c.Redirect(http.StatusFound, "/")
	}
}
