package handler

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"gowa-multibot/internal/model"
	"gowa-multibot/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/xuri/excelize/v2"
)

const exportSheet = "Bots"

var exportHeaders = []string{"No", "Bot ID", "Status", "Connected", "Phone Number", "JID", "Webhook URL", "Created At", "Connected At"}

// WriteBotsXLSX writes the bot roster as an xlsx workbook.
func WriteBotsXLSX(w io.Writer, bots []service.BotSnapshot, webhooks map[string]string) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	for i, header := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(exportSheet, cell, header)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	lastHeader, _ := excelize.CoordinatesToCellName(len(exportHeaders), 1)
	f.SetCellStyle(exportSheet, "A1", lastHeader, headerStyle)

	for i, b := range bots {
		row := i + 2
		connectedAt := ""
		if b.ConnectedAt != nil {
			connectedAt = b.ConnectedAt.Format(time.DateTime)
		}
		values := []any{
			i + 1,
			b.ID,
			string(b.Status),
			b.IsConnected,
			b.PhoneNumber,
			b.JID,
			webhooks[b.ID],
			b.CreatedAt.Format(time.DateTime),
			connectedAt,
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(exportSheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}
	}

	f.SetColWidth(exportSheet, "A", "A", 5)
	f.SetColWidth(exportSheet, "B", "C", 20)
	f.SetColWidth(exportSheet, "D", "D", 10)
	f.SetColWidth(exportSheet, "E", "E", 16)
	f.SetColWidth(exportSheet, "F", "G", 35)
	f.SetColWidth(exportSheet, "H", "I", 20)

	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	return f.Write(w)
}

// GET /api/bots/export
func ExportBots(m *service.Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		records, err := model.GetAllBots()
		if err != nil {
			return ErrorResponse(c, http.StatusInternalServerError, "Failed to load bot records", "DB_ERROR", err.Error())
		}
		webhooks := make(map[string]string, len(records))
		for _, r := range records {
			if r.WebhookURL.Valid {
				webhooks[r.BotID] = r.WebhookURL.String
			}
		}

		filename := fmt.Sprintf("bots_%s.xlsx", time.Now().Format("20060102_150405"))
		c.Response().Header().Set(echo.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%s", filename))
		c.Response().WriteHeader(http.StatusOK)

		return WriteBotsXLSX(c.Response(), m.List(), webhooks)
	}
}
