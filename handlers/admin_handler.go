package handlers

import (
	"fmt"
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"registration-system/models"
	"registration-system/realtime"
	"registration-system/services"
	"registration-system/utils"
)

type AdminHandler struct {
	app        *pocketbase.PocketBase
	dispatcher *services.Dispatcher
	hub        *realtime.Hub
	publicURL  string
}

func NewAdminHandler(app *pocketbase.PocketBase, dispatcher *services.Dispatcher, hub *realtime.Hub, publicURL string) *AdminHandler {
	return &AdminHandler{
		app:        app,
		dispatcher: dispatcher,
		hub:        hub,
		publicURL:  publicURL,
	}
}

// Clear - POST /api/admin/clear
func (h *AdminHandler) Clear(e *core.RequestEvent) error {
	var req struct {
		Category string `json:"category"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	if _, err := h.dispatcher.Clear(e.Request.Context(), req.Category); err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"success": true})
}

// Stats - GET /api/stats?category=
// Served from the hub's reconciled view rather than a fresh store scan.
func (h *AdminHandler) Stats(e *core.RequestEvent) error {
	category := e.Request.URL.Query().Get("category")

	view, err := h.hub.View(e.Request.Context(), category)
	if err != nil {
		return apiError(err)
	}
	stats := view.Stats()

	return e.JSON(http.StatusOK, map[string]any{
		"success": true,
		"data":    stats,
	})
}

// ExportCSV - GET /api/admin/export/csv?category=
func (h *AdminHandler) ExportCSV(e *core.RequestEvent) error {
	category := e.Request.URL.Query().Get("category")

	regs, err := h.dispatcher.List(e.Request.Context(), category)
	if err != nil {
		return apiError(err)
	}

	data, err := utils.BuildCSV(regs)
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Export failed", nil)
	}

	filename := utils.ExportFilename(h.eventName(e, category), "csv")
	e.Response.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	e.Response.Header().Set("Content-Type", "text/csv")
	_, err = e.Response.Write(data)
	return err
}

// ExportJSON - GET /api/admin/export/json?category=
func (h *AdminHandler) ExportJSON(e *core.RequestEvent) error {
	category := e.Request.URL.Query().Get("category")

	regs, err := h.dispatcher.List(e.Request.Context(), category)
	if err != nil {
		return apiError(err)
	}

	filename := utils.ExportFilename(h.eventName(e, category), "json")
	e.Response.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	return e.JSON(http.StatusOK, regs)
}

// QRCode - GET /api/qrcode?category=
// Returns the registration page QR as a data URL, like the dashboards
// expect for the print/scan panel.
func (h *AdminHandler) QRCode(e *core.RequestEvent) error {
	category := e.Request.URL.Query().Get("category")

	regURL := h.publicURL + "/register"
	if category != "" {
		regURL += "?category=" + category
	}

	dataURL, err := utils.QRDataURL(regURL)
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "QR generation failed", nil)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"qrCode": dataURL,
			"url":    regURL,
		},
	})
}

func (h *AdminHandler) eventName(e *core.RequestEvent, category string) string {
	settings, err := h.dispatcher.Settings(e.Request.Context())
	if err != nil {
		return "event"
	}
	if name, ok := settings[models.EventNameKey(category)].(string); ok && name != "" {
		return name
	}
	if name, ok := settings[models.KeyEventName].(string); ok && name != "" {
		return name
	}
	return "event"
}
