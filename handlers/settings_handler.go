package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"registration-system/services"
)

type SettingsHandler struct {
	app        *pocketbase.PocketBase
	dispatcher *services.Dispatcher
}

func NewSettingsHandler(app *pocketbase.PocketBase, dispatcher *services.Dispatcher) *SettingsHandler {
	return &SettingsHandler{
		app:        app,
		dispatcher: dispatcher,
	}
}

// Get - GET /api/settings
func (h *SettingsHandler) Get(e *core.RequestEvent) error {
	settings, err := h.dispatcher.Settings(e.Request.Context())
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"success": true,
		"data":    settings,
	})
}

// Save - POST /api/settings
func (h *SettingsHandler) Save(e *core.RequestEvent) error {
	var req struct {
		Key   string `json:"key"`
		Value any    `json:"value"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.Key == "" {
		return apis.NewBadRequestError("Setting key is required", nil)
	}

	debounced, err := h.dispatcher.SetSetting(e.Request.Context(), req.Key, req.Value)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"success":   true,
		"debounced": debounced,
	})
}
