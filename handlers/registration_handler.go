package handlers

import (
	"errors"
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"registration-system/internal/status"
	"registration-system/services"
)

type RegistrationHandler struct {
	app        *pocketbase.PocketBase
	dispatcher *services.Dispatcher
}

func NewRegistrationHandler(app *pocketbase.PocketBase, dispatcher *services.Dispatcher) *RegistrationHandler {
	return &RegistrationHandler{
		app:        app,
		dispatcher: dispatcher,
	}
}

// List - GET /api/registrations?category=
func (h *RegistrationHandler) List(e *core.RequestEvent) error {
	category := e.Request.URL.Query().Get("category")

	regs, err := h.dispatcher.List(e.Request.Context(), category)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"success": true,
		"data":    regs,
	})
}

// Create - POST /api/registrations
func (h *RegistrationHandler) Create(e *core.RequestEvent) error {
	var req struct {
		StudentName string `json:"studentName"`
		PhoneNumber string `json:"phoneNumber"`
		Programme   string `json:"programme"`
		Category    string `json:"category"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	reg, debounced, err := h.dispatcher.Create(e.Request.Context(), req.StudentName, req.PhoneNumber, req.Programme, req.Category)
	if err != nil {
		return apiError(err)
	}
	if debounced {
		return e.JSON(http.StatusOK, map[string]any{
			"success":   true,
			"debounced": true,
		})
	}

	return e.JSON(http.StatusOK, map[string]any{
		"success": true,
		"data":    reg,
	})
}

// UpdateStatus - PATCH /api/registrations/{id}/status
func (h *RegistrationHandler) UpdateStatus(e *core.RequestEvent) error {
	id := e.Request.PathValue("id")

	var req struct {
		Status string `json:"status"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	reg, debounced, err := h.dispatcher.SetStatus(e.Request.Context(), id, req.Status)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"success":   true,
		"data":      reg,
		"debounced": debounced,
	})
}

// UpdateRemark - PATCH /api/registrations/{id}/remark
func (h *RegistrationHandler) UpdateRemark(e *core.RequestEvent) error {
	id := e.Request.PathValue("id")

	var req struct {
		Remark string `json:"remark"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	reg, debounced, err := h.dispatcher.SetRemark(e.Request.Context(), id, req.Remark)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"success":   true,
		"data":      reg,
		"debounced": debounced,
	})
}

// Delete - DELETE /api/registrations/{id}
func (h *RegistrationHandler) Delete(e *core.RequestEvent) error {
	id := e.Request.PathValue("id")

	if _, err := h.dispatcher.Delete(e.Request.Context(), id); err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"success": true})
}

// apiError maps dispatcher errors onto the HTTP surface.
func apiError(err error) error {
	switch {
	case errors.Is(err, status.ErrValidation):
		return apis.NewBadRequestError(err.Error(), nil)
	case errors.Is(err, status.ErrNotFound):
		return apis.NewNotFoundError(err.Error(), nil)
	case errors.Is(err, status.ErrTimeout):
		return apis.NewApiError(http.StatusGatewayTimeout, "Store call timed out", nil)
	default:
		return apis.NewApiError(http.StatusBadGateway, "Store call failed", nil)
	}
}
