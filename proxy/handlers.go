package proxy

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v5"

	"registration-system/internal/status"
	"registration-system/models"
	"registration-system/realtime"
	"registration-system/utils"
)

func (s *Server) listRegistrations(c echo.Context) error {
	regs, err := s.dispatcher.List(c.Request().Context(), c.QueryParam("category"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"data":    regs,
	})
}

func (s *Server) createRegistration(c echo.Context) error {
	var req struct {
		StudentName string `json:"studentName"`
		PhoneNumber string `json:"phoneNumber"`
		Programme   string `json:"programme"`
		Category    string `json:"category"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "Invalid request",
		})
	}

	reg, debounced, err := s.dispatcher.Create(c.Request().Context(), req.StudentName, req.PhoneNumber, req.Programme, req.Category)
	if err != nil {
		return errorJSON(c, err)
	}
	if debounced {
		return c.JSON(http.StatusOK, map[string]any{
			"success":   true,
			"debounced": true,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"data":    reg,
	})
}

func (s *Server) updateStatus(c echo.Context) error {
	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "Invalid request",
		})
	}

	reg, debounced, err := s.dispatcher.SetStatus(c.Request().Context(), c.PathParam("id"), req.Status)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":   true,
		"data":      reg,
		"debounced": debounced,
	})
}

func (s *Server) updateRemark(c echo.Context) error {
	var req struct {
		Remark string `json:"remark"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "Invalid request",
		})
	}

	reg, debounced, err := s.dispatcher.SetRemark(c.Request().Context(), c.PathParam("id"), req.Remark)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":   true,
		"data":      reg,
		"debounced": debounced,
	})
}

func (s *Server) deleteRegistration(c echo.Context) error {
	if _, err := s.dispatcher.Delete(c.Request().Context(), c.PathParam("id")); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

func (s *Server) getSettings(c echo.Context) error {
	settings, err := s.dispatcher.Settings(c.Request().Context())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"data":    settings,
	})
}

func (s *Server) saveSetting(c echo.Context) error {
	var req struct {
		Key   string `json:"key"`
		Value any    `json:"value"`
	}
	if err := c.Bind(&req); err != nil || req.Key == "" {
		return c.JSON(http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "Setting key is required",
		})
	}

	if _, err := s.dispatcher.SetSetting(c.Request().Context(), req.Key, req.Value); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

func (s *Server) stats(c echo.Context) error {
	view, err := s.hub.View(c.Request().Context(), c.QueryParam("category"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"data":    view.Stats(),
	})
}

func (s *Server) clear(c echo.Context) error {
	var req struct {
		Category string `json:"category"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "Invalid request",
		})
	}

	if _, err := s.dispatcher.Clear(c.Request().Context(), req.Category); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

func (s *Server) exportCSV(c echo.Context) error {
	category := c.QueryParam("category")

	regs, err := s.dispatcher.List(c.Request().Context(), category)
	if err != nil {
		return errorJSON(c, err)
	}

	data, err := utils.BuildCSV(regs)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "Export failed",
		})
	}

	filename := utils.ExportFilename(s.eventName(c, category), "csv")
	c.Response().Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, "text/csv", data)
}

func (s *Server) exportJSON(c echo.Context) error {
	category := c.QueryParam("category")

	regs, err := s.dispatcher.List(c.Request().Context(), category)
	if err != nil {
		return errorJSON(c, err)
	}

	filename := utils.ExportFilename(s.eventName(c, category), "json")
	c.Response().Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	return c.JSON(http.StatusOK, regs)
}

func (s *Server) qrCode(c echo.Context) error {
	category := c.QueryParam("category")

	regURL := s.cfg.PublicURL + "/register"
	if category != "" {
		regURL += "?category=" + category
	}

	dataURL, err := utils.QRDataURL(regURL)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "QR generation failed",
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"qrCode": dataURL,
			"url":    regURL,
		},
	})
}

func (s *Server) connectWS(c echo.Context) error {
	category := c.QueryParam("category")

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		// Dashboards are served from the configured public origin.
		OriginPatterns: realtime.OriginPatterns(s.cfg.PublicURL),
	})
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "WebSocket upgrade failed",
		})
	}

	session, err := s.hub.Attach(c.Request().Context(), conn, category)
	if err != nil {
		conn.Close(websocket.StatusInternalError, "snapshot failed")
		return nil
	}

	<-session.Done()
	return nil
}

func (s *Server) healthCheck(c echo.Context) error {
	if s.health != nil {
		if err := s.health(); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) eventName(c echo.Context, category string) string {
	settings, err := s.dispatcher.Settings(c.Request().Context())
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

// errorJSON maps dispatcher errors onto the proxy's JSON error envelope.
func errorJSON(c echo.Context, err error) error {
	switch {
	case errors.Is(err, status.ErrValidation):
		return c.JSON(http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
	case errors.Is(err, status.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]any{"success": false, "error": err.Error()})
	case errors.Is(err, status.ErrTimeout):
		return c.JSON(http.StatusGatewayTimeout, map[string]any{"success": false, "error": "Store call timed out"})
	default:
		return c.JSON(http.StatusBadGateway, map[string]any{"success": false, "error": "Store call failed"})
	}
}
