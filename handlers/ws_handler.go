package handlers

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"registration-system/realtime"
)

type WSHandler struct {
	hub     *realtime.Hub
	origins []string
}

func NewWSHandler(hub *realtime.Hub, publicURL string) *WSHandler {
	return &WSHandler{hub: hub, origins: realtime.OriginPatterns(publicURL)}
}

// Connect - GET /ws?category=
// Upgrades the request and hands the connection to the hub. The handler
// blocks until the session ends so the server keeps the connection
// accounted for.
func (h *WSHandler) Connect(e *core.RequestEvent) error {
	category := e.Request.URL.Query().Get("category")

	conn, err := websocket.Accept(e.Response, e.Request, &websocket.AcceptOptions{
		// Dashboards are served from the configured public origin.
		OriginPatterns: h.origins,
	})
	if err != nil {
		return apis.NewApiError(http.StatusBadRequest, "WebSocket upgrade failed", nil)
	}

	session, err := h.hub.Attach(e.Request.Context(), conn, category)
	if err != nil {
		conn.Close(websocket.StatusInternalError, "snapshot failed")
		return nil
	}

	<-session.Done()
	return nil
}
