package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/edupartner/edupartner_backend/middleware"
	"github.com/edupartner/edupartner_backend/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleAdminFeed upgrades an admin connection to the commission event
// feed. The token travels as a query parameter because browsers cannot set
// headers on WebSocket upgrades.
func HandleAdminFeed(c echo.Context, hub *Hub) error {
	token := c.QueryParam("token")
	claims, err := middleware.ParseToken(token)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid or missing token",
		})
	}
	if claims.UserType != models.UserTypeAdmin && claims.UserType != models.UserTypeSuperAdmin {
		return c.JSON(http.StatusForbidden, models.Response{
			Status:  http.StatusForbidden,
			Message: "Access denied for your user type",
		})
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &Client{
		UserID: claims.UserID,
		Conn:   conn,
	}

	hub.register <- client

	conn.WriteJSON(LedgerEvent{
		Type: "connected",
		Data: map[string]string{"userId": claims.UserID},
	})

	// Drain reads until the peer disconnects.
	go func() {
		defer func() {
			hub.unregister <- client
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()

	return nil
}
