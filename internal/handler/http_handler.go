package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-chat/internal/service"
	"github.com/weiawesome/wes-io-chat/pkg/log"
	"github.com/weiawesome/wes-io-chat/pkg/middleware"
	"github.com/weiawesome/wes-io-chat/pkg/response"
)

// HTTPHandler serves health, presence queries and the internal push API.
type HTTPHandler struct {
	service        service.RealtimeService
	authMiddleware *middleware.AuthMiddleware
}

func NewHTTPHandler(svc service.RealtimeService, authMiddleware *middleware.AuthMiddleware) *HTTPHandler {
	return &HTTPHandler{
		service:        svc,
		authMiddleware: authMiddleware,
	}
}

// PushRequest is the body of the internal event endpoints.
type PushRequest struct {
	Event string          `json:"event" binding:"required"`
	Data  json.RawMessage `json:"data"`
}

type PresenceResponse struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}

type OnlineUsersResponse struct {
	Users []string `json:"users"`
	Total int      `json:"total"`
}

type DeliveryResponse struct {
	Delivered int `json:"delivered"`
}

func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.HealthCheck)

	api := r.Group("/api/v1", h.authMiddleware.RequireAuth())
	{
		presence := api.Group("/presence")
		{
			presence.GET("/users/:user_id", h.GetUserPresence)
			presence.GET("/online", h.GetOnlineUsers)
		}
	}

	internal := r.Group("/internal/v1", h.authMiddleware.RequireAuth(), h.authMiddleware.RequireRole("admin", "system"))
	{
		internal.POST("/users/:user_id/events", h.PushToUser)
		internal.POST("/rooms/:room_id/events", h.PushToRoom)
		internal.DELETE("/users/:user_id/connections", h.DisconnectUser)
	}
}

// HealthCheck handles GET /health
func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	stats := h.service.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"connections":  stats.Connections,
		"online_users": stats.OnlineUsers,
		"active_rooms": stats.ActiveRooms,
	})
}

// GetUserPresence handles GET /api/v1/presence/users/:user_id
func (h *HTTPHandler) GetUserPresence(c *gin.Context) {
	userID := c.Param("user_id")
	response.Success(c, PresenceResponse{
		UserID: userID,
		Online: h.service.IsOnline(userID),
	})
}

// GetOnlineUsers handles GET /api/v1/presence/online
func (h *HTTPHandler) GetOnlineUsers(c *gin.Context) {
	users := h.service.OnlineUsers()
	response.Success(c, OnlineUsersResponse{Users: users, Total: len(users)})
}

// PushToUser handles POST /internal/v1/users/:user_id/events
func (h *HTTPHandler) PushToUser(c *gin.Context) {
	req, ok := h.bindPush(c)
	if !ok {
		return
	}
	delivered := h.service.PushToUser(c.Request.Context(), c.Param("user_id"), req.Event, req.Data)
	response.Success(c, DeliveryResponse{Delivered: delivered})
}

// PushToRoom handles POST /internal/v1/rooms/:room_id/events
func (h *HTTPHandler) PushToRoom(c *gin.Context) {
	req, ok := h.bindPush(c)
	if !ok {
		return
	}
	delivered := h.service.PushToRoom(c.Request.Context(), c.Param("room_id"), req.Event, req.Data)
	response.Success(c, DeliveryResponse{Delivered: delivered})
}

// DisconnectUser handles DELETE /internal/v1/users/:user_id/connections
func (h *HTTPHandler) DisconnectUser(c *gin.Context) {
	reason := c.DefaultQuery("reason", "disconnected by administrator")
	closed := h.service.DisconnectUser(c.Request.Context(), c.Param("user_id"), reason)
	response.Success(c, gin.H{"closed": closed})
}

func (h *HTTPHandler) bindPush(c *gin.Context) (*PushRequest, bool) {
	l := log.Ctx(c.Request.Context())

	var req PushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind push request")
		response.BadRequest(c, err.Error())
		return nil, false
	}
	return &req, true
}
