package api

import (
	"net/http"

	mid "github.com/threadswap/chat-service/middleware"

	"github.com/gin-gonic/gin"
)

// HealthChecker reports backing-store reachability.
type HealthChecker func() error

// Register wires the chat routes. Every conversation/message operation is
// behind auth; healthz is open.
func Register(r *gin.Engine, h *Handler, secret []byte, health HealthChecker) {
	opt := mid.RouteOpt{IsAuth: true, Secret: secret}
	g := r.Group("/api/v1/chat")

	mid.POST(g, "/conversations", h.CreateConversation, opt)
	mid.GET(g, "/conversations", h.ListConversations, opt)
	mid.DELETE(g, "/conversations/:id", h.DeleteConversation, opt)
	mid.GET(g, "/conversations/:id/messages", h.ListMessages, opt)
	mid.POST(g, "/conversations/:id/messages", h.SendMessage, opt)
	mid.POST(g, "/conversations/:id/read", h.MarkAllRead, opt)

	r.GET("/healthz", func(c *gin.Context) {
		if health != nil {
			if err := health(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
