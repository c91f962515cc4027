// Package api is the HTTP surface: conversation CRUD, the SSE chat
// endpoints, health, and metrics.
package api

import (
	"database/sql"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/umami-labs/brigade/pkg/config"
	"github.com/umami-labs/brigade/pkg/resource"
	"github.com/umami-labs/brigade/pkg/services"
	"github.com/umami-labs/brigade/pkg/store"
)

// Server wires the service layer to the HTTP routes.
type Server struct {
	cfg     *config.Config
	store   store.Store
	chatSvc *services.ChatService
	monitor *resource.Monitor
	db      *sql.DB // nil when running on the in-memory store
}

// NewServer creates a new API server. db may be nil.
func NewServer(cfg *config.Config, st store.Store, chatSvc *services.ChatService, monitor *resource.Monitor, db *sql.DB) *Server {
	if cfg == nil {
		panic("NewServer: cfg must not be nil")
	}
	if st == nil {
		panic("NewServer: store must not be nil")
	}
	if chatSvc == nil {
		panic("NewServer: chatSvc must not be nil")
	}
	if monitor == nil {
		panic("NewServer: monitor must not be nil")
	}
	return &Server{cfg: cfg, store: st, chatSvc: chatSvc, monitor: monitor, db: db}
}

// Router builds the gin engine with all routes and middleware attached.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware(s.cfg.CORSOrigins))
	r.Use(securityHeaders())

	r.GET("/health", s.healthHandler)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(requireUserID())
	{
		api.POST("/conversation", s.createConversation)
		api.GET("/conversation", s.getConversation)
		api.DELETE("/conversation/:id", s.deleteConversation)
		api.GET("/conversations", s.listConversations)

		api.GET("/chat/stream", s.chatStreamGET)
		api.POST("/chat", s.chatStreamPOST)
	}
	return r
}
