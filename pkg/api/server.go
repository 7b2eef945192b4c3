package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/worldline/pkg/config"
	"github.com/codeready-toolchain/worldline/pkg/database"
	"github.com/codeready-toolchain/worldline/pkg/events"
	"github.com/codeready-toolchain/worldline/pkg/simulation"
	"github.com/codeready-toolchain/worldline/pkg/store"
	"github.com/codeready-toolchain/worldline/pkg/version"
)

// Server is the HTTP/WebSocket API server. One instance is constructed at
// process startup over an already-wired Simulation Service.
type Server struct {
	router   *gin.Engine
	httpSrv  *http.Server
	cfg      *config.Config
	dbClient *database.Client
	store    *store.Store
	sim      *simulation.Service
	bus      *events.Bus
}

// NewServer constructs a Server and registers every route.
func NewServer(cfg *config.Config, dbClient *database.Client, st *store.Store, sim *simulation.Service, bus *events.Bus) *Server {
	r := gin.New()
	r.Use(gin.Recovery())
	// 2 MB body limit: generous for an intervention/settings patch body,
	// small enough to reject accidental multi-MB payloads before they reach
	// JSON decoding.
	r.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 2<<20)
		c.Next()
	})
	if len(cfg.CORSOrigins) > 0 {
		r.Use(corsMiddleware(cfg.CORSOrigins))
	}

	s := &Server{router: r, cfg: cfg, dbClient: dbClient, store: st, sim: sim, bus: bus}
	s.setupRoutes()
	return s
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowed[origin] || allowed["*"] {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)

	session := s.router.Group("/api/session")
	session.POST("/create", s.createSessionHandler)
	session.GET("/history", s.historyHandler)
	session.GET("/:id", s.getSessionHandler)
	session.POST("/:id/start", s.startHandler)
	session.POST("/:id/pause", s.pauseHandler)
	session.POST("/:id/resume", s.resumeHandler)
	session.PATCH("/:id/settings", s.updateSettingsHandler)

	provider := s.router.Group("/api/provider")
	provider.POST("/:id/set", s.setProviderHandler)
	provider.GET("/:id/models", s.listModelsHandler)
	provider.POST("/:id/select-model", s.selectModelHandler)
	provider.GET("/:id/current", s.currentProviderHandler)

	branch := s.router.Group("/api/branch")
	branch.GET("/:id", s.getBranchesHandler)
	branch.POST("/:id/fork", s.forkBranchHandler)
	branch.POST("/:id/switch", s.switchBranchHandler)

	s.router.GET("/api/timeline/:id", s.getTimelineHandler)
	s.router.DELETE("/api/message/:id/last", s.deleteLastMessageHandler)
	s.router.PATCH("/api/message/:id/:message_id", s.editMessageHandler)
	s.router.POST("/api/intervention/:id", s.createInterventionHandler)

	debug := s.router.Group("/api/debug")
	debug.GET("/settings", s.getDebugSettingsHandler)
	debug.PATCH("/settings", s.patchDebugSettingsHandler)

	s.router.GET("/ws/:session_id", s.wsHandler)
}

// Start starts the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{Addr: addr, Handler: s.router}
	return s.httpSrv.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener, used
// by tests to bind an OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpSrv = &http.Server{Handler: s.router}
	return s.httpSrv.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) healthHandler(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(reqCtx, s.dbClient.DB())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy", "database": dbHealth, "version": version.Full(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy", "database": dbHealth, "version": version.Full(),
	})
}
