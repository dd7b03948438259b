package hub

import (
	"context"
	"net/http"

	"bidcast/internal/infrastructure/middleware"
	"bidcast/internal/infrastructure/monitoring"
	"bidcast/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Server exposes the hub over HTTP: the session-channel endpoint plus health
// and metrics.
type Server struct {
	hub    *Hub
	cfg    *config.Config
	logger *zap.SugaredLogger
	health *monitoring.HealthChecker
}

func NewServer(hub *Hub, cfg *config.Config, health *monitoring.HealthChecker, logger *zap.SugaredLogger) *Server {
	return &Server{
		hub:    hub,
		cfg:    cfg,
		logger: logger,
		health: health,
	}
}

// Router builds the gin engine with the hub routes and middleware.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.TracingMiddleware(),
	)

	router.GET(s.cfg.Hub.Path, middleware.NewConnectionRateLimitMiddleware(s.cfg), s.handleWebSocket)
	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	s.hub.HandleSession(conn)
}

func (s *Server) handleHealth(c *gin.Context) {
	status := s.health.CheckAll(c.Request.Context())

	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

// ParticipantHealthCheck reports hub liveness for the health endpoint.
func (s *Server) ParticipantHealthCheck() func(ctx context.Context) (bool, error) {
	return func(ctx context.Context) (bool, error) {
		// The hub is healthy as long as it can report its registry.
		_ = s.hub.ParticipantCount()
		return true, nil
	}
}
