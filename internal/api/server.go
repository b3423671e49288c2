// Package api serves the chat session over HTTP and WebSocket.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/normanking/veriflow/internal/avatar3d"
	"github.com/normanking/veriflow/internal/bridge"
	"github.com/normanking/veriflow/internal/bus"
	"github.com/normanking/veriflow/internal/chat"
	"github.com/normanking/veriflow/internal/logging"
	"github.com/normanking/veriflow/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
)

// Config tunes the HTTP server
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	AllowOrigins []string
}

// Deps are the components the API exposes. Orchestrator and Hub are required.
type Deps struct {
	Orchestrator *chat.Orchestrator
	Avatar       *avatar3d.Avatar
	Hub          *bridge.Hub
	Bus          *bus.EventBus
	Metrics      *metrics.Metrics
	Gatherer     prometheus.Gatherer
	Logger       *logging.Logger
}

// Server is the HTTP/WebSocket front door.
type Server struct {
	cfg      Config
	orch     *chat.Orchestrator
	avatar   *avatar3d.Avatar
	hub      *bridge.Hub
	bus      *bus.EventBus
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	log      *logging.Logger
	upgrader websocket.Upgrader
}

// forwarded are the bus events pushed to every browser.
var forwarded = []bus.EventType{
	bus.EventTypeMoodChanged,
	bus.EventTypeOverlayChanged,
	bus.EventTypePose,
	bus.EventTypeTurnAppended,
	bus.EventTypeChartUpdated,
	bus.EventTypeLoadingChanged,
	bus.EventTypeInputChanged,
	bus.EventTypeDatasetChanged,
	bus.EventTypeListeningStarted,
	bus.EventTypeListeningStopped,
	bus.EventTypeSpeakingStarted,
	bus.EventTypeSpeakingStopped,
	bus.EventTypeTranscript,
}

// NewServer creates the API server
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if deps.Orchestrator == nil || deps.Hub == nil {
		return nil, errors.New("api: orchestrator and hub are required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		cfg:      cfg,
		orch:     deps.Orchestrator,
		avatar:   deps.Avatar,
		hub:      deps.Hub,
		bus:      deps.Bus,
		metrics:  deps.Metrics,
		gatherer: deps.Gatherer,
		log:      deps.Logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s, nil
}

// Routes builds the gin engine
func (s *Server) Routes() http.Handler {
	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger(), s.corsMiddleware())

	engine.GET("/healthz", s.handleHealthz)
	engine.GET("/ws", s.handleWebSocket)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	api := engine.Group("/api")
	api.GET("/state", s.handleState)
	api.GET("/history", s.handleHistory)
	api.GET("/logs", s.handleLogs)
	api.POST("/messages", s.handleMessage)
	api.POST("/prompts", s.handlePrompt)
	api.PUT("/input", s.handleSetInput)
	api.POST("/input/focus", s.handleFocus)
	api.POST("/input/blur", s.handleBlur)
	api.POST("/dataset", s.handleDataset)
	api.GET("/chart", s.handleChart)
	api.GET("/pose", s.handlePose)
	api.GET("/speech", s.handleGetSpeech)
	api.PUT("/speech", s.handlePutSpeech)
	api.POST("/listen/:action", s.handleListen)
	api.POST("/mic/:action", s.handleMic)

	return engine
}

// EventLogEntry carries each new log entry to connected browsers.
const EventLogEntry = "log.entry"

// Forward pushes bus events and new log entries to connected browsers. The returned
// func detaches both.
func (s *Server) Forward() (detach func()) {
	s.log.SetOnLog(func(e logging.LogEntry) {
		s.hub.BroadcastEvent(EventLogEntry, e)
	})
	unsub := func() {}
	if s.bus != nil {
		unsub = s.bus.SubscribeMultiple(forwarded, func(e bus.Event) {
			s.hub.BroadcastEvent(string(e.Type), e.Data)
		})
	}
	return func() {
		unsub()
		s.log.SetOnLog(nil)
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Routes(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	detach := s.Forward()
	defer detach()

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api", "HTTP server listening", map[string]interface{}{"addr": s.cfg.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) allowedOrigin(origin string) bool {
	return origin != "" && lo.Contains(s.cfg.AllowOrigins, origin)
}

// checkOrigin accepts same-host and allow-listed origins for WebSocket upgrades.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || s.allowedOrigin(origin) {
		return true
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if s.allowedOrigin(origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requestLogger records request metrics and logs failures.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		if s.metrics != nil {
			s.metrics.ObserveRequest(c.Request.Method, endpoint, status, elapsed)
		}
		if status >= http.StatusInternalServerError {
			s.log.Warn("api", "Request failed", map[string]interface{}{
				"method":   c.Request.Method,
				"path":     c.Request.URL.Path,
				"status":   status,
				"duration": elapsed.String(),
			})
		}
	}
}
