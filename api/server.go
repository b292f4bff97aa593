package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/moyoez/partyline-console/api/controllers"
	"github.com/moyoez/partyline-console/api/middlewares"
	"github.com/moyoez/partyline-console/api/notifyhub"
	"github.com/moyoez/partyline-console/console"
	"github.com/moyoez/partyline-console/discover"
	"github.com/moyoez/partyline-console/tool"
)

// Server is the local dashboard API in front of one console session.
type Server struct {
	port        int
	allowRemote bool
	session     *console.Session
	hub         *notifyhub.Hub
	registry    *discover.Registry
	scan        controllers.ScanFunc

	mu     sync.RWMutex
	engine *gin.Engine
	server *http.Server
}

// NewServer creates the dashboard server. hub may be nil, in which case the
// websocket route is not served.
func NewServer(port int, session *console.Session, hub *notifyhub.Hub, allowRemote bool) *Server {
	return &Server{
		port:        port,
		allowRemote: allowRemote,
		session:     session,
		hub:         hub,
	}
}

// EnableDiscovery serves the unit registry and runs scan on demand. Call it
// before Start.
func (s *Server) EnableDiscovery(registry *discover.Registry, scan controllers.ScanFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry = registry
	s.scan = scan
}

// DashboardURL is the address a phone on the LAN opens to reach the dashboard.
func (s *Server) DashboardURL() string {
	host := "127.0.0.1"
	if s.allowRemote {
		if lan := tool.PreferredLANAddress(); lan != "" {
			host = lan
		}
	}
	return tool.BuildDashboardURL(host, s.port)
}

func (s *Server) setupRoutes() *gin.Engine {
	if tool.DefaultLogger.GetLevel() == log.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middlewares.AllowAllCORS())

	ctrl := controllers.NewConsoleController(s.session)

	v1 := engine.Group("/api/console/v1", middlewares.LocalUnless(s.allowRemote))
	{
		v1.GET("/state", ctrl.HandleState)
		v1.GET("/stats", ctrl.HandleStats)
		v1.POST("/visibility", ctrl.HandleVisibility)
		v1.POST("/refresh", ctrl.HandleRefresh)
		v1.GET("/config", ctrl.HandleConfigGet)
		v1.PATCH("/config", ctrl.HandleConfigPatch)
		v1.POST("/config/save", ctrl.HandleConfigSave)
		v1.POST("/devices/refresh", ctrl.HandleDevicesRefresh)
		v1.POST("/command/:action", ctrl.HandleCommand)
		v1.GET("/download/mix", ctrl.HandleDownloadMix)
		v1.GET("/qr", controllers.GenerateQRCode(s.DashboardURL))
		if s.registry != nil && s.scan != nil {
			dc := controllers.NewDiscoverController(s.registry, s.scan)
			v1.GET("/discover", dc.HandleList)
			v1.POST("/discover", dc.HandleScan)
		}
		if s.hub != nil {
			v1.GET("/notify-ws", notifyhub.HandleNotifyWS(s.hub))
		}
	}
	return engine
}

// Handler returns the routed engine, building it on first use.
func (s *Server) Handler() http.Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		s.engine = s.setupRoutes()
	}
	return s.engine
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	handler := s.Handler()
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	if s.allowRemote {
		addr = fmt.Sprintf(":%d", s.port)
	}

	s.mu.Lock()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	tool.DefaultLogger.Infof("Starting dashboard on %s", s.DashboardURL())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
