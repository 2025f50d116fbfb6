package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/bobmcallan/vire-screener/internal/app"
	"github.com/bobmcallan/vire-screener/internal/common"
	"github.com/bobmcallan/vire-screener/internal/interfaces"
)

// Deps are the services the HTTP layer calls.
type Deps struct {
	Config      *common.Config
	Logger      *common.Logger
	Query       interfaces.QueryService
	Screen      interfaces.ScreenService
	Bars        interfaces.BarStore
	Audit       interfaces.AuditSink
	MCP         http.Handler // optional
	StartupTime time.Time
}

// Server wraps the HTTP server and the services it exposes.
type Server struct {
	deps         Deps
	server       *http.Server
	logger       *common.Logger
	shutdownChan chan struct{}
}

// SetShutdownChannel sets the channel that will be signaled when HTTP shutdown is requested.
func (s *Server) SetShutdownChannel(ch chan struct{}) {
	s.shutdownChan = ch
}

// NewServer creates the REST API and MCP server for an initialized App.
func NewServer(a *app.App) *Server {
	return New(Deps{
		Config: a.Config,
		Logger: a.Logger,
		Query:  a.QueryService,
		Screen: a.ScreenService,
		Bars:   a.Storage.BarStore(),
		Audit:  a.Storage.AuditSink(),
		// MCP over Streamable HTTP
		MCP:         mcpserver.NewStreamableHTTPServer(a.MCPServer, mcpserver.WithStateLess(true)),
		StartupTime: a.StartupTime,
	})
}

// New creates a server over explicit dependencies.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = common.NewSilentLogger()
	}
	if deps.Config == nil {
		deps.Config = common.NewDefaultConfig()
	}
	s := &Server{
		deps:   deps,
		logger: deps.Logger,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	handler := applyMiddleware(mux, deps.Logger)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", deps.Config.Server.Host, deps.Config.Server.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server (blocking).
func (s *Server) Start() error {
	s.logger.Info().
		Str("addr", s.server.Addr).
		Msg("Starting REST API server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
