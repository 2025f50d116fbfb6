package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/bobmcallan/vire-screener/internal/clients/gemini"
	"github.com/bobmcallan/vire-screener/internal/clients/openai"
	"github.com/bobmcallan/vire-screener/internal/common"
	"github.com/bobmcallan/vire-screener/internal/interfaces"
	"github.com/bobmcallan/vire-screener/internal/services/query"
	"github.com/bobmcallan/vire-screener/internal/services/screen"
	"github.com/bobmcallan/vire-screener/internal/storage"
)

// App holds all initialized services, clients, and the MCP server.
// It is the shared core used by cmd/vire-screener and cmd/vire-screener-cli.
type App struct {
	Config        *common.Config
	Logger        *common.Logger
	Storage       *storage.Manager
	Compiler      *query.Compiler
	QueryService  *query.Service
	ScreenService *screen.Service
	MCPServer     *server.MCPServer
	StartupTime   time.Time
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// ResolveConfigPath returns configPath, else VIRE_SCREENER_CONFIG, else
// vire-screener.toml beside the binary, else the development default.
func ResolveConfigPath(configPath string) string {
	if configPath == "" {
		configPath = os.Getenv("VIRE_SCREENER_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(getBinaryDir(), "vire-screener.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/vire-screener.toml"
		}
	}
	return configPath
}

// NewApp initializes storage, model providers, services, and the MCP server.
// configPath may be empty, in which case ResolveConfigPath applies.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	// Load version from .version file (fallback if ldflags not set)
	common.LoadVersionFromFile()

	config, err := common.LoadConfig(ResolveConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if missing := config.ValidateRequired(); len(missing) > 0 {
		return nil, fmt.Errorf("invalid config: %s", strings.Join(missing, ", "))
	}

	logger := common.NewLoggerFromConfig(config.Logging)
	ctx := context.Background()

	storageManager, err := storage.NewManager(ctx, logger, config.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	providers := buildProviders(ctx, config.Parser, logger)
	compiler := query.NewCompiler(providers,
		query.WithAttemptTimeout(config.Parser.GetAttemptTimeout()),
		query.WithCompilerLogger(logger),
	)

	queryService := query.NewService(query.NewRuleParser(), compiler, storageManager.AuditSink(), logger)
	screener := screen.NewScreener(
		screen.WithMinBars(config.Screen.MinBars),
		screen.WithWorkers(config.Screen.Workers),
		screen.WithLogger(logger),
	)
	screenService := screen.NewService(storageManager.BarStore(), queryService, screener, config.Screen.MaxResults, logger)

	mcpServer := server.NewMCPServer(
		"vire-screener",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	a := &App{
		Config:        config,
		Logger:        logger,
		Storage:       storageManager,
		Compiler:      compiler,
		QueryService:  queryService,
		ScreenService: screenService,
		MCPServer:     mcpServer,
		StartupTime:   startupStart,
	}

	a.registerTools()

	logger.Info().
		Str("storage", storageManager.Backend()).
		Strs("providers", compiler.Providers()).
		Dur("startup", time.Since(startupStart)).
		Msg("App initialized")

	return a, nil
}

// buildProviders creates one text generator per configured provider, in order.
// A provider without an API key is skipped with a warning.
func buildProviders(ctx context.Context, cfg common.ParserConfig, logger *common.Logger) []query.Provider {
	providers := make([]query.Provider, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		key, err := pc.ResolveAPIKey()
		if err != nil {
			logger.Warn().Str("provider", pc.Name).Msg("Model provider has no API key - skipping")
			continue
		}

		var gen interfaces.TextGenerator
		switch pc.Kind {
		case "openai":
			gen = openai.NewClient(key,
				openai.WithBaseURL(pc.BaseURL),
				openai.WithModel(pc.Model),
				openai.WithMaxTokens(cfg.MaxTokens),
				openai.WithRateLimit(cfg.RateLimit),
				openai.WithLogger(logger),
			)
		case "gemini":
			opts := []gemini.ClientOption{
				gemini.WithModel(pc.Model),
				gemini.WithMaxTokens(cfg.MaxTokens),
				gemini.WithRateLimit(cfg.RateLimit),
				gemini.WithLogger(logger),
			}
			if pc.BaseURL != "" {
				opts = append(opts, gemini.WithBaseURL(pc.BaseURL))
			}
			client, err := gemini.NewClient(ctx, key, opts...)
			if err != nil {
				logger.Warn().Err(err).Str("provider", pc.Name).Msg("Failed to initialize Gemini client")
				continue
			}
			gen = client
		default:
			logger.Warn().Str("provider", pc.Name).Str("kind", pc.Kind).Msg("Unknown provider kind - skipping")
			continue
		}

		providers = append(providers, query.Provider{Name: pc.Name, Model: pc.Model, Generator: gen})
	}
	return providers
}

// Close releases all resources held by the App.
func (a *App) Close() {
	if a.Storage != nil {
		a.Storage.Close()
		a.Storage = nil
	}
}

// registerTools registers all MCP tools on the App's MCPServer.
func (a *App) registerTools() {
	registerTools(a.MCPServer, a.QueryService, a.ScreenService, a.Storage.BarStore(), a.Storage.AuditSink(), a.Logger)
}

// registerTools is shared with tests that supply mock services.
func registerTools(s *server.MCPServer, qs interfaces.QueryService, ss interfaces.ScreenService, bars interfaces.BarStore, audit interfaces.AuditSink, logger *common.Logger) {
	s.AddTool(createGetVersionTool(), handleGetVersion())
	s.AddTool(createParseQueryTool(), handleParseQuery(qs, logger))
	s.AddTool(createScreenQueryTool(), handleScreenQuery(ss, logger))
	s.AddTool(createListRulesTool(), handleListRules(qs))
	s.AddTool(createListSymbolsTool(), handleListSymbols(bars, logger))
	s.AddTool(createRecentParsesTool(), handleRecentParses(audit, logger))
}
