// Package mcp exposes the clinical reasoning workspace as MCP tools.
// The lite server needs no external services: records go to SQLite unless a
// PostgreSQL URL is configured.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	litecfg "github.com/clinical-case-trainer/internal/config"
	"github.com/clinical-case-trainer/internal/domain"
	"github.com/clinical-case-trainer/internal/logging"
	"github.com/clinical-case-trainer/internal/metrics"
	"github.com/clinical-case-trainer/internal/service"
	"github.com/clinical-case-trainer/internal/store"
)

// ServerName identifies the lite server to MCP clients
const ServerName = "clinical-case-trainer-lite"

// ServerVersion is reported during the MCP handshake
const ServerVersion = "v0.1.0"

// LiteServer serves the reasoning tools over stdio
type LiteServer struct {
	config    *litecfg.LiteConfig
	mcpServer *mcp.Server
	store     domain.ReasoningStore
	reasoning *service.ReasoningService
	metrics   *metrics.Manager
	logger    *logrus.Logger
}

// LiteServerOption is a functional option for LiteServer.
type LiteServerOption func(*LiteServer) error

// WithReasoningStore sets a custom reasoning store.
func WithReasoningStore(s domain.ReasoningStore) LiteServerOption {
	return func(srv *LiteServer) error {
		srv.store = s
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) LiteServerOption {
	return func(s *LiteServer) error {
		s.logger = logger
		return nil
	}
}

// NewLiteServer creates a new lightweight MCP server instance.
func NewLiteServer(cfg *litecfg.LiteConfig, opts ...LiteServerOption) (*LiteServer, error) {
	logger, err := logging.New(domain.LoggingConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: "stderr",
	})
	if err != nil {
		return nil, err
	}

	server := &LiteServer{
		config:  cfg,
		logger:  logger,
		metrics: metrics.NewManager(),
	}

	for _, opt := range opts {
		if err := opt(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.store == nil {
		reasoningStore, err := openReasoningStore(cfg)
		if err != nil {
			return nil, err
		}
		server.store = reasoningStore
	}

	server.reasoning = service.NewReasoningService(server.store, server.logger, service.WithReasoningMetrics(server.metrics))

	server.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    ServerName,
		Version: ServerVersion,
	}, nil)
	server.registerTools()

	server.logger.Info("Lite server initialized successfully")
	return server, nil
}

// openReasoningStore picks PostgreSQL when a URL is configured, SQLite otherwise
func openReasoningStore(cfg *litecfg.LiteConfig) (domain.ReasoningStore, error) {
	if cfg.UsesPostgres() {
		pg, err := store.NewPostgresStoreFromURL(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create reasoning store: %w", err)
		}
		return pg, nil
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	sqlite, err := store.NewSQLiteStore(cfg.ReasoningDBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to create reasoning store: %w", err)
	}
	return sqlite, nil
}

// registerTools registers the reasoning tools with the MCP SDK.
func (s *LiteServer) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        toolSaveReasoning,
		Description: "Create or update the clinical reasoning record of a case attempt. Only the sections provided are replaced.",
	}, s.handleSaveReasoning)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        toolGetReasoning,
		Description: "Fetch the clinical reasoning record of a case attempt. Returns null when nothing was saved yet.",
	}, s.handleGetReasoning)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        toolComputeScore,
		Description: "Score the completeness of the saved reasoning of an attempt and store the breakdown.",
	}, s.handleComputeScore)

	s.logger.WithField("tool_count", 3).Info("Successfully registered all tools")
}

// Start runs the MCP server over stdio until ctx is cancelled or the client disconnects.
func (s *LiteServer) Start(ctx context.Context) error {
	s.logger.Info("Starting Clinical Case Trainer MCP Server (Lite)...")

	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// Close cleans up server resources.
func (s *LiteServer) Close() error {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.WithError(err).Error("Failed to close reasoning store")
			return err
		}
	}
	return nil
}
