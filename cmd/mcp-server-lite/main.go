// Package main provides the standalone MCP entry point of the Clinical Case Trainer.
// It needs no external services: reasoning records go to SQLite under the data
// directory unless CASE_TRAINER_DATABASE_URL points at PostgreSQL.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/clinical-case-trainer/internal/config"
	"github.com/clinical-case-trainer/internal/mcp"
)

func main() {
	// stdout carries the MCP stream
	log.SetOutput(os.Stderr)

	cfg := config.LoadLiteConfig()

	if cfg.UsesPostgres() {
		log.Printf("Starting Clinical Case Trainer MCP Server (Lite) with PostgreSQL storage")
	} else {
		log.Printf("Starting Clinical Case Trainer MCP Server (Lite), data directory: %s", cfg.DataDir)
	}

	server, err := mcp.NewLiteServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create MCP server: %v", err)
	}
	defer server.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := server.Start(ctx); err != nil {
		log.Printf("MCP server failed: %v", err)
		return
	}

	log.Println("Clinical Case Trainer MCP Server (Lite) stopped")
}
