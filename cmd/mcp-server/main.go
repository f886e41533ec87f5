package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/patextra/patchlink/internal/config"
	"github.com/patextra/patchlink/internal/graphengine"
	"github.com/patextra/patchlink/pkg/batch"
	"github.com/patextra/patchlink/pkg/fuzzyapply"
	"github.com/patextra/patchlink/pkg/ingest"
	"github.com/patextra/patchlink/pkg/linker"
	"github.com/patextra/patchlink/pkg/sourceimport"
	"github.com/patextra/patchlink/pkg/stats"
)

var (
	port         = flag.Int("port", 8080, "Port to listen on")
	baseURL      = flag.String("baseurl", "", "Base URL for the server (e.g., http://localhost:8080)")
	serverName   = flag.String("name", "patchlink MCP Server", "Server name")
	serverVer    = flag.String("version", "1.0.0", "Server version")
	instructions = flag.String("instructions", "Ingests unified-diff patches and links them into a code property graph.", "Server instructions")
	project      = flag.String("project", ".", "Root of the live codebase patches are fuzzy-applied against")
)

func main() {
	cfg := config.Register(flag.CommandLine)
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("[Server] %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	mcpServer := server.NewMCPServer(
		*serverName,
		*serverVer,
		server.WithResourceCapabilities(true, true),
		server.WithPromptCapabilities(true),
		server.WithToolCapabilities(true),
		server.WithLogging(),
		server.WithInstructions(*instructions),
	)

	if err := stats.InitStatsManager(cfg.DataDir); err != nil {
		log.Fatalf("Failed to initialize stats manager: %v", err)
	}

	ctx := context.Background()

	engine, err := graphengine.Connect(ctx, cfg.DBURL, cfg.MaxRetries)
	if err != nil {
		log.Fatalf("[Server] Failed to connect to graph engine: %v", err)
	}
	defer engine.Close()

	var graphEngine graphengine.Engine = engine
	if cfg.RedisAddr != "" {
		graphEngine = graphengine.NewCachedPathLookup(engine, cfg.RedisAddr, 0)
	}

	orchestrator := ingest.New(graphEngine, linker.New(graphEngine), fuzzyapply.New(cfg.PatchTool), cfg.WorkspaceDir, *project)
	if cfg.SourceParserBin != "" {
		orchestrator.Importer = sourceimport.New(cfg.SourceParserBin, cfg.SourceParserOutDir, graphEngine)
	}
	scheduler := batch.New(orchestrator)
	scheduler.Concurrency = cfg.Concurrency
	scheduler.MaxRetries = cfg.MaxRetries

	// Register tools and resources
	ingest.RegisterIngest(mcpServer, orchestrator)
	ingest.RegisterPatchResource(mcpServer, graphEngine)
	batch.RegisterBatchIngest(mcpServer, scheduler)

	// Register stats tool
	if err := stats.RegisterStats(mcpServer, cfg.DataDir); err != nil {
		log.Fatalf("Failed to register stats tool: %v", err)
	}

	// Create the SSE server
	baseURLValue := *baseURL
	if baseURLValue == "" {
		baseURLValue = fmt.Sprintf("http://localhost:%d", *port)
	}

	sseServer := server.NewSSEServer(
		mcpServer,
		server.WithBaseURL(baseURLValue),
		server.WithSSEEndpoint("/"),
		server.WithMessageEndpoint("/messages"),
	)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: sseServer,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("[Server] Starting MCP server on port %d...", *port)
		log.Printf("[Server] Base URL: %s", baseURLValue)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[Server] Failed to start server: %v", err)
		}
	}()

	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	log.Println("[Server] Shutting down server...")

	if statsManager := stats.GetStatsManager(); statsManager != nil {
		sessionStats := statsManager.GetSessionStats()
		persistentStats := statsManager.GetPersistentStats()
		statsText := stats.FormatStats(sessionStats, persistentStats)
		log.Printf("[Server] Final server statistics:\n%s", statsText)
	}

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("[Server] Server shutdown failed: %v", err)
	}
	log.Println("[Server] Server stopped")
}
