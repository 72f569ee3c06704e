package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/enquiro/internal/agent"
	"github.com/kalambet/enquiro/internal/api"
	"github.com/kalambet/enquiro/internal/classifier"
	"github.com/kalambet/enquiro/internal/config"
	"github.com/kalambet/enquiro/internal/ingest"
	"github.com/kalambet/enquiro/internal/model"
	"github.com/kalambet/enquiro/internal/personalize"
	"github.com/kalambet/enquiro/internal/runtime"
	"github.com/kalambet/enquiro/internal/search"
	"github.com/kalambet/enquiro/internal/storage"
	"github.com/kalambet/enquiro/internal/tools"
	"github.com/kalambet/enquiro/internal/turn"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the enquiro server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running enquiro server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show enquiro system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "enquiro.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "enquiro version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/healthz", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("enquiro is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("enquiro is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Model access: one Gemini client behind the credential-rotation pool.
	client := model.NewClient(cfg.Model.BaseURL, cfg.Model.ChatModel, cfg.Model.EmbedModel)
	pool, err := model.NewPool(client, cfg.Model.APIKeys)
	if err != nil {
		return fmt.Errorf("building credential pool: %w", err)
	}
	slog.Info("credential pool ready", "keys", pool.Size(), "chat_model", cfg.Model.ChatModel)

	// Personalization: signal classifier plus the profile engine.
	signals := classifier.New(pool)
	engine := personalize.NewEngine(store, personalize.Options{
		ToneThreshold:      cfg.Persona.ToneThreshold,
		VerbosityThreshold: cfg.Persona.VerbosityThreshold,
		ToneIncrement:      cfg.Persona.ToneIncrement,
		ToneDecay:          cfg.Persona.ToneDecay,
		VerbosityIncrement: cfg.Persona.VerbosityIncrement,
		VerbosityDecay:     cfg.Persona.VerbosityDecay,
		InterestIncrement:  cfg.Persona.InterestIncrement,
		InterestDecay:      cfg.Persona.InterestDecay,
		MaxRecentQueries:   cfg.Persona.MaxRecentQueries,
		MaxInterestItems:   cfg.Persona.MaxInterestItems,
		DefaultRole:        cfg.Persona.DefaultRole,
	})

	// Retrieval: vector index over ingested chunks, plus the ingestor that
	// feeds it.
	index, err := search.NewIndex(pool)
	if err != nil {
		return fmt.Errorf("building search index: %w", err)
	}
	ingestor := ingest.NewIngestor(store, index, ingest.Options{})

	// Agent toolset shared by every live instance.
	toolset := tools.NewRegistry(
		tools.NewSemanticSearch(index),
		tools.NewRunQuery(store.DB()),
		tools.NewGenerateDocument(cfg.Documents.OutputDir),
	)
	build := func(p agent.Params) *agent.Agent {
		return agent.New(pool, toolset, p)
	}

	// Runtime: live (user, thread) instances and the turn orchestrator.
	registry := runtime.NewRegistry(engine, store, build, runtime.Options{
		MaxInstances:  cfg.Runtime.MaxInstances,
		WindowSize:    cfg.Runtime.WindowSize,
		MaxWindowSize: cfg.Runtime.MaxWindowSize,
		TopInterests:  cfg.Runtime.TopInterests,
	})
	orchestrator := turn.NewOrchestrator(registry, signals, engine, store)

	handler := api.NewHandler(api.Deps{
		Turns:     orchestrator,
		Ingestor:  ingestor,
		Profiles:  engine,
		Documents: store,
		Token:     cfg.Server.Token,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// MCP server on its own port (streamable HTTP transport).
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Turns:    orchestrator,
		Ingestor: ingestor,
		Searcher: index,
		Profiles: engine,
	})
	mcpHTTP := server.NewStreamableHTTPServer(mcpSrv)
	mcpAddr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.MCPPort)
	go func() {
		if err := mcpHTTP.Start(mcpAddr); err != nil && err != http.ErrServerClosed {
			slog.Error("MCP server error", "error", err)
		}
	}()
	slog.Info("MCP server started", "addr", mcpAddr)

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "enquiro listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout. Pending profile updates drain before
	// storage closes.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mcpHTTP.Shutdown(shutdownCtx); err != nil {
		slog.Warn("MCP server shutdown", "error", err)
	}
	err = srv.Shutdown(shutdownCtx)
	orchestrator.Flush()
	return err
}

func stopServer() error {
	cfg := config.LoadClient()

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("enquiro is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop enquiro (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to enquiro (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg := config.LoadClient()

	// Check server health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	httpClient := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := httpClient.Get(serverURL + "/healthz")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Chat model", "%s", cfg.Model.ChatModel)
	printStatus("Embed model", "%s", cfg.Model.EmbedModel)
	printStatus("MCP port", "%d", cfg.Server.MCPPort)

	// Show document count if server is running.
	if running {
		client := newAPIClient()
		docsResp, err := client.get(context.Background(), "/v1/documents?limit=100")
		if err == nil {
			var docs []json.RawMessage
			if json.NewDecoder(docsResp.Body).Decode(&docs) == nil {
				printStatus("Documents", "%s", countLabel(len(docs), 100))
			}
			docsResp.Body.Close()
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
