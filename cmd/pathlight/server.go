package main

import (
	"context"
	"encoding/json"
	"errors"
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
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/pathlight/pathlight/internal/api"
	"github.com/pathlight/pathlight/internal/cache"
	"github.com/pathlight/pathlight/internal/config"
	"github.com/pathlight/pathlight/internal/engine"
	"github.com/pathlight/pathlight/internal/keywords"
	"github.com/pathlight/pathlight/internal/paths"
	"github.com/pathlight/pathlight/internal/storage"
	"github.com/pathlight/pathlight/internal/trends"
	"github.com/pathlight/pathlight/internal/websearch"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the pathlight server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running pathlight server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pathlight system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "pathlight.pid")
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

func logLevel(name string) slog.Level {
	switch {
	case strings.EqualFold(name, "debug"):
		return slog.LevelDebug
	case strings.EqualFold(name, "warn"):
		return slog.LevelWarn
	case strings.EqualFold(name, "error"):
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "pathlight version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.Log.Level)})))

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.Path)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("pathlight is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("pathlight is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Check the local inference engine. A down engine degrades generation,
	// trends, and keywords to errors but the state and diff API still works.
	eng := engine.NewOllama(cfg.Engine.Host)
	if err := engine.EnsureReady(ctx, eng, cfg.Engine.Model, cfg.Engine.EmbedModel, os.Stderr); err != nil {
		slog.Warn("inference engine not ready; AI endpoints will fail until it comes up", "error", err)
	}

	// Open storage.
	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Pick the cache entry store. SQLite rows need the janitor sweep;
	// Redis expires entries natively.
	var entryStore cache.EntryStore = store
	if cfg.Cache.Backend == "redis" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connecting to redis at %s: %w", cfg.Cache.RedisAddr, err)
		}
		defer rdb.Close()
		entryStore = cache.NewRedisStore(rdb)
		slog.Info("cache backend: redis", "addr", cfg.Cache.RedisAddr)
	} else {
		janitor := cache.NewJanitor(store, cfg.Cache.SweepInterval)
		go janitor.Run(ctx)
		slog.Info("cache backend: sqlite", "sweep_interval", cfg.Cache.SweepInterval)
	}

	var cacheOpts []cache.Option
	if cfg.Cache.Coalesce {
		cacheOpts = append(cacheOpts, cache.WithCoalescing())
	}

	// Build services.
	var reranker websearch.Reranker
	if cfg.Search.Rerank {
		reranker = websearch.NewReranker(eng, websearch.RerankEmbed, cfg.Engine.Model, cfg.Engine.EmbedModel, 10*time.Second, 0)
	}
	searchCache := cache.NewKeyed(entryStore, cfg.Cache.SearchTTL, cacheOpts...)
	searchSvc := websearch.NewService(websearch.NewSearXNG(cfg.Search.Endpoint), searchCache, reranker, websearch.NewEnricher(), cfg.Search.MaxResults)
	trendsSvc := trends.NewService(eng, cfg.Engine.Model, entryStore, cfg.Cache.TrendsTTL, cacheOpts...)
	keywordsSvc := keywords.NewExtractor(eng, cfg.Engine.Model, entryStore, cfg.Cache.KeywordsTTL, cacheOpts...)
	pathsSvc := paths.NewService(store, eng, cfg.Engine.Model)

	deps := api.AppDeps{
		Paths:    pathsSvc,
		Search:   searchSvc,
		Trends:   trendsSvc,
		Keywords: keywordsSvc,
		Engine:   eng,
		Token:    cfg.Server.Token,
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewHandler(deps),
	}

	// Build and start MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(deps)
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "pathlight listening on %s\n", addr)
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

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.Path)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("pathlight is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop pathlight (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to pathlight (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	// Check server health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	// Check the inference engine.
	engResp, err := client.Get(cfg.Engine.Host + "/api/version")
	if err != nil {
		printStatus("Engine", "not running")
	} else {
		engResp.Body.Close()
		printStatus("Engine", "running at %s", cfg.Engine.Host)
	}

	printStatus("Chat model", "%s", cfg.Engine.Model)
	printStatus("Embed model", "%s", cfg.Engine.EmbedModel)
	printStatus("Cache backend", "%s", cfg.Cache.Backend)

	// Show path count if server is running.
	if resp != nil && resp.StatusCode == 200 {
		pathsResp, err := apiGet(client, serverURL+"/v1/paths?limit=100", cfg.Server.Token)
		if err == nil {
			var records []json.RawMessage
			if json.NewDecoder(pathsResp.Body).Decode(&records) == nil {
				printStatus("Paths", "%s", countLabel(len(records), 100))
			}
			pathsResp.Body.Close()
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.Path)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}

func apiGet(client *http.Client, url, token string) (*http.Response, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return client.Do(req)
}
