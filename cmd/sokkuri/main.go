// Package main is the sokkuri CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/sokkuri/internal/config"
	"github.com/hyperjump/sokkuri/internal/embedding"
	"github.com/hyperjump/sokkuri/internal/embedserver"
	"github.com/hyperjump/sokkuri/internal/errs"
	"github.com/hyperjump/sokkuri/internal/ingest"
	"github.com/hyperjump/sokkuri/internal/models"
	"github.com/hyperjump/sokkuri/internal/objstore"
	"github.com/hyperjump/sokkuri/internal/server"
	"github.com/hyperjump/sokkuri/internal/similarity"
	"github.com/hyperjump/sokkuri/internal/vecindex"
	"github.com/hyperjump/sokkuri/internal/watcher"
	"github.com/hyperjump/sokkuri/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/sokkuri/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "embedder":
		runEmbedder()
	case "ingest":
		runIngest()
	case "similar":
		runSimilar()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("sokkuri version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	var watchSvc *watcher.Watcher
	if cfg.Watch.Directory != "" {
		watchSvc = watcher.NewWatcher(&cfg.Watch, components.Store, components.Orchestrator,
			cfg.Storage.UserBucket, logger)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		go watchSvc.SyncExistingFiles(watchCtx)
	}

	srv := server.NewServer(
		components.Orchestrator,
		components.Resolver,
		components.Index,
		components.EmbedClient,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if watchSvc != nil {
		watchSvc.Stop()
	}
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
	_ = components.Index.Close()
}

func runEmbedder() {
	fs := flag.NewFlagSet("embedder", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ValidateEmbedder(); err != nil {
		fmt.Printf("Invalid config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.String("model_path", cfg.Embedding.ModelPath),
		zap.String("device", cfg.Embedding.Device),
	)

	store, err := objstore.NewMinioStore(&cfg.Storage)
	if err != nil {
		logger.Fatal("Failed to initialize object store", zap.Error(err))
	}

	readiness := embedding.NewReadiness()
	srv := embedserver.NewServer(store, nil, readiness, cfg, logger)

	// The model can take a while to load; serve health checks in the
	// meantime and flip readiness when done. A load failure is terminal.
	go func() {
		engine, err := embedding.NewONNXEngine(
			cfg.Embedding.ModelPath,
			cfg.Embedding.ModelName,
			cfg.Embedding.Device,
			cfg.Embedding.Dimensions,
			cfg.Embedding.InputSize,
		)
		if err != nil {
			readiness.Fail(err)
			logger.Error("Model load failed", zap.Error(err))
			return
		}
		srv.SetEngine(embedding.NewGate(engine,
			int64(cfg.Embedding.MaxConcurrent), cfg.Embedding.QueueTimeout()))
		readiness.Ready()
		logger.Info("model loaded",
			zap.String("model", engine.ModelName()),
			zap.Int("dimensions", engine.Dimensions()),
		)
	}()

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Embedding service failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8000", "backend server URL")
	bucket := fs.String("bucket", "", "source bucket (default: storage.user_bucket from config)")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: sokkuri ingest [flags] <object-key>")
		os.Exit(1)
	}

	source, err := resolveObjectRef(*bucket, fs.Arg(0), *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	resp, err := ingestViaHTTP(*serverURL, source)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Ingested: %s\n", resp.Source.String())
	fmt.Printf("Record:   %s\n", resp.RecordID)
	fmt.Printf("Processed: %s\n", resp.Processed.String())
}

func runSimilar() {
	fs := flag.NewFlagSet("similar", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8000", "backend server URL")
	bucket := fs.String("bucket", "", "source bucket (default: storage.user_bucket from config)")
	topK := fs.Int("top-k", 0, "number of matches (0 = server default)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: sokkuri similar [flags] <object-key>")
		os.Exit(1)
	}

	source, err := resolveObjectRef(*bucket, fs.Arg(0), *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	resp, err := similarViaHTTP(*serverURL, models.SimilarRequest{Source: source, TopK: *topK})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Similarity query failed: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		if len(resp.Results) == 0 {
			fmt.Println("No matches.")
			return
		}
		for i, res := range resp.Results {
			fmt.Printf("%2d. %.4f  %s", i+1, res.Score, res.Title)
			if res.Object != nil {
				fmt.Printf("  (%s)", res.Object.String())
			}
			fmt.Println()
			if res.URL != "" {
				fmt.Printf("    %s\n", res.URL)
			}
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8000", "backend server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	status, err := statusViaHTTP(*serverURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("indexed_screenshots: %d\n", status.IndexedScreenshots)
		fmt.Printf("embedding_service:   %s\n", status.EmbeddingService)
		if status.Config != nil {
			fmt.Println()
			fmt.Println("# configuration")
			fmt.Printf("collection:          %s\n", status.Config.Collection)
			fmt.Printf("dimensions:          %d\n", status.Config.Dimensions)
			fmt.Printf("distance:            %s\n", status.Config.Distance)
			fmt.Printf("model:               %s\n", status.Config.Model)
			fmt.Printf("default_top_k:       %d\n", status.Config.DefaultTopK)
			fmt.Printf("prefetch_multiplier: %d\n", status.Config.PrefetchMultiplier)
			fmt.Printf("target_width:        %d\n", status.Config.TargetWidth)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

// resolveObjectRef builds the source reference for a CLI argument. An arg of
// the form "bucket/key" carries its own bucket; otherwise the -bucket flag
// or the configured user bucket applies.
func resolveObjectRef(bucketFlag, arg, configPath string) (models.ObjectRef, error) {
	if bucketFlag == "" {
		if b, k, ok := splitBucketKey(arg); ok {
			return models.ObjectRef{Bucket: b, Key: k}, nil
		}
		cfg, _, err := loadConfig(configPath)
		if err != nil {
			return models.ObjectRef{}, fmt.Errorf("no -bucket given and config load failed: %w", err)
		}
		if cfg.Storage.UserBucket == "" {
			return models.ObjectRef{}, fmt.Errorf("no -bucket given and storage.user_bucket is not configured")
		}
		return models.ObjectRef{Bucket: cfg.Storage.UserBucket, Key: arg}, nil
	}
	return models.ObjectRef{Bucket: bucketFlag, Key: arg}, nil
}

// splitBucketKey splits "bucket/key" arguments. Only the first slash
// separates; the key may itself contain slashes.
func splitBucketKey(arg string) (bucket, key string, ok bool) {
	i := strings.Index(arg, "/")
	if i <= 0 || i == len(arg)-1 {
		return "", "", false
	}
	return arg[:i], arg[i+1:], true
}

func ingestViaHTTP(serverURL string, source models.ObjectRef) (*models.IngestResponse, error) {
	body, err := json.Marshal(models.IngestRequest{Source: source})
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/ingest", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.IngestResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func similarViaHTTP(serverURL string, req models.SimilarRequest) (*models.SimilarResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/similar", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.SimilarResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

// statusConfigResponse holds configuration info returned by status.
type statusConfigResponse struct {
	Collection         string `json:"collection"`
	Dimensions         int    `json:"dimensions"`
	Distance           string `json:"distance"`
	Model              string `json:"model"`
	DefaultTopK        int    `json:"default_top_k"`
	PrefetchMultiplier int    `json:"prefetch_multiplier"`
	TargetWidth        int    `json:"target_width"`
}

// statusResponse is the shape of GET /api/v1/status response.
type statusResponse struct {
	IndexedScreenshots int                   `json:"indexed_screenshots"`
	EmbeddingService   string                `json:"embedding_service"`
	Config             *statusConfigResponse `json:"config,omitempty"`
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

// Components holds initialized backend services.
type Components struct {
	Store        objstore.Store
	Index        vecindex.Index
	EmbedClient  *embedding.Client
	Orchestrator *ingest.Orchestrator
	Resolver     *similarity.Resolver
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := objstore.NewMinioStore(&cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize object store: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, bucket := range []string{cfg.Storage.UserBucket, cfg.Storage.ProcessedBucket} {
		if err := store.EnsureBucket(ctx, bucket); err != nil {
			return nil, fmt.Errorf("failed to ensure bucket %q: %w", bucket, err)
		}
	}

	index, err := vecindex.NewQdrantIndex(&cfg.Index)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector index client: %w", err)
	}
	// A schema mismatch is fatal: the collection is never dropped or
	// recreated to fit the configuration.
	if err := index.Init(ctx); err != nil {
		if errs.Is(err, errs.KindSchemaMismatch) {
			return nil, fmt.Errorf("vector collection schema mismatch (fix config or migrate the collection): %w", err)
		}
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	logger.Info("vector index initialized",
		zap.String("collection", cfg.Index.Collection),
		zap.Int("dimensions", cfg.Index.Dimensions),
		zap.String("distance", cfg.Index.Distance),
	)

	embedClient := embedding.NewClient(cfg.Embedding.ServiceURL, cfg.Index.Dimensions)
	orchestrator := ingest.NewOrchestrator(store, index, embedClient,
		cfg.Storage.ProcessedBucket, cfg.Search.TargetWidth, cfg.Embedding.ModelName, logger)
	resolver := similarity.NewResolver(store, index, embedClient,
		cfg.Search.DefaultTopK, cfg.Search.PrefetchMultiplier, logger)

	return &Components{
		Store:        store,
		Index:        index,
		EmbedClient:  embedClient,
		Orchestrator: orchestrator,
		Resolver:     resolver,
	}, nil
}

func printUsage() {
	fmt.Println(`sokkuri - Screenshot similarity search service

Usage:
  sokkuri server [flags]            Start the backend HTTP server
  sokkuri embedder [flags]          Start the embedding service
  sokkuri ingest [flags] <key>      Ingest a stored screenshot
  sokkuri similar [flags] <key>     Find screenshots similar to a stored one
  sokkuri status [flags]            Show backend status
  sokkuri version                   Show version
  sokkuri help                      Show this help

Server / Embedder Flags:
  --config string    Config file path (default: /usr/local/etc/sokkuri/config.yaml)
  --debug            Enable debug logging

Ingest / Similar Flags:
  --config string    Config file path (used to resolve the default bucket)
  --server string    Backend server URL (default: http://localhost:8000)
  --bucket string    Source bucket (default: storage.user_bucket from config;
                     a "bucket/key" argument overrides both)
  --top-k int        Number of matches (similar only; 0 = server default)
  --output string    Output format: text or json (similar only)

Status Flags:
  --server string    Backend server URL (default: http://localhost:8000)
  --output string    Output format: text or json

Examples:
  sokkuri server
  sokkuri embedder
  sokkuri ingest shots/login.png
  sokkuri similar --top-k 10 shots/login.png
  sokkuri similar screenshots/shots/login.png   # explicit bucket/key
  sokkuri status --output json`)
}
