// Package main is the Kensaku CLI entry point.
package main

import (
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

	"github.com/hyperjump/kensaku/internal/cli"
	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/embedding"
	"github.com/hyperjump/kensaku/internal/exporter"
	"github.com/hyperjump/kensaku/internal/fusion"
	"github.com/hyperjump/kensaku/internal/ingest"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/search"
	"github.com/hyperjump/kensaku/internal/server"
	"github.com/hyperjump/kensaku/internal/storage"
	"github.com/hyperjump/kensaku/internal/vector"
	"github.com/hyperjump/kensaku/internal/watcher"
	"github.com/hyperjump/kensaku/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kensaku/config.yaml"

// loadConfig loads config from path. When path is the default, it first
// looks for config.yaml in the current directory (for development); if
// that exists it is used. Returns the config and the path that was
// actually loaded.
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
	case "retrieve":
		runRetrieve()
	case "search":
		runSearch()
	case "collections":
		runCollections()
	case "ingest":
		runIngest()
	case "export":
		runExport()
	case "init":
		runInit()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kensaku version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: kensaku <command> [flags]

Commands:
  server       Start the search and retrieval HTTP server
  retrieve     Build a context bundle for a query
  search       Run a raw similarity query against one collection
  collections  List the served collections
  ingest       Load documents from a JSON file into the identity store
  export       Embed snippets and write the vector files
  init         Create the project row in a fresh database
  status       Show server status
  version      Print version
  help         Show this help`)
}

func mustLoadConfig(path string) (*config.Config, string) {
	cfg, resolved, err := loadConfig(path)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg, resolved
}

func mustLogger(cfg *config.Config, debug bool) *zap.Logger {
	logger, err := utils.NewLogger(cfg.Debug || debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func mustStore(cfg *config.Config) *storage.SQLiteStore {
	store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		fmt.Printf("Failed to open database: %v\n", err)
		os.Exit(1)
	}
	return store
}

func mustService(cfg *config.Config, logger *zap.Logger) *search.Service {
	engine, err := vector.NewEngine(cfg.Search.Engine, cfg.Search.Workers)
	if err != nil {
		fmt.Printf("Failed to create engine: %v\n", err)
		os.Exit(1)
	}
	specs := make([]search.CollectionSpec, len(cfg.Collections))
	for i, c := range cfg.Collections {
		specs[i] = search.CollectionSpec{Name: c.Name, Path: c.Path, Dimension: c.Dimension}
	}
	service, err := search.NewService(specs, engine, logger)
	if err != nil {
		fmt.Printf("Failed to load collections: %v\n", err)
		os.Exit(1)
	}
	return service
}

// buildEmbedder returns nil when no endpoint is configured; callers
// degrade their feature instead of failing.
func buildEmbedder(cfg *config.Config) *embedding.OpenAIEmbedder {
	if cfg.Embedding.Endpoint == "" {
		return nil
	}
	embedder, err := embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
		Endpoint:   cfg.Embedding.Endpoint,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		CacheSize:  cfg.Embedding.CacheSize,
	})
	if err != nil {
		fmt.Printf("Failed to create embedder: %v\n", err)
		os.Exit(1)
	}
	return embedder
}

func fusionConfig(cfg *config.Config) fusion.Config {
	return fusion.Config{
		Items:           cfg.Fusion.Items,
		Lang:            cfg.Fusion.Lang,
		Threshold:       cfg.Fusion.Threshold,
		TitleOverfetch:  cfg.Fusion.TitleOverfetch,
		ChunkOverfetch:  cfg.Fusion.ChunkOverfetch,
		TitleCollection: cfg.Fusion.TitleCollection,
		ChunkCollection: cfg.Fusion.ChunkCollection,
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath := mustLoadConfig(*configPath)
	logger := mustLogger(cfg, *debug)
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", cfg.Debug || *debug))

	store := mustStore(cfg)
	defer store.Close()
	service := mustService(cfg, logger)

	var retriever *fusion.Retriever
	if embedder := buildEmbedder(cfg); embedder != nil {
		defer embedder.Close()
		retriever = fusion.NewRetriever(service, store, embedder, fusionConfig(cfg), logger)
	} else {
		logger.Warn("no embedding endpoint configured, /retrieve disabled")
	}

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Watch.Enabled {
		paths := make([]string, len(cfg.Collections))
		for i, c := range cfg.Collections {
			paths[i] = c.Path
		}
		w := watcher.New(paths, func() {
			if err := service.Reload(); err != nil {
				logger.Error("collection reload failed", zap.Error(err))
			}
		}, logger, watcher.WithDebounce(time.Duration(cfg.Watch.DebounceMillis)*time.Millisecond))
		if err := w.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer w.Stop()
	}

	srv := server.NewServer(service, retriever, store, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// joinQuery joins all positional args with spaces so multi-word queries
// work with or without shell quoting.
func joinQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// reorderArgs moves flags (and their values) that appear after the query
// to the front so that flag.Parse() sees them. The flag package stops at
// the first non-flag argument.
func reorderArgs(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runRetrieve() {
	fs := flag.NewFlagSet("retrieve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	remote := fs.String("remote", "", "search server URL (default: search locally)")
	items := fs.Int("items", 0, "number of items in the bundle (default from config)")
	lang := fs.String("lang", "", "snippet language (default from config)")
	format := fs.String("format", "text", "output format: text or json")
	_ = fs.Parse(reorderArgs(os.Args[2:]))

	query := joinQuery(fs.Args())
	if query == "" {
		fmt.Println("Usage: kensaku retrieve [flags] <query>")
		fs.PrintDefaults()
		os.Exit(1)
	}

	cfg, _ := mustLoadConfig(*configPath)
	logger := mustLogger(cfg, false)
	defer logger.Sync()

	store := mustStore(cfg)
	defer store.Close()

	embedder := buildEmbedder(cfg)
	if embedder == nil {
		fmt.Println("No embedding endpoint configured; retrieval needs one.")
		os.Exit(1)
	}
	defer embedder.Close()

	var searcher search.Searcher
	if *remote != "" {
		searcher = search.NewClient(*remote)
	} else {
		searcher = mustService(cfg, logger)
	}

	fcfg := fusionConfig(cfg)
	if *items > 0 {
		fcfg.Items = *items
	}
	if *lang != "" {
		fcfg.Lang = *lang
	}
	retriever := fusion.NewRetriever(searcher, store, embedder, fcfg, logger)

	bundle, err := retriever.Retrieve(context.Background(), query)
	if err != nil {
		fmt.Printf("Retrieval failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteContext(os.Stdout, bundle, cli.OutputFormat(*format)); err != nil {
		fmt.Printf("Failed to write output: %v\n", err)
		os.Exit(1)
	}
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	collection := fs.String("collection", "titles", "collection to query")
	limit := fs.Int("limit", 10, "maximum number of hits")
	format := fs.String("format", "text", "output format: text or json")
	_ = fs.Parse(reorderArgs(os.Args[2:]))

	query := joinQuery(fs.Args())
	if query == "" {
		fmt.Println("Usage: kensaku search [flags] <query>")
		fs.PrintDefaults()
		os.Exit(1)
	}

	cfg, _ := mustLoadConfig(*configPath)
	logger := mustLogger(cfg, false)
	defer logger.Sync()

	embedder := buildEmbedder(cfg)
	if embedder == nil {
		fmt.Println("No embedding endpoint configured; search needs one.")
		os.Exit(1)
	}
	defer embedder.Close()

	vec, err := embedder.Embed(context.Background(), query)
	if err != nil {
		fmt.Printf("Embedding failed: %v\n", err)
		os.Exit(1)
	}

	service := mustService(cfg, logger)
	results, err := service.Search(context.Background(), search.RefByName(*collection), vec, *limit)
	if err != nil {
		fmt.Printf("Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteResults(os.Stdout, *collection, results, cli.OutputFormat(*format)); err != nil {
		fmt.Printf("Failed to write output: %v\n", err)
		os.Exit(1)
	}
}

func runCollections() {
	fs := flag.NewFlagSet("collections", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	remote := fs.String("remote", "", "search server URL (default: read local config)")
	_ = fs.Parse(os.Args[2:])

	var names []string
	if *remote != "" {
		var err error
		names, err = search.NewClient(*remote).Collections(context.Background())
		if err != nil {
			fmt.Printf("Failed to list collections: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, _ := mustLoadConfig(*configPath)
		for _, c := range cfg.Collections {
			names = append(names, c.Name)
		}
	}
	for i, name := range names {
		fmt.Printf("%d: %s\n", i, name)
	}
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	file := fs.String("file", "", "JSON file with an array of documents (- for stdin)")
	chunkSize := fs.Int("chunk-size", 256, "chunk size in words")
	chunkOverlap := fs.Int("chunk-overlap", 32, "chunk overlap in words")
	_ = fs.Parse(os.Args[2:])

	if *file == "" {
		fmt.Println("Usage: kensaku ingest -file <documents.json>")
		fs.PrintDefaults()
		os.Exit(1)
	}

	var data []byte
	var err error
	if *file == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(*file)
	}
	if err != nil {
		fmt.Printf("Failed to read documents: %v\n", err)
		os.Exit(1)
	}
	var docs []*ingest.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		fmt.Printf("Failed to parse documents: %v\n", err)
		os.Exit(1)
	}

	cfg, _ := mustLoadConfig(*configPath)
	logger := mustLogger(cfg, false)
	defer logger.Sync()

	store := mustStore(cfg)
	defer store.Close()

	ing := ingest.New(store, *chunkSize, *chunkOverlap, logger)
	items, err := ing.IngestAll(context.Background(), docs)
	if err != nil {
		fmt.Printf("Ingestion failed after %d documents: %v\n", len(items), err)
		os.Exit(1)
	}
	fmt.Printf("Ingested %d documents. Run \"kensaku export\" to rebuild the vector files.\n", len(items))
}

func runExport() {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	cfg, _ := mustLoadConfig(*configPath)
	logger := mustLogger(cfg, false)
	defer logger.Sync()

	store := mustStore(cfg)
	defer store.Close()

	embedder := buildEmbedder(cfg)
	if embedder == nil {
		fmt.Println("No embedding endpoint configured; export needs one.")
		os.Exit(1)
	}
	defer embedder.Close()

	files, err := exporter.New(store, embedder, logger).Export(context.Background())
	if err != nil {
		fmt.Printf("Export failed: %v\n", err)
		os.Exit(1)
	}
	for _, f := range files {
		fmt.Printf("%s  %d x %d\n", f.Path, f.Rows, f.Dimension)
	}
}

func runInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	name := fs.String("name", "", "project name")
	description := fs.String("description", "", "project description")
	langs := fs.String("langs", "de,en", "comma-separated snippet languages")
	_ = fs.Parse(os.Args[2:])

	if *name == "" {
		fmt.Println("Usage: kensaku init -name <project>")
		fs.PrintDefaults()
		os.Exit(1)
	}

	cfg, _ := mustLoadConfig(*configPath)
	store := mustStore(cfg)
	defer store.Close()

	project := &models.Project{
		Name:        *name,
		Description: *description,
		Langs:       *langs,
		EmbedModel:  cfg.Embedding.Model,
		EmbedSize:   cfg.Embedding.Dimensions,
		VectorName:  *name,
		VectorPath:  cfg.Storage.VectorPath,
	}
	if err := store.CreateProject(context.Background(), project); err != nil {
		fmt.Printf("Failed to create project: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Project %q created (langs %s, embed size %d).\n", project.Name, project.Langs, project.EmbedSize)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "server address")
	_ = fs.Parse(os.Args[2:])

	resp, err := http.Get(strings.TrimRight(*addr, "/") + "/status")
	if err != nil {
		fmt.Printf("Failed to reach server: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var status map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		fmt.Printf("Failed to decode status: %v\n", err)
		os.Exit(1)
	}
	out, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		fmt.Printf("Failed to format status: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
