// Package main is the manualbook CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/manualbook/internal/cli"
	"github.com/hyperjump/manualbook/internal/config"
	"github.com/hyperjump/manualbook/internal/keyword"
	"github.com/hyperjump/manualbook/internal/models"
	"github.com/hyperjump/manualbook/internal/server"
	"github.com/hyperjump/manualbook/internal/watcher"
	"github.com/hyperjump/manualbook/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/manualbook/config.yaml"

// loadConfig loads config from path. When path is the default, config.yaml in the current
// directory is preferred; when neither exists, defaults relative to the current directory are
// used. Returns the config and the path that was loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, "", err
		}
		fallback := filepath.Join(cwd, "config.yaml")
		if _, statErr := os.Stat(fallback); statErr == nil {
			cfg, loadErr := config.Load(fallback)
			if loadErr != nil {
				return nil, "", loadErr
			}
			return cfg, fallback, nil
		}
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			return config.Default(cwd), "", nil
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
	args := os.Args[2:]
	switch command {
	case "build":
		runBuild(args)
	case "vectorize":
		runVectorize(args)
	case "query":
		runQuery(args)
	case "classify":
		runClassify(args)
	case "get":
		runGet(args)
	case "find":
		runFind(args)
	case "status":
		runStatus(args)
	case "serve", "server":
		runServe(args)
	case "version", "--version", "-v":
		fmt.Printf("manualbook version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// setup loads config, creates the logger and initializes components.
func setup(configPath string, debug bool) (*config.Config, *zap.Logger, *Components) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))
	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		fatalf("Failed to initialize components: %v", err)
	}
	return cfg, logger, components
}

func parseFormat(s string) cli.OutputFormat {
	format, err := cli.ParseFormat(s)
	if err != nil {
		fatalf("%v", err)
	}
	return format
}

// joinArgs joins all positional args with spaces so multi-word queries work the same with or
// without shell quoting.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the positional arguments to
// the front so that flag.Parse() sees them. The flag package stops at the first non-flag
// argument, so `manualbook query "feed down" -top-k 5` would otherwise leave -top-k unparsed.
func argsReorder(args []string) []string {
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

func runBuild(args []string) {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	source := fs.String("source", "", "source markdown document (default: catalog.source from config)")
	keep := fs.Bool("keep", false, "keep existing article files instead of cleaning the catalog directory")
	vectorize := fs.Bool("vectorize", false, "vectorize the catalog after building")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(args))
	if fs.NArg() > 0 && *source == "" {
		*source = fs.Arg(0)
	}
	format := parseFormat(*output)

	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	clean := !*keep
	res, err := components.Engine.Build(context.Background(), &models.BuildRequest{
		Source:    *source,
		Clean:     &clean,
		Vectorize: *vectorize,
	})
	if err != nil {
		fatalf("Build failed: %v", err)
	}
	if format == cli.OutputJSON {
		_ = cli.WriteJSON(os.Stdout, res)
		return
	}
	fmt.Printf("Built %d articles from %s into %s\n", res.Catalog.ArticlesCount, res.Catalog.SourceFile, res.Catalog.CatalogDir)
	fmt.Printf("Keyword index: %d articles\n", res.KeywordArticles)
	if res.Vectors != nil {
		printVectorStats(res.Vectors.StoredChunks, res.Vectors.TotalChunks, res.Vectors.FailedBatches, res.Vectors.Duration)
	}
}

func runVectorize(args []string) {
	fs := flag.NewFlagSet("vectorize", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	reset := fs.Bool("reset", false, "drop all stored chunks and vectors first")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)
	format := parseFormat(*output)

	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	stats, err := components.Engine.Vectorize(context.Background(), *reset)
	if err != nil {
		fatalf("Vectorize failed: %v", err)
	}
	if format == cli.OutputJSON {
		_ = cli.WriteJSON(os.Stdout, stats)
		return
	}
	fmt.Printf("Processed %d/%d articles (%d failed, %d removed)\n",
		stats.ProcessedArticles, stats.TotalArticles, stats.FailedArticles, stats.RemovedArticles)
	printVectorStats(stats.StoredChunks, stats.TotalChunks, stats.FailedBatches, stats.Duration)
}

func printVectorStats(stored, total, failedBatches int, took time.Duration) {
	fmt.Printf("Vectors: %d/%d chunks stored", stored, total)
	if failedBatches > 0 {
		fmt.Printf(", %d batches failed", failedBatches)
	}
	fmt.Printf(" in %s\n", took.Round(time.Millisecond))
}

func runQuery(args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	topK := fs.Int("top-k", 0, "number of articles (default: retrieval.top_k from config)")
	intent := fs.String("intent", "", "force intent: do, learn or trouble")
	category := fs.String("category", "", "force category: application or data")
	noRelated := fs.Bool("no-related", false, "omit related articles")
	noFallback := fs.Bool("no-fallback", false, "disable the do/learn fallback pass")
	skipClassify := fs.Bool("skip-classify", false, "do not classify the query")
	answer := fs.Bool("answer", false, "synthesize an answer from the retrieved articles")
	output := fs.String("output", "text", "output format: text, compact or json")
	_ = fs.Parse(argsReorder(args))

	query := joinArgs(fs.Args())
	if query == "" {
		fmt.Fprintln(os.Stderr, "Usage: manualbook query [flags] <query>")
		fs.PrintDefaults()
		os.Exit(1)
	}
	format := parseFormat(*output)

	cfg, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	req := &models.QueryRequest{
		Query:        query,
		TopK:         *topK,
		Intent:       *intent,
		Category:     *category,
		SkipClassify: *skipClassify,
		Answer:       *answer || cfg.Retrieval.Answer,
	}
	if req.TopK == 0 {
		req.TopK = cfg.Retrieval.TopK
	}
	if *noRelated {
		f := false
		req.IncludeRelated = &f
	}
	if *noFallback {
		f := false
		req.Fallback = &f
	}
	resp, err := components.Engine.Query(context.Background(), req)
	if err != nil {
		fatalf("Query failed: %v", err)
	}
	if err := cli.WriteQueryResults(os.Stdout, resp, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runClassify(args []string) {
	fs := flag.NewFlagSet("classify", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(args))
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: manualbook classify [flags] <query> [<query>...]")
		os.Exit(1)
	}
	format := parseFormat(*output)

	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	resp, err := components.Engine.Classify(context.Background(), &models.ClassifyRequest{Queries: fs.Args()})
	if err != nil {
		fatalf("Classify failed: %v", err)
	}
	if err := cli.WriteClassifications(os.Stdout, resp, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runGet(args []string) {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(args))
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: manualbook get [flags] <article-id>...")
		os.Exit(1)
	}
	format := parseFormat(*output)

	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	if fs.NArg() == 1 {
		article, err := components.Engine.Article(ctx, fs.Arg(0))
		if err != nil {
			fatalf("Get failed: %v", err)
		}
		if err := cli.WriteArticle(os.Stdout, article, format); err != nil {
			fatalf("Output failed: %v", err)
		}
		return
	}
	batch, err := components.Engine.ArticlesByID(ctx, fs.Args())
	if err != nil {
		fatalf("Get failed: %v", err)
	}
	if err := cli.WriteArticles(os.Stdout, batch, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runFind(args []string) {
	fs := flag.NewFlagSet("find", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	limit := fs.Int("limit", 10, "maximum number of articles")
	fuzzy := fs.Bool("fuzzy", false, "tolerate one typo per term")
	intent := fs.String("intent", "", "restrict to intent")
	category := fs.String("category", "", "restrict to category")
	output := fs.String("output", "text", "output format: text, compact or json")
	_ = fs.Parse(argsReorder(args))

	query := joinArgs(fs.Args())
	if query == "" {
		fmt.Fprintln(os.Stderr, "Usage: manualbook find [flags] <terms>")
		os.Exit(1)
	}
	format := parseFormat(*output)

	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	opts := &keyword.SearchOptions{Intent: *intent, Category: *category}
	if *fuzzy {
		opts.Fuzziness = 1
	}
	resp, err := components.Engine.Find(context.Background(), query, *limit, opts)
	if err != nil {
		fatalf("Find failed: %v", err)
	}
	if err := cli.WriteFindResults(os.Stdout, resp, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)
	format := parseFormat(*output)

	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	st, err := components.Engine.Status(context.Background())
	if err != nil {
		fatalf("Status failed: %v", err)
	}
	if err := cli.WriteStatus(os.Stdout, st, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	watch := fs.Bool("watch", false, "rebuild the catalog when the source document changes")
	_ = fs.Parse(args)

	cfg, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !components.Catalog.Exists() {
		logger.Warn("catalog not built yet; POST /api/v1/catalog/build or run `manualbook build`",
			zap.String("catalog_dir", cfg.Catalog.Dir))
	} else if _, err := components.Indexer.IndexKeywords(ctx); err != nil {
		logger.Warn("keyword index refresh failed", zap.Error(err))
	}

	if cfg.Watch.Enabled || *watch {
		w, err := watcher.NewWatcher(cfg.Catalog.Source, components.Engine.Rebuild,
			watcher.WithLogger(logger), watcher.WithDebounce(cfg.Watch.Debounce))
		if err != nil {
			logger.Fatal("Failed to create watcher", zap.Error(err))
		}
		if err := w.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer w.Stop()
	}

	srv := server.NewServer(components.Engine, &cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	if err := components.VectorIndex.Save(cfg.Storage.VectorIndexPath); err != nil {
		logger.Warn("vector index save failed", zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(err))
	}
}

func printUsage() {
	fmt.Println(`manualbook - catalog builder and hybrid retriever for structured manuals

Usage:
  manualbook build [flags] [source.md]    Split the source document into the article catalog
  manualbook vectorize [flags]            Chunk and embed the catalog into the vector index
  manualbook query [flags] <query>        Retrieve articles answering a question
  manualbook classify [flags] <query>...  Show the intent/category classification of queries
  manualbook get [flags] <article-id>...  Print articles with their related articles
  manualbook find [flags] <terms>         Keyword lookup by title, synonym, code or content
  manualbook status [flags]               Show catalog and index status
  manualbook serve [flags]                Start the HTTP server
  manualbook version                      Show version
  manualbook help                         Show this help

Common Flags:
  --config string    Config file path (default: ./config.yaml, then /usr/local/etc/manualbook/config.yaml)
  --output string    Output format: text, compact or json (default: text)

Build Flags:
  --source string    Source document (default: catalog.source)
  --keep             Do not clean the catalog directory first
  --vectorize        Vectorize after building

Vectorize Flags:
  --reset            Drop stored chunks and vectors first

Query Flags:
  --top-k int        Number of articles (default: retrieval.top_k)
  --intent string    Force intent (do, learn, trouble)
  --category string  Force category (application, data)
  --no-related       Omit related articles
  --no-fallback      Disable the do/learn fallback pass
  --skip-classify    Do not classify the query
  --answer           Synthesize an answer from the results

Find Flags:
  --limit int        Maximum number of articles (default: 10)
  --fuzzy            Tolerate one typo per term

Serve Flags:
  --debug            Enable debug logging
  --watch            Rebuild when the source document changes

Examples:
  manualbook build --vectorize docs/manual.md
  manualbook query "how do I add an indicator to a chart"
  manualbook query --intent trouble --answer quotes are not updating
  manualbook find --fuzzy chartng
  manualbook serve --watch`)
}
