// cmd/mimi is the command-line entry point for the mimi memory system. It
// wires the configured storage gateway, the extraction pipeline, and the
// hybrid search engine behind a small set of subcommands:
//
//	mimi remember [flags] [text]     store a new memory (reads stdin if no text)
//	mimi recall [flags] <phrase>     search stored memories
//	mimi forget <memory-id>          delete a memory
//	mimi show <id>                   print one memory or entity
//	mimi import [flags] <dir>        bulk-import a Markdown note folder
//	mimi instruction                 print the agent integration instruction
//
// All logging goes to stderr; stdout carries only command output so the
// binary composes cleanly in shell pipelines and agent hooks.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mimi-ai/mimi/internal/config"
	"github.com/mimi-ai/mimi/internal/llm"
	"github.com/mimi-ai/mimi/internal/pipeline"
	"github.com/mimi-ai/mimi/internal/search"
	"github.com/mimi-ai/mimi/internal/storage"
	"github.com/mimi-ai/mimi/internal/storage/postgres"
	"github.com/mimi-ai/mimi/internal/storage/sqlite"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: mimi <command> [flags] [args]

commands:
  remember     store a new memory (runs the extraction pipeline)
  recall       search stored memories
  forget       delete a memory by ID
  show         print one memory or entity by ID
  import       bulk-import a folder of Markdown notes
  instruction  print the integration instruction for agent system prompts

Run "mimi <command> -h" for command flags.
`)
}

func main() {
	log.SetOutput(os.Stderr)
	log.SetPrefix("mimi: ")
	log.SetFlags(0)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	var err error
	switch os.Args[1] {
	case "remember":
		err = runRemember(ctx, cfg, os.Args[2:])
	case "recall":
		err = runRecall(ctx, cfg, os.Args[2:])
	case "forget":
		err = runForget(ctx, cfg, os.Args[2:])
	case "show":
		err = runShow(ctx, cfg, os.Args[2:])
	case "import":
		err = runImport(ctx, cfg, os.Args[2:])
	case "instruction":
		err = runInstruction(os.Args[2:])
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "mimi: unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

// openGateway opens the configured storage backend. The sqlite engine keeps
// its database file under the data path; the postgres engine requires a DSN.
func openGateway(ctx context.Context, cfg *config.Config) (storage.Gateway, error) {
	switch cfg.Storage.Engine {
	case "sqlite", "":
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o700); err != nil {
			return nil, fmt.Errorf("create data directory %q: %w", cfg.Storage.DataPath, err)
		}
		return sqlite.Open(filepath.Join(cfg.Storage.DataPath, "mimi.db"))
	case "postgres":
		if cfg.Storage.PostgresDSN == "" {
			return nil, fmt.Errorf("storage engine postgres requires MIMI_POSTGRES_DSN")
		}
		return postgres.Open(ctx, cfg.Storage.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.Storage.Engine)
	}
}

// buildPipeline loads the YAML pipeline definition and constructs the
// pipeline engine with its providers.
func buildPipeline(cfg *config.Config) (*pipeline.Engine, error) {
	def, err := config.LoadPipeline(cfg.Pipeline.File)
	if err != nil {
		return nil, err
	}

	providers, err := llm.NewProviders(def.ProviderSpecs(cfg.Pipeline.StepTimeout))
	if err != nil {
		return nil, err
	}

	return pipeline.New(providers, def.Steps, pipeline.Options{
		Concurrency: cfg.Pipeline.Concurrency,
		StepTimeout: cfg.Pipeline.StepTimeout,
	})
}

// buildSearch constructs the search engine sharing the pipeline's embedder,
// so query vectors land in the same similarity space as stored ones.
func buildSearch(cfg *config.Config, gateway storage.Gateway, engine *pipeline.Engine) (*search.Engine, error) {
	return search.New(gateway, engine.Embedder(), search.Options{
		Boost:     &cfg.Search.Boost,
		OverFetch: cfg.Search.OverFetch,
	})
}
