package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"querybot/internal/config"
	"querybot/internal/embedding"
	"querybot/internal/history"
	"querybot/internal/index"
	"querybot/internal/llm"
	"querybot/internal/parser"
	"querybot/internal/prompt"
	"querybot/internal/retriever"
	"querybot/internal/router"
	"querybot/internal/server"
)

const defaultConfigPath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", defaultConfigPath, "Path to the config file")
	ingestDir := flag.String("ingest", "", "Directory of documents to index, then exit")
	query := flag.String("query", "", "Ask a single question on the command line, then exit")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Error loading .env file")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Fatal().Err(err).Str("path", *configPath).Msg("Error loading config")
		}
		log.Info().Str("path", *configPath).Msg("No config file, using defaults")
		cfg = config.Default()
	}

	ctx := context.Background()
	app, err := build(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing application")
	}

	switch {
	case *ingestDir != "":
		if err := app.ingest(ctx, *ingestDir); err != nil {
			log.Fatal().Err(err).Msg("Error ingesting documents")
		}
	case *query != "":
		if err := app.ask(ctx, *query); err != nil {
			log.Fatal().Err(err).Msg("Error answering query")
		}
	default:
		if err := app.server.Run(); err != nil {
			log.Fatal().Err(err).Msg("Server stopped")
		}
	}
}

type app struct {
	cfg       *config.Config
	idx       index.Index
	retriever *retriever.Retriever
	parser    *parser.Parser
	router    *router.Router
	server    *server.Server
}

func build(ctx context.Context, cfg *config.Config) (*app, error) {
	embedder, err := embedding.New(&cfg.EmbedLLM)
	if err != nil {
		return nil, err
	}
	idx, err := index.New(ctx, cfg, embedding.QueryFunc(embedder))
	if err != nil {
		return nil, err
	}
	generator, err := llm.NewClient(&cfg.ChatLLM)
	if err != nil {
		return nil, err
	}
	store, err := history.NewStore(cfg.Storage.Dir)
	if err != nil {
		return nil, err
	}

	ret := retriever.New(idx)
	memory := history.NewMemory(cfg.Storage.HistoryCap)
	prompts := prompt.NewRegistry(cfg.Prompts.Dir)
	rt := router.New(cfg, ret, generator, prompts, store, memory)
	p := parser.New(&cfg.RAG)

	return &app{
		cfg:       cfg,
		idx:       idx,
		retriever: ret,
		parser:    p,
		router:    rt,
		server:    server.New(cfg, rt, idx, ret, p, store, memory),
	}, nil
}

func (a *app) ingest(ctx context.Context, dir string) error {
	docs, err := a.parser.LoadDirectory(dir)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		log.Warn().Str("dir", dir).Msg("No documents to index")
		return nil
	}
	if err := a.idx.AddDocuments(ctx, docs); err != nil {
		return err
	}
	if err := a.idx.Persist(ctx); err != nil {
		return err
	}
	if err := a.retriever.RebuildSparse(ctx); err != nil {
		log.Warn().Err(err).Msg("Sparse rebuild failed")
	}
	log.Info().Int("chunks", len(docs)).Str("dir", dir).Msg("Documents indexed")
	return nil
}

func (a *app) ask(ctx context.Context, query string) error {
	content, strategy, err := a.router.Respond(ctx, "cli", query)
	if err != nil {
		return err
	}
	log.Info().Str("strategy", strategy).Msg("Answered")
	fmt.Printf("%s\n", content)
	return nil
}
