package main

import (
	"context"
	"fmt"
	"log"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/spf13/cobra"

	"github.com/fabfab/go-kb/config"
	"github.com/fabfab/go-kb/database"
	"github.com/fabfab/go-kb/embeddings"
	"github.com/fabfab/go-kb/knowledge"
	"github.com/fabfab/go-kb/llm"
	"github.com/fabfab/go-kb/metadata"
	"github.com/fabfab/go-kb/search"
	"github.com/fabfab/go-kb/vectorstore"
)

// app holds the connections one command run needs.
type app struct {
	cfg      config.Config
	logger   *log.Logger
	store    vectorstore.Store
	driver   neo4j.DriverWithContext
	graph    *knowledge.Graph
	closeLog func()
}

// openApp validates cfg, then opens the logger, the vector store and, when
// configured, the knowledge graph. withLLM adds the answer-synthesis keys to
// validation. A graph that cannot be reached is logged and left out.
func openApp(ctx context.Context, cmd *cobra.Command, cfg config.Config, logFile string, withLLM bool) (*app, error) {
	validate := cfg.Validate
	if withLLM {
		validate = cfg.ValidateWithLLM
	}
	if err := validate(); err != nil {
		return nil, err
	}

	logger, closeLog, err := newLogger(cmd, logFile)
	if err != nil {
		return nil, err
	}

	store, err := vectorstore.Open(ctx, cfg.Store, logger)
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, store: store, closeLog: closeLog}

	if cfg.Neo4j.Enabled() {
		driver, err := database.NewNeo4jDriver(ctx, cfg.Neo4j.URI, cfg.Neo4j.User, cfg.Neo4j.Password)
		if err != nil {
			logger.Printf("knowledge graph disabled: %v", err)
		} else {
			a.driver = driver
			a.graph = knowledge.NewGraph(driver, cfg.Store.Collection)
		}
	}
	return a, nil
}

func (a *app) Close(ctx context.Context) {
	if a.driver != nil {
		_ = a.driver.Close(ctx)
	}
	if err := a.store.Close(); err != nil {
		a.logger.Printf("close vector store: %v", err)
	}
	a.closeLog()
}

func loadCatalog(path string) (*metadata.Catalog, error) {
	if path == "" {
		return nil, nil
	}
	return metadata.Load(path)
}

// searchService wires the retrieval pipeline. withLLM adds answer
// synthesis and expects the app to have been opened with it.
func (a *app) searchService(withLLM bool) (*search.Service, error) {
	embedder, err := embeddings.NewEmbedder(a.cfg)
	if err != nil {
		return nil, fmt.Errorf("embedder setup: %w", err)
	}

	strategy, err := search.StrategyByName(a.cfg.Search.BoostStrategy)
	if err != nil {
		return nil, err
	}

	catalog, err := loadCatalog(a.cfg.Ingest.MetadataFile)
	if err != nil {
		return nil, err
	}

	var sources []search.HintSource
	switch strategy.Name() {
	case config.StrategyMultiplicative:
		if catalog != nil {
			sources = append(sources, search.NewCatalogHints(catalog))
		}
	case config.StrategyAdditive:
		sources = append(sources, search.TopicHints{})
	}
	if a.graph != nil {
		sources = append(sources, search.NewGraphHints(a.graph))
	}

	opts := []search.Option{
		search.WithRanker(search.NewRanker(strategy)),
		search.WithHintSources(sources...),
	}

	if withLLM {
		client, err := llm.NewClient(a.cfg)
		if err != nil {
			return nil, fmt.Errorf("llm setup: %w", err)
		}
		opts = append(opts, search.WithSynthesizer(search.NewSynthesizer(client, a.logger, search.DefaultFallbacks()...)))
	}

	return search.NewService(a.store, embedder, a.logger, search.OptionsFromConfig(a.cfg), opts...), nil
}
