package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fabfab/go-kb/config"
	"github.com/fabfab/go-kb/vectorstore"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the configuration and collection status",
	Args:  cobra.NoArgs,
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	renderInfo(cmd, "Configuration", configRows(cfg))

	if err := cfg.Validate(); err != nil {
		var missing *config.MissingKeysError
		if errors.As(err, &missing) {
			cmd.Println()
			cmd.Println(errorStyle.Render(err.Error()))
			return nil
		}
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	a, err := openApp(ctx, cmd, cfg, cfg.LogFile, false)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	inspector, ok := a.store.(vectorstore.Inspector)
	if !ok {
		return nil
	}
	info, err := inspector.CollectionInfo(ctx, cfg.Store.Collection)
	if err != nil {
		if errors.Is(err, vectorstore.ErrCollectionNotFound) {
			cmd.Println()
			cmd.Printf("Collection %s does not exist yet; run ingest first.\n", cfg.Store.Collection)
			return nil
		}
		return fmt.Errorf("describe collection: %w", err)
	}

	cmd.Println()
	renderInfo(cmd, "Collection", [][2]string{
		{"Name", info.Name},
		{"Points", strconv.FormatInt(info.Points, 10)},
		{"Vector size", strconv.Itoa(info.VectorSize)},
		{"Status", info.Status},
	})
	return nil
}

func configRows(cfg config.Config) [][2]string {
	graph := "disabled"
	if cfg.Neo4j.Enabled() {
		graph = cfg.Neo4j.URI
	}
	return [][2]string{
		{"Vector store", cfg.Store.Backend},
		{"Collection", cfg.Store.Collection},
		{"Embeddings", fmt.Sprintf("%s (%d dims)", cfg.Embeddings.Provider, cfg.Embeddings.Dimension)},
		{"LLM", cfg.LLM.Provider},
		{"Chunk size", fmt.Sprintf("%d words, %.0f%% overlap", cfg.Chunking.TargetSize, cfg.Chunking.OverlapFraction*100)},
		{"Documents", cfg.Ingest.DocsPath},
		{"Boost strategy", cfg.Search.BoostStrategy},
		{"Knowledge graph", graph},
	}
}
