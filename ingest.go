package main

import (
	"github.com/spf13/cobra"

	"github.com/fabfab/go-kb/embeddings"
	"github.com/fabfab/go-kb/ingestion"
)

const defaultIngestLog = "embedding_process.log"

var (
	ingestDir      string
	ingestMetadata string
	ingestReset    bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Chunk, embed and upload documents",
	Long: `Reads every .txt, .md, .pdf and .csv file in the documents directory,
splits it into overlapping chunks, embeds each chunk and uploads the
results to the vector store in batches. Failed chunks and batches are
logged and skipped.`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestDir, "dir", "", "documents directory (default DOCS_PATH)")
	ingestCmd.Flags().StringVar(&ingestMetadata, "metadata", "", "metadata catalog JSON file (default METADATA_FILE)")
	ingestCmd.Flags().BoolVar(&ingestReset, "reset", false, "drop and recreate the collection first")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if ingestDir != "" {
		cfg.Ingest.DocsPath = ingestDir
	}
	if ingestMetadata != "" {
		cfg.Ingest.MetadataFile = ingestMetadata
	}
	logFile := cfg.LogFile
	if logFile == "" {
		logFile = defaultIngestLog
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	a, err := openApp(ctx, cmd, cfg, logFile, false)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		return err
	}
	catalog, err := loadCatalog(cfg.Ingest.MetadataFile)
	if err != nil {
		return err
	}

	var graph ingestion.GraphSyncer
	if a.graph != nil {
		graph = a.graph
	}

	svc := ingestion.NewService(a.store, embedder, graph, a.logger, ingestion.OptionsFromConfig(cfg, catalog))
	a.logger.Printf("ingesting %s into %s/%s using %s embeddings", cfg.Ingest.DocsPath, cfg.Store.Backend, cfg.Store.Collection, cfg.Embeddings.Provider)

	report, err := svc.IngestDirectory(ctx, cfg.Ingest.DocsPath, ingestReset)
	renderReport(cmd, report)
	return err
}
