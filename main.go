package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fabfab/go-kb/config"
)

var (
	configPath     string
	collectionName string
	verbose        bool
)

var rootCmd = &cobra.Command{
	Use:   "go-kb",
	Short: "Build and query a document knowledge base",
	Long: `go-kb chunks documents, embeds the chunks through a hosted embedding
provider and stores them in a vector database. Queries are expanded,
searched, re-ranked and optionally answered by a text-generation model.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML config file (default $KB_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&collectionName, "collection", "", "vector collection name (overrides COLLECTION_NAME)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "include source locations in log lines")
}

func main() {
	rootCmd.SetOut(os.Stdout)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}
}

// loadConfig builds the configuration and applies the persistent flag
// overrides. It does not validate.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if collectionName != "" {
		cfg.Store.Collection = collectionName
	}
	return cfg, nil
}

// newLogger logs to the command's stderr and, when path is set, appends to
// that file too. The returned func closes the file.
func newLogger(cmd *cobra.Command, path string) (*log.Logger, func(), error) {
	flags := log.LstdFlags
	if verbose {
		flags |= log.Lshortfile
	}

	var out io.Writer = cmd.ErrOrStderr()
	closeFn := func() {}

	if path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("create log directory: %w", err)
			}
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(out, f)
		closeFn = func() { _ = f.Close() }
	}

	return log.New(out, "", flags), closeFn, nil
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}
