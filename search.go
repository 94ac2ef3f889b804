package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fabfab/go-kb/search"
)

// queryFlags are shared by the search and ask commands.
type queryFlags struct {
	query      string
	limit      int
	noMetadata bool
	simple     bool
	noExpand   bool
	json       bool
}

func (f *queryFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.query, "query", "q", "", "query text (required)")
	cmd.Flags().IntVarP(&f.limit, "limit", "n", search.DefaultLimit, "maximum number of results")
	cmd.Flags().BoolVar(&f.noMetadata, "no-metadata", false, "skip metadata relevance hints")
	cmd.Flags().BoolVar(&f.simple, "simple", false, "plain vector search: no expansion, hints or score floor")
	cmd.Flags().BoolVar(&f.noExpand, "no-expand", false, "search with the query only")
	cmd.Flags().BoolVar(&f.json, "json", false, "output as JSON")
	_ = cmd.MarkFlagRequired("query")
}

func (f *queryFlags) request() search.Request {
	return search.Request{
		Query:      f.query,
		Limit:      f.limit,
		NoMetadata: f.noMetadata,
		NoExpand:   f.noExpand,
		Simple:     f.simple,
	}
}

var (
	searchFlags      queryFlags
	searchSynthesize bool
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search the knowledge base",
	Long: `Embeds the query and its expansions, searches the collection with each,
then deduplicates and re-ranks the merged hits. With --synthesize the top
hits are also summarized into an answer.`,
	Args: cobra.NoArgs,
	RunE: runSearch,
}

func init() {
	searchFlags.bind(searchCmd)
	searchCmd.Flags().BoolVar(&searchSynthesize, "synthesize", false, "also synthesize an answer from the results")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	return runQuery(cmd, &searchFlags, searchSynthesize)
}

func runQuery(cmd *cobra.Command, flags *queryFlags, synthesize bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	a, err := openApp(ctx, cmd, cfg, cfg.LogFile, synthesize)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	svc, err := a.searchService(synthesize)
	if err != nil {
		return err
	}

	var (
		resp   search.Response
		answer *search.Answer
	)
	if synthesize {
		r, ans, err := svc.Ask(ctx, flags.request())
		if err != nil {
			return fmt.Errorf("ask failed: %w", err)
		}
		resp, answer = r, &ans
	} else {
		resp, err = svc.Search(ctx, flags.request())
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
	}

	if flags.json {
		return outputJSON(cmd, resp, answer)
	}
	renderResults(cmd, resp)
	if answer != nil {
		renderAnswer(cmd, *answer)
	}
	return nil
}

type jsonOutput struct {
	search.Response
	Answer *search.Answer `json:"answer,omitempty"`
}

func outputJSON(cmd *cobra.Command, resp search.Response, answer *search.Answer) error {
	data, err := json.MarshalIndent(jsonOutput{Response: resp, Answer: answer}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
