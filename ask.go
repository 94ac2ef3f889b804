package main

import "github.com/spf13/cobra"

var askFlags queryFlags

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Answer a question from the knowledge base",
	Long: `Searches like the search command, then asks the configured LLM to answer
using only the retrieved text. When the LLM fails a fallback answer is
given instead.`,
	Args: cobra.NoArgs,
	RunE: runAsk,
}

func init() {
	askFlags.bind(askCmd)
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	return runQuery(cmd, &askFlags, true)
}
