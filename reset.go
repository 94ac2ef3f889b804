package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fabfab/go-kb/vectorstore"
)

var resetConfirm bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the collection and its knowledge graph nodes",
	Args:  cobra.NoArgs,
	RunE:  runReset,
}

func init() {
	resetCmd.Flags().BoolVar(&resetConfirm, "confirm", false, "skip the confirmation prompt")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if !resetConfirm {
		cmd.Printf("Delete collection %s and all its points? [y/N]: ", cfg.Store.Collection)
		if !confirmed(cmd) {
			cmd.Println("Aborted.")
			return nil
		}
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	a, err := openApp(ctx, cmd, cfg, cfg.LogFile, false)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	err = a.store.DeleteCollection(ctx, cfg.Store.Collection)
	switch {
	case errors.Is(err, vectorstore.ErrCollectionNotFound):
		cmd.Printf("Collection %s does not exist.\n", cfg.Store.Collection)
	case err != nil:
		return fmt.Errorf("delete collection: %w", err)
	default:
		cmd.Printf("Deleted collection %s.\n", cfg.Store.Collection)
	}

	if a.graph != nil {
		if err := a.graph.Purge(ctx); err != nil {
			return fmt.Errorf("purge knowledge graph: %w", err)
		}
		cmd.Println("Purged knowledge graph.")
	}
	return nil
}

func confirmed(cmd *cobra.Command) bool {
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
