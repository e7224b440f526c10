package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var flagIndexForce bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the index for the configured document",
	Long: `Build the index for the configured document. An existing index is loaded
and reported unless --force is given, in which case it is rebuilt and replaced.`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&flagIndexForce, "force", false, "rebuild even if an index exists")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	embedder, idx, err := openIndex(ctx, cfg, logger, flagIndexForce)
	if err != nil {
		return err
	}
	defer embedder.Close()
	defer idx.Close()

	m := idx.Manifest()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Index: %s\n", idx.Dir())
	fmt.Fprintf(out, "Source: %s (%d pages)\n", m.Source.Path, m.Source.PageCount)
	fmt.Fprintf(out, "Chunks: %d\n", idx.Size())
	fmt.Fprintf(out, "Model: %s (%d dims)\n", m.Model, m.Dimensions)
	fmt.Fprintf(out, "Built: %s\n", m.CreatedAt)
	return nil
}
