package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/magicshelf/shelf/pipeline"
)

var queryShowSources bool

var queryCmd = &cobra.Command{
	Use:   "query <run-id> <question>",
	Short: "Ask a question against a completed run",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime()
		if err != nil {
			return err
		}
		defer rt.cleanup()

		runDir := filepath.Join(rt.cfg.Pipeline.GetRunsDir(), args[0])
		question := strings.Join(args[1:], " ")

		q, err := pipeline.NewQuerier(runDir, rt.completer, rt.embedder, rt.logger)
		if err != nil {
			return err
		}

		result, err := q.WithTopK(rt.cfg.Pipeline.GetSimilarityTopK()).Query(cmd.Context(), question)
		rt.printUsage()
		if err != nil {
			return err
		}

		fmt.Fprintln(os.Stdout, result.Answer)
		if queryShowSources {
			fmt.Fprintln(os.Stdout)
			for _, src := range result.Sources {
				fmt.Fprintf(os.Stdout, "  [%.3f] %s\n", src.Score, src.Node.ID)
			}
		}
		return nil
	},
}

func init() {
	queryCmd.Flags().BoolVar(&queryShowSources, "sources", false, "print the retrieved source nodes after the answer")
	rootCmd.AddCommand(queryCmd)
}
