// Command shelf builds and serves hierarchical knowledge shelves from raw
// documents.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "shelf",
	Short: "Build and query LLM-organized document shelves",
	Long: `shelf ingests raw documents, invents a hierarchical classification
system for them, and files every document with summaries, types, tags
and similarity links. The resulting shelf can be queried with a hybrid
of embedding search and LLM-guided classification lookup.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"path to shelf.yaml (default: search upward from the working directory)")
}
