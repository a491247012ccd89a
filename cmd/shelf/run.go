package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/magicshelf/shelf/pipeline"
)

var (
	runInputDir string
	runID       string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build a shelf from a directory of documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime()
		if err != nil {
			return err
		}
		defer rt.cleanup()

		if runID == "" {
			runID = "run_" + time.Now().UTC().Format("20060102T150405")
		}
		runDir := filepath.Join(rt.cfg.Pipeline.GetRunsDir(), runID)

		p := pipeline.New(rt.pipelineConfig(runInputDir, runDir), rt.completer, rt.embedder, rt.logger)
		status := pipeline.NewStatus(runID)

		err = p.Run(cmd.Context(), status)
		rt.printUsage()
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "run %s completed, artifacts in %s\n", runID, runDir)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runInputDir, "input", "", "directory of .txt and .md documents to ingest")
	runCmd.Flags().StringVar(&runID, "run-id", "", "run identifier (default: timestamp-based)")
	_ = runCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(runCmd)
}
