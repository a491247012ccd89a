package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/magicshelf/shelf/pipeline"
	"github.com/magicshelf/shelf/queue"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume queued runs and execute them",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime()
		if err != nil {
			return err
		}
		defer rt.cleanup()

		if !rt.cfg.Queue.IsEnabled() {
			return fmt.Errorf("the run queue is disabled; set queue.enabled in shelf.yaml")
		}

		client, err := queue.NewRedisClient(queue.RedisOptions{URL: rt.cfg.Queue.GetURL()})
		if err != nil {
			return err
		}
		defer client.Close()

		w := queue.NewWorker(client, rt.logger, func(ctx context.Context, job queue.Job) error {
			p := pipeline.New(rt.pipelineConfig(job.InputDir, job.RunDir), rt.completer, rt.embedder, rt.logger)
			return p.Run(ctx, pipeline.NewStatus(job.RunID))
		})
		return w.Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
