package main

import (
	"github.com/spf13/cobra"

	"github.com/magicshelf/shelf/queue"
	"github.com/magicshelf/shelf/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the shelf HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime()
		if err != nil {
			return err
		}
		defer rt.cleanup()

		var runQueue queue.Client
		if rt.cfg.Queue.IsEnabled() {
			runQueue, err = queue.NewRedisClient(queue.RedisOptions{URL: rt.cfg.Queue.GetURL()})
			if err != nil {
				return err
			}
			defer runQueue.Close()
			rt.logger.Info("run queue enabled", "url", rt.cfg.Queue.GetURL())
		}

		srv, err := server.New(server.Config{
			Addr:            rt.cfg.Server.GetAddr(),
			RunsDir:         rt.cfg.Pipeline.GetRunsDir(),
			Pipeline:        rt.pipelineConfig("", ""),
			QueryTopK:       rt.cfg.Server.GetQueryTopK(),
			GracefulTimeout: rt.cfg.Server.GetGracefulTimeout(),
		}, rt.completer, rt.embedder, runQueue, rt.logger)
		if err != nil {
			return err
		}

		return srv.Serve(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
