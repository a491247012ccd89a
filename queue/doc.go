// Package queue provides Redis-based job queue primitives for background
// pipeline runs.
//
// Launching a run through the API returns immediately; the actual work is
// pushed onto a Redis list and consumed by a worker. Progress flows back
// through a per-run pub/sub channel, and a run registry keeps every run
// discoverable across restarts.
//
// # Redis Key Schema
//
//   - shelf:runs:queue - list of pending run jobs (LPUSH/BRPOP)
//   - shelf:runs:known - set of every run ID ever enqueued
//   - shelf:run:<id> - hash with the run's input dir, run dir and state
//   - shelf:worker:<id> - string with a 30s TTL for worker heartbeats
//   - shelf:workers - integer counter of active workers
//   - shelf:events:<id> - pub/sub channel for run progress events
//
// # Usage
//
// Enqueuing a run:
//
//	client, err := queue.NewRedisClient(queue.RedisOptions{URL: "redis://localhost:6379"})
//	err = client.Enqueue(ctx, queue.Job{
//		RunID:    "run-123",
//		InputDir: "/data/documents",
//		RunDir:   "/data/runs/run-123",
//	})
//
// Consuming runs in a worker:
//
//	worker := queue.NewWorker(client, logger, func(ctx context.Context, job queue.Job) error {
//		return buildShelf(ctx, job)
//	})
//	err = worker.Run(ctx)
//
// Following a run's progress:
//
//	events, err := client.Subscribe(ctx, "run-123")
//	for event := range events {
//		fmt.Printf("%s: %s\n", event.State, event.Stage)
//	}
//
// RedisClient is safe for concurrent use by multiple goroutines.
package queue
