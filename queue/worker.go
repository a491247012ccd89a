package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Handler executes one dequeued run job.
type Handler func(ctx context.Context, job Job) error

// heartbeatInterval keeps the worker's liveness key comfortably inside
// the TTL.
const heartbeatInterval = 10 * time.Second

// Worker consumes run jobs from the queue and executes them one at a
// time, reporting progress through the run registry and the events
// channel.
type Worker struct {
	client  Client
	handler Handler
	id      string
	logger  *slog.Logger
}

// NewWorker creates a worker with a fresh worker ID.
func NewWorker(client Client, logger *slog.Logger, handler Handler) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		client:  client,
		handler: handler,
		id:      uuid.NewString(),
		logger:  logger,
	}
}

// ID returns the worker's unique identifier.
func (w *Worker) ID() string {
	return w.id
}

// Run consumes jobs until the context is cancelled. Job failures are
// recorded and published but do not stop the worker.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.client.IncrementWorkers(ctx); err != nil {
		return err
	}
	defer func() {
		// Deregister with a fresh context so cancellation does not leak
		// a phantom worker.
		cleanup, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.client.DecrementWorkers(cleanup); err != nil {
			w.logger.Warn("failed to deregister worker", "worker_id", w.id, "error", err)
		}
	}()

	stopBeat := w.startHeartbeat(ctx)
	defer stopBeat()

	w.logger.Info("worker started", "worker_id", w.id)

	for {
		job, err := w.client.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if job == nil {
			continue
		}

		w.process(ctx, *job)

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (w *Worker) process(ctx context.Context, job Job) {
	w.logger.Info("picked up run", "run_id", job.RunID, "worker_id", w.id, "wait", job.Age())

	w.report(ctx, job.RunID, "running", "")

	err := w.handler(ctx, job)
	if err != nil {
		w.logger.Error("run failed", "run_id", job.RunID, "error", err)
		w.report(ctx, job.RunID, "failed", err.Error())
		return
	}

	w.logger.Info("run completed", "run_id", job.RunID)
	w.report(ctx, job.RunID, "completed", "")
}

func (w *Worker) report(ctx context.Context, runID, state, errMsg string) {
	if err := w.client.SetRunState(ctx, runID, state); err != nil {
		w.logger.Warn("failed to record run state", "run_id", runID, "error", err)
	}
	event := Event{
		RunID:    runID,
		State:    state,
		Error:    errMsg,
		WorkerID: w.id,
		At:       time.Now().UnixMilli(),
	}
	if err := w.client.Publish(ctx, event); err != nil {
		w.logger.Warn("failed to publish run event", "run_id", runID, "error", err)
	}
}

func (w *Worker) startHeartbeat(ctx context.Context) func() {
	beatCtx, cancel := context.WithCancel(ctx)

	if err := w.client.Heartbeat(ctx, w.id); err != nil {
		w.logger.Warn("heartbeat failed", "worker_id", w.id, "error", err)
	}

	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-beatCtx.Done():
				return
			case <-ticker.C:
				if err := w.client.Heartbeat(beatCtx, w.id); err != nil {
					w.logger.Warn("heartbeat failed", "worker_id", w.id, "error", err)
				}
			}
		}
	}()

	return cancel
}
