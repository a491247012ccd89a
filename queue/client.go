package queue

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key layout. Every key lives under the shelf: prefix so a shared
// Redis instance stays navigable.
const (
	jobQueueKey   = "shelf:runs:queue"
	knownRunsKey  = "shelf:runs:known"
	workerCounter = "shelf:workers"
)

// heartbeatTTL is how long a worker counts as alive after its last
// heartbeat.
const heartbeatTTL = 30 * time.Second

// dequeueTimeout bounds each BRPOP so Dequeue can observe context
// cancellation between polls; an empty poll yields a nil job.
const dequeueTimeout = time.Second

// Client defines the interface for the Redis-backed run queue.
type Client interface {
	// Enqueue validates and pushes a run job onto the queue (LPUSH) and
	// records it in the run registry.
	Enqueue(ctx context.Context, job Job) error

	// Dequeue removes and returns the oldest pending job (BRPOP).
	// Blocks until a job is available or the context is cancelled.
	Dequeue(ctx context.Context) (*Job, error)

	// Publish sends a progress event to the run's channel.
	Publish(ctx context.Context, event Event) error

	// Subscribe follows the progress events of a run. The returned
	// channel closes when the context is cancelled.
	Subscribe(ctx context.Context, runID string) (<-chan Event, error)

	// SetRunState updates the registry record of a run.
	SetRunState(ctx context.Context, runID, state string) error

	// Run returns the registry record of one run.
	Run(ctx context.Context, runID string) (*RunMeta, error)

	// ListRuns returns the registry records of every known run.
	ListRuns(ctx context.Context) ([]RunMeta, error)

	// Heartbeat refreshes the liveness key of a worker.
	Heartbeat(ctx context.Context, workerID string) error

	// WorkerCount returns the number of registered workers.
	WorkerCount(ctx context.Context) (int, error)

	// IncrementWorkers registers one more worker.
	IncrementWorkers(ctx context.Context) error

	// DecrementWorkers deregisters one worker.
	DecrementWorkers(ctx context.Context) error

	// Close closes the Redis connection.
	Close() error
}

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL string

	// TLS configuration for secure connections
	TLS *tls.Config

	// ConnectTimeout is the maximum time to wait for connection establishment
	ConnectTimeout time.Duration

	// ReadTimeout is the maximum time to wait for read operations
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait for write operations
	WriteTimeout time.Duration
}

// RedisClient implements the Client interface using go-redis/v9.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient creates a new run queue client with the given options.
func NewRedisClient(opts RedisOptions) (*RedisClient, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}

	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}

	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 30 * time.Second
	}

	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	redisOpts.TLSConfig = opts.TLS
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout
	// Blocking commands (BRPOP in Dequeue) must honor caller context
	// cancellation, as the Client contract promises.
	redisOpts.ContextTimeoutEnabled = true

	client := redis.NewClient(redisOpts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{client: client}, nil
}

// Enqueue validates and pushes a run job onto the queue and records it in
// the run registry.
func (c *RedisClient) Enqueue(ctx context.Context, job Job) error {
	if job.SubmittedAt == 0 {
		job.SubmittedAt = time.Now().UnixMilli()
	}
	if err := job.IsValid(); err != nil {
		return fmt.Errorf("invalid job: %w", err)
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := c.client.LPush(ctx, jobQueueKey, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue run %s: %w", job.RunID, err)
	}

	meta := RunMeta{
		RunID:       job.RunID,
		InputDir:    job.InputDir,
		RunDir:      job.RunDir,
		State:       "queued",
		SubmittedAt: job.SubmittedAt,
	}
	return c.registerRun(ctx, meta)
}

// Dequeue removes and returns the oldest pending job.
// Blocks until a job is available or the context is cancelled.
func (c *RedisClient) Dequeue(ctx context.Context) (*Job, error) {
	// BRPOP returns [queue_name, value] or redis.Nil on timeout
	result, err := c.client.BRPop(ctx, dequeueTimeout, jobQueueKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue run: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP result length: %d", len(result))
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

// Publish sends a progress event to the run's channel.
func (c *RedisClient) Publish(ctx context.Context, event Event) error {
	if err := event.IsValid(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := c.client.Publish(ctx, eventsKey(event.RunID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish event for run %s: %w", event.RunID, err)
	}

	return nil
}

// Subscribe follows the progress events of a run.
func (c *RedisClient) Subscribe(ctx context.Context, runID string) (<-chan Event, error) {
	pubsub := c.client.Subscribe(ctx, eventsKey(runID))

	// Wait for subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("failed to subscribe to run %s: %w", runID, err)
	}

	eventChan := make(chan Event)

	go func() {
		defer close(eventChan)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					// Skip malformed payloads but keep the subscription alive
					continue
				}

				select {
				case eventChan <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return eventChan, nil
}

// registerRun writes the run record to its hash and adds the ID to the
// known set.
func (c *RedisClient) registerRun(ctx context.Context, meta RunMeta) error {
	if err := meta.IsValid(); err != nil {
		return fmt.Errorf("invalid run record: %w", err)
	}

	// All hash values must be strings for go-redis
	fields := map[string]string{
		"run_id":       meta.RunID,
		"input_dir":    meta.InputDir,
		"run_dir":      meta.RunDir,
		"state":        meta.State,
		"submitted_at": strconv.FormatInt(meta.SubmittedAt, 10),
	}

	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	if err := c.client.HSet(ctx, runKey(meta.RunID), args...).Err(); err != nil {
		return fmt.Errorf("failed to record run %s: %w", meta.RunID, err)
	}

	if err := c.client.SAdd(ctx, knownRunsKey, meta.RunID).Err(); err != nil {
		return fmt.Errorf("failed to add run %s to known set: %w", meta.RunID, err)
	}

	return nil
}

// SetRunState updates the registry record of a run.
func (c *RedisClient) SetRunState(ctx context.Context, runID, state string) error {
	if err := c.client.HSet(ctx, runKey(runID), "state", state).Err(); err != nil {
		return fmt.Errorf("failed to update state of run %s: %w", runID, err)
	}
	return nil
}

// Run returns the registry record of one run.
func (c *RedisClient) Run(ctx context.Context, runID string) (*RunMeta, error) {
	fields, err := c.client.HGetAll(ctx, runKey(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read run %s: %w", runID, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("run %s is not registered", runID)
	}
	meta := metaFromFields(fields)
	return &meta, nil
}

// ListRuns returns the registry records of every known run.
func (c *RedisClient) ListRuns(ctx context.Context) ([]RunMeta, error) {
	runIDs, err := c.client.SMembers(ctx, knownRunsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list known runs: %w", err)
	}

	runs := make([]RunMeta, 0, len(runIDs))

	for _, runID := range runIDs {
		fields, err := c.client.HGetAll(ctx, runKey(runID)).Result()
		if err != nil {
			// Skip runs with unreadable records
			continue
		}
		if len(fields) == 0 {
			continue
		}
		runs = append(runs, metaFromFields(fields))
	}

	return runs, nil
}

// Heartbeat refreshes the liveness key of a worker with a 30s TTL.
func (c *RedisClient) Heartbeat(ctx context.Context, workerID string) error {
	key := formatKeyName("shelf", "worker", workerID)
	if err := c.client.Set(ctx, key, "ok", heartbeatTTL).Err(); err != nil {
		return fmt.Errorf("failed to set heartbeat for worker %s: %w", workerID, err)
	}
	return nil
}

// WorkerCount returns the number of registered workers.
func (c *RedisClient) WorkerCount(ctx context.Context) (int, error) {
	countStr, err := c.client.Get(ctx, workerCounter).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get worker count: %w", err)
	}

	count, err := strconv.Atoi(countStr)
	if err != nil {
		return 0, fmt.Errorf("invalid worker count value: %w", err)
	}

	return count, nil
}

// IncrementWorkers registers one more worker.
func (c *RedisClient) IncrementWorkers(ctx context.Context) error {
	if err := c.client.Incr(ctx, workerCounter).Err(); err != nil {
		return fmt.Errorf("failed to increment worker count: %w", err)
	}
	return nil
}

// DecrementWorkers deregisters one worker.
func (c *RedisClient) DecrementWorkers(ctx context.Context) error {
	if err := c.client.Decr(ctx, workerCounter).Err(); err != nil {
		return fmt.Errorf("failed to decrement worker count: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *RedisClient) Close() error {
	return c.client.Close()
}

func metaFromFields(fields map[string]string) RunMeta {
	meta := RunMeta{
		RunID:    fields["run_id"],
		InputDir: fields["input_dir"],
		RunDir:   fields["run_dir"],
		State:    fields["state"],
	}
	if submitted, err := strconv.ParseInt(fields["submitted_at"], 10, 64); err == nil {
		meta.SubmittedAt = submitted
	}
	return meta
}

func runKey(runID string) string {
	return formatKeyName("shelf", "run", runID)
}

func eventsKey(runID string) string {
	return formatKeyName("shelf", "events", runID)
}

// formatKeyName keeps every key under the shelf:* naming pattern.
func formatKeyName(parts ...string) string {
	return strings.Join(parts, ":")
}
