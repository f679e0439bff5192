// Package dispatch routes accepted review requests onto two named
// append-only streams and consumes them with per-stream worker pools. The
// streams are backed by River job queues over Postgres, which gives the
// consumer-group redelivery semantics the ingress relies on.
package dispatch

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/zerolog/log"

	"github.com/reviewstream/pkg/models"
)

// ReviewJobArgs is the stream record: the serialised AsyncRequest.
type ReviewJobArgs struct {
	Request models.AsyncRequest `json:"request"`
}

// Kind identifies the job type for River.
func (ReviewJobArgs) Kind() string { return "review_request" }

// ReviewWorker consumes one stream's records and runs them through the
// pipeline.
type ReviewWorker struct {
	river.WorkerDefaults[ReviewJobArgs]
	pipeline *Pipeline
}

// Work processes one record. Pipeline failures are absorbed (the status
// store carries them), so every record is reported to River as done.
func (w *ReviewWorker) Work(ctx context.Context, job *river.Job[ReviewJobArgs]) error {
	return w.pipeline.Process(ctx, job.Args.Request)
}

// WorkerCounts sizes the two consumer pools.
type WorkerCounts struct {
	Diff    int
	Agentic int
}

// Dispatcher owns the producer side and the worker pools.
type Dispatcher struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
}

// NewDispatcher connects to Postgres and prepares both streams with their
// worker pools. Start must be called before records are consumed.
func NewDispatcher(databaseURL string, pipeline *Pipeline, counts WorkerCounts) (*Dispatcher, error) {
	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if counts.Diff < 1 {
		counts.Diff = 4
	}
	if counts.Agentic < 1 {
		counts.Agentic = 2
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &ReviewWorker{pipeline: pipeline})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			riverQueue(StreamDiffRequests):    {MaxWorkers: counts.Diff},
			riverQueue(StreamAgenticRequests): {MaxWorkers: counts.Agentic},
		},
		Workers: workers,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return &Dispatcher{client: client, pool: pool}, nil
}

// Start begins consuming both streams.
func (d *Dispatcher) Start(ctx context.Context) error {
	return d.client.Start(ctx)
}

// Stop drains in-flight jobs and shuts the pools down.
func (d *Dispatcher) Stop(ctx context.Context) error {
	err := d.client.Stop(ctx)
	d.pool.Close()
	return err
}

// Send appends the request to its mode's stream and returns the
// stream-assigned record id. Failures propagate to the caller; the status
// store is untouched on failure.
func (d *Dispatcher) Send(ctx context.Context, req models.AsyncRequest) (int64, error) {
	stream := StreamForMode(req.Mode)

	result, err := d.client.Insert(ctx, ReviewJobArgs{Request: req}, &river.InsertOpts{
		Queue: riverQueue(stream),
		// Redelivery is the stream's job; the worker never re-runs a
		// handled failure, so one attempt is all a record gets.
		MaxAttempts: 1,
	})
	if err != nil {
		return 0, &models.StreamError{Stream: stream, Cause: err}
	}

	log.Debug().
		Str("request_id", req.RequestID).
		Str("stream", stream).
		Int64("record_id", result.Job.ID).
		Msg("request appended to stream")

	return result.Job.ID, nil
}
