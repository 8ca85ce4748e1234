package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// TypeProcessDocument is the task type for one document's pipeline run.
const TypeProcessDocument = "document:process"

const queueName = "documents"

// ProcessPayload is the task payload carried through Redis.
type ProcessPayload struct {
	DocumentID int64 `json:"document_id"`
	UseAI      bool  `json:"use_ai"`
}

// Client enqueues document processing jobs. Library-level retry is disabled:
// the pipeline owns the retry policy and reschedules explicitly with its own
// backoff, keeping the retry counter in the job state authoritative.
type Client struct {
	inner  *asynq.Client
	logger *slog.Logger
}

func NewClient(redisAddr string, logger *slog.Logger) *Client {
	return &Client{
		inner:  asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr}),
		logger: logger,
	}
}

func (c *Client) Close() error {
	return c.inner.Close()
}

// EnqueueProcess queues a document for immediate processing and returns the
// queue task id.
func (c *Client) EnqueueProcess(ctx context.Context, documentID int64, useAI bool) (string, error) {
	return c.enqueue(ctx, documentID, useAI, 0)
}

// ScheduleRetry re-queues a document after the given backoff delay.
func (c *Client) ScheduleRetry(ctx context.Context, documentID int64, useAI bool, delay time.Duration) error {
	_, err := c.enqueue(ctx, documentID, useAI, delay)
	return err
}

func (c *Client) enqueue(ctx context.Context, documentID int64, useAI bool, delay time.Duration) (string, error) {
	payload, err := json.Marshal(ProcessPayload{DocumentID: documentID, UseAI: useAI})
	if err != nil {
		return "", fmt.Errorf("failed to marshal task payload: %w", err)
	}

	opts := []asynq.Option{
		asynq.Queue(queueName),
		asynq.MaxRetry(0),
	}
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}

	info, err := c.inner.EnqueueContext(ctx, asynq.NewTask(TypeProcessDocument, payload), opts...)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue document %d: %w", documentID, err)
	}

	c.logger.Info("Enqueued document processing task",
		slog.Int64("document_id", documentID),
		slog.String("task_id", info.ID),
		slog.Duration("delay", delay))
	return info.ID, nil
}

// ProcessFunc runs one document's pipeline. taskID is the queue's identifier
// for this delivery, recorded on the job state.
type ProcessFunc func(ctx context.Context, documentID int64, useAI bool, taskID string) error

// Worker pulls document jobs off the queue and hands them to the pipeline.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

func NewWorker(redisAddr string, concurrency int, process ProcessFunc, logger *slog.Logger) *Worker {
	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr},
		asynq.Config{
			Concurrency: concurrency,
			Queues:      map[string]int{queueName: 10},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeProcessDocument, func(ctx context.Context, t *asynq.Task) error {
		var p ProcessPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("failed to decode task payload: %w", err)
		}
		taskID, _ := asynq.GetTaskID(ctx)
		return process(ctx, p.DocumentID, p.UseAI, taskID)
	})

	return &Worker{
		server: server,
		mux:    mux,
		logger: logger,
	}
}

func (w *Worker) Start() error {
	w.logger.Info("Starting document processing worker")
	return w.server.Start(w.mux)
}

func (w *Worker) Shutdown() {
	w.server.Shutdown()
}
