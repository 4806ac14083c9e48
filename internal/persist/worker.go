package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/quizbattle/quizbattle-go/internal/dependencies/clock"
	"github.com/quizbattle/quizbattle-go/internal/model"
	"github.com/quizbattle/quizbattle-go/internal/repository"
	"github.com/quizbattle/quizbattle-go/internal/store"
)

// WorkerConfig holds configuration for the persistence worker
type WorkerConfig struct {
	// PollInterval is how often the worker checks the queue
	PollInterval time.Duration
	// BatchSize bounds how many tasks one poll drains
	BatchSize int
	// MaxRetries is the retry ceiling before a task is dead-lettered
	MaxRetries int
}

// DefaultWorkerConfig returns default worker configuration
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval: 100 * time.Millisecond,
		BatchSize:    10,
		MaxRetries:   3,
	}
}

// Worker drains the persistence queue into the durable repository.
// Delivery is at least once; the repository's upserts absorb replays.
// Multiple workers may run concurrently against the same queue.
type Worker struct {
	store  store.Store
	repo   repository.Repository
	clock  clock.Clock
	cfg    WorkerConfig
	logger *slog.Logger
}

// NewWorker creates a new persistence worker
func NewWorker(st store.Store, repo repository.Repository, clk clock.Clock, cfg WorkerConfig, logger *slog.Logger) *Worker {
	def := DefaultWorkerConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	return &Worker{
		store:  st,
		repo:   repo,
		clock:  clk,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "worker")),
	}
}

// Run polls the queue until the context is cancelled
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("persistence worker started",
		slog.Duration("poll_interval", w.cfg.PollInterval),
		slog.Int("batch_size", w.cfg.BatchSize))

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("persistence worker stopping")
			return ctx.Err()
		case <-ticker.C:
			w.Drain(ctx)
		}
	}
}

// Close releases the worker's repository connection
func (w *Worker) Close() error {
	return w.repo.Close()
}

// Drain processes up to one batch of queued tasks
func (w *Worker) Drain(ctx context.Context) {
	tasks, err := w.store.PeekTasks(ctx, w.cfg.BatchSize)
	if err != nil {
		w.logger.Error("failed to peek tasks", slog.String("error", err.Error()))
		return
	}

	for _, task := range tasks {
		w.process(ctx, task)
	}
}

func (w *Worker) process(ctx context.Context, task model.Task) {
	err := w.dispatch(ctx, task)
	if err == nil {
		if ackErr := w.store.AckTask(ctx, task); ackErr != nil {
			w.logger.Error("failed to ack task",
				slog.String("task_id", string(task.ID)),
				slog.String("error", ackErr.Error()))
		}
		return
	}

	w.logger.Warn("task failed",
		slog.String("task_id", string(task.ID)),
		slog.String("type", string(task.Type)),
		slog.Int("retry_count", task.RetryCount),
		slog.String("error", err.Error()))

	// A task at the ceiling has already burned all of its retries;
	// this failure is its last.
	if task.RetryCount >= w.cfg.MaxRetries {
		dead := model.DeadTask{
			Task:      task,
			LastError: err.Error(),
			FailedAt:  w.clock.Now().UnixMilli(),
		}
		if dlErr := w.store.PushDeadLetter(ctx, dead); dlErr != nil {
			w.logger.Error("failed to dead-letter task",
				slog.String("task_id", string(task.ID)),
				slog.String("error", dlErr.Error()))
			return
		}
		if ackErr := w.store.AckTask(ctx, task); ackErr != nil {
			w.logger.Error("failed to remove dead task",
				slog.String("task_id", string(task.ID)),
				slog.String("error", ackErr.Error()))
		}
		w.logger.Error("task dead-lettered",
			slog.String("task_id", string(task.ID)),
			slog.String("type", string(task.Type)),
			slog.String("last_error", err.Error()))
		return
	}

	updated := task
	updated.RetryCount++
	if reqErr := w.store.RequeueTask(ctx, task, updated); reqErr != nil {
		w.logger.Error("failed to requeue task",
			slog.String("task_id", string(task.ID)),
			slog.String("error", reqErr.Error()))
	}
}

// dispatch routes one task to its repository write
func (w *Worker) dispatch(ctx context.Context, task model.Task) error {
	switch task.Type {
	case model.TaskRoomCreated:
		var payload model.RoomCreatedTaskPayload
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		return w.repo.CreateRoomRecord(ctx, payload.Room)

	case model.TaskRoomStatus:
		var payload model.RoomStatusTaskPayload
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		return w.repo.UpdateRoomStatus(ctx, payload.RoomID, payload.Status)

	case model.TaskRoomJoin, model.TaskRoomLeave, model.TaskPlayerReady, model.TaskPlayerEliminated:
		var payload model.MembershipTaskPayload
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		return w.repo.RecordMembershipEvent(ctx, payload.RoomID, payload.UserID, task.Type, payload.Round, payload.Timestamp)

	case model.TaskAnswer:
		var payload model.AnswerTaskPayload
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		if err := w.repo.RecordAnswer(ctx, payload); err != nil {
			return err
		}
		return w.repo.IncrementQuestionUsage(ctx, payload.QuestionID)

	case model.TaskRoomCompletion:
		var payload model.RoomCompletionTaskPayload
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		return w.repo.CompleteRoom(ctx, payload.RoomID, payload.WinnerID, payload.FinalScores, time.UnixMilli(payload.EndTime))

	default:
		return fmt.Errorf("unknown task type %q", task.Type)
	}
}
