package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/quizbattle/quizbattle-go/internal/dependencies/clock"
	"github.com/quizbattle/quizbattle-go/internal/dependencies/random"
	"github.com/quizbattle/quizbattle-go/internal/model"
	"github.com/quizbattle/quizbattle-go/internal/store"
)

const taskIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Pipeline is the write side of the persistence queue. Enqueue never
// returns an error to the gameplay path: a failed enqueue is logged
// and the event is lost rather than the game stalled.
type Pipeline struct {
	store  store.Store
	clock  clock.Clock
	random random.Random
	logger *slog.Logger
}

// NewPipeline creates a new persistence pipeline
func NewPipeline(st store.Store, clk clock.Clock, rnd random.Random, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		store:  st,
		clock:  clk,
		random: rnd,
		logger: logger.With(slog.String("component", "persist")),
	}
}

// Enqueue appends a task to the durable work queue
func (p *Pipeline) Enqueue(ctx context.Context, taskType model.TaskType, payload any, priority int) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("failed to marshal task payload",
			slog.String("type", string(taskType)),
			slog.String("error", err.Error()))
		return
	}

	task := &model.Task{
		ID:        p.newTaskID(),
		Type:      taskType,
		Payload:   data,
		CreatedAt: p.clock.Now().UnixMilli(),
		Priority:  priority,
	}

	if err := p.store.EnqueueTask(ctx, task); err != nil {
		p.logger.Error("failed to enqueue task",
			slog.String("task_id", string(task.ID)),
			slog.String("type", string(taskType)),
			slog.String("error", err.Error()))
	}
}

func (p *Pipeline) newTaskID() model.TaskID {
	return model.TaskID(fmt.Sprintf("task_%d_%s",
		p.clock.Now().UnixMilli(),
		p.random.String(8, taskIDAlphabet)))
}
