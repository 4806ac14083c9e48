package question

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/quizbattle/quizbattle-go/internal/dependencies/random"
	"github.com/quizbattle/quizbattle-go/internal/model"
	"github.com/quizbattle/quizbattle-go/internal/store"
)

// Service is the question source: difficulty-keyed reads over the
// question sets held in the fast store.
type Service struct {
	store  store.Store
	random random.Random
	logger *slog.Logger
}

// New creates a new question service
func New(store store.Store, random random.Random, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		random: random,
		logger: logger.With(slog.String("component", "question")),
	}
}

// ByDifficulty returns a random question at or below the target level,
// or ErrNoQuestionsAvailable when the pool is empty.
func (s *Service) ByDifficulty(ctx context.Context, level model.Difficulty) (*model.Question, error) {
	var pool []model.Question
	for d := model.DifficultyEasy; d <= level; d++ {
		questions, err := s.store.QuestionsByDifficulty(ctx, d)
		if err != nil {
			return nil, err
		}
		pool = append(pool, questions...)
	}

	if len(pool) == 0 {
		return nil, model.ErrNoQuestionsAvailable
	}

	q := pool[s.random.Intn(len(pool))]
	return &q, nil
}

// LoadFromFile seeds the store's question sets from a JSON file
// containing an array of questions.
func (s *Service) LoadFromFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read questions file: %w", err)
	}

	var questions []model.Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return fmt.Errorf("parse questions file: %w", err)
	}

	if err := s.store.SaveQuestions(ctx, questions); err != nil {
		return err
	}

	s.logger.Info("questions loaded",
		slog.String("path", path),
		slog.Int("count", len(questions)))
	return nil
}
