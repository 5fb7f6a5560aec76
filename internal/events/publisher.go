package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/courseware/internal/quiz"
)

// EventQuizCompleted is the type of QuizCompleted events
const EventQuizCompleted = "quiz.attempt.completed"

// QuizCompleted is published after a quiz result is recorded
type QuizCompleted struct {
	ID               uuid.UUID `json:"id"`
	Type             string    `json:"type"`
	TopicID          string    `json:"topic_id"`
	Score            int       `json:"score"`
	TotalQuestions   int       `json:"total_questions"`
	Percent          int       `json:"percent"`
	Passed           bool      `json:"passed"`
	CompletionTimeMS int64     `json:"completion_time_ms"`
	CompletedAt      time.Time `json:"completed_at"`
}

// jsonPublisher is implemented by Connection
type jsonPublisher interface {
	PublishJSON(ctx context.Context, queue string, data any) error
}

// Publisher turns recorded quiz results into events
type Publisher struct {
	conn   jsonPublisher
	queue  string
	logger *slog.Logger
}

// NewPublisher creates a publisher writing to queue (DefaultQueue if empty)
func NewPublisher(conn *Connection, queue string, logger *slog.Logger) *Publisher {
	return newPublisher(conn, queue, logger)
}

func newPublisher(conn jsonPublisher, queue string, logger *slog.Logger) *Publisher {
	if queue == "" {
		queue = DefaultQueue
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, queue: queue, logger: logger}
}

// NewQuizCompleted builds the event for result
func NewQuizCompleted(result quiz.AttemptResult) QuizCompleted {
	return QuizCompleted{
		ID:               uuid.New(),
		Type:             EventQuizCompleted,
		TopicID:          result.TopicID,
		Score:            result.Score,
		TotalQuestions:   result.TotalQuestions,
		Percent:          result.Percent(),
		Passed:           result.Passed,
		CompletionTimeMS: result.CompletionTime,
		CompletedAt:      result.CompletedAt().UTC(),
	}
}

// PublishResult publishes a QuizCompleted event for result
func (p *Publisher) PublishResult(ctx context.Context, result quiz.AttemptResult) error {
	event := NewQuizCompleted(result)

	if err := p.conn.PublishJSON(ctx, p.queue, event); err != nil {
		return fmt.Errorf("failed to publish quiz result: %w", err)
	}

	p.logger.Info("published quiz result",
		"event_id", event.ID,
		"topic_id", event.TopicID,
		"passed", event.Passed,
	)

	return nil
}

var _ quiz.ResultPublisher = (*Publisher)(nil)
