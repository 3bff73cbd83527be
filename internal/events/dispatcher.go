package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/openlms/quiz-api/internal/models"
)

// Domain event names emitted by the attempt lifecycle.
const (
	EventAttemptStarted        = "attempt_started"
	EventAttemptPreviewStarted = "attempt_preview_started"
	EventAttemptDeleted        = "attempt_deleted"
)

// Event is a named domain event with structured payload and before/after
// snapshots of the attempt record.
type Event struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	QuizID     uint                   `json:"quiz_id"`
	UserID     uint                   `json:"user_id"`
	AttemptID  uint                   `json:"attempt_id"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	Before     *models.Attempt        `json:"before,omitempty"`
	After      *models.Attempt        `json:"after,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// StateChange is the typed hook fired on every attempt state transition. Old
// is nil for brand-new records, New is nil on deletion.
type StateChange struct {
	Old *models.Attempt
	New *models.Attempt
}

// StateHook receives state transition notifications synchronously.
type StateHook func(ctx context.Context, change StateChange)

// Dispatcher delivers domain events and state-change hooks. Injected into the
// lifecycle manager so tests can substitute a recording fake.
type Dispatcher interface {
	Fire(ctx context.Context, event Event) error
	NotifyStateChange(ctx context.Context, change StateChange)
}

// NATSDispatcher publishes domain events to NATS and fans state changes out
// to registered in-process hooks.
type NATSDispatcher struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger

	mu    sync.RWMutex
	hooks []StateHook
}

// NewDispatcher builds the NATS-backed dispatcher. A nil connection is
// allowed; events are then delivered to in-process hooks only.
func NewDispatcher(conn *nats.Conn, subjectBase string, logger zerolog.Logger) *NATSDispatcher {
	if subjectBase == "" {
		subjectBase = "quiz.attempts"
	}

	return &NATSDispatcher{
		conn:    conn,
		subject: subjectBase,
		logger:  logger.With().Str("component", "event_dispatcher").Logger(),
	}
}

// RegisterStateHook adds an in-process subscriber for state transitions.
func (d *NATSDispatcher) RegisterStateHook(hook StateHook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks = append(d.hooks, hook)
}

func (d *NATSDispatcher) Fire(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	if d.conn == nil {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := d.conn.Publish(d.subject+"."+event.Name, payload); err != nil {
		d.logger.Warn().Err(err).Str("event", event.Name).Msg("failed to publish domain event")
		return err
	}

	return nil
}

func (d *NATSDispatcher) NotifyStateChange(ctx context.Context, change StateChange) {
	d.mu.RLock()
	hooks := make([]StateHook, len(d.hooks))
	copy(hooks, d.hooks)
	d.mu.RUnlock()

	for _, hook := range hooks {
		hook(ctx, change)
	}
}
