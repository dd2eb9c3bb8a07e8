package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Conduit/internal/domain"
)

// EventType — тип события.
type EventType string

// Типы событий.
const (
	EventTypeRunStarted   EventType = "run.started"
	EventTypeRunFinished  EventType = "run.finished"
	EventTypeStepFinished EventType = "step.finished"
)

// Publisher публикует события жизненного цикла run.
//
// Nil-безопасен: методы на nil-получателе молча ничего не делают,
// поэтому движок работает и без настроенного брокера. Ошибки публикации
// логируются и никогда не влияют на исход run.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Event — конверт публикуемого события.
type Event struct {
	// ID — уникальный идентификатор события.
	ID string `json:"id"`

	// Type — тип события.
	Type EventType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// RunPayload — payload событий run.started / run.finished.
type RunPayload struct {
	RunID      uuid.UUID        `json:"run_id"`
	ScriptName string           `json:"script_name"`
	Status     domain.RunStatus `json:"status"`
	Error      string           `json:"error,omitempty"`
}

// StepPayload — payload события step.finished.
type StepPayload struct {
	RunID    uuid.UUID `json:"run_id"`
	StepID   string    `json:"step_id"`
	StepName string    `json:"step_name"`
	Status   string    `json:"status"`
	Error    string    `json:"error,omitempty"`
}

// RunStarted публикует событие о старте run.
func (p *Publisher) RunStarted(ctx context.Context, run *domain.Run) {
	if p == nil {
		return
	}
	p.publish(ctx, ExchangeRuns, RoutingKeyRunStarted, EventTypeRunStarted, RunPayload{
		RunID:      run.ID,
		ScriptName: run.ScriptName,
		Status:     run.Status,
	})
}

// RunFinished публикует событие о завершении run.
func (p *Publisher) RunFinished(ctx context.Context, run *domain.Run) {
	if p == nil {
		return
	}
	p.publish(ctx, ExchangeRuns, RoutingKeyRunFinished, EventTypeRunFinished, RunPayload{
		RunID:      run.ID,
		ScriptName: run.ScriptName,
		Status:     run.Status,
		Error:      run.Error,
	})
}

// StepFinished публикует событие о завершении шага.
func (p *Publisher) StepFinished(ctx context.Context, runID uuid.UUID, stepID, stepName, status, errMsg string) {
	if p == nil {
		return
	}
	p.publish(ctx, ExchangeSteps, RoutingKeyStepFinished, EventTypeStepFinished, StepPayload{
		RunID:    runID,
		StepID:   stepID,
		StepName: stepName,
		Status:   status,
		Error:    errMsg,
	})
}

// publish сериализует и отправляет событие. Ошибки только логируются.
func (p *Publisher) publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, eventType EventType, payload any) {
	event := &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("marshal event", "type", eventType, "error", err)
		return
	}

	err = p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    event.ID,
				Timestamp:    event.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}
		return nil
	})
	if err != nil {
		p.logger.Warn("event not published", "type", eventType, "error", err)
		return
	}

	p.logger.Debug("published event",
		"exchange", exchange,
		"routing_key", routingKey,
		"event_id", event.ID,
		"type", eventType,
	)
}
