package events

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeRuns  Exchange = "conduit.runs"
	ExchangeSteps Exchange = "conduit.steps"
)

// Routing keys.
const (
	RoutingKeyRunStarted   RoutingKey = "run.started"
	RoutingKeyRunFinished  RoutingKey = "run.finished"
	RoutingKeyStepFinished RoutingKey = "step.finished"
)

// SetupTopology объявляет обменники событий. Очереди не объявляются:
// подписчики внешние и сами привязывают свои очереди.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range []Exchange{ExchangeRuns, ExchangeSteps} {
			err := ch.ExchangeDeclare(
				string(ex), // name
				"topic",    // type
				true,       // durable
				false,      // auto-deleted
				false,      // internal
				false,      // no-wait
				nil,        // arguments
			)
			if err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex, err)
			}
		}
		return nil
	})
}
