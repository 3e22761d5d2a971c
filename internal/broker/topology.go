package broker

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/franz/music-pipeline/internal/pipeline"
)

// EnsureTopology declares the job exchange and one durable queue per stage,
// plus the retry exchange and the per-stage parking queues that dead-letter
// expired messages back into the stage queue. Every call passes identical
// arguments, so it is safe to run from every worker at startup.
func EnsureTopology(ch Declarer) error {
	if err := ch.ExchangeDeclare(pipeline.Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", pipeline.Exchange, err)
	}
	if err := ch.ExchangeDeclare(pipeline.RetryExchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", pipeline.RetryExchange, err)
	}

	for _, stage := range pipeline.Stages() {
		if _, err := ch.QueueDeclare(stage.QueueName(), true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", stage.QueueName(), err)
		}
		if err := ch.QueueBind(stage.QueueName(), stage.RoutingKey(), pipeline.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", stage.QueueName(), err)
		}

		if _, err := ch.QueueDeclare(stage.RetryQueueName(), true, false, false, false, retryQueueArgs(stage)); err != nil {
			return fmt.Errorf("declare queue %s: %w", stage.RetryQueueName(), err)
		}
		if err := ch.QueueBind(stage.RetryQueueName(), stage.RoutingKey(), pipeline.RetryExchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", stage.RetryQueueName(), err)
		}
	}
	return nil
}

func retryQueueArgs(stage pipeline.Stage) amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    pipeline.Exchange,
		"x-dead-letter-routing-key": stage.RoutingKey(),
	}
}
