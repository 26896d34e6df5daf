package queue

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DialTimeout bounds the TCP connect and AMQP handshake.  amqp.Dial on its
// own waits up to 30s.
const DialTimeout = 5 * time.Second

// dialBudget is DialTimeout, shortened to whatever is left of ctx.
func dialBudget(ctx context.Context) time.Duration {
	budget := DialTimeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < budget {
			budget = left
		}
	}
	if budget < 10*time.Millisecond {
		budget = 10 * time.Millisecond
	}
	return budget
}

func dial(ctx context.Context, url string) (*amqp.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialBudget(ctx)),
	})
}
