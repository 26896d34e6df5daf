package queue

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Publisher sends AuthEvents to ActivityQueue.  A Publisher with an empty
// URL drops every event, which is how the activity stream is disabled.
type Publisher struct {
	url string
	log *logrus.Entry
}

func NewPublisher(url string, log *logrus.Entry) *Publisher {
	return &Publisher{url: url, log: log}
}

// Enabled reports whether events leave the process.
func (p *Publisher) Enabled() bool { return p != nil && p.url != "" }

// Publish delivers ev as a persistent JSON message.  Errors are logged and
// returned so the caller can choose to ignore them.
func (p *Publisher) Publish(ctx context.Context, ev AuthEvent) error {
	if !p.Enabled() {
		return nil
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	conn, err := dial(ctx, p.url)
	if err != nil {
		p.log.WithError(err).Warn("rabbitmq: dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.WithError(err).Warn("rabbitmq: channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	if err := declare(ch); err != nil {
		p.log.WithError(err).Warn("rabbitmq: queue declare failed")
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.EventID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", ActivityQueue, false, false, pub); err != nil {
		p.log.WithError(err).WithField("event_id", ev.EventID).Warn("rabbitmq: publish failed")
		return err
	}
	return nil
}

func declare(ch *amqp.Channel) error {
	_, err := ch.QueueDeclare(
		ActivityQueue, // name
		true,          // durable
		false,         // autoDelete
		false,         // exclusive
		false,         // noWait
		nil,           // args
	)
	return err
}
