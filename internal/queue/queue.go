package queue

import (
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/OFFIS-RIT/kiwi/characters/pkg/logger"
)

const (
	AnalyzeQueue = "analyze_queue"
	ResumeQueue  = "resume_queue"

	ProgressExchange = "pubsub_exchange"

	retryTTL   = int32(10000)
	maxRetries = 10
)

// Queues are the work queues a worker consumes.
var Queues = []string{AnalyzeQueue, ResumeQueue}

// Publisher is the publishing side of an AMQP channel.
type Publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

type syncPublisher struct {
	mu sync.Mutex
	ch Publisher
}

// Synchronized serializes publishes of concurrent handlers on one channel.
func Synchronized(ch Publisher) Publisher {
	return &syncPublisher{ch: ch}
}

func (p *syncPublisher) Publish(exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.Publish(exchange, key, mandatory, immediate, msg)
}

// Declarer is the topology side of an AMQP channel.
type Declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
}

func Dial(url string) (*amqp091.Connection, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	return conn, nil
}

// SetupQueues declares the progress exchange and, for every work queue, a
// dead letter queue and a retry queue whose messages expire back into it.
func SetupQueues(ch Declarer, queueNames []string) error {
	err := ch.ExchangeDeclare(
		ProgressExchange,
		"topic",
		false, // durable
		true,  // autoDelete
		false, // internal
		false, // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", ProgressExchange, err)
	}

	for _, name := range queueNames {
		decls := []struct {
			name string
			args amqp091.Table
		}{
			{name, nil},
			{name + "_dlq", nil},
			{name + "_retry", amqp091.Table{
				"x-message-ttl":             retryTTL,
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": name,
			}},
		}
		for _, d := range decls {
			_, err := ch.QueueDeclare(
				d.name,
				true,  // durable
				false, // autoDelete
				false, // exclusive
				false, // noWait
				d.args,
			)
			if err != nil {
				return fmt.Errorf("declare queue %s: %w", d.name, err)
			}
		}
		logger.Debug("[Queue] Declared queue", "queue", name)
	}
	return nil
}

// PublishFIFO sends a persistent message to a work queue.
func PublishFIFO(ch Publisher, queueName string, data []byte) error {
	return ch.Publish(
		"",
		queueName,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         data,
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
		},
	)
}

// PublishTopic sends a transient notification to the progress exchange.
func PublishTopic(ch Publisher, topic string, data []byte) error {
	return ch.Publish(
		ProgressExchange,
		topic,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         data,
			DeliveryMode: amqp091.Transient,
			Timestamp:    time.Now(),
		},
	)
}
