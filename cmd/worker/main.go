package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/semaphore"

	"github.com/OFFIS-RIT/kiwi/characters/internal/bootstrap"
	"github.com/OFFIS-RIT/kiwi/characters/internal/config"
	"github.com/OFFIS-RIT/kiwi/characters/internal/queue"
	"github.com/OFFIS-RIT/kiwi/characters/internal/schedule"
	"github.com/OFFIS-RIT/kiwi/characters/internal/util"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/ai"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/leaselock"
	s3loader "github.com/OFFIS-RIT/kiwi/characters/pkg/loader/s3"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/logger"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/store/pgx"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(util.GetEnv("KIWI_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := bootstrap.InitLogger(cfg, "kiwi-worker"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	// postgres
	if err := pgx.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal("Failed to migrate database", "err", err)
	}
	pool, err := pgx.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pool.Close()
	db := pgx.New(pool)

	// s3
	s3Client, err := s3loader.NewClient(ctx, s3loader.ClientParams{
		Endpoint:  cfg.S3.Endpoint,
		Region:    cfg.S3.Region,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
	})
	if err != nil {
		logger.Fatal("Failed to create s3 client", "err", err)
	}
	books := s3loader.NewBookLoaderWithClient(cfg.S3.Bucket, s3Client)

	aiClient, err := bootstrap.NewAIClient(ctx, cfg.AI)
	if err != nil {
		logger.Fatal("Failed to create ai client", "err", err)
	}

	// rabbitmq
	dialPolicy := util.Backoff{MaxTries: 10, Base: time.Second, Max: 15 * time.Second}
	conn, err := util.RetryWithBackoff(ctx, dialPolicy, func(_ context.Context, attempt int) (*amqp091.Connection, error) {
		if attempt > 0 {
			logger.Warn("Retrying rabbitmq connection", "attempt", attempt+1)
		}
		return queue.Dial(cfg.AMQPURL())
	})
	if err != nil {
		logger.Fatal("Failed to connect to rabbitmq", "err", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()
	if err := queue.SetupQueues(ch, queue.Queues); err != nil {
		logger.Fatal("Failed to setup queues", "err", err)
	}
	publisher := queue.Synchronized(ch)

	progressCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open progress channel", "err", err)
	}
	defer progressCh.Close()

	runner, err := bootstrap.NewRunner(aiClient, bootstrap.Stores{
		Book:        db,
		Checkpoints: db,
		Pauses:      db,
		Embeddings:  db,
	}, queue.NewProgressPublisher(progressCh), cfg)
	if err != nil {
		logger.Fatal("Failed to create runner", "err", err)
	}

	hostname, _ := os.Hostname()
	handler := &queue.Handler{
		Runner:      runner,
		Loader:      books,
		Checkpoints: db,
		Locks:       leaselock.New(pool),
		LeaseTTL:    cfg.Worker.LeaseTTL,
		WorkerName:  fmt.Sprintf("%s-%d", hostname, os.Getpid()),
	}

	// stale run recovery
	recovery := &queue.RecoveryJob{
		Checkpoints: db,
		Publisher:   publisher,
		StaleAfter:  cfg.Worker.StaleAfter,
	}
	if err := recovery.Run(ctx); err != nil {
		logger.Error("Initial stale run recovery failed", "err", err)
	}
	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(recovery, cfg.Worker.RecoverySchedule); err != nil {
		logger.Fatal("Failed to schedule recovery", "err", err)
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	// Prefetch matches the number of runs this worker executes at once
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()
	if err := consumerCh.Qos(cfg.Worker.Concurrency, 0, false); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	type queuedMessage struct {
		msg       amqp091.Delivery
		queueName string
	}
	messageChan := make(chan queuedMessage)

	for _, queueName := range queue.Queues {
		msgs, err := consumerCh.Consume(
			queueName,
			queueName+"_consumer",
			false, // autoAck
			false, // exclusive
			false, // noLocal
			false, // noWait
			nil,   // args
		)
		if err != nil {
			logger.Fatal("Failed to start consuming", "queue", queueName, "err", err)
		}
		go func(qName string, msgs <-chan amqp091.Delivery) {
			for {
				select {
				case <-ctx.Done():
					logger.Info("Stopping consumer", "queue", qName)
					return
				case msg, ok := <-msgs:
					if !ok {
						logger.Info("Message channel closed", "queue", qName)
						stop()
						return
					}
					select {
					case messageChan <- queuedMessage{msg: msg, queueName: qName}:
					case <-ctx.Done():
						_ = msg.Nack(false, true)
						return
					}
				}
			}
		}(queueName, msgs)
	}

	logger.Info("Listening for messages", "queues", queue.Queues, "concurrency", cfg.Worker.Concurrency)

	sem := semaphore.NewWeighted(int64(cfg.Worker.Concurrency))
	var inFlight sync.WaitGroup

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case qm := <-messageChan:
			if err := sem.Acquire(ctx, 1); err != nil {
				_ = qm.msg.Nack(false, true)
				break loop
			}
			inFlight.Add(1)
			go func() {
				defer inFlight.Done()
				defer sem.Release(1)
				process(ctx, handler, publisher, aiClient, qm.msg, qm.queueName)
			}()
		}
	}

	logger.Info("Shutdown signal received, waiting for running messages")
	inFlight.Wait()
	logger.Info("Worker stopped")
}

// process runs one delivery. Runs interrupted by shutdown are left to the
// stale run recovery, their message is requeued.
func process(ctx context.Context, handler *queue.Handler, publisher queue.Publisher, client ai.Client, msg amqp091.Delivery, queueName string) {
	start := time.Now()
	logger.Info("Received message", "queue", queueName)

	err := handler.Handle(ctx, queueName, msg.Body)
	switch {
	case err == nil:
		if err := msg.Ack(false); err != nil {
			logger.Error("Failed to ack message", "err", err)
		}
		logger.Info("Message processed successfully", "queue", queueName)
	case ctx.Err() != nil:
		logger.Warn("Message interrupted by shutdown", "queue", queueName, "err", err)
		_ = msg.Nack(false, true)
	default:
		logger.Error("Error processing message", "queue", queueName, "err", err)
		queue.HandleProcessingError(publisher, msg, queueName)
	}

	bootstrap.LogMetrics(client, "queue", queueName, "duration", time.Since(start).Round(time.Second).String())
}
