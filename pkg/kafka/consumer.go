package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"

	"baria-go/pkg/log"
	"baria-go/pkg/resilience"
	"baria-go/pkg/tasks"
)

// TaskProcessor handles one document task.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.DocumentProcessingTask) error
}

// AttemptCounter tracks failed attempts per task across redeliveries.
type AttemptCounter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// RedisAttempts stores attempt counters in Redis with a one-day expiry.
type RedisAttempts struct {
	RDB *redis.Client
}

func (a RedisAttempts) Incr(ctx context.Context, key string) (int64, error) {
	n, err := a.RDB.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	_ = a.RDB.Expire(ctx, key, 24*time.Hour).Err()
	return n, nil
}

func (a RedisAttempts) Reset(ctx context.Context, key string) error {
	return a.RDB.Del(ctx, key).Err()
}

// reader is the subset of *kafka.Reader the consumer uses.
type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer feeds document tasks to a TaskProcessor. A failing task is retried
// with back-off until maxAttempts is reached, then committed and dropped.
// Attempts are counted outside the process so redeliveries after a restart
// keep counting.
type Consumer struct {
	r           reader
	processor   TaskProcessor
	attempts    AttemptCounter
	maxAttempts int64
	backoff     time.Duration
	fetchRetry  resilience.RetryConfig
}

func NewConsumer(brokers, topic, groupID string, processor TaskProcessor, attempts AttemptCounter, maxAttempts int) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  splitBrokers(brokers),
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return newConsumer(r, processor, attempts, maxAttempts)
}

func newConsumer(r reader, processor TaskProcessor, attempts AttemptCounter, maxAttempts int) *Consumer {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Consumer{
		r:           r,
		processor:   processor,
		attempts:    attempts,
		maxAttempts: int64(maxAttempts),
		backoff:     2 * time.Second,
		fetchRetry:  resilience.RetryConfig{InitialDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2, JitterFraction: 0.2},
	}
}

// Run consumes until ctx is cancelled. Fetch errors are retried with
// exponential back-off.
func (c *Consumer) Run(ctx context.Context) {
	log.Info("[Kafka] consumer started")
	defer func() {
		if err := c.r.Close(); err != nil {
			log.Error("[Kafka] failed to close consumer", err)
		}
	}()
	failures := 0
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				log.Info("[Kafka] consumer stopped")
				return
			}
			failures++
			delay := c.fetchRetry.Delay(failures)
			log.Warnf("[Kafka] failed to fetch message (%d in a row), retrying in %s: %v", failures, delay, err)
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				log.Info("[Kafka] consumer stopped")
				return
			}
		}
		failures = 0
		c.handle(ctx, m)
	}
}

func (c *Consumer) handle(ctx context.Context, m kafka.Message) {
	var task tasks.DocumentProcessingTask
	if err := json.Unmarshal(m.Value, &task); err != nil {
		log.Errorf("[Kafka] dropping malformed message at offset %d: %v", m.Offset, err)
		c.commit(ctx, m)
		return
	}

	key := fmt.Sprintf("baria:kafka:attempts:%s", task.TaskID)
	var local int64
	for {
		log.Infof("[Kafka] processing task %s, document %d, file %s", task.TaskID, task.DocumentID, task.FileName)
		err := c.processor.Process(ctx, task)
		if err == nil {
			log.Infof("[Kafka] task %s done", task.TaskID)
			_ = c.attempts.Reset(ctx, key)
			c.commit(ctx, m)
			return
		}
		log.Errorf("[Kafka] task %s failed: %v", task.TaskID, err)

		local++
		n, incErr := c.attempts.Incr(ctx, key)
		if incErr != nil {
			log.Error("[Kafka] failed to count attempt", incErr)
			n = local
		}
		if n >= c.maxAttempts {
			log.Errorf("[Kafka] task %s failed %d times, giving up", task.TaskID, n)
			_ = c.attempts.Reset(ctx, key)
			c.commit(ctx, m)
			return
		}

		select {
		case <-time.After(c.backoff * time.Duration(n)):
		case <-ctx.Done():
			// uncommitted: redelivered after restart
			return
		}
	}
}

func (c *Consumer) commit(ctx context.Context, m kafka.Message) {
	if err := c.r.CommitMessages(ctx, m); err != nil {
		log.Error("[Kafka] failed to commit offset", err)
	}
}
