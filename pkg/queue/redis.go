package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"TradePulse/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// QueueMode controls which halves of the queue an instance runs.
type QueueMode int

const (
	ModeProducerConsumer QueueMode = iota
	ModeProducerOnly
	ModeConsumerOnly
)

func (m QueueMode) String() string {
	switch m {
	case ModeProducerOnly:
		return "producer-only"
	case ModeConsumerOnly:
		return "consumer-only"
	default:
		return "producer-consumer"
	}
}

const (
	defaultKeyPrefix = "tradepulse:queue"
	popBlock         = time.Second
	retrySweep       = 5 * time.Second
)

// RedisQueue is a Redis-list backed job queue with delayed retries and a
// dead-letter list for messages that exhaust their retry budget.
type RedisQueue struct {
	l         *logger.Logger
	cfg       *QueueConfig
	client    *redis.Client
	mode      QueueMode
	keyPrefix string

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix overrides the Redis key namespace.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(q *RedisQueue) {
		q.keyPrefix = prefix
	}
}

// NewRedisQueue creates a queue in the given mode. Consumer modes need at
// least one registered job before Start.
func NewRedisQueue(l *logger.Logger, cfg *QueueConfig, client *redis.Client, mode QueueMode, opts ...RedisQueueOption) *RedisQueue {
	if cfg == nil {
		cfg = &QueueConfig{}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &RedisQueue{
		l:         l,
		cfg:       cfg,
		client:    client,
		mode:      mode,
		keyPrefix: defaultKeyPrefix,
		jobs:      make(map[string]Job),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// RegisterJob binds a job to its message type. Duplicate registrations keep
// the first handler.
func (q *RedisQueue) RegisterJob(job Job) {
	if q.mode == ModeProducerOnly {
		q.l.Warn("job registration ignored in producer-only mode",
			logger.String("job", job.Name()))
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.jobs[job.Type()]; ok {
		q.l.Warn("job already registered", logger.String("job", job.Name()))
		return
	}
	q.jobs[job.Type()] = job
	q.l.Info("job registered",
		logger.String("job", job.Name()),
		logger.String("type", job.Type()))
}

// Start verifies the Redis connection and launches the worker pool.
func (q *RedisQueue) Start() error {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return errors.New("queue already running")
	}
	q.running = true
	q.mu.Unlock()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.client.Ping(pingCtx).Err(); err != nil {
		q.mu.Lock()
		q.running = false
		q.mu.Unlock()
		return fmt.Errorf("redis ping: %w", err)
	}

	if q.mode == ModeProducerOnly {
		q.l.Info("queue publisher ready", logger.String("addr", q.client.Options().Addr))
		return nil
	}

	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.workLoop(i)
	}
	q.wg.Add(1)
	go q.retryLoop()

	q.l.Info("queue started",
		logger.Int("workers", q.cfg.Workers),
		logger.String("mode", q.mode.String()),
		logger.String("addr", q.client.Options().Addr))
	return nil
}

// Stop cancels all workers and waits for them, bounded by ctx.
func (q *RedisQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	q.mu.Unlock()

	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("queue stop: %w", ctx.Err())
	case <-done:
		q.l.Info("queue stopped")
		return nil
	}
}

// Enqueue pushes a message onto the work list. In consumer modes the message
// type must have a registered job so typos surface at publish time.
func (q *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if !q.running {
		return errors.New("queue not running")
	}
	if q.mode != ModeProducerOnly {
		if _, ok := q.jobs[msgType]; !ok {
			return fmt.Errorf("no job registered for type %q", msgType)
		}
	}

	data, err := json.Marshal(Message{
		ID:        strconv.FormatInt(time.Now().UnixNano(), 10),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := q.client.LPush(ctx, q.workKey(), data).Err(); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}

// PublishMessage implements QueueService.
func (q *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	return q.Enqueue(ctx, msgType, payload)
}

func (q *RedisQueue) workLoop(id int) {
	defer q.wg.Done()
	q.l.Info("queue worker started", logger.Int("worker_id", id))

	for q.ctx.Err() == nil {
		res, err := q.client.BRPop(q.ctx, popBlock, q.workKey()).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			q.l.Error("queue pop", logger.Error(err))
			select {
			case <-q.ctx.Done():
			case <-time.After(popBlock):
			}
			continue
		}
		if len(res) < 2 {
			continue
		}

		var msg Message
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			q.l.Error("decode message", logger.Error(err))
			continue
		}
		q.dispatch(msg)
	}
	q.l.Info("queue worker stopped", logger.Int("worker_id", id))
}

func (q *RedisQueue) dispatch(msg Message) {
	q.mu.RLock()
	job, ok := q.jobs[msg.Type]
	q.mu.RUnlock()
	if !ok {
		q.l.Error("no job for message",
			logger.String("type", msg.Type),
			logger.String("id", msg.ID))
		return
	}

	start := time.Now()
	err := job.Handle(q.ctx, normalizePayload(msg.Payload))
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		q.l.Warn("job cancelled",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Int64("elapsed_ms", time.Since(start).Milliseconds()))
		return
	}

	q.l.Error("job failed",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts+1),
		logger.Error(err))

	if msg.Attempts >= q.cfg.RetryLimit {
		q.l.Error("retry budget exhausted",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()))
		q.push(q.deadKey(), msg)
		return
	}
	msg.Attempts++
	q.scheduleRetry(msg, time.Now().Add(q.cfg.RetryDelay))
}

// normalizePayload turns the generic JSON decoding of a payload back into raw
// JSON so jobs can unmarshal into their own types.
func normalizePayload(payload interface{}) interface{} {
	m, ok := payload.(map[string]interface{})
	if !ok {
		return payload
	}
	data, err := json.Marshal(m)
	if err != nil {
		return payload
	}
	return json.RawMessage(data)
}

func (q *RedisQueue) push(key string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		q.l.Error("marshal message", logger.Error(err))
		return
	}
	if err := q.client.LPush(context.Background(), key, data).Err(); err != nil {
		q.l.Error("queue push", logger.Error(err))
	}
}

func (q *RedisQueue) scheduleRetry(msg Message, at time.Time) {
	data, err := json.Marshal(msg)
	if err != nil {
		q.l.Error("marshal retry", logger.Error(err))
		return
	}
	err = q.client.ZAdd(context.Background(), q.retryKey(), redis.Z{
		Score:  float64(at.Unix()),
		Member: data,
	}).Err()
	if err != nil {
		q.l.Error("schedule retry", logger.Error(err))
		return
	}
	q.l.Info("retry scheduled",
		logger.String("id", msg.ID),
		logger.Int("attempt", msg.Attempts),
		logger.String("retry_at", at.Format(time.RFC3339)))
}

// retryLoop periodically moves due retries back onto the work list.
func (q *RedisQueue) retryLoop() {
	defer q.wg.Done()

	ticker := time.NewTicker(retrySweep)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			q.requeueDue()
		}
	}
}

func (q *RedisQueue) requeueDue() {
	due, err := q.client.ZRangeByScore(q.ctx, q.retryKey(), &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(time.Now().Unix(), 10),
	}).Result()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			q.l.Error("fetch due retries", logger.Error(err))
		}
		return
	}

	for _, member := range due {
		if q.ctx.Err() != nil {
			return
		}
		pipe := q.client.TxPipeline()
		pipe.ZRem(q.ctx, q.retryKey(), member)
		pipe.LPush(q.ctx, q.workKey(), member)
		if _, err := pipe.Exec(q.ctx); err != nil && !errors.Is(err, context.Canceled) {
			q.l.Error("requeue retry", logger.Error(err))
		}
	}
}

func (q *RedisQueue) workKey() string  { return q.keyPrefix + ":messages" }
func (q *RedisQueue) retryKey() string { return q.keyPrefix + ":retry" }
func (q *RedisQueue) deadKey() string  { return q.keyPrefix + ":dlq" }
