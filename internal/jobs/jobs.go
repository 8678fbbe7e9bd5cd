package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"attendboard/internal/metrics"
	"attendboard/internal/model"
	"attendboard/internal/queue"
	"attendboard/internal/seed"
)

const lastSeedKey = "seed:last"

// Seeder runs one seeding pass.
type Seeder interface {
	Run(ctx context.Context) (seed.Result, error)
}

// Snapshotter archives today's reconciliation.
type Snapshotter interface {
	Snapshot(ctx context.Context) (model.DailySummary, error)
}

// ResultStore keeps the outcome of the last seed run, in Redis when available.
type ResultStore struct {
	client *redis.Client

	mu   sync.RWMutex
	last *seed.Result
}

// NewResultStore builds a store; a nil client keeps results in process memory.
func NewResultStore(client *redis.Client) *ResultStore {
	return &ResultStore{client: client}
}

// Save records res as the latest run.
func (s *ResultStore) Save(ctx context.Context, res seed.Result) error {
	if s.client == nil {
		s.mu.Lock()
		s.last = &res
		s.mu.Unlock()
		return nil
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, lastSeedKey, payload, 0).Err()
}

// Last returns the latest run; ok is false when nothing was recorded.
func (s *ResultStore) Last(ctx context.Context) (res seed.Result, ok bool, err error) {
	if s.client == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if s.last == nil {
			return seed.Result{}, false, nil
		}
		return *s.last, true, nil
	}
	raw, err := s.client.Get(ctx, lastSeedKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return seed.Result{}, false, nil
	}
	if err != nil {
		return seed.Result{}, false, err
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return seed.Result{}, false, fmt.Errorf("decode last seed result: %w", err)
	}
	return res, true, nil
}

// Enqueue publishes a job and returns its id.
func Enqueue(ctx context.Context, q queue.Queue, typ string) (string, error) {
	switch typ {
	case queue.TypeSeed, queue.TypeSnapshot:
	default:
		return "", fmt.Errorf("unknown job type %q", typ)
	}
	msg := queue.NewMessage(typ, nil)
	if err := q.Publish(ctx, msg); err != nil {
		return "", fmt.Errorf("publish %s job: %w", typ, err)
	}
	return msg.ID, nil
}

// Runner consumes the queue and executes jobs one at a time.
type Runner struct {
	queue    queue.Queue
	seeder   Seeder
	snapshot Snapshotter
	results  *ResultStore
	logger   zerolog.Logger
}

// NewRunner wires a runner. snapshot may be nil when no archive is configured.
func NewRunner(q queue.Queue, seeder Seeder, snapshot Snapshotter, results *ResultStore, logger zerolog.Logger) *Runner {
	return &Runner{
		queue:    q,
		seeder:   seeder,
		snapshot: snapshot,
		results:  results,
		logger:   logger.With().Str("component", "job_runner").Logger(),
	}
}

// Run blocks until ctx is done or the queue closes.
func (r *Runner) Run(ctx context.Context) error {
	messages, err := r.queue.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init failed: %w", err)
	}
	r.logger.Info().Msg("worker started, waiting for messages")
	for msg := range messages {
		start := time.Now()
		log := r.logger.With().Str("job_id", msg.ID).Str("type", msg.Type).Logger()
		outcome := "ok"
		if err := r.Handle(ctx, msg); err != nil {
			outcome = "error"
			log.Error().Err(err).Dur("took", time.Since(start)).Msg("job failed")
		} else {
			log.Info().Dur("took", time.Since(start)).Msg("job done")
		}
		metrics.JobsProcessed().WithLabelValues(msg.Type, outcome).Inc()
	}
	r.logger.Info().Msg("worker stopped")
	return nil
}

// Handle executes a single message.
func (r *Runner) Handle(ctx context.Context, msg queue.Message) error {
	switch msg.Type {
	case queue.TypeSeed:
		res, err := r.seeder.Run(ctx)
		if errors.Is(err, seed.ErrSeedInProgress) {
			return err
		}
		if res.RunID != "" {
			if saveErr := r.results.Save(ctx, res); saveErr != nil {
				r.logger.Warn().Err(saveErr).Msg("failed to store seed result")
			}
		}
		return err
	case queue.TypeSnapshot:
		if r.snapshot == nil {
			return errors.New("snapshot job received but no archive is configured")
		}
		_, err := r.snapshot.Snapshot(ctx)
		return err
	default:
		return fmt.Errorf("unknown job type %q", msg.Type)
	}
}
