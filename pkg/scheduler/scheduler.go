// Package scheduler owns the polling loop around the reconciler: two lanes
// of bounded retry jobs, a worker pool per lane, and the translation of
// reconciliation outcomes into retry/park/stop decisions.
//
// The scheduler guarantees the reconciler's serialization precondition: at
// most one in-flight job per intent.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xmrcheckout/reconciler/pkg/circuitbreaker"
	"github.com/xmrcheckout/reconciler/pkg/logger"
	"github.com/xmrcheckout/reconciler/pkg/metrics"
	"github.com/xmrcheckout/reconciler/pkg/models"
	"github.com/xmrcheckout/reconciler/pkg/reconciler"
)

// jobBuffer is the channel capacity of each lane.
const jobBuffer = 100

// retryQueueMax bounds the per-lane retry backlog held by the retry
// handler.
const retryQueueMax = 1000

// retryTick is the retry handler's wakeup interval when no queued job is
// due sooner.
const retryTick = time.Second

// Reconciler is the single pass the scheduler drives. Satisfied by
// *reconciler.Reconciler.
type Reconciler interface {
	Reconcile(ctx context.Context, job models.ReconcileJob) (reconciler.Outcome, error)
}

// Config holds the scheduler's lane intervals and worker count.
type Config struct {
	// ZeroconfInterval is the delay between passes on the fast lane.
	ZeroconfInterval time.Duration
	// SecuredInterval is the delay between passes on the slow lane.
	SecuredInterval time.Duration
	// WorkerCount is the number of workers per lane.
	WorkerCount int
}

type lane struct {
	name     logger.Lane
	jobs     chan models.ReconcileJob
	retries  chan models.ReconcileJob
	interval time.Duration
}

// Scheduler runs reconciliation jobs until their budget or their intent's
// payment window is exhausted.
type Scheduler struct {
	rec     Reconciler
	breaker *circuitbreaker.CircuitBreaker
	logger  logger.Logger
	cfg     Config

	lanes map[logger.Lane]*lane

	mu       sync.Mutex
	inFlight map[string]bool

	wg sync.WaitGroup
}

// New creates a scheduler.
func New(rec Reconciler, breaker *circuitbreaker.CircuitBreaker, cfg Config, log logger.Logger) *Scheduler {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	return &Scheduler{
		rec:     rec,
		breaker: breaker,
		logger:  log,
		cfg:     cfg,
		lanes: map[logger.Lane]*lane{
			logger.Zeroconf: {
				name:     logger.Zeroconf,
				jobs:     make(chan models.ReconcileJob, jobBuffer),
				retries:  make(chan models.ReconcileJob, jobBuffer),
				interval: cfg.ZeroconfInterval,
			},
			logger.Secured: {
				name:     logger.Secured,
				jobs:     make(chan models.ReconcileJob, jobBuffer),
				retries:  make(chan models.ReconcileJob, jobBuffer),
				interval: cfg.SecuredInterval,
			},
		},
		inFlight: make(map[string]bool),
	}
}

// Start launches the lane workers. It returns immediately; workers stop
// when the context is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	for _, ln := range s.lanes {
		s.wg.Add(1)
		go s.retryHandler(ctx, ln)
		for i := 0; i < s.cfg.WorkerCount; i++ {
			s.wg.Add(1)
			go s.worker(ctx, ln, i)
		}
	}
}

// Wait blocks until all workers have stopped.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Enqueue schedules the first reconciliation pass for an intent. A second
// enqueue for the same intent while a job is in flight is a no-op, which
// keeps passes for one intent strictly sequential.
func (s *Scheduler) Enqueue(job models.ReconcileJob) bool {
	s.mu.Lock()
	if s.inFlight[job.IntentID] {
		s.mu.Unlock()
		s.logger.Debug("Intent %s already has a job in flight, skipping enqueue", job.IntentID)
		return false
	}
	s.inFlight[job.IntentID] = true
	s.mu.Unlock()

	if job.MaxRetries <= 0 {
		job.MaxRetries = MaxRetriesFor(job.RequiredConfirmations)
	}
	target := LaneFor(job.RequiredConfirmations)

	metrics.PendingJobs.Inc()
	s.lanes[target].jobs <- job
	return true
}

// release drops the in-flight mark once an intent's job chain has ended.
func (s *Scheduler) release(intentID string) {
	s.mu.Lock()
	delete(s.inFlight, intentID)
	s.mu.Unlock()
}

// worker processes jobs from one lane.
func (s *Scheduler) worker(ctx context.Context, ln *lane, id int) {
	defer s.wg.Done()
	s.logger.DebugWithLane(ln.name, "Starting worker %d", id)

	for {
		select {
		case <-ctx.Done():
			s.logger.DebugWithLane(ln.name, "Worker %d shutting down", id)
			return
		case job := <-ln.jobs:
			metrics.PendingJobs.Dec()
			if !s.waitUntil(ctx, job.NextAttempt) {
				return
			}
			s.process(ctx, ln, job)
		}
	}
}

// waitUntil sleeps until the job's scheduled attempt time or the context
// ends. Returns false on shutdown.
func (s *Scheduler) waitUntil(ctx context.Context, at time.Time) bool {
	delay := time.Until(at)
	if delay <= 0 {
		return true
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// process runs one pass and translates the outcome into the lane's retry
// vocabulary.
func (s *Scheduler) process(ctx context.Context, ln *lane, job models.ReconcileJob) {
	laneLabel := laneName(ln.name)

	if s.breaker != nil && s.breaker.IsEnabled() && s.breaker.IsOpen() {
		// Wallet RPC is known bad; burn no budget, just wait it out.
		s.logger.NoticeWithLane(ln.name, "Circuit breaker open, postponing intent %s", job.IntentID)
		s.requeue(ln, job, job.RetryCount, ln.interval)
		return
	}

	start := time.Now()
	outcome, err := s.rec.Reconcile(ctx, job)
	metrics.ReconcileDuration.WithLabelValues(laneLabel).Observe(time.Since(start).Seconds())

	if err != nil {
		s.logger.ErrorWithLane(ln.name, "Internal error reconciling intent %s: %v", job.IntentID, err)
		metrics.ReconcileErrors.WithLabelValues(laneLabel, "internal").Inc()
		s.retryOrGiveUp(ln, job, "internal")
		return
	}

	metrics.ReconcilePasses.WithLabelValues(laneLabel, outcome.Kind.String()).Inc()

	switch outcome.Kind {
	case reconciler.KindSuccess:
		s.logger.NoticeWithLane(ln.name, "Intent %s fully paid: %s", job.IntentID, outcome.Message)
		metrics.IntentsConfirmed.WithLabelValues(laneLabel).Inc()
		s.release(job.IntentID)

	case reconciler.KindCancel:
		s.logger.InfoWithLane(ln.name, "Intent %s canceled (%s)", job.IntentID, outcome.Reason)
		metrics.IntentsCanceled.WithLabelValues(laneLabel, string(outcome.Reason)).Inc()
		s.release(job.IntentID)

	case reconciler.KindFatal:
		// Manual reconciliation required; retrying would only repeat the
		// same fault.
		s.logger.ErrorWithLane(ln.name, "Intent %s parked for manual reconciliation: %s", job.IntentID, outcome.Message)
		metrics.ReconcileErrors.WithLabelValues(laneLabel, string(outcome.Reason)).Inc()
		s.release(job.IntentID)

	case reconciler.KindNoop:
		s.logger.DebugWithLane(ln.name, "Intent %s: %s", job.IntentID, outcome.Message)
		s.release(job.IntentID)

	case reconciler.KindRetryLater:
		if outcome.Reason == reconciler.ReasonTransport {
			if s.breaker != nil {
				s.breaker.RecordFailure()
			}
			metrics.ReconcileErrors.WithLabelValues(laneLabel, string(outcome.Reason)).Inc()
		} else if s.breaker != nil {
			s.breaker.RecordSuccess()
		}
		s.logger.DebugWithLane(ln.name, "Intent %s: %s", job.IntentID, outcome.Message)
		s.retryOrGiveUp(ln, job, string(outcome.Reason))
	}
}

// retryOrGiveUp requeues a retryable job or stops when the budget is spent.
func (s *Scheduler) retryOrGiveUp(ln *lane, job models.ReconcileJob, errorType string) {
	laneLabel := laneName(ln.name)

	if job.RetryCount+1 >= job.MaxRetries {
		s.logger.NoticeWithLane(ln.name, "Max retries reached for intent %s, giving up (error: %s)",
			job.IntentID, errorType)
		metrics.MaxRetriesReached.WithLabelValues(laneLabel, errorType).Inc()
		s.release(job.IntentID)
		return
	}

	backoff := s.backoffFor(ln, errorType, job.RetryCount)
	s.logger.DebugWithLane(ln.name, "Scheduling retry %d/%d for intent %s in %v (error: %s)",
		job.RetryCount+1, job.MaxRetries, job.IntentID, backoff, errorType)
	metrics.RetryCount.WithLabelValues(laneLabel).Inc()
	job.ErrorType = errorType
	s.requeue(ln, job, job.RetryCount+1, backoff)
}

// requeue hands a job to the lane's retry handler. Workers never send to
// the jobs channel they consume, so a full lane cannot wedge the pool.
func (s *Scheduler) requeue(ln *lane, job models.ReconcileJob, retryCount int, delay time.Duration) {
	job.RetryCount = retryCount
	job.NextAttempt = time.Now().Add(delay)
	metrics.PendingJobs.Inc()
	ln.retries <- job
}

// retryHandler drains a lane's retry channel into a local queue ordered by
// attempt time and feeds due jobs back to the workers.
func (s *Scheduler) retryHandler(ctx context.Context, ln *lane) {
	defer s.wg.Done()

	ticker := time.NewTicker(retryTick)
	defer ticker.Stop()

	var queue []models.ReconcileJob
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-ln.retries:
			if len(queue) >= retryQueueMax {
				s.logger.ErrorWithLane(ln.name, "Retry queue at capacity (%d), dropping intent %s", retryQueueMax, job.IntentID)
				metrics.PendingJobs.Dec()
				s.release(job.IntentID)
				continue
			}
			queue = append(queue, job)
			sort.Slice(queue, func(i, j int) bool {
				return queue[i].NextAttempt.Before(queue[j].NextAttempt)
			})
			ticker.Reset(nextWakeup(queue))
		case <-ticker.C:
			now := time.Now()
			remaining := queue[:0]
			for _, job := range queue {
				forwarded := false
				if !job.NextAttempt.After(now) {
					select {
					case ln.jobs <- job:
						forwarded = true
					default:
						// Lane saturated, keep the job for the next tick.
					}
				}
				if !forwarded {
					remaining = append(remaining, job)
				}
			}
			queue = remaining
			ticker.Reset(nextWakeup(queue))
		}
	}
}

// nextWakeup picks the handler's next tick: just past the earliest queued
// attempt, never more than retryTick away.
func nextWakeup(queue []models.ReconcileJob) time.Duration {
	if len(queue) == 0 {
		return retryTick
	}
	wait := time.Until(queue[0].NextAttempt)
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	if wait > retryTick {
		wait = retryTick
	}
	return wait
}

// backoffFor picks the delay before the next attempt. Polling conditions
// (no transfer yet, confirmations pending, underpaid) keep the lane's flat
// interval; transport and internal errors back off exponentially so a sick
// RPC is not hammered at full polling rate.
func (s *Scheduler) backoffFor(ln *lane, errorType string, retryCount int) time.Duration {
	switch errorType {
	case string(reconciler.ReasonTransport), "internal":
		backoff := ln.interval
		for i := 0; i < retryCount && backoff < 2*time.Minute; i++ {
			backoff *= 2
		}
		if backoff > 2*time.Minute {
			backoff = 2 * time.Minute
		}
		return backoff
	}
	return ln.interval
}
