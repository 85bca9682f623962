package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	taskTracer           = otel.Tracer("railsync/scheduler")
	taskMeter            = otel.Meter("railsync/scheduler")
	taskDuration, _      = taskMeter.Float64Histogram("scheduler.task.duration", metric.WithDescription("Task execution duration in seconds"), metric.WithUnit("s"))
	taskTotal, _         = taskMeter.Int64Counter("scheduler.task.total", metric.WithDescription("Total tasks executed by outcome"))
	taskQueueFallback, _ = taskMeter.Int64Counter("scheduler.task.queue_fallback", metric.WithDescription("Adhoc tasks diverted to the durable queue"))
)

// RunnerConfig holds configuration for the task runner.
type RunnerConfig struct {
	WorkerCount int
	QueueSize   int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	MaxAttempts int
	ClaimPeriod time.Duration
	ClaimBatch  int
	TaskTimeout time.Duration
}

func (c *RunnerConfig) applyDefaults() {
	if c.WorkerCount <= 0 {
		c.WorkerCount = 5
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 100
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 30 * time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 30 * time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.ClaimPeriod <= 0 {
		c.ClaimPeriod = 15 * time.Second
	}
	if c.ClaimBatch <= 0 {
		c.ClaimBatch = 20
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 120 * time.Second
	}
}

// Runner executes tasks concurrently across a pool of workers. Adhoc
// tasks run in-process with fallback to the durable queue when the
// in-process queue is full; durable jobs are always persisted before
// running. Both modes dispatch to the same handlers.
type Runner struct {
	cfg      RunnerConfig
	handlers map[string]Handler
	jobs     JobStore
	tasks    chan Task
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewRunner creates a new task runner. jobs may be nil in tests; adhoc
// tasks then have no durable fallback.
func NewRunner(cfg RunnerConfig, jobs JobStore) *Runner {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		cfg:      cfg,
		handlers: make(map[string]Handler),
		jobs:     jobs,
		tasks:    make(chan Task, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Register adds a task handler. Must be called before Start.
func (r *Runner) Register(h Handler) {
	r.handlers[h.Name()] = h
}

// Start launches the worker goroutines and the durable-queue claim loop.
func (r *Runner) Start() {
	log.Printf("Task runner starting with %d workers", r.cfg.WorkerCount)

	for i := 1; i <= r.cfg.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	if r.jobs != nil {
		r.wg.Add(1)
		go r.claimLoop()
	}
}

// AddTask submits an adhoc task: immediate in-process execution is
// attempted first; when the queue is full the task falls back to the
// durable queue so it is not lost.
func (r *Runner) AddTask(ctx context.Context, name string, payload []byte) error {
	if _, ok := r.handlers[name]; !ok {
		return fmt.Errorf("unknown task %q", name)
	}

	select {
	case <-r.ctx.Done():
		return r.ctx.Err()
	case r.tasks <- Task{Name: name, Payload: payload}:
		return nil
	default:
	}

	if r.jobs == nil {
		return fmt.Errorf("task queue full, dropping %s task", name)
	}

	taskQueueFallback.Add(ctx, 1, metric.WithAttributes(attribute.String("task", name)))
	log.Printf("Task queue full, persisting %s task to durable queue", name)
	if _, err := r.jobs.Enqueue(ctx, name, payload, 0, time.Now()); err != nil {
		return fmt.Errorf("failed to persist %s task: %w", name, err)
	}
	return nil
}

// AddJob submits a durable ("jobbing") task: it is always persisted
// before running, so a crash between trigger and execution loses
// nothing.
func (r *Runner) AddJob(ctx context.Context, name string, payload []byte) error {
	if _, ok := r.handlers[name]; !ok {
		return fmt.Errorf("unknown task %q", name)
	}
	if r.jobs == nil {
		return fmt.Errorf("no durable queue configured")
	}
	if _, err := r.jobs.Enqueue(ctx, name, payload, 0, time.Now()); err != nil {
		return fmt.Errorf("failed to enqueue %s job: %w", name, err)
	}
	return nil
}

// worker is the main loop for each worker goroutine.
func (r *Runner) worker(id int) {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case task, ok := <-r.tasks:
			if !ok {
				return
			}
			r.process(id, task)
		}
	}
}

// process executes one task and interprets its outcome.
func (r *Runner) process(workerID int, task Task) {
	handler, ok := r.handlers[task.Name]
	if !ok {
		log.Printf("Worker %d: no handler for task %q, dropping", workerID, task.Name)
		return
	}

	ctx, cancel := context.WithTimeout(r.ctx, r.cfg.TaskTimeout)
	defer cancel()

	ctx, span := taskTracer.Start(ctx, "task.execute",
		trace.WithAttributes(
			attribute.Int("worker.id", workerID),
			attribute.String("task.name", task.Name),
			attribute.Int("task.attempt", task.Attempt),
		),
	)
	defer span.End()

	start := time.Now()
	outcome, err := handler.Execute(ctx, task.Payload)
	taskDuration.Record(ctx, time.Since(start).Seconds())

	if err != nil {
		// An error from a handler is a defect, not a scheduling signal:
		// report it as a fatal task failure.
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		outcome = OutcomeFatal
		log.Printf("Worker %d: task %s failed: %v", workerID, task.Name, err)
	}

	taskTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task", task.Name),
		attribute.String("outcome", outcome.String()),
	))

	switch outcome {
	case OutcomeComplete:
		r.finishJob(task)
	case OutcomeIncomplete:
		r.retry(task)
	case OutcomeFatal:
		r.finishJob(task)
	}
}

// retry re-enqueues an incomplete task with exponential backoff, up to
// the configured attempt ceiling.
func (r *Runner) retry(task Task) {
	attempt := task.Attempt + 1
	if attempt >= r.cfg.MaxAttempts {
		log.Printf("Task %s: giving up after %d attempts", task.Name, attempt)
		r.finishJob(task)
		return
	}

	delay := r.backoff(attempt)

	if task.JobID > 0 {
		if err := r.jobs.Reschedule(r.ctx, task.JobID, attempt, time.Now().Add(delay)); err != nil {
			log.Printf("Task %s: failed to reschedule job %d: %v", task.Name, task.JobID, err)
		}
		return
	}

	retried := Task{Name: task.Name, Payload: task.Payload, Attempt: attempt}
	timer := time.AfterFunc(delay, func() {
		select {
		case <-r.ctx.Done():
		case r.tasks <- retried:
		default:
			// Queue full on resubmit: divert to the durable queue rather
			// than block the timer goroutine. The attempt count goes with
			// it so the ceiling still applies.
			if r.jobs != nil {
				if _, err := r.jobs.Enqueue(context.Background(), retried.Name, retried.Payload, retried.Attempt, time.Now()); err != nil {
					log.Printf("Task %s: failed to divert retry to durable queue: %v", retried.Name, err)
				}
			} else {
				log.Printf("Task %s: queue full on retry, dropping", retried.Name)
			}
		}
	})
	_ = timer
}

func (r *Runner) backoff(attempt int) time.Duration {
	delay := r.cfg.BackoffBase << (attempt - 1)
	if delay > r.cfg.BackoffMax || delay <= 0 {
		return r.cfg.BackoffMax
	}
	return delay
}

// finishJob removes a durable job whose task will not run again.
func (r *Runner) finishJob(task Task) {
	if task.JobID == 0 {
		return
	}
	if err := r.jobs.Complete(r.ctx, task.JobID); err != nil {
		log.Printf("Task %s: failed to complete job %d: %v", task.Name, task.JobID, err)
	}
}

// claimLoop periodically claims due durable jobs and dispatches them to
// the workers.
func (r *Runner) claimLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.ClaimPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.claimDue()
		}
	}
}

func (r *Runner) claimDue() {
	ctx, cancel := context.WithTimeout(r.ctx, 10*time.Second)
	defer cancel()

	jobs, err := r.jobs.ClaimDue(ctx, r.cfg.ClaimBatch)
	if err != nil {
		log.Printf("Failed to claim durable jobs: %v", err)
		return
	}

	for _, job := range jobs {
		task := Task{Name: job.Name, Payload: job.Payload, Attempt: job.Attempts, JobID: job.ID}
		select {
		case <-r.ctx.Done():
			return
		case r.tasks <- task:
		default:
			// Workers are saturated; the lease expires and the job is
			// claimed again on a later pass.
			log.Printf("Task queue full, leaving job %d for the next claim pass", job.ID)
			return
		}
	}
}

// Shutdown gracefully stops the runner, waiting up to timeout for
// in-flight tasks.
func (r *Runner) Shutdown(timeout time.Duration) {
	log.Println("Task runner: initiating graceful shutdown")

	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Task runner: all workers finished")
	case <-time.After(timeout):
		log.Println("Task runner: timeout reached, forcing shutdown")
	}
}
