// Package worker provides an asynchronous worker pool that runs the
// enrichment pipeline for newly captured items.
//
// The pool decouples processing from the API request path so capturing an
// item returns immediately while analysis happens in the background.
package worker

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/weave/pkg/enrich"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	ItemID  string
	OwnerID string
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Processor runs the pipeline for each job.
	Processor enrich.ItemProcessor

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// JobTimeout bounds a single job when positive.
	JobTimeout time.Duration

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Pool processes items asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Processor == nil {
		return nil, fmt.Errorf("worker pool requires a processor")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full, resulting in the job being dropped.
// A dropped item stays pending and is picked up by the next batch run.
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			zap.String("item_id", job.ItemID),
			zap.String("owner_id", job.OwnerID),
		)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			zap.String("item_id", job.ItemID),
			zap.String("owner_id", job.OwnerID),
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the API server has stopped.
// Enqueue must not be called after Close.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", zap.Uint("worker_id", id))

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("worker stopped", zap.Uint("worker_id", id))
}

// processJob runs the pipeline for one item. Failures are already recorded
// on the item by the processor, so they are only logged here.
func (p *Pool) processJob(job Job) {
	ctx := context.Background()
	if p.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.JobTimeout)
		defer cancel()
	}

	res, err := p.config.Processor.Process(ctx, job.ItemID, job.OwnerID)
	if err != nil {
		p.logger.Warn("async processing failed",
			zap.String("item_id", job.ItemID),
			zap.Error(err),
		)
		return
	}

	if res.AlreadyProcessing {
		p.logger.Debug("item already processing, job skipped",
			zap.String("item_id", job.ItemID),
		)
		return
	}

	p.logger.Info("item processed",
		zap.String("item_id", job.ItemID),
		zap.Int("connections", len(res.Connections)),
	)
}
