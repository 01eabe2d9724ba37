// Package batch drives the enrichment pipeline over every pending item of
// an owner, one item at a time.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/weave/pkg/enrich"
	"github.com/papercomputeco/weave/pkg/notes"
	"github.com/papercomputeco/weave/pkg/storage"
)

// DefaultDelay is the pause between two consecutive item runs.
const DefaultDelay = time.Second

// InterruptedMessage is written to items a run could not get to.
const InterruptedMessage = "Processing was interrupted. Please try again."

// Config configures an Orchestrator.
type Config struct {
	Store     storage.Driver
	Processor enrich.ItemProcessor

	// Delay between item runs. Zero selects DefaultDelay; a negative value
	// disables the pause.
	Delay time.Duration

	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error

	Logger *zap.Logger
}

// Orchestrator processes an owner's pending items sequentially.
type Orchestrator struct {
	store     storage.Driver
	processor enrich.ItemProcessor
	delay     time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	logger    *zap.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(cfg Config) *Orchestrator {
	o := &Orchestrator{
		store:     cfg.Store,
		processor: cfg.Processor,
		delay:     cfg.Delay,
		sleep:     cfg.Sleep,
		logger:    cfg.Logger,
	}
	if o.delay == 0 {
		o.delay = DefaultDelay
	}
	if o.sleep == nil {
		o.sleep = sleep
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// ProcessPending runs the processor over every pending item of ownerID,
// oldest first. The returned error is set only when the pending items
// could not be selected or marked; every per item outcome is in the
// report.
func (o *Orchestrator) ProcessPending(ctx context.Context, ownerID string) (*Report, error) {
	pending, err := o.store.ListPending(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing pending items: %w", err)
	}

	report := &Report{Total: len(pending), Mode: ModeCompleted}
	if len(pending) == 0 {
		report.Success = true
		return report, nil
	}

	ids := make([]string, len(pending))
	for i, item := range pending {
		ids[i] = item.ID
	}

	if err := o.store.MarkItems(ctx, ids, notes.StatusProcessing, ""); err != nil {
		return nil, fmt.Errorf("marking pending items: %w", err)
	}

	o.logger.Info("batch started",
		zap.String("owner_id", ownerID),
		zap.Int("items", len(ids)),
	)

	for i, id := range ids {
		if i > 0 && o.delay > 0 {
			if err := o.sleep(ctx, o.delay); err != nil {
				o.interrupt(ctx, report, ids[i:], err)
				return report, nil
			}
		}
		if err := ctx.Err(); err != nil {
			o.interrupt(ctx, report, ids[i:], err)
			return report, nil
		}

		res, err := o.processor.Process(ctx, id, ownerID)
		if err == nil {
			if res != nil && res.AlreadyProcessing {
				report.Skipped++
			} else {
				report.Processed++
			}
			continue
		}

		var perr *enrich.Error
		if !errors.As(err, &perr) {
			o.interrupt(ctx, report, ids[i:], err)
			return report, nil
		}

		report.Failed++
		report.LastError = perr.Message

		if perr.Category == enrich.CategoryAIQuota {
			o.stopForQuota(ctx, report, ids[i+1:], perr)
			return report, nil
		}
	}

	report.Success = report.Failed == 0
	o.logger.Info("batch finished",
		zap.String("owner_id", ownerID),
		zap.String("mode", string(report.Mode)),
		zap.Int("processed", report.Processed),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
	)
	return report, nil
}

// stopForQuota fails the items that were never attempted. The current item
// was already written to error by the processor.
func (o *Orchestrator) stopForQuota(ctx context.Context, report *Report, remaining []string, cause *enrich.Error) {
	report.Mode = ModeQuotaStopped
	report.Failed += len(remaining)
	o.markFailed(ctx, remaining, cause.Message)

	o.logger.Warn("batch stopped, AI quota exhausted",
		zap.Int("processed", report.Processed),
		zap.Int("not_attempted", len(remaining)),
		zap.Error(cause),
	)
}

// interrupt fails the current item and every remaining one.
func (o *Orchestrator) interrupt(ctx context.Context, report *Report, remaining []string, cause error) {
	report.Mode = ModeInterrupted
	report.Failed += len(remaining)
	report.LastError = InterruptedMessage
	o.markFailed(ctx, remaining, InterruptedMessage)

	o.logger.Warn("batch interrupted",
		zap.Int("processed", report.Processed),
		zap.Int("not_finished", len(remaining)),
		zap.Error(cause),
	)
}

// markFailed writes the error status even when ctx is done so no item is
// left stuck in processing.
func (o *Orchestrator) markFailed(ctx context.Context, ids []string, message string) {
	if len(ids) == 0 {
		return
	}
	if err := o.store.MarkItems(context.WithoutCancel(ctx), ids, notes.StatusError, message); err != nil {
		o.logger.Error("could not mark unfinished items",
			zap.Strings("item_ids", ids),
			zap.Error(err),
		)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
