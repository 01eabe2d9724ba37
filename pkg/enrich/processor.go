// Package enrich runs the per-item enrichment pipeline: the status guard
// and lease claim, content assembly, AI analysis, embedding, the similarity
// scan, connection materialization and finalization.
package enrich

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/weave/pkg/analysis"
	"github.com/papercomputeco/weave/pkg/eventstream"
	"github.com/papercomputeco/weave/pkg/notes"
	"github.com/papercomputeco/weave/pkg/similarity"
	"github.com/papercomputeco/weave/pkg/storage"
	"github.com/papercomputeco/weave/pkg/vector"
)

// DefaultLeaseTTL bounds how long a crashed run blocks an item.
const DefaultLeaseTTL = 5 * time.Minute

// ItemProcessor processes a single item. Implemented by Processor and by
// the remote API client.
type ItemProcessor interface {
	Process(ctx context.Context, itemID, ownerID string) (*Result, error)
}

// Result is the outcome of a Process call that did not fail.
type Result struct {
	// OK is true when the item is ready.
	OK bool `json:"ok"`

	Status notes.Status `json:"status"`
	Item   *notes.Item  `json:"item,omitempty"`

	// Connections touching the item, strongest first. Set when OK.
	Connections []*notes.Connection `json:"connections,omitempty"`

	// AlreadyProcessing is set when another run holds the item; no work
	// was done.
	AlreadyProcessing bool `json:"already_processing,omitempty"`
}

// Config configures a Processor.
type Config struct {
	Store    storage.Driver
	Analyzer analysis.Analyzer

	// Index optionally mirrors the embeddings of ready items.
	Index vector.Driver

	// Events optionally receives an event for every item that becomes ready.
	Events eventstream.Publisher

	Logger *zap.Logger

	// Threshold and MaxConnections configure the similarity ranker;
	// non-positive values select the defaults.
	Threshold      float64
	MaxConnections int

	// LeaseTTL defaults to DefaultLeaseTTL.
	LeaseTTL time.Duration

	// CallTimeout bounds every analyzer call when positive.
	CallTimeout time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// Processor enriches items and materializes their connections.
type Processor struct {
	store       storage.Driver
	analyzer    analysis.Analyzer
	index       vector.Driver
	events      eventstream.Publisher
	logger      *zap.Logger
	ranker      *similarity.Ranker
	leaseTTL    time.Duration
	callTimeout time.Duration
	now         func() time.Time
}

// NewProcessor creates a Processor.
func NewProcessor(cfg Config) *Processor {
	p := &Processor{
		store:       cfg.Store,
		analyzer:    cfg.Analyzer,
		index:       cfg.Index,
		events:      cfg.Events,
		logger:      cfg.Logger,
		ranker:      similarity.NewRanker(cfg.Threshold, cfg.MaxConnections),
		leaseTTL:    cfg.LeaseTTL,
		callTimeout: cfg.CallTimeout,
		now:         cfg.Now,
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.leaseTTL <= 0 {
		p.leaseTTL = DefaultLeaseTTL
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

type guardDecision int

const (
	guardRun guardDecision = iota
	guardReady
	guardBusy
)

// guard decides what a run over item should do before any write.
func guard(item *notes.Item, now time.Time) guardDecision {
	switch item.Status {
	case notes.StatusReady:
		return guardReady
	case notes.StatusProcessing:
		if item.LeaseActive(now) {
			return guardBusy
		}
		// Analysis without any step marker is a run from before step
		// markers that has not finalized yet. A finalized marker on a
		// processing item means a batch reset an errored item for retry.
		if item.HasAnalysis() && item.Step == notes.StepNone {
			return guardBusy
		}
		return guardRun
	default:
		if item.LeaseActive(now) {
			return guardBusy
		}
		return guardRun
	}
}

// Process runs the pipeline over one item owned by ownerID. Failures are
// returned as *Error after the item was written to the error status,
// except store read failures before the lease claim which are returned
// wrapped and uncategorized.
func (p *Processor) Process(ctx context.Context, itemID, ownerID string) (res *Result, err error) {
	item, err := p.store.GetItem(ctx, itemID)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, NewError(CategoryNotFound, err)
		}
		return nil, fmt.Errorf("loading item %s: %w", itemID, err)
	}

	if item.OwnerID != ownerID {
		return nil, NewError(CategoryForbidden, fmt.Errorf("item %s is not owned by %s", itemID, ownerID))
	}

	now := p.now()
	switch guard(item, now) {
	case guardReady:
		conns, err := p.store.ListConnections(ctx, item.ID)
		if err != nil {
			return nil, fmt.Errorf("listing connections of %s: %w", item.ID, err)
		}
		return &Result{OK: true, Status: item.Status, Item: item, Connections: conns}, nil
	case guardBusy:
		return &Result{Status: item.Status, Item: item, AlreadyProcessing: true}, nil
	}

	token := uuid.NewString()
	claimed, err := p.store.ClaimItem(ctx, item.ID, token, now, p.leaseTTL)
	if err != nil {
		return nil, fmt.Errorf("claiming item %s: %w", item.ID, err)
	}
	if !claimed {
		return &Result{Status: item.Status, Item: item, AlreadyProcessing: true}, nil
	}

	// Another run may have finalized the item between the read above and
	// the claim.
	item, err = p.store.GetItem(ctx, itemID)
	if err != nil {
		p.release(ctx, itemID)
		return nil, fmt.Errorf("reloading item %s: %w", itemID, err)
	}
	if item.Status == notes.StatusReady {
		p.release(ctx, itemID)
		item.LeaseToken, item.LeaseExpiresAt = "", time.Time{}
		conns, err := p.store.ListConnections(ctx, item.ID)
		if err != nil {
			return nil, fmt.Errorf("listing connections of %s: %w", item.ID, err)
		}
		return &Result{OK: true, Status: item.Status, Item: item, Connections: conns}, nil
	}

	defer func() {
		if r := recover(); r != nil {
			res, err = p.fail(ctx, item, NewError(CategoryUnknown, fmt.Errorf("panic while processing: %v", r)))
		}
	}()

	p.logger.Debug("processing item",
		zap.String("item_id", item.ID),
		zap.String("status", string(item.Status)),
		zap.String("step", string(item.Step)),
	)

	if item.Status != notes.StatusProcessing {
		if err := p.transition(ctx, item, notes.StatusProcessing, ""); err != nil {
			return p.fail(ctx, item, Classify(err))
		}
	}

	return p.run(ctx, item)
}

// transition writes a status change the state machine allows.
func (p *Processor) transition(ctx context.Context, item *notes.Item, to notes.Status, message string) error {
	if !item.Status.CanTransition(to) {
		return fmt.Errorf("item %s cannot move from %s to %s", item.ID, item.Status, to)
	}
	return p.update(ctx, item, storage.ItemPatch{Status: &to, StatusMessage: &message})
}

// release drops the lease of a run that will not continue. Failures are
// logged; the lease expires on its own.
func (p *Processor) release(ctx context.Context, itemID string) {
	if err := p.store.UpdateItem(context.WithoutCancel(ctx), itemID, storage.ItemPatch{ReleaseLease: true}); err != nil {
		p.logger.Warn("releasing item lease",
			zap.String("item_id", itemID),
			zap.Error(err),
		)
	}
}

func (p *Processor) run(ctx context.Context, item *notes.Item) (*Result, error) {
	from := item.Step
	if !from.Resumable() {
		from = notes.StepNone
	}

	text := assembleContent(item)
	if !sufficientContent(text) {
		return p.fail(ctx, item, NewError(CategoryInsufficientContent, nil))
	}
	if !from.Reached(notes.StepContentAssembled) {
		if err := p.update(ctx, item, storage.ItemPatch{Step: step(notes.StepContentAssembled)}); err != nil {
			return p.fail(ctx, item, Classify(err))
		}
	}

	if !from.Reached(notes.StepAnalyzed) || !item.HasAnalysis() {
		if err := p.analyze(ctx, item, text); err != nil {
			return p.fail(ctx, item, Classify(err))
		}
	}

	if !from.Reached(notes.StepEmbedded) {
		if err := p.embed(ctx, item); err != nil {
			return p.fail(ctx, item, Classify(err))
		}
	}

	if !from.Reached(notes.StepConnectionsComputed) {
		if err := p.connect(ctx, item); err != nil {
			return p.fail(ctx, item, Classify(err))
		}
	}

	return p.finalize(ctx, item)
}

func (p *Processor) analyze(ctx context.Context, item *notes.Item, text string) error {
	callCtx, cancel := p.callContext(ctx)
	result, err := p.analyzer.Analyze(callCtx, text)
	cancel()
	if err != nil {
		return err
	}

	title := chooseTitle(item, result.Title)
	topics := notes.CleanList(result.Topics)
	return p.update(ctx, item, storage.ItemPatch{
		Title:   &title,
		Summary: &result.Summary,
		Topics:  &topics,
		Step:    step(notes.StepAnalyzed),
	})
}

// embed never fails the run on an embedder error: the item continues
// without an embedding and similarity uses the topic fallback.
func (p *Processor) embed(ctx context.Context, item *notes.Item) error {
	callCtx, cancel := p.callContext(ctx)
	emb, err := p.analyzer.Embed(callCtx, describe(item))
	cancel()
	if err != nil {
		p.logger.Warn("embedding failed, continuing without embedding",
			zap.String("item_id", item.ID),
			zap.Error(err),
		)
		emb = nil
	}

	emb = notes.NormalizeEmbedding(emb)
	if emb == nil {
		emb = []float32{}
	}
	return p.update(ctx, item, storage.ItemPatch{
		Embedding: &emb,
		Step:      step(notes.StepEmbedded),
	})
}

func (p *Processor) connect(ctx context.Context, item *notes.Item) error {
	candidates, err := p.store.ListCandidates(ctx, item.OwnerID, item.ID)
	if err != nil {
		return fmt.Errorf("listing candidates: %w", err)
	}

	matches := p.ranker.Rank(item, candidates)
	p.logger.Debug("similarity scan",
		zap.String("item_id", item.ID),
		zap.Int("candidates", len(candidates)),
		zap.Int("matches", len(matches)),
	)

	if err := p.materialize(ctx, item, matches); err != nil {
		return err
	}

	return p.update(ctx, item, storage.ItemPatch{Step: step(notes.StepConnectionsComputed)})
}

func (p *Processor) finalize(ctx context.Context, item *notes.Item) (*Result, error) {
	ready := notes.StatusReady
	if !item.Status.CanTransition(ready) {
		return p.fail(ctx, item, NewError(CategoryUnknown,
			fmt.Errorf("item %s cannot move from %s to %s", item.ID, item.Status, ready)))
	}
	empty := ""
	if err := p.update(ctx, item, storage.ItemPatch{
		Status:        &ready,
		StatusMessage: &empty,
		Step:          step(notes.StepFinalized),
		ReleaseLease:  true,
	}); err != nil {
		return p.fail(ctx, item, Classify(err))
	}

	p.syncIndex(ctx, item)

	conns, err := p.store.ListConnections(ctx, item.ID)
	if err != nil {
		p.logger.Warn("listing connections after finalize",
			zap.String("item_id", item.ID),
			zap.Error(err),
		)
	}

	p.publish(ctx, item, conns)

	p.logger.Info("item ready",
		zap.String("item_id", item.ID),
		zap.Int("connections", len(conns)),
		zap.Bool("embedding", item.HasEmbedding()),
	)

	return &Result{OK: true, Status: notes.StatusReady, Item: item, Connections: conns}, nil
}

// fail writes the error status with the category's user-safe message.
// The write ignores cancellation of ctx so an interrupted run still
// leaves the item in error.
func (p *Processor) fail(ctx context.Context, item *notes.Item, e *Error) (*Result, error) {
	status := notes.StatusError
	if err := p.update(context.WithoutCancel(ctx), item, storage.ItemPatch{
		Status:        &status,
		StatusMessage: &e.Message,
		ReleaseLease:  true,
	}); err != nil {
		p.logger.Error("could not record item failure",
			zap.String("item_id", item.ID),
			zap.String("category", string(e.Category)),
			zap.Error(err),
		)
	}

	p.logger.Warn("item processing failed",
		zap.String("item_id", item.ID),
		zap.String("category", string(e.Category)),
		zap.String("step", string(item.Step)),
		zap.Error(e.Err),
	)

	return nil, e
}

// syncIndex mirrors the item's embedding into the vector index. Index
// failures are logged only.
func (p *Processor) syncIndex(ctx context.Context, item *notes.Item) {
	if p.index == nil {
		return
	}

	var err error
	if item.HasEmbedding() {
		err = p.index.Add(ctx, []vector.Document{{
			ID:        item.ID,
			OwnerID:   item.OwnerID,
			Embedding: item.Embedding,
		}})
	} else {
		err = p.index.Delete(ctx, []string{item.ID})
	}
	if err != nil {
		p.logger.Warn("vector index sync failed",
			zap.String("item_id", item.ID),
			zap.Error(err),
		)
	}
}

// publish emits the item enriched event. Publish failures are logged only.
func (p *Processor) publish(ctx context.Context, item *notes.Item, conns []*notes.Connection) {
	if p.events == nil {
		return
	}

	event := eventstream.NewItemEnrichedEvent(item, conns, p.now())
	if err := p.events.PublishItem(ctx, event); err != nil {
		p.logger.Warn("publishing item event failed",
			zap.String("item_id", item.ID),
			zap.Error(err),
		)
	}
}

// update persists patch and mirrors it onto the in-memory item.
func (p *Processor) update(ctx context.Context, item *notes.Item, patch storage.ItemPatch) error {
	if err := p.store.UpdateItem(ctx, item.ID, patch); err != nil {
		return err
	}
	patch.Apply(item)
	return nil
}

func (p *Processor) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.callTimeout > 0 {
		return context.WithTimeout(ctx, p.callTimeout)
	}
	return context.WithCancel(ctx)
}

func step(s notes.Step) *notes.Step {
	return &s
}

var _ ItemProcessor = (*Processor)(nil)
