package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/weave/pkg/eventstream"
)

// RecordingPublisher keeps every published item event.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.ItemEnrichedEvent

	// Fail causes PublishItem to return this error.
	Fail error
}

func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

func (p *RecordingPublisher) PublishItem(_ context.Context, event *eventstream.ItemEnrichedEvent) error {
	if event == nil {
		return eventstream.ErrNilItemEvent
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Fail != nil {
		return p.Fail
	}
	p.events = append(p.events, event)
	return nil
}

// Events returns a copy of the published events in order.
func (p *RecordingPublisher) Events() []*eventstream.ItemEnrichedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*eventstream.ItemEnrichedEvent(nil), p.events...)
}

func (p *RecordingPublisher) Close() error {
	return nil
}

var _ eventstream.Publisher = (*RecordingPublisher)(nil)
