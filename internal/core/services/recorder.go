package services

import (
	"context"
	"sync"

	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
	"github.com/custodia-labs/sercha-extractor/internal/core/ports/driven"
)

type recorderKey struct{}

// invocationRecorder collects the signals delivered during one invocation.
type invocationRecorder struct {
	mu     sync.Mutex
	events []domain.ExtractorEvent
	failed int
}

func withRecorder(ctx context.Context, r *invocationRecorder) context.Context {
	return context.WithValue(ctx, recorderKey{}, r)
}

func recorderFrom(ctx context.Context) *invocationRecorder {
	r, _ := ctx.Value(recorderKey{}).(*invocationRecorder)
	return r
}

func (r *invocationRecorder) record(event domain.ExtractorEvent, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.failed++
		return
	}
	r.events = append(r.events, event)
}

// lastSignal returns the signal of the last delivered event.
func (r *invocationRecorder) lastSignal() (domain.Signal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return "", false
	}
	return r.events[len(r.events)-1].Signal(), true
}

func (r *invocationRecorder) result() *domain.InvocationResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := &domain.InvocationResult{Events: len(r.events)}
	for _, e := range r.events {
		if e.Delay != nil && *e.Delay > res.DelaySeconds {
			res.DelaySeconds = *e.Delay
		}
	}
	if n := len(r.events); n > 0 {
		res.Last = r.events[n-1]
		res.Signal = res.Last.Signal()
	}
	return res
}

// RecordingEmitter forwards events and notes every delivery on the
// invocation recorder carried by the context, if any.
type RecordingEmitter struct {
	next driven.EventEmitter
}

var _ driven.EventEmitter = (*RecordingEmitter)(nil)

// NewRecordingEmitter wraps next.
func NewRecordingEmitter(next driven.EventEmitter) *RecordingEmitter {
	return &RecordingEmitter{next: next}
}

func (e *RecordingEmitter) Emit(ctx context.Context, event domain.ExtractorEvent) error {
	err := e.next.Emit(ctx, event)
	if r := recorderFrom(ctx); r != nil {
		r.record(event, err)
	}
	return err
}
