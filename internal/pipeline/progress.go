package pipeline

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Phase names a long-running step reported to progress listeners.
type Phase string

const (
	PhaseDownloading Phase = "downloading"
	PhaseParsing     Phase = "parsing"
	PhaseFiltering   Phase = "filtering"
	PhaseRendering   Phase = "rendering"
	PhaseDone        Phase = "done"
	PhaseError       Phase = "error"
)

// Progress is one discrete status update. Completed/Total are zero when the
// step is not chunked.
type Progress struct {
	Phase     Phase     `json:"phase"`
	Completed int       `json:"completed,omitempty"`
	Total     int       `json:"total,omitempty"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

// Percent returns completion as 0-100, or -1 when the step is not chunked.
func (p Progress) Percent() int {
	if p.Total <= 0 {
		return -1
	}
	return p.Completed * 100 / p.Total
}

// ProgressBus fans progress events out to independent listeners.
// Publishing never blocks, so a slow or absent display cannot stall ingestion
// or filtering; listeners that fall behind miss events.
type ProgressBus struct {
	clock       clockwork.Clock
	publish     chan Progress
	subscribe   chan chan Progress
	unsubscribe chan chan Progress
}

// NewProgressBus starts the fan-out goroutine. It lives for the process lifetime;
// subscriptions are pruned when their contexts end.
func NewProgressBus(clock clockwork.Clock, buffer int) *ProgressBus {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	b := &ProgressBus{
		clock:       clock,
		publish:     make(chan Progress, buffer),
		subscribe:   make(chan chan Progress),
		unsubscribe: make(chan chan Progress),
	}
	go b.run()
	return b
}

// Publish stamps and forwards an event. A nil bus discards events.
func (b *ProgressBus) Publish(p Progress) {
	if b == nil {
		return
	}
	if p.At.IsZero() {
		p.At = b.clock.Now().UTC()
	}
	select {
	case b.publish <- p:
	default:
	}
}

// Subscribe registers a listener. The returned channel closes when ctx ends.
func (b *ProgressBus) Subscribe(ctx context.Context, buffer int) <-chan Progress {
	ch := make(chan Progress, buffer)
	b.subscribe <- ch

	go func() {
		<-ctx.Done()
		b.unsubscribe <- ch
	}()

	return ch
}

func (b *ProgressBus) run() {
	listeners := make(map[chan Progress]struct{})

	for {
		select {
		case ch := <-b.subscribe:
			listeners[ch] = struct{}{}
		case ch := <-b.unsubscribe:
			delete(listeners, ch)
			close(ch)
		case p := <-b.publish:
			for ch := range listeners {
				select {
				case ch <- p:
				default:
				}
			}
		}
	}
}
