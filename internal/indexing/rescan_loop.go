package indexing

import (
	"context"
	"errors"
	"log"

	"github.com/standardbeagle/lwi/internal/debug"
)

// RescanLoop is the single consumer of watcher events. It owns every
// indexing call into ProjectState, so scans never overlap: events that
// arrive while a scan runs are coalesced into one follow-up pass.
type RescanLoop struct {
	state    *ProjectState
	events   <-chan FileEvent
	lost     func() bool
	requests chan struct{}
	done     chan struct{}

	// onPass is invoked after each processed batch; tests use it to sync
	onPass func()
}

// NewRescanLoop creates a loop over events. A nil channel is valid and
// leaves only explicit rescan requests.
func NewRescanLoop(state *ProjectState, events <-chan FileEvent) *RescanLoop {
	return &RescanLoop{
		state:    state,
		events:   events,
		requests: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// WithLostEvents installs the check used to detect dropped watcher events
func (l *RescanLoop) WithLostEvents(check func() bool) *RescanLoop {
	l.lost = check
	return l
}

// RequestRescan queues a full rescan. It returns false when one is already
// queued.
func (l *RescanLoop) RequestRescan() bool {
	select {
	case l.requests <- struct{}{}:
		return true
	default:
		return false
	}
}

// Done is closed when Run returns
func (l *RescanLoop) Done() <-chan struct{} {
	return l.done
}

// Run performs the initial scan when the index has not started, then
// consumes events until ctx is cancelled
func (l *RescanLoop) Run(ctx context.Context) error {
	defer close(l.done)

	if l.state.State() == StateNotStarted {
		if err := l.state.InitialScan(ctx); err != nil && !errors.Is(err, ErrScanInProgress) {
			log.Printf("Initial scan failed: %v", err)
		}
		l.passDone()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-l.events:
			l.process(ctx, append([]FileEvent{ev}, l.drain()...))
		case <-l.requests:
			l.process(ctx, append([]FileEvent{{Kind: FileResync}}, l.drain()...))
		}
	}
}

// process handles a batch, then keeps handling whatever queued up during
// it until the queue is empty
func (l *RescanLoop) process(ctx context.Context, batch []FileEvent) {
	for len(batch) > 0 {
		if ctx.Err() != nil {
			return
		}
		if l.lost != nil && l.lost() {
			batch = append(batch, FileEvent{Kind: FileResync})
		}

		var trigger *FileEvent
		for i := range batch {
			ev := batch[i]
			if trigger == nil && ev.Kind == FileDeleted && l.state.State() == StateReady {
				if err := l.state.HandleFileChange(ctx, ev); err != nil {
					log.Printf("Warning: failed to apply deletion of %s: %v", ev.Path, err)
				}
				continue
			}
			if trigger == nil {
				trigger = &ev
			}
		}

		if trigger != nil {
			debug.LogIndexing("rescan triggered by %s of %s (batch of %d)\n", trigger.Kind, trigger.Path, len(batch))
			if err := l.state.HandleFileChange(ctx, *trigger); err != nil {
				log.Printf("Warning: rescan failed: %v", err)
			}
		}
		l.passDone()

		batch = l.drain()
		select {
		case <-l.requests:
			batch = append(batch, FileEvent{Kind: FileResync})
		default:
		}
	}
}

// drain takes every event currently queued without blocking
func (l *RescanLoop) drain() []FileEvent {
	var out []FileEvent
	for {
		select {
		case ev := <-l.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func (l *RescanLoop) passDone() {
	if l.onPass != nil {
		l.onPass()
	}
}
