package campaign

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Stage marks what a progress update describes.
type Stage int

const (
	// StageFetchingQuota is emitted before the response history is read.
	StageFetchingQuota Stage = iota + 1
	// StageStarted carries the budget the run will work with.
	StageStarted
	// StageResponding is emitted periodically while applications are sent.
	StageResponding
)

type Progress struct {
	Stage     Stage
	Succeeded int
	Attempted int
	Remaining int
}

// Reporter receives progress updates. Report must not block the campaign.
type Reporter interface {
	Report(Progress)
}

type ReporterFunc func(Progress)

func (f ReporterFunc) Report(p Progress) { f(p) }

type nopReporter struct{}

func (nopReporter) Report(Progress) {}

// DeliverFunc pushes one update to the user, e.g. by editing a message.
type DeliverFunc func(ctx context.Context, p Progress) error

// AsyncReporter delivers updates on its own goroutine. It keeps only the
// latest undelivered update, so a slow transport never stalls the caller
// and stale progress is dropped.
type AsyncReporter struct {
	ctx     context.Context
	deliver DeliverFunc
	log     *zap.Logger

	mu      sync.Mutex
	pending *Progress
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

func NewAsyncReporter(ctx context.Context, deliver DeliverFunc, log *zap.Logger) *AsyncReporter {
	if log == nil {
		log = zap.NewNop()
	}
	a := &AsyncReporter{
		ctx:     ctx,
		deliver: deliver,
		log:     log,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *AsyncReporter) Report(p Progress) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.pending = &p
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

// Close delivers the last pending update and stops the goroutine. It is safe
// to call more than once.
func (a *AsyncReporter) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.wake)
	}
	a.mu.Unlock()
	<-a.done
}

func (a *AsyncReporter) loop() {
	defer close(a.done)
	for range a.wake {
		a.flush()
	}
	a.flush()
}

func (a *AsyncReporter) flush() {
	a.mu.Lock()
	p := a.pending
	a.pending = nil
	a.mu.Unlock()
	if p == nil {
		return
	}
	if err := a.deliver(a.ctx, *p); err != nil {
		a.log.Warn("progress delivery failed", zap.Int("stage", int(p.Stage)), zap.Error(err))
	}
}
