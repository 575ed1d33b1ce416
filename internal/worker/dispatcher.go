package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Effect is one best-effort projection of a lifecycle transition.
// Effects sharing a non-empty Key run at most once per dedup window.
type Effect struct {
	Name string
	Key  string
	Run  func(ctx context.Context) error
}

type Options struct {
	Buffer   int
	Workers  int
	DedupCap int
}

func DefaultOptions() Options {
	return Options{Buffer: 256, Workers: 4, DedupCap: 500}
}

// Dispatcher hands effects to background workers so transitions never
// wait on side-effect latency. Failures are logged and swallowed.
type Dispatcher struct {
	log     logrus.FieldLogger
	queue   chan Effect
	workers int

	mu       sync.Mutex
	idle     *sync.Cond
	pending  int
	closed   bool
	stopped  chan struct{}
	seen     map[string]uint64
	seq      uint64
	dedupCap int
}

func NewDispatcher(log logrus.FieldLogger, opts Options) *Dispatcher {
	def := DefaultOptions()
	if opts.Buffer <= 0 {
		opts.Buffer = def.Buffer
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.DedupCap <= 0 {
		opts.DedupCap = def.DedupCap
	}
	d := &Dispatcher{
		log:      log.WithField("component", "effects"),
		queue:    make(chan Effect, opts.Buffer),
		workers:  opts.Workers,
		stopped:  make(chan struct{}),
		seen:     make(map[string]uint64),
		dedupCap: opts.DedupCap,
	}
	d.idle = sync.NewCond(&d.mu)
	return d
}

// Run starts the workers and blocks until the dispatcher is closed (or ctx
// is cancelled) and the queue is drained.
func (d *Dispatcher) Run(ctx context.Context) {
	d.log.WithField("workers", d.workers).Info("effect dispatcher started")

	go func() {
		select {
		case <-ctx.Done():
			d.Close()
		case <-d.stopped:
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for effect := range d.queue {
				d.execute(context.WithoutCancel(ctx), effect)
				d.done()
			}
		}()
	}
	wg.Wait()
	d.log.Info("effect dispatcher stopped")
}

// Dispatch enqueues effect without blocking. A full queue or a closed
// dispatcher drops the effect with a warning.
func (d *Dispatcher) Dispatch(effect Effect) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry := d.log.WithFields(logrus.Fields{"effect": effect.Name, "key": effect.Key})
	if d.closed {
		entry.Warn("dispatcher closed, effect dropped")
		return
	}
	if effect.Key != "" {
		if _, dup := d.seen[effect.Key]; dup {
			entry.Debug("duplicate effect suppressed")
			return
		}
	}

	select {
	case d.queue <- effect:
		d.pending++
		if effect.Key != "" {
			d.remember(effect.Key)
		}
	default:
		entry.Warn("effect queue full, effect dropped")
	}
}

// Flush blocks until every accepted effect has finished.
func (d *Dispatcher) Flush() {
	d.mu.Lock()
	for d.pending > 0 {
		d.idle.Wait()
	}
	d.mu.Unlock()
}

// Close stops intake; queued effects still run.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	close(d.queue)
	close(d.stopped)
}

func (d *Dispatcher) execute(ctx context.Context, effect Effect) {
	entry := d.log.WithFields(logrus.Fields{"effect": effect.Name, "key": effect.Key})
	defer func() {
		if r := recover(); r != nil {
			entry.WithField("panic", fmt.Sprint(r)).Error("effect panicked")
		}
	}()
	if effect.Run == nil {
		return
	}
	if err := effect.Run(ctx); err != nil {
		entry.WithError(err).Warn("effect failed")
	}
}

func (d *Dispatcher) done() {
	d.mu.Lock()
	d.pending--
	if d.pending == 0 {
		d.idle.Broadcast()
	}
	d.mu.Unlock()
}

// remember records key and prunes the oldest keys once the set outgrows
// dedupCap. Caller holds d.mu.
func (d *Dispatcher) remember(key string) {
	d.seq++
	d.seen[key] = d.seq
	if len(d.seen) <= d.dedupCap {
		return
	}
	keep := d.dedupCap * 3 / 5
	cutoff := d.seq - uint64(keep)
	for k, at := range d.seen {
		if at <= cutoff {
			delete(d.seen, k)
		}
	}
}
