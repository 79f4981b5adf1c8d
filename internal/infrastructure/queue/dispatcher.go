package queue

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/rs/zerolog"

	"github.com/kaiin-app/authcore/internal/api/metrics"
	"github.com/kaiin-app/authcore/internal/core/ports"
)

const (
	defaultWorkers = 4
	channelBuffer  = 64
	recordTimeout  = 5 * time.Second
)

// namedHook pairs a recorder with its metrics/log label.
type namedHook struct {
	name string
	hook ports.ResolutionHook
}

// Dispatcher fans resolution outcomes out to best-effort recorders (audit
// trail, last-seen) on a fixed set of workers, sharded by subject id so
// per-subject ordering is preserved. Recorder failures are logged and
// counted, never propagated: a side effect must not fail a login.
type Dispatcher struct {
	workers []chan ports.Resolution
	hooks   []namedHook
	log     zerolog.Logger
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan ports.Resolution, numWorkers),
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan ports.Resolution, channelBuffer)
	}
	return d
}

// Register adds a recorder under the given label. Not safe to call after
// Start.
func (d *Dispatcher) Register(name string, hook ports.ResolutionHook) {
	d.hooks = append(d.hooks, namedHook{name: name, hook: hook})
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		go d.runWorker(ctx, i, ch)
	}
}

// Dispatch routes r to the worker responsible for its subject id. When the
// worker's buffer is full the resolution is dropped rather than blocking the
// reconciler.
func (d *Dispatcher) Dispatch(r ports.Resolution) {
	ch := d.workers[d.shardIndex(r.SubjectID)]
	select {
	case ch <- r:
	default:
		d.log.Warn().Str("subject", r.SubjectID).Str("kind", string(r.Kind)).Msg("hook queue full, resolution dropped")
	}
}

// shardIndex maps a subject id deterministically to a worker index.
func (d *Dispatcher) shardIndex(subjectID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(subjectID))
	return int(h.Sum32()) % len(d.workers)
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan ports.Resolution) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-ch:
			if !ok {
				return
			}
			d.record(ctx, id, r)
		}
	}
}

func (d *Dispatcher) record(ctx context.Context, workerID int, r ports.Resolution) {
	for _, h := range d.hooks {
		recordCtx, cancel := context.WithTimeout(ctx, recordTimeout)
		if err := h.hook.Record(recordCtx, r); err != nil {
			metrics.HookErrorsTotal.WithLabelValues(h.name).Inc()
			d.log.Warn().Err(err).
				Str("hook", h.name).
				Str("subject", r.SubjectID).
				Str("kind", string(r.Kind)).
				Int("worker_id", workerID).
				Msg("post-resolution hook failed")
		}
		cancel()
	}
}
