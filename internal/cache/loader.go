package cache

import (
	"context"
	"errors"
	"image"
	"sync"

	"go.uber.org/zap"

	"tileview/internal/provider"
	"tileview/internal/tile"
)

// ErrAlreadyPending is returned by Start when a fetch for the coordinate is
// already in flight. Callers treat it as a no-op, not a failure.
var ErrAlreadyPending = errors.New("fetch already pending for coordinate")

// ErrClosed is returned by Start after JoinAll.
var ErrClosed = errors.New("loader is closed")

// Listener receives the two cache-change signals. TileCached fires when a
// fetch completes and the decoded tile becomes readable; TileUncached fires
// when a tile is evicted or a fetch is cancelled or fails. Listeners must
// remove themselves before they are torn down.
type Listener interface {
	TileCached(coord tile.Coordinate)
	TileUncached(coord tile.Coordinate)
}

type fetchJob struct {
	req    *provider.Request
	ctx    context.Context
	cancel context.CancelFunc
}

// Loader owns the decoded-tile store and the set of in-flight fetches. It
// guarantees at most one outstanding fetch per coordinate, runs fetches on a
// fixed worker pool, and notifies listeners as tiles arrive and leave.
//
// GetTile never blocks and never starts a fetch; Start never blocks on the
// fetch itself. Fetches complete in arbitrary order.
type Loader struct {
	store Store
	log   *zap.Logger

	mu        sync.Mutex
	cond      *sync.Cond
	queue     []*fetchJob
	pending   map[tile.Coordinate]*fetchJob
	listeners []Listener
	closed    bool

	workers sync.WaitGroup
}

// NewLoader creates a Loader with workerCount fetch workers.
func NewLoader(store Store, workerCount int, log *zap.Logger) *Loader {
	if workerCount <= 0 {
		workerCount = 1
	}
	l := &Loader{
		store:   store,
		log:     log,
		pending: make(map[tile.Coordinate]*fetchJob),
	}
	l.cond = sync.NewCond(&l.mu)

	l.workers.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go l.worker()
	}
	return l
}

// GetTile returns the cached tile for coord, if present. It never initiates
// a fetch. The returned image remains owned by the loader; callers must not
// hold it across draw cycles.
func (l *Loader) GetTile(coord tile.Coordinate) (image.Image, bool) {
	return l.store.Get(coord)
}

// Has reports whether coord is cached, without touching LRU recency.
func (l *Loader) Has(coord tile.Coordinate) bool {
	return l.store.Has(coord)
}

// Pending reports whether a fetch for coord is queued or transferring.
func (l *Loader) Pending(coord tile.Coordinate) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.pending[coord]
	return ok
}

// PendingCount returns the number of outstanding fetches.
func (l *Loader) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.pending)
}

// Start queues the given fetch request. It is a no-op when the coordinate is
// already cached, returns ErrAlreadyPending when a fetch is already in
// flight, and ErrClosed after JoinAll.
func (l *Loader) Start(coord tile.Coordinate, req *provider.Request) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if l.store.Has(coord) {
		return nil
	}
	if _, ok := l.pending[coord]; ok {
		return ErrAlreadyPending
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &fetchJob{req: req, ctx: ctx, cancel: cancel}
	l.pending[coord] = job
	l.queue = append(l.queue, job)
	l.cond.Signal()

	if l.log != nil {
		l.log.Debug("tile fetch queued",
			zap.Stringer("coord", coord),
			zap.String("request_id", req.ID),
		)
	}
	return nil
}

// CancelQueued drops every fetch that has not yet started transferring.
// Fetches already claimed by a worker are left alone. Safe to call
// repeatedly and concurrently with fetches completing.
func (l *Loader) CancelQueued() {
	l.mu.Lock()
	cancelled := make([]tile.Coordinate, 0, len(l.queue))
	for _, job := range l.queue {
		job.cancel()
		delete(l.pending, job.req.Coord)
		cancelled = append(cancelled, job.req.Coord)
	}
	l.queue = nil
	l.mu.Unlock()

	for _, coord := range cancelled {
		l.notifyUncached(coord)
	}
}

// CancelAll cancels every outstanding fetch, queued or transferring.
// Transfers abort through their context; their workers report the
// cancellation.
func (l *Loader) CancelAll() {
	l.mu.Lock()
	cancelled := make([]tile.Coordinate, 0, len(l.queue))
	for _, job := range l.queue {
		job.cancel()
		delete(l.pending, job.req.Coord)
		cancelled = append(cancelled, job.req.Coord)
	}
	l.queue = nil
	for _, job := range l.pending {
		job.cancel()
	}
	l.mu.Unlock()

	for _, coord := range cancelled {
		l.notifyUncached(coord)
	}
}

// JoinAll stops the workers and blocks until all fetch activity has
// quiesced. No listener fires after JoinAll returns. The cached store stays
// readable; Start returns ErrClosed from then on.
func (l *Loader) JoinAll() {
	l.mu.Lock()
	l.closed = true
	l.cond.Broadcast()
	l.mu.Unlock()

	l.workers.Wait()
}

// AddListener subscribes to cached/uncached notifications.
func (l *Loader) AddListener(listener Listener) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.listeners = append(l.listeners, listener)
}

// RemoveListener unsubscribes a previously added listener.
func (l *Loader) RemoveListener(listener Listener) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, existing := range l.listeners {
		if existing == listener {
			l.listeners = append(l.listeners[:i], l.listeners[i+1:]...)
			return
		}
	}
}

func (l *Loader) worker() {
	defer l.workers.Done()

	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if len(l.queue) == 0 && l.closed {
			l.mu.Unlock()
			return
		}

		job := l.queue[0]
		l.queue = l.queue[1:]
		coord := job.req.Coord

		if job.ctx.Err() != nil {
			delete(l.pending, coord)
			l.mu.Unlock()
			l.notifyUncached(coord)
			continue
		}
		l.mu.Unlock()

		img, err := job.req.Do(job.ctx)
		job.cancel()

		l.mu.Lock()
		delete(l.pending, coord)
		if err != nil {
			l.mu.Unlock()
			if l.log != nil {
				l.log.Debug("tile fetch failed",
					zap.Stringer("coord", coord),
					zap.String("request_id", job.req.ID),
					zap.Error(err),
				)
			}
			l.notifyUncached(coord)
			continue
		}
		evicted := l.store.Set(coord, img)
		l.mu.Unlock()

		for _, old := range evicted {
			l.notifyUncached(old)
		}
		l.notifyCached(coord)
	}
}

// Listener dispatch happens outside the loader's lock so a callback may call
// back into the loader.
func (l *Loader) notifyCached(coord tile.Coordinate) {
	for _, listener := range l.snapshotListeners() {
		listener.TileCached(coord)
	}
}

func (l *Loader) notifyUncached(coord tile.Coordinate) {
	for _, listener := range l.snapshotListeners() {
		listener.TileUncached(coord)
	}
}

func (l *Loader) snapshotListeners() []Listener {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Listener, len(l.listeners))
	copy(out, l.listeners)
	return out
}
