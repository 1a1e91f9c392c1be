// Package engine folds control-plane events into the replicated community
// projection. The fold is deterministic and idempotent: replaying a stream,
// or re-delivering any prefix of it, converges on the same state.
package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/golang/glog"

	"glen/internal/events"
	"glen/internal/models"
	"glen/internal/storage"
)

// AuthorizeFunc decides whether sender may apply ev given the current
// projection. The fold enforces no policy of its own; callers plug one in.
type AuthorizeFunc func(state *models.CommunityState, ev *events.MetaEvent, p events.Payload) bool

// AnnounceFunc receives ephemeral community.announcement events. They are
// surfaced to the UI layer, never persisted.
type AnnounceFunc func(communityID, sender, text string)

// ChannelFunc receives each channel that enters the projection, at creation
// or via snapshot, so callers can follow the channel's message stream without
// polling StateView. Invoked from the fold goroutine; keep it quick and do
// not call back into the engine.
type ChannelFunc func(communityID string, ch models.ChannelState)

// Engine serializes event application per community: one worker goroutine and
// one bounded queue per community id, so no two folds for the same community
// ever interleave. Folds for different communities run in parallel.
type Engine struct {
	store     *storage.Store
	authorize AuthorizeFunc
	announce  AnnounceFunc
	channels  ChannelFunc
	queueSize int

	mu      sync.Mutex
	workers map[string]*worker
	stopped bool
	wg      sync.WaitGroup
}

type Option func(*Engine)

// WithAuthorization installs an authorization hook.
func WithAuthorization(fn AuthorizeFunc) Option {
	return func(e *Engine) { e.authorize = fn }
}

// WithAnnouncements installs a sink for ephemeral announcements.
func WithAnnouncements(fn AnnounceFunc) Option {
	return func(e *Engine) { e.announce = fn }
}

// WithChannelEvents installs a sink for channels entering the projection.
func WithChannelEvents(fn ChannelFunc) Option {
	return func(e *Engine) { e.channels = fn }
}

// WithQueueSize sets the per-community event queue depth.
func WithQueueSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.queueSize = n
		}
	}
}

func New(store *storage.Store, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		queueSize: 256,
		workers:   make(map[string]*worker),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type foldRequest struct {
	ctx    context.Context
	ev     *events.MetaEvent
	p      events.Payload
	result chan error
}

type worker struct {
	communityID string
	queue       chan foldRequest
	stateMu     sync.RWMutex
	state       *models.CommunityState
}

// Submit enqueues one decoded event for its community, fire-and-forget.
// Ordering within a community follows submission order.
func (e *Engine) Submit(ctx context.Context, ev *events.MetaEvent, p events.Payload) error {
	_, err := e.enqueue(ctx, ev, p)
	return err
}

// Apply enqueues one event and waits for its fold to commit or fail. A
// returned persistence error means that event's transaction did not commit;
// previously committed state is intact.
func (e *Engine) Apply(ctx context.Context, ev *events.MetaEvent, p events.Payload) error {
	result, err := e.enqueue(ctx, ev, p)
	if err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) enqueue(ctx context.Context, ev *events.MetaEvent, p events.Payload) (<-chan error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// The send happens under the engine lock so Stop cannot close the queue
	// between lookup and send.
	e.mu.Lock()
	defer e.mu.Unlock()
	w, err := e.workerForLocked(ev.CommunityID)
	if err != nil {
		return nil, err
	}
	req := foldRequest{ctx: ctx, ev: ev, p: p, result: make(chan error, 1)}
	select {
	case w.queue <- req:
		return req.result, nil
	default:
		// Queue full: fail fast to caller.
		return nil, ErrQueueFull
	}
}

func (e *Engine) workerFor(communityID string) (*worker, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.workerForLocked(communityID)
}

func (e *Engine) workerForLocked(communityID string) (*worker, error) {
	if e.stopped {
		return nil, ErrEngineStopped
	}
	if w, ok := e.workers[communityID]; ok {
		return w, nil
	}
	w := &worker{
		communityID: communityID,
		queue:       make(chan foldRequest, e.queueSize),
	}
	e.workers[communityID] = w
	e.wg.Add(1)
	go e.run(w)
	return w, nil
}

// run is the single consumer for one community. Queue close is the only way
// it exits, so every accepted event is either folded or answered with
// ErrEngineStopped.
func (e *Engine) run(w *worker) {
	defer e.wg.Done()
	for req := range w.queue {
		if req.ctx.Err() != nil {
			// Cancelled while queued: skip scheduling, keep committed state.
			req.result <- req.ctx.Err()
			close(req.result)
			continue
		}
		err := e.fold(req.ctx, w, req.ev, req.p)
		if err != nil {
			glog.Warningf("engine: fold %s for community %s: %v", req.ev.Type, w.communityID, err)
		}
		req.result <- err
		close(req.result)
	}
}

// Stop closes all queues and waits for in-flight folds to finish. Committed
// transactions are never rolled back.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	for _, w := range e.workers {
		close(w.queue)
	}
	e.mu.Unlock()
	e.wg.Wait()
}

// StateView returns a deep copy of a community's projection, loading it from
// storage on first touch. Callers can read it freely while folds continue.
func (e *Engine) StateView(ctx context.Context, communityID string) (*models.CommunityState, error) {
	w, err := e.workerFor(communityID)
	if err != nil {
		return nil, err
	}
	if err := e.ensureState(ctx, w); err != nil {
		return nil, err
	}
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	return copyState(w.state), nil
}

// ensureState lazily loads the persisted projection into the worker.
func (e *Engine) ensureState(ctx context.Context, w *worker) error {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	if w.state != nil {
		return nil
	}
	state, err := e.store.LoadCommunity(ctx, w.communityID)
	if err != nil {
		if !errors.Is(err, storage.ErrNoRows) {
			return ErrPersistence.WithDetails(err.Error())
		}
		state = models.NewCommunityState(w.communityID)
	}
	w.state = state
	return nil
}

func copyState(s *models.CommunityState) *models.CommunityState {
	out := models.NewCommunityState(s.ID)
	out.Config = s.Config
	out.LastSnapshotTS = s.LastSnapshotTS
	for id, ch := range s.Channels {
		c := *ch
		out.Channels[id] = &c
	}
	for id, r := range s.Roles {
		out.Roles[id] = r
	}
	for id := range s.Bans {
		out.Bans[id] = struct{}{}
	}
	return out
}
