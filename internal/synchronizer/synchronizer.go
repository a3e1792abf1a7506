package synchronizer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/atiastack/atia-dashboard/internal/models"
	"github.com/atiastack/atia-dashboard/internal/utils"
)

// Stream names, also used as metric labels.
const (
	StreamHealth = "health"
	StreamList   = "list"
)

// Source is the remote read path the synchronizer polls.
type Source interface {
	CheckHealth(ctx context.Context) (models.HealthStatus, error)
	ListRecent(ctx context.Context, limit int) ([]models.Indicator, error)
}

// Options tunes polling. Zero values fall back to the defaults.
type Options struct {
	HealthInterval time.Duration
	ListInterval   time.Duration
	ListLimit      int
	Clock          Clock
	Logger         *slog.Logger
}

// Snapshot is the latest state of both streams, copied out under lock.
type Snapshot struct {
	Health     StreamState[models.HealthStatus]
	Indicators StreamState[[]models.Indicator]
}

// Synchronizer polls health and the recent-indicator list on independent
// intervals while at least one subscriber is attached.
type Synchronizer struct {
	opts   Options
	logger *slog.Logger

	health *stream[models.HealthStatus]
	list   *stream[[]models.Indicator]

	root       context.Context
	rootCancel context.CancelFunc

	mu          sync.Mutex
	subscribers map[uint64]chan struct{}
	nextID      uint64
	session     *session
}

// New constructs a stopped Synchronizer over src.
func New(src Source, opts Options) *Synchronizer {
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = 30 * time.Second
	}
	if opts.ListInterval <= 0 {
		opts.ListInterval = 60 * time.Second
	}
	if opts.ListLimit <= 0 {
		opts.ListLimit = 50
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	root, cancel := context.WithCancel(context.Background())
	s := &Synchronizer{
		opts:        opts,
		logger:      logger,
		root:        root,
		rootCancel:  cancel,
		subscribers: make(map[uint64]chan struct{}),
	}

	s.health = &stream[models.HealthStatus]{
		name:   StreamHealth,
		fetch:  src.CheckHealth,
		now:    opts.Clock.Now,
		notify: s.broadcast,
		after: func(_ models.HealthStatus, err error) {
			if err != nil {
				s.logger.Warn("health check failed", "kind", utils.KindOf(err), "error", err)
			}
		},
	}
	limit := opts.ListLimit
	s.list = &stream[[]models.Indicator]{
		name: StreamList,
		fetch: func(ctx context.Context) ([]models.Indicator, error) {
			return src.ListRecent(ctx, limit)
		},
		now:    opts.Clock.Now,
		notify: s.broadcast,
		after: func(items []models.Indicator, err error) {
			if err != nil {
				s.logger.Warn("indicator list refresh failed", "kind", utils.KindOf(err), "error", err)
				return
			}
			s.logger.Debug("indicator list refreshed", "count", len(items))
		},
	}
	return s
}

// Subscription receives coalesced change notifications until closed.
type Subscription struct {
	id   uint64
	ch   chan struct{}
	s    *Synchronizer
	once sync.Once
}

// C signals that the snapshot may have changed. Multiple changes between reads
// collapse into one signal.
func (sub *Subscription) C() <-chan struct{} { return sub.ch }

// Close detaches the subscriber. The last detach stops polling.
func (sub *Subscription) Close() {
	sub.once.Do(func() { sub.s.unsubscribe(sub.id) })
}

// Subscribe attaches a subscriber. The first attach starts both streams with an
// immediate fetch.
func (s *Synchronizer) Subscribe() *Subscription {
	s.mu.Lock()
	s.nextID++
	sub := &Subscription{id: s.nextID, ch: make(chan struct{}, 1), s: s}
	s.subscribers[sub.id] = sub.ch
	first := len(s.subscribers) == 1
	if first {
		s.health.setAttached(true)
		s.list.setAttached(true)
		s.session = s.startLoops()
	}
	s.mu.Unlock()

	if first {
		s.health.trigger(s.root)
		s.list.trigger(s.root)
		s.logger.Debug("synchronizer started",
			"health_interval", s.opts.HealthInterval,
			"list_interval", s.opts.ListInterval)
	}
	return sub
}

func (s *Synchronizer) unsubscribe(id uint64) {
	s.mu.Lock()
	if _, ok := s.subscribers[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.subscribers, id)
	var sess *session
	if len(s.subscribers) == 0 {
		s.health.setAttached(false)
		s.list.setAttached(false)
		sess = s.session
		s.session = nil
	}
	s.mu.Unlock()

	if sess == nil {
		return
	}
	// Fetches still in flight keep their slot and drop their result unless a
	// subscriber has attached again by the time they return.
	sess.cancel()
	sess.wg.Wait()
	s.logger.Debug("synchronizer stopped")
}

// session owns the tick loops of one attach..detach cycle.
type session struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (s *Synchronizer) startLoops() *session {
	ctx, cancel := context.WithCancel(s.root)
	sess := &session{cancel: cancel}
	sess.wg.Add(2)
	go s.pollLoop(ctx, &sess.wg, s.opts.HealthInterval, func() { s.health.trigger(s.root) })
	go s.pollLoop(ctx, &sess.wg, s.opts.ListInterval, func() { s.list.trigger(s.root) })
	return sess
}

func (s *Synchronizer) pollLoop(ctx context.Context, wg *sync.WaitGroup, interval time.Duration, tick func()) {
	defer wg.Done()
	ticker := s.opts.Clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			tick()
		}
	}
}

// RefreshIndicators starts an immediate list fetch. It returns false when no
// subscriber is attached or when a fetch was already in flight.
func (s *Synchronizer) RefreshIndicators() bool {
	s.mu.Lock()
	attached := len(s.subscribers) > 0
	s.mu.Unlock()
	if !attached {
		return false
	}
	return s.list.trigger(s.root)
}

// Prime fetches both streams synchronously, for one-shot rendering without subscribers.
func (s *Synchronizer) Prime(ctx context.Context) Snapshot {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); s.health.fetchNow(ctx) }()
	go func() { defer wg.Done(); s.list.fetchNow(ctx) }()
	wg.Wait()
	return s.Snapshot()
}

// Snapshot returns the current state of both streams.
func (s *Synchronizer) Snapshot() Snapshot {
	return Snapshot{
		Health:     s.health.snapshot(),
		Indicators: s.list.snapshot(),
	}
}

// Running reports whether any subscriber is attached.
func (s *Synchronizer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers) > 0
}

// Close cancels in-flight requests and stops polling regardless of subscribers.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	ids := make([]uint64, 0, len(s.subscribers))
	for id := range s.subscribers {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.unsubscribe(id)
	}
	s.rootCancel()
}

func (s *Synchronizer) broadcast() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
