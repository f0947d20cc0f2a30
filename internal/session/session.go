// Package session owns the client's room cache. A Session runs one event
// loop that receives transport events, fetch results, invalidations and view
// requests, and is the only goroutine that reads or writes the cache.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/umar/roomsync/internal/api"
	"github.com/umar/roomsync/internal/bus"
	"github.com/umar/roomsync/internal/chat"
	"github.com/umar/roomsync/internal/models"
	"github.com/umar/roomsync/internal/roomlist"
	"github.com/umar/roomsync/internal/store"
)

var (
	ErrClosed  = errors.New("session closed")
	ErrRunning = errors.New("session already running")
)

const (
	eventBuffer     = 256
	snapshotTimeout = 5 * time.Second
)

// Fetcher loads the full list of joined rooms.
type Fetcher interface {
	JoinedRooms(ctx context.Context) ([]models.Room, error)
}

// Transport is the realtime connection the session drives.
type Transport interface {
	chat.Subscriber
	Connect(ctx context.Context)
	Disconnect()
}

type Options struct {
	// Owner keys the snapshot. Snapshots are skipped when it is empty.
	Owner     string
	Snapshots store.Snapshots
	// Bus delivers RoomUpdated invalidations. Optional.
	Bus *bus.Bus
	// Failed fetch attempts are retried this many times, at most one attempt
	// per FetchRetryDelay.
	FetchRetries    int
	FetchRetryDelay time.Duration
	Logger          *slog.Logger
}

type fetchResult struct {
	token uint64
	// rejoin re-sends join_room for every room instead of only new ones
	rejoin bool
	rooms  []models.Room
	err    error
}

type viewRequest struct {
	query string
	// all skips filtering
	all   bool
	reply chan roomlist.Rooms
}

type Session struct {
	fetcher Fetcher
	opts    Options
	logger  *slog.Logger

	events chan any
	views  chan viewRequest
	done   chan struct{}

	watchMu  sync.Mutex
	watchers map[chan roomlist.Rooms]struct{}
	latest   roomlist.Rooms

	running atomic.Bool
	state   atomic.Int32

	// owned by the loop
	rooms     roomlist.Rooms
	driver    *chat.Driver
	token     uint64
	connected bool
	resync    bool

	wg sync.WaitGroup
}

func New(fetcher Fetcher, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.FetchRetries < 0 {
		opts.FetchRetries = 0
	}
	return &Session{
		fetcher: fetcher,
		opts:    opts,
		logger:  logger.With("component", "session"),
		events:   make(chan any, eventBuffer),
		views:    make(chan viewRequest),
		done:     make(chan struct{}),
		watchers: make(map[chan roomlist.Rooms]struct{}),
	}
}

// HandleState implements chat.Handler.
func (s *Session) HandleState(st chat.State) {
	s.post(st)
}

// HandleMessage implements chat.Handler.
func (s *Session) HandleMessage(ev models.MessageEvent) {
	s.post(ev)
}

func (s *Session) post(ev any) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// ConnState returns the last transport state the loop processed.
func (s *Session) ConnState() chat.State {
	return chat.State(s.state.Load())
}

// Watch returns a channel that yields the cache each time it changes,
// starting with the current one, and a function that ends the watch. Only
// the newest unread value is kept. The channel is closed when the session
// stops.
func (s *Session) Watch() (<-chan roomlist.Rooms, func()) {
	ch := make(chan roomlist.Rooms, 1)

	s.watchMu.Lock()
	if s.watchers == nil {
		s.watchMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.watchers[ch] = struct{}{}
	if s.latest != nil {
		ch <- s.latest
	}
	s.watchMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.watchMu.Lock()
			defer s.watchMu.Unlock()
			if _, ok := s.watchers[ch]; ok {
				delete(s.watchers, ch)
				close(ch)
			}
		})
	}
	return ch, cancel
}

func (s *Session) publish(rooms roomlist.Rooms) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	s.latest = rooms
	for ch := range s.watchers {
		// senders hold watchMu, so after the drain the send cannot block
		select {
		case <-ch:
		default:
		}
		ch <- rooms
	}
}

func (s *Session) closeWatchers() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	for ch := range s.watchers {
		close(ch)
	}
	s.watchers = nil
}

// View returns the cache filtered by query.
func (s *Session) View(ctx context.Context, query string) (roomlist.Rooms, error) {
	return s.request(ctx, viewRequest{query: query})
}

// Rooms returns the canonical cache.
func (s *Session) Rooms(ctx context.Context) (roomlist.Rooms, error) {
	return s.request(ctx, viewRequest{all: true})
}

func (s *Session) request(ctx context.Context, req viewRequest) (roomlist.Rooms, error) {
	req.reply = make(chan roomlist.Rooms, 1)
	select {
	case s.views <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrClosed
	}
	select {
	case rooms := <-req.reply:
		return rooms, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run connects t, loads the joined rooms and processes events until ctx is
// cancelled. It disconnects t before returning. A Session runs once.
func (s *Session) Run(ctx context.Context, t Transport) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	s.driver = chat.NewDriver(t, s.logger)

	var invalidated <-chan struct{}
	if s.opts.Bus != nil {
		ch, cancel := s.opts.Bus.Subscribe(bus.RoomUpdated)
		defer cancel()
		invalidated = ch
	}

	s.seed(ctx)
	t.Connect(ctx)
	s.refetch(ctx, false)

	s.loop(ctx, invalidated)

	close(s.done)
	s.closeWatchers()
	t.Disconnect()
	s.wg.Wait()
	s.logger.Info("session stopped")
	return nil
}

func (s *Session) loop(ctx context.Context, invalidated <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return

		case ev := <-s.events:
			switch ev := ev.(type) {
			case models.MessageEvent:
				s.handleMessage(ev)
			case chat.State:
				s.handleState(ctx, ev)
			case fetchResult:
				s.handleFetch(ctx, ev)
			}

		case <-invalidated:
			s.logger.Info("room list invalidated, refetching")
			s.refetch(ctx, true)

		case req := <-s.views:
			if req.all {
				req.reply <- s.rooms
			} else {
				req.reply <- roomlist.Filter(s.rooms, req.query)
			}
		}
	}
}

func (s *Session) handleMessage(ev models.MessageEvent) {
	next := roomlist.Reconcile(s.rooms, ev)
	if roomlist.Same(next, s.rooms) {
		s.logger.Debug("message for unknown room", "room_id", ev.RoomID)
		return
	}
	s.setRooms(next)
}

func (s *Session) handleState(ctx context.Context, st chat.State) {
	s.state.Store(int32(st))
	s.connected = st == chat.StateConnected
	if !s.connected {
		s.driver.Reset()
		return
	}

	n := s.driver.RejoinAll(s.rooms)
	s.logger.Info("connected, rooms rejoined", "count", n)

	// events sent while the link was down are gone. The resync only joins
	// rooms this connection has not joined yet.
	if s.resync {
		s.refetch(ctx, false)
	}
	s.resync = true
}

func (s *Session) handleFetch(ctx context.Context, res fetchResult) {
	if res.token != s.token {
		s.logger.Debug("discarding stale fetch", "token", res.token, "latest", s.token)
		return
	}
	if res.err != nil {
		s.logger.Error("failed to fetch joined rooms", "error", res.err)
		return
	}

	s.setRooms(roomlist.Replace(s.rooms, res.rooms))
	if s.connected {
		if res.rejoin {
			s.driver.RejoinAll(s.rooms)
		} else {
			s.driver.JoinMissing(s.rooms)
		}
	}
	s.saveSnapshot(ctx, s.rooms)
	s.logger.Info("room list refreshed", "count", len(s.rooms))
}

func (s *Session) setRooms(next roomlist.Rooms) {
	if roomlist.Same(next, s.rooms) {
		return
	}
	s.rooms = next
	s.publish(next)
}

// refetch starts a full fetch under a new token. Results of earlier fetches
// still in flight will be discarded.
func (s *Session) refetch(ctx context.Context, rejoin bool) {
	s.token++
	token := s.token

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		rooms, err := s.fetch(ctx)
		s.post(fetchResult{token: token, rejoin: rejoin, rooms: rooms, err: err})
	}()
}

func (s *Session) fetch(ctx context.Context) ([]models.Room, error) {
	limit := rate.Inf
	if s.opts.FetchRetryDelay > 0 {
		limit = rate.Every(s.opts.FetchRetryDelay)
	}
	pace := rate.NewLimiter(limit, 1)

	var err error
	for attempt := 0; attempt <= s.opts.FetchRetries; attempt++ {
		if werr := pace.Wait(ctx); werr != nil {
			if err == nil {
				err = werr
			}
			return nil, err
		}
		var rooms []models.Room
		rooms, err = s.fetcher.JoinedRooms(ctx)
		if err == nil {
			return rooms, nil
		}
		if !api.Retryable(err) || ctx.Err() != nil {
			return nil, err
		}
		s.logger.Warn("fetch attempt failed", "attempt", attempt+1, "error", err)
	}
	return nil, err
}

func (s *Session) seed(ctx context.Context) {
	if s.opts.Snapshots == nil || s.opts.Owner == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()

	rooms, ok, err := s.opts.Snapshots.Load(ctx, s.opts.Owner)
	if err != nil {
		s.logger.Warn("failed to load snapshot", "error", err)
		return
	}
	if !ok {
		return
	}
	s.setRooms(roomlist.Replace(s.rooms, rooms))
	s.logger.Info("room list seeded from snapshot", "count", len(s.rooms))
}

func (s *Session) saveSnapshot(ctx context.Context, rooms roomlist.Rooms) {
	if s.opts.Snapshots == nil || s.opts.Owner == "" {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, snapshotTimeout)
		defer cancel()
		if err := s.opts.Snapshots.Save(ctx, s.opts.Owner, rooms); err != nil {
			s.logger.Warn("failed to save snapshot", "error", err)
		}
	}()
}
