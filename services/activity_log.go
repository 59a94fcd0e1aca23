package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rpupo63/portfolio-api/database"
	"github.com/rpupo63/portfolio-api/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type activityAppender interface {
	Append(ctx context.Context, entry models.ActivityLog) error
}

// StoreActivitySink writes entries synchronously. Failures are logged and dropped.
type StoreActivitySink struct {
	repo   activityAppender
	logger zerolog.Logger
}

func NewStoreActivitySink(repo activityAppender) *StoreActivitySink {
	return &StoreActivitySink{
		repo:   repo,
		logger: log.With().Str("component", "activityLog").Logger(),
	}
}

func (s *StoreActivitySink) Record(ctx context.Context, entry models.ActivityLog) {
	if err := s.repo.Append(ctx, entry); err != nil {
		s.logger.Error().Err(err).
			Str("action", string(entry.Action)).
			Str("entity", entry.Entity).
			Str("entityId", entry.EntityID).
			Msg("failed to write activity log entry")
	}
}

const (
	defaultActivityQueueSize = 256
	activityWriteTimeout     = 5 * time.Second
)

// AsyncActivitySink queues entries on a bounded channel drained by one
// goroutine. Record never blocks: when the queue is full the entry is dropped.
type AsyncActivitySink struct {
	next   database.ActivitySink
	in     chan models.ActivityLog
	stopCh chan struct{}
	doneCh chan struct{}
	logger zerolog.Logger

	// mu orders sends against Close so nothing lands in the queue after the drain.
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

func NewAsyncActivitySink(next database.ActivitySink, queueSize int) *AsyncActivitySink {
	if queueSize <= 0 {
		queueSize = defaultActivityQueueSize
	}
	if next == nil {
		panic("nil activity sink")
	}
	s := &AsyncActivitySink{
		next:   next,
		in:     make(chan models.ActivityLog, queueSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		logger: log.With().Str("component", "activityQueue").Logger(),
	}
	go s.loop()
	return s
}

func (s *AsyncActivitySink) Record(ctx context.Context, entry models.ActivityLog) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.drop(entry, "closed")
		return
	}

	select {
	case s.in <- entry:
	default:
		s.drop(entry, "queue full")
	}
}

func (s *AsyncActivitySink) drop(entry models.ActivityLog, reason string) {
	s.dropped.Add(1)
	s.logger.Warn().
		Str("reason", reason).
		Str("action", string(entry.Action)).
		Str("entity", entry.Entity).
		Str("entityId", entry.EntityID).
		Msg("dropping activity log entry")
}

// Dropped reports how many entries were discarded since start.
func (s *AsyncActivitySink) Dropped() int64 {
	return s.dropped.Load()
}

// Close stops accepting entries and waits for the queue to drain, or for ctx.
func (s *AsyncActivitySink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.stopCh)
	}
	s.mu.Unlock()

	select {
	case <-s.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *AsyncActivitySink) loop() {
	defer close(s.doneCh)
	for {
		select {
		case entry := <-s.in:
			s.write(entry)
		case <-s.stopCh:
			for {
				select {
				case entry := <-s.in:
					s.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (s *AsyncActivitySink) write(entry models.ActivityLog) {
	ctx, cancel := context.WithTimeout(context.Background(), activityWriteTimeout)
	defer cancel()
	s.next.Record(ctx, entry)
}
