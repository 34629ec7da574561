// Package scheduler persists deferred sends and dispatches them when due.
// One Scheduler per daemon owns the queue; the daemon's lock file keeps a
// second process from running a competing sweep, and removal-before-send
// makes a duplicate sweep a safe no-op either way.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/involvex/warelay/internal/model"
	"github.com/involvex/warelay/internal/store"
)

// Dispatcher is the send path a due entry goes through: the normal
// optimistic-send route.
type Dispatcher interface {
	SendText(ctx context.Context, chatID, body string) (*model.MessageRecord, error)
}

// ErrPastSchedule rejects entries whose due time is not strictly in the
// future.
type ErrPastSchedule struct {
	ScheduledFor time.Time
}

func (e *ErrPastSchedule) Error() string {
	return fmt.Sprintf("scheduled time %s is not in the future", e.ScheduledFor.Format(time.RFC3339))
}

// Scheduler sweeps the persisted queue on a fixed interval.
type Scheduler struct {
	db         *store.DB
	dispatcher Dispatcher
	logger     *zap.Logger
	interval   time.Duration
	now        func() time.Time
	cancel     context.CancelFunc
}

// New creates a scheduler sweeping every interval.
func New(db *store.DB, dispatcher Dispatcher, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		db:         db,
		dispatcher: dispatcher,
		logger:     logger,
		interval:   interval,
		now:        time.Now,
	}
}

// Add validates and persists a deferred send. The due time must be
// strictly in the future; anything else is rejected synchronously and the
// queue is left untouched.
func (s *Scheduler) Add(chatID, body string, scheduledFor time.Time) (*model.ScheduledMessage, error) {
	if chatID == "" || body == "" {
		return nil, fmt.Errorf("chat id and body are required")
	}
	if !scheduledFor.After(s.now()) {
		return nil, &ErrPastSchedule{ScheduledFor: scheduledFor}
	}

	m := &model.ScheduledMessage{
		ID:           uuid.NewString(),
		ChatID:       chatID,
		Body:         body,
		ScheduledFor: scheduledFor.UnixMilli(),
		CreatedAt:    s.now().UnixMilli(),
	}
	if err := s.db.AddScheduled(m); err != nil {
		return nil, fmt.Errorf("persist scheduled message: %w", err)
	}

	s.logger.Info("message scheduled",
		zap.String("id", m.ID),
		zap.String("chat_id", chatID),
		zap.Time("due", scheduledFor))
	return m, nil
}

// List returns the queue ordered by due time.
func (s *Scheduler) List() ([]model.ScheduledMessage, error) {
	return s.db.ListScheduled()
}

// Remove cancels a scheduled message. Removing an id that is already gone
// is not an error.
func (s *Scheduler) Remove(id string) error {
	_, err := s.db.RemoveScheduled(id)
	return err
}

// Start begins the sweep loop.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

// Stop stops the sweep loop.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Sweep dispatches every due entry. Each entry is removed from the queue
// before the send attempt: delivery is at-most-once, and a failure after
// removal is logged, not re-queued.
func (s *Scheduler) Sweep(ctx context.Context) {
	due, err := s.db.DueScheduled(s.now())
	if err != nil {
		s.logger.Error("failed to read scheduled queue", zap.Error(err))
		return
	}

	for _, entry := range due {
		won, err := s.db.RemoveScheduled(entry.ID)
		if err != nil {
			s.logger.Error("failed to remove scheduled message",
				zap.Error(err), zap.String("id", entry.ID))
			continue
		}
		if !won {
			// Another sweep already claimed it.
			continue
		}

		if _, err := s.dispatcher.SendText(ctx, entry.ChatID, entry.Body); err != nil {
			s.logger.Error("scheduled dispatch failed",
				zap.Error(err),
				zap.String("id", entry.ID),
				zap.String("chat_id", entry.ChatID))
			continue
		}

		s.logger.Info("scheduled message dispatched",
			zap.String("id", entry.ID),
			zap.String("chat_id", entry.ChatID))
	}
}
