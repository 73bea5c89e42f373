// Eventscope - Event Discovery and Live Participation Sync Engine
// Copyright 2026 Andrey V. (avoronkov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avoronkov/eventscope

package sync

import (
	"context"
	"fmt"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/avoronkov/eventscope/internal/logging"
	"github.com/avoronkov/eventscope/internal/metrics"
	"github.com/avoronkov/eventscope/internal/models"
	"github.com/avoronkov/eventscope/internal/store"
)

// DefaultPollInterval is the snapshot poll period used when the config
// does not override it.
const DefaultPollInterval = 15 * time.Second

// Backend is the REST surface the scheduler needs. Satisfied by *Client;
// tests substitute a fake.
type Backend interface {
	FetchSnapshot(ctx context.Context) ([]models.EventSnapshot, error)
	Join(ctx context.Context, eventID, userID string) (*models.EventSnapshot, error)
	Leave(ctx context.Context, eventID, userID string) (*models.EventSnapshot, error)
}

// Pusher is the push-channel surface the scheduler needs. Satisfied by
// *PushClient. Nil disables push and the store converges on polls alone.
type Pusher interface {
	SetDeltaCallback(fn func(models.ParticipantDelta))
	Connect(ctx context.Context) error
	Close() error
}

// Scheduler drives the event store from two sources: a periodic snapshot
// poll and the push channel. Every store write is guarded by a generation
// token so that work still in flight when the scheduler stops (or
// restarts) can never mutate the store of a later generation.
type Scheduler struct {
	backend  Backend
	push     Pusher
	store    *store.EventStore
	interval time.Duration

	// generation is bumped on every Stop. In-flight work captures the
	// value at launch and re-checks it before each store write.
	generation atomic.Uint64
	// startGen is the generation the current run was started under. Push
	// deltas delivered after Stop see a mismatch and are dropped.
	startGen atomic.Uint64

	mu       stdsync.Mutex
	running  bool
	cancel   context.CancelFunc
	stopChan chan struct{}
	wg       stdsync.WaitGroup
}

// NewScheduler creates a scheduler. interval <= 0 selects
// DefaultPollInterval.
func NewScheduler(backend Backend, push Pusher, st *store.EventStore, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Scheduler{
		backend:  backend,
		push:     push,
		store:    st,
		interval: interval,
	}
}

// Start launches the poll loop and connects the push channel. The first
// snapshot is fetched immediately rather than one interval in.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.startGen.Store(s.generation.Load())
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	logging.Info().Dur("interval", s.interval).Msg("Starting sync scheduler")

	if s.push != nil {
		s.push.SetDeltaCallback(s.handlePushDelta)
		if err := s.push.Connect(ctx); err != nil {
			// The push client reconnects on its own; polling covers the gap.
			logging.Warn().Err(err).Msg("Push channel unavailable at startup")
		}
	}

	s.wg.Add(1)
	go s.pollLoop(ctx)

	return nil
}

// Stop invalidates the current generation, halts the poll loop, and
// closes the push channel. Work already in flight completes but its
// results are discarded at the generation check.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.generation.Add(1)
	close(s.stopChan)
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	if s.push != nil {
		if err := s.push.Close(); err != nil {
			logging.Warn().Err(err).Msg("Push channel close failed")
		}
	}
	s.wg.Wait()

	logging.Info().Msg("[scheduler] Sync scheduler stopped")
	return nil
}

// pollLoop runs the periodic snapshot fetch.
func (s *Scheduler) pollLoop(ctx context.Context) {
	defer s.wg.Done()

	// Initial poll
	s.poll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

// poll fetches one snapshot and replaces the store contents, unless the
// generation moved on while the fetch was in flight.
func (s *Scheduler) poll(ctx context.Context) {
	gen := s.generation.Load()

	snaps, err := s.backend.FetchSnapshot(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("Snapshot fetch failed, keeping previous state")
		return
	}

	if s.generation.Load() != gen {
		logging.Debug().Msg("Discarding stale snapshot")
		return
	}

	events := make([]models.Event, 0, len(snaps))
	for i := range snaps {
		events = append(events, snaps[i].ToEvent())
	}
	s.store.ReplaceSnapshot(events)
	metrics.DeltasApplied.WithLabelValues(metrics.SourcePoll).Inc()
	metrics.StoreEvents.Set(float64(s.store.Len()))
}

// Refresh performs a single on-demand poll outside the ticker cadence.
// Unlike poll it is not tracked by the WaitGroup, so the generation check
// and the store write happen under the lock shared with Stop: either the
// write lands before Stop bumps the generation, or it is discarded.
func (s *Scheduler) Refresh(ctx context.Context) error {
	gen := s.generation.Load()

	snaps, err := s.backend.FetchSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("refresh snapshot: %w", err)
	}

	events := make([]models.Event, 0, len(snaps))
	for i := range snaps {
		events = append(events, snaps[i].ToEvent())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation.Load() != gen {
		return nil
	}
	s.store.ReplaceSnapshot(events)
	metrics.DeltasApplied.WithLabelValues(metrics.SourcePoll).Inc()
	metrics.StoreEvents.Set(float64(s.store.Len()))
	return nil
}

// handlePushDelta applies a delta arriving on the push channel.
func (s *Scheduler) handlePushDelta(d models.ParticipantDelta) {
	if s.generation.Load() != s.startGen.Load() {
		return // delivered after Stop
	}

	if s.store.ApplyDelta(d) {
		metrics.DeltasApplied.WithLabelValues(metrics.SourcePush).Inc()
	} else {
		metrics.DeltasIgnored.WithLabelValues(metrics.SourcePush).Inc()
	}
}

// JoinEvent performs an optimistic join: the store is updated first, the
// backend confirms asynchronously from the caller's point of view, and a
// rejected confirmation rolls the optimistic delta back. The rollback
// applies the inverse delta only when the optimistic apply changed
// membership, so a join that was already a no-op cannot eject the user.
func (s *Scheduler) JoinEvent(ctx context.Context, eventID, userID string) error {
	return s.mutate(ctx, models.ParticipantDelta{
		EventID: eventID,
		UserID:  userID,
		Action:  models.ActionJoin,
	})
}

// LeaveEvent is the optimistic counterpart of JoinEvent.
func (s *Scheduler) LeaveEvent(ctx context.Context, eventID, userID string) error {
	return s.mutate(ctx, models.ParticipantDelta{
		EventID: eventID,
		UserID:  userID,
		Action:  models.ActionLeave,
	})
}

func (s *Scheduler) mutate(ctx context.Context, d models.ParticipantDelta) error {
	gen := s.generation.Load()

	applied := s.store.ApplyOptimistic(d)
	if applied {
		metrics.DeltasApplied.WithLabelValues(metrics.SourceOptimistic).Inc()
	} else {
		metrics.DeltasIgnored.WithLabelValues(metrics.SourceOptimistic).Inc()
	}

	var err error
	switch d.Action {
	case models.ActionJoin:
		_, err = s.backend.Join(ctx, d.EventID, d.UserID)
	case models.ActionLeave:
		_, err = s.backend.Leave(ctx, d.EventID, d.UserID)
	default:
		return fmt.Errorf("unsupported action %q", d.Action)
	}

	if err != nil {
		if applied && s.generation.Load() == gen {
			s.store.ApplyDelta(d.Inverse())
			metrics.DeltasApplied.WithLabelValues(metrics.SourceRollback).Inc()
		}
		return fmt.Errorf("%s event %s: %w", d.Action, d.EventID, err)
	}

	// Confirmed. The next poll reconciles any membership drift against
	// the authoritative snapshot.
	return nil
}

// IsRunning reports whether the scheduler has been started and not yet
// stopped.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
