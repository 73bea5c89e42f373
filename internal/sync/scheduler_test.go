// Eventscope - Event Discovery and Live Participation Sync Engine
// Copyright 2026 Andrey V. (avoronkov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avoronkov/eventscope

package sync

import (
	"context"
	"errors"
	stdsync "sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/avoronkov/eventscope/internal/metrics"
	"github.com/avoronkov/eventscope/internal/models"
	"github.com/avoronkov/eventscope/internal/store"
)

type fakeBackend struct {
	mu         stdsync.Mutex
	snaps      []models.EventSnapshot
	fetchErr   error
	mutateErr  error
	fetchCalls int
	joinCalls  int
	leaveCalls int

	// When set, FetchSnapshot blocks until the context is canceled before
	// returning its result.
	blockFetchUntilCancel bool
	// When non-nil, FetchSnapshot blocks until the channel is closed
	// before returning its result.
	fetchGate chan struct{}
}

func (f *fakeBackend) FetchSnapshot(ctx context.Context) ([]models.EventSnapshot, error) {
	f.mu.Lock()
	f.fetchCalls++
	block := f.blockFetchUntilCancel
	gate := f.fetchGate
	snaps := f.snaps
	err := f.fetchErr
	f.mu.Unlock()

	if block {
		<-ctx.Done()
	}
	if gate != nil {
		<-gate
	}
	return snaps, err
}

func (f *fakeBackend) Join(_ context.Context, _, _ string) (*models.EventSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joinCalls++
	if f.mutateErr != nil {
		return nil, f.mutateErr
	}
	return &models.EventSnapshot{}, nil
}

func (f *fakeBackend) Leave(_ context.Context, _, _ string) (*models.EventSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaveCalls++
	if f.mutateErr != nil {
		return nil, f.mutateErr
	}
	return &models.EventSnapshot{}, nil
}

func (f *fakeBackend) calls() (fetch, join, leave int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls, f.joinCalls, f.leaveCalls
}

type fakePusher struct {
	mu        stdsync.Mutex
	fn        func(models.ParticipantDelta)
	connected bool
	closed    bool
}

func (f *fakePusher) SetDeltaCallback(fn func(models.ParticipantDelta)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fn = fn
}

func (f *fakePusher) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakePusher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakePusher) deliver(d models.ParticipantDelta) {
	f.mu.Lock()
	fn := f.fn
	f.mu.Unlock()
	if fn != nil {
		fn(d)
	}
}

func snapshotOf(id string, participants ...string) models.EventSnapshot {
	return models.EventSnapshot{
		ID:             id,
		Title:          "Событие " + id,
		City:           "Ростов",
		StartDate:      time.Now().Add(24 * time.Hour),
		ParticipantIDs: participants,
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestScheduler_InitialPollFillsStore(t *testing.T) {
	backend := &fakeBackend{snaps: []models.EventSnapshot{snapshotOf("e1"), snapshotOf("e2")}}
	st := store.New(nil)
	s := NewScheduler(backend, nil, st, time.Hour)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() { _ = s.Stop() }()

	waitFor(t, func() bool { return st.Len() == 2 }, "store never received the initial snapshot")

	fetch, _, _ := backend.calls()
	if fetch != 1 {
		t.Errorf("fetchCalls = %d, want 1 (immediate poll, hour-long interval)", fetch)
	}
}

func TestScheduler_Refresh(t *testing.T) {
	backend := &fakeBackend{snaps: []models.EventSnapshot{snapshotOf("e1")}}
	st := store.New(nil)
	s := NewScheduler(backend, nil, st, time.Hour)

	pollCounter := metrics.DeltasApplied.WithLabelValues(metrics.SourcePoll)
	before := testutil.ToFloat64(pollCounter)

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if st.Len() != 1 {
		t.Errorf("store has %d events after refresh, want 1", st.Len())
	}
	if got := testutil.ToFloat64(pollCounter) - before; got != 1 {
		t.Errorf("poll-source delta counter advanced by %v, want 1 per snapshot replacement", got)
	}
}

func TestScheduler_RefreshError(t *testing.T) {
	backend := &fakeBackend{fetchErr: errors.New("backend down")}
	s := NewScheduler(backend, nil, store.New(nil), time.Hour)

	if err := s.Refresh(context.Background()); err == nil {
		t.Error("Refresh should surface the fetch error")
	}
}

func TestScheduler_FailedPollKeepsPreviousState(t *testing.T) {
	backend := &fakeBackend{snaps: []models.EventSnapshot{snapshotOf("e1")}}
	st := store.New(nil)
	s := NewScheduler(backend, nil, st, time.Hour)

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	backend.mu.Lock()
	backend.fetchErr = errors.New("backend down")
	backend.mu.Unlock()

	if err := s.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	if st.Len() != 1 {
		t.Errorf("failed poll must not clear the store, got %d events", st.Len())
	}
}

func TestScheduler_PushDeltaApplied(t *testing.T) {
	backend := &fakeBackend{snaps: []models.EventSnapshot{snapshotOf("e1")}}
	push := &fakePusher{}
	st := store.New(nil)
	s := NewScheduler(backend, push, st, time.Hour)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() { _ = s.Stop() }()

	waitFor(t, func() bool { return st.Len() == 1 }, "store never received the initial snapshot")

	push.deliver(models.ParticipantDelta{EventID: "e1", UserID: "u1", Action: models.ActionJoin})

	e, ok := st.Get("e1")
	if !ok || !e.HasParticipant("u1") {
		t.Error("push delta was not applied to the store")
	}
}

func TestScheduler_PushDeltaDroppedAfterStop(t *testing.T) {
	backend := &fakeBackend{snaps: []models.EventSnapshot{snapshotOf("e1")}}
	push := &fakePusher{}
	st := store.New(nil)
	s := NewScheduler(backend, push, st, time.Hour)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, func() bool { return st.Len() == 1 }, "store never received the initial snapshot")

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if !push.closed {
		t.Error("Stop must close the push channel")
	}

	// A frame that was in flight when Stop ran arrives late.
	push.deliver(models.ParticipantDelta{EventID: "e1", UserID: "u1", Action: models.ActionJoin})

	e, _ := st.Get("e1")
	if e.HasParticipant("u1") {
		t.Error("delta delivered after Stop mutated the store")
	}
}

func TestScheduler_StaleSnapshotDiscardedAfterStop(t *testing.T) {
	backend := &fakeBackend{
		snaps:                 []models.EventSnapshot{snapshotOf("e1")},
		blockFetchUntilCancel: true,
	}
	st := store.New(nil)
	s := NewScheduler(backend, nil, st, time.Hour)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, func() bool { fetch, _, _ := backend.calls(); return fetch == 1 }, "initial poll never started")

	// Stop cancels the context, which releases the blocked fetch. The
	// snapshot it returns belongs to the old generation.
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if st.Len() != 0 {
		t.Errorf("stale snapshot mutated the store after Stop, got %d events", st.Len())
	}
}

func TestScheduler_JoinEvent(t *testing.T) {
	backend := &fakeBackend{snaps: []models.EventSnapshot{snapshotOf("e1")}}
	st := store.New(nil)
	s := NewScheduler(backend, nil, st, time.Hour)

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	if err := s.JoinEvent(context.Background(), "e1", "u1"); err != nil {
		t.Fatalf("JoinEvent failed: %v", err)
	}

	e, _ := st.Get("e1")
	if !e.HasParticipant("u1") {
		t.Error("confirmed join left no membership in the store")
	}
	_, join, _ := backend.calls()
	if join != 1 {
		t.Errorf("joinCalls = %d, want 1", join)
	}
}

func TestScheduler_JoinRollbackOnFailure(t *testing.T) {
	backend := &fakeBackend{
		snaps:     []models.EventSnapshot{snapshotOf("e1")},
		mutateErr: errors.New("event is full"),
	}
	st := store.New(nil)
	s := NewScheduler(backend, nil, st, time.Hour)

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	if err := s.JoinEvent(context.Background(), "e1", "u1"); err == nil {
		t.Fatal("JoinEvent should surface the backend error")
	}

	e, _ := st.Get("e1")
	if e.HasParticipant("u1") {
		t.Error("failed join was not rolled back")
	}
}

// A rejected leave for a user who was never a member must not add the
// user: the optimistic apply was a no-op, so no inverse is applied.
func TestScheduler_NoopOptimisticSkipsRollback(t *testing.T) {
	backend := &fakeBackend{
		snaps:     []models.EventSnapshot{snapshotOf("e1")},
		mutateErr: errors.New("rejected"),
	}
	st := store.New(nil)
	s := NewScheduler(backend, nil, st, time.Hour)

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	if err := s.LeaveEvent(context.Background(), "e1", "u1"); err == nil {
		t.Fatal("LeaveEvent should surface the backend error")
	}

	e, _ := st.Get("e1")
	if e.HasParticipant("u1") {
		t.Error("rollback of a no-op leave joined the user")
	}
}

func TestScheduler_LeaveEvent(t *testing.T) {
	backend := &fakeBackend{snaps: []models.EventSnapshot{snapshotOf("e1", "u1")}}
	st := store.New(nil)
	s := NewScheduler(backend, nil, st, time.Hour)

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	if err := s.LeaveEvent(context.Background(), "e1", "u1"); err != nil {
		t.Fatalf("LeaveEvent failed: %v", err)
	}

	e, _ := st.Get("e1")
	if e.HasParticipant("u1") {
		t.Error("confirmed leave left membership in the store")
	}
}

// The supervisor restarts the scheduler by calling Start again after
// Stop. With the real push client attached (here pointing at an
// unreachable endpoint, so Connect fails and polling carries the load)
// every cycle must start and stop cleanly.
func TestScheduler_RestartWithPushClient(t *testing.T) {
	backend := &fakeBackend{snaps: []models.EventSnapshot{snapshotOf("e1")}}
	push := NewPushClient("ws://127.0.0.1:1/socket")
	st := store.New(nil)
	s := NewScheduler(backend, push, st, time.Hour)

	for cycle := 1; cycle <= 2; cycle++ {
		if err := s.Start(context.Background()); err != nil {
			t.Fatalf("cycle %d: Start failed: %v", cycle, err)
		}
		want := cycle
		waitFor(t, func() bool { fetch, _, _ := backend.calls(); return fetch == want },
			"poll never ran in this cycle")
		if err := s.Stop(); err != nil {
			t.Fatalf("cycle %d: Stop failed: %v", cycle, err)
		}
	}

	if st.Len() != 1 {
		t.Errorf("store has %d events after restart cycles, want 1", st.Len())
	}
}

// A Refresh still waiting on the backend when Stop runs must not write
// its snapshot into the store after Stop has returned.
func TestScheduler_RefreshRacingStopDiscarded(t *testing.T) {
	backend := &fakeBackend{snaps: []models.EventSnapshot{snapshotOf("e1")}}
	st := store.New(nil)
	s := NewScheduler(backend, nil, st, time.Hour)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, func() bool { return st.Len() == 1 }, "store never received the initial snapshot")

	gate := make(chan struct{})
	backend.mu.Lock()
	backend.snaps = []models.EventSnapshot{snapshotOf("e1"), snapshotOf("e2")}
	backend.fetchGate = gate
	backend.mu.Unlock()

	refreshDone := make(chan error, 1)
	go func() { refreshDone <- s.Refresh(context.Background()) }()
	waitFor(t, func() bool { fetch, _, _ := backend.calls(); return fetch == 2 },
		"refresh fetch never started")

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	close(gate)

	if err := <-refreshDone; err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if st.Len() != 1 {
		t.Errorf("stale refresh mutated the store after Stop, got %d events", st.Len())
	}
	if _, ok := st.Get("e2"); ok {
		t.Error("stale refresh snapshot leaked into the store")
	}
}

func TestScheduler_StartStopIdempotent(t *testing.T) {
	backend := &fakeBackend{}
	s := NewScheduler(backend, nil, store.New(nil), time.Hour)

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	if !s.IsRunning() {
		t.Error("scheduler should report running")
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}
	if s.IsRunning() {
		t.Error("scheduler should report stopped")
	}
}
