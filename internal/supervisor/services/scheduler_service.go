// Eventscope - Event Discovery and Live Participation Sync Engine
// Copyright 2026 Andrey V. (avoronkov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avoronkov/eventscope

// Package services adapts the engine's components to suture.Service.
package services

import (
	"context"
	"fmt"
)

// StartStopManager is the Start/Stop lifecycle the sync scheduler
// exposes.
type StartStopManager interface {
	Start(ctx context.Context) error
	Stop() error
}

// SchedulerService adapts the scheduler's Start/Stop lifecycle to
// suture's Serve pattern: start, block on the context, stop.
type SchedulerService struct {
	manager StartStopManager
	name    string
}

// NewSchedulerService wraps a scheduler for supervision.
func NewSchedulerService(manager StartStopManager) *SchedulerService {
	return &SchedulerService{manager: manager, name: "sync-scheduler"}
}

// Serve implements suture.Service. A Start failure is returned so suture
// restarts the service with backoff.
func (s *SchedulerService) Serve(ctx context.Context) error {
	if err := s.manager.Start(ctx); err != nil {
		return fmt.Errorf("scheduler start failed: %w", err)
	}

	<-ctx.Done()

	if err := s.manager.Stop(); err != nil {
		return fmt.Errorf("scheduler stop failed: %w", err)
	}
	return ctx.Err()
}

// String implements fmt.Stringer for suture's logs.
func (s *SchedulerService) String() string {
	return s.name
}
