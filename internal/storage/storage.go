// Eventscope - Event Discovery and Live Participation Sync Engine
// Copyright 2026 Andrey V. (avoronkov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avoronkov/eventscope

// Package storage provides the persistent key-value store used to carry
// resolved location state and the known-cities set across sessions.
//
// The Store interface keeps callers independent of the backing engine:
// production uses Badger, tests use the in-memory implementation.
package storage

import "errors"

// ErrKeyNotFound is returned by Get for absent keys.
var ErrKeyNotFound = errors.New("storage: key not found")

// Keys used by the location pipeline and the session identity.
const (
	KeyCity            = "location:city"
	KeyDetectionMethod = "location:method"
	KeyKnownCities     = "cities:known"
	KeyUserID          = "user:id"
)

// Store is a minimal persistent key-value store.
type Store interface {
	// Get returns the value for key, or ErrKeyNotFound.
	Get(key string) ([]byte, error)

	// Set writes the value for key, overwriting any previous value.
	Set(key string, value []byte) error

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(key string) error

	// Close releases the store's resources.
	Close() error
}
