package connections

import (
	"sync"
	"time"
)

// TimeoutConfig holds the keep-alive settings for WebSocket relays
type TimeoutConfig struct {
	PongWait   time.Duration
	PingPeriod time.Duration
	WriteWait  time.Duration
}

// DefaultTimeouts provides sensible default timeout values
var DefaultTimeouts = TimeoutConfig{
	PongWait:   30 * time.Second,
	PingPeriod: 27 * time.Second, // (PongWait * 9) / 10
	WriteWait:  10 * time.Second,
}

// TimeoutsFor derives the ping period from pongWait. A non-positive
// pongWait yields DefaultTimeouts.
func TimeoutsFor(pongWait time.Duration) TimeoutConfig {
	if pongWait <= 0 {
		return DefaultTimeouts
	}
	return TimeoutConfig{
		PongWait:   pongWait,
		PingPeriod: pongWait * 9 / 10,
		WriteWait:  DefaultTimeouts.WriteWait,
	}
}

// Canceler is anything in flight that can be told to stop.
type Canceler interface {
	Cancel()
}

// Manager tracks relays currently streaming to a client so they can be
// counted and cancelled together on shutdown.
type Manager struct {
	streams  sync.Map
	timeouts TimeoutConfig
}

// NewManager creates a new connection manager with the specified timeouts
func NewManager(timeouts TimeoutConfig) *Manager {
	return &Manager{
		timeouts: timeouts,
	}
}

// Add registers an in-flight relay under its request ID
func (m *Manager) Add(id string, c Canceler) {
	m.streams.Store(id, c)
}

// Remove forgets a relay once it has finished
func (m *Manager) Remove(id string) {
	m.streams.Delete(id)
}

// Has checks if a relay is registered
func (m *Manager) Has(id string) bool {
	_, exists := m.streams.Load(id)
	return exists
}

// Count returns the current number of in-flight relays
func (m *Manager) Count() int {
	count := 0
	m.streams.Range(func(key, value interface{}) bool {
		count++
		return true
	})
	return count
}

// CancelAll cancels every registered relay and returns how many were told to stop
func (m *Manager) CancelAll() int {
	cancelled := 0
	m.streams.Range(func(key, value interface{}) bool {
		value.(Canceler).Cancel()
		cancelled++
		return true
	})
	return cancelled
}

// GetTimeouts returns the keep-alive settings fixed at construction
func (m *Manager) GetTimeouts() TimeoutConfig {
	return m.timeouts
}
