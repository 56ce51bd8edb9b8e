// Package poller periodically polls relay feeds and pushes the snapshots it
// finds onto a shared event channel. Each feed runs on its own ticker so
// that no feed blocks another; every emitted batch is sorted by version
// ascending, keeping causal order within a trade for the consumer reducing
// it sequentially.
package poller

import (
	"golang.org/x/time/rate"

	"github.com/btcescrow/escrowd/internal/core/domain"
	"github.com/btcescrow/escrowd/internal/core/ports"
)

// Event is emitted through the event channel during observation.
type Event interface {
	Type() EventType
}

// EventType ...
type EventType int

const (
	// FeedSnapshots signals newly downloaded trade snapshots.
	FeedSnapshots EventType = iota
	// Quit signals the poller has stopped.
	Quit
)

// SnapshotsEvent carries the snapshots of one poll pass, sorted by version
// ascending.
type SnapshotsEvent struct {
	TradeId   string
	Arbitrate bool
	Snapshots []*domain.Trade
}

// Type implements Event.
func (e SnapshotsEvent) Type() EventType { return FeedSnapshots }

// QuitEvent ...
type QuitEvent struct{}

// Type implements Event.
func (e QuitEvent) Type() EventType { return Quit }

// Observable represents a relay feed that can be watched.
type Observable interface {
	Observe(
		relaySvc ports.RelayClient,
		errChan chan error,
		eventChan chan Event,
		status *observableStatus,
		rateLimiter *rate.Limiter,
	)
	Key() string
}

// Service is the interface for the poller.
type Service interface {
	Start()
	Stop()
	AddObservable(observable Observable)
	RemoveObservable(observable Observable)
	GetEventChannel() chan Event
}
