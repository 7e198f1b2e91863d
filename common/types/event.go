package types

import "time"

// EventType identifies an operational event emitted by the resolver service.
type EventType string

const (
	// EventStarted is emitted once per engine when its polling loop starts.
	EventStarted EventType = "started"
	// EventSwapProcessed is emitted after a swap advanced to a new status.
	EventSwapProcessed EventType = "swapProcessed"
	// EventError is emitted when processing a swap fails.
	EventError EventType = "error"
	// EventPoolLiquidityLow is emitted when available liquidity for a token
	// drops below the configured threshold.
	EventPoolLiquidityLow EventType = "poolLiquidityLow"
	// EventStopped is emitted once per engine when its polling loop exits.
	EventStopped EventType = "stopped"
)

// ResolverEvent is a single operational event consumed by operator tooling.
type ResolverEvent struct {
	Type   EventType
	Chain  string
	SwapID string
	Token  string
	Err    error
	Time   time.Time
}
