// Package signal defines the trading-signal record posted to the ledger
// contract and its boundary validation.
package signal

import "fmt"

// Direction is the position intent encoded on chain.
type Direction uint8

const (
	Long  Direction = 0
	Short Direction = 1
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "long"
	case Short:
		return "short"
	}
	return fmt.Sprintf("direction(%d)", uint8(d))
}

// ParseDirection accepts the canonical names used at the collaborator
// boundary. Legacy aliases are normalized here, never deeper in the core.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "long", "LONG", "Long", "buy":
		return Long, nil
	case "short", "SHORT", "Short", "sell":
		return Short, nil
	}
	return 0, &ValidationError{Field: "direction", Reason: fmt.Sprintf("unknown direction %q", s)}
}

const (
	maxStrategyLen = 30
	maxAssetLen    = 10
	maxMessageLen  = 280
	minLeverage    = 1
	maxLeverage    = 5
	minWeight      = 1
	maxWeight      = 100
)

// Record is one finished trading decision, ready to be posted.
type Record struct {
	Strategy  string    `json:"strategy"`
	Asset     string    `json:"asset"`
	Message   string    `json:"message"`
	Direction Direction `json:"direction"`
	Leverage  uint8     `json:"leverage"`
	Weight    uint8     `json:"weight"`
}

// ValidationError reports a caller-correctable input problem. It is always
// produced before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validate checks the record against the contract's field limits.
func (r Record) Validate() error {
	if n := len(r.Strategy); n < 1 || n > maxStrategyLen {
		return &ValidationError{Field: "strategy", Reason: fmt.Sprintf("length %d outside [1,%d]", n, maxStrategyLen)}
	}
	if n := len(r.Asset); n < 1 || n > maxAssetLen {
		return &ValidationError{Field: "asset", Reason: fmt.Sprintf("length %d outside [1,%d]", n, maxAssetLen)}
	}
	if n := len(r.Message); n > maxMessageLen {
		return &ValidationError{Field: "message", Reason: fmt.Sprintf("length %d exceeds %d", n, maxMessageLen)}
	}
	if r.Direction != Long && r.Direction != Short {
		return &ValidationError{Field: "direction", Reason: fmt.Sprintf("must be long (%d) or short (%d)", Long, Short)}
	}
	if r.Leverage < minLeverage || r.Leverage > maxLeverage {
		return &ValidationError{Field: "leverage", Reason: fmt.Sprintf("%d outside [%d,%d]", r.Leverage, minLeverage, maxLeverage)}
	}
	if r.Weight < minWeight || r.Weight > maxWeight {
		return &ValidationError{Field: "weight", Reason: fmt.Sprintf("%d outside [%d,%d]", r.Weight, minWeight, maxWeight)}
	}
	return nil
}
