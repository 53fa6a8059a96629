package types

import "errors"

// Sentinel errors for the backtesting engine.
var (
	// Configuration errors
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrInvalidCapital    = errors.New("initial capital must be positive")
	ErrUnknownInstrument = errors.New("unknown instrument")
	ErrNoInstruments     = errors.New("no instruments configured")

	// Event errors
	ErrInvalidQuantity = errors.New("invalid order quantity")
	ErrInvalidStrength = errors.New("signal strength must be positive")
	ErrInvalidSignal   = errors.New("invalid signal")
	ErrInvalidOrder    = errors.New("invalid order")
	ErrUnknownEvent    = errors.New("unknown event kind")

	// Data errors
	ErrInvalidPrice    = errors.New("invalid price value")
	ErrInvalidData     = errors.New("invalid market data")
	ErrNoMarketData    = errors.New("no market data for instrument")
	ErrOutOfOrder      = errors.New("bar timestamps out of order")
	ErrDataExhausted   = errors.New("data source exhausted")
	ErrDataUnavailable = errors.New("market data unavailable")

	// Execution errors
	ErrExecutionFailed  = errors.New("order execution failed")
	ErrExecutionTimeout = errors.New("order execution timed out")

	// State errors
	ErrStateNotFound = errors.New("state not found")
)
