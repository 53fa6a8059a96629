// Package execution turns orders into fills.
package execution

import (
	"context"

	"github.com/tathienbao/eventbt/internal/types"
)

// Handler executes one order and returns exactly one fill. Any error is
// fatal to the current run; retry policy lives inside the handler.
type Handler interface {
	ExecuteOrder(ctx context.Context, order types.OrderEvent) (types.FillEvent, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, order types.OrderEvent) (types.FillEvent, error)

// ExecuteOrder calls f.
func (f HandlerFunc) ExecuteOrder(ctx context.Context, order types.OrderEvent) (types.FillEvent, error) {
	return f(ctx, order)
}
