package activity

import (
	"context"
	"fmt"
	"io"

	"cyclegen/internal/bindings"
	"cyclegen/internal/resolver"
)

// Activity is a loaded definition: resolved bindings, an open dispenser and
// a fresh cycle input.
type Activity struct {
	Def       Def
	Bindings  *bindings.Bindings
	Dispenser Dispenser
	Input     Input
}

// Load resolves the definition's bindings and opens its driver. Resolution
// failures are reported for every binding at once.
func Load(ctx context.Context, def Def, r *resolver.Resolver, drivers *DriverTable) (*Activity, error) {
	driver, err := drivers.Lookup(def.Driver)
	if err != nil {
		return nil, fmt.Errorf("activity %s: %w", def.Alias, err)
	}
	b, err := bindings.Resolve(r, def.Bindings)
	if err != nil {
		return nil, fmt.Errorf("activity %s: bindings: %w", def.Alias, err)
	}
	disp, err := driver(ctx, def, b)
	if err != nil {
		return nil, fmt.Errorf("activity %s: driver %s: %w", def.Alias, def.Driver, err)
	}
	return &Activity{
		Def:       def,
		Bindings:  b,
		Dispenser: disp,
		Input:     NewIntervalInput(def.Cycles),
	}, nil
}

// NewExecutor creates an executor for the loaded activity.
func (a *Activity) NewExecutor(opts ...Option) *Executor {
	return NewExecutor(a.Def, a.Input, a.Dispenser, opts...)
}

// Close releases the dispenser when it holds resources.
func (a *Activity) Close() error {
	if c, ok := a.Dispenser.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
