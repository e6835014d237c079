package activity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"cyclegen/internal/bindings"
	"cyclegen/internal/op"
)

// Dispenser is the seam between the cycle loop and a protocol adapter.
//
// Dispense builds the op for a cycle, usually from bound values. Execute
// performs it. The executor calls Start before Execute and records the
// returned status with Succeed, or with Fail when err is non-nil, unless
// Execute already moved the op to a terminal state itself. A Dispense error
// stops the activity; an Execute error only fails the op.
type Dispenser interface {
	Dispense(cycle int64) (*op.Op, error)
	Execute(ctx context.Context, o *op.Op) (status int, err error)
}

// DriverFunc opens a dispenser for an activity. If the returned dispenser
// implements io.Closer it is closed when the activity ends.
type DriverFunc func(ctx context.Context, def Def, b *bindings.Bindings) (Dispenser, error)

// ErrUnknownDriver is returned for a driver name missing from the table.
var ErrUnknownDriver = errors.New("unknown driver")

// DriverTable maps driver names to factories. It is immutable.
type DriverTable struct {
	drivers map[string]DriverFunc
}

// NewDriverTable copies drivers into a table.
func NewDriverTable(drivers map[string]DriverFunc) *DriverTable {
	t := &DriverTable{drivers: make(map[string]DriverFunc, len(drivers))}
	for name, f := range drivers {
		t.drivers[name] = f
	}
	return t
}

// Lookup returns the factory registered under name.
func (t *DriverTable) Lookup(name string) (DriverFunc, error) {
	f, ok := t.drivers[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %v)", ErrUnknownDriver, name, t.Names())
	}
	return f, nil
}

// Names returns the registered driver names in sorted order.
func (t *DriverTable) Names() []string {
	names := make([]string, 0, len(t.drivers))
	for n := range t.drivers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// FuncDispenser dispenses ops whose payload is the bound value map for the
// cycle and executes them with Run.
type FuncDispenser struct {
	Bindings *bindings.Bindings
	Run      func(ctx context.Context, o *op.Op, values map[string]any) (int, error)
	Closer   io.Closer
}

func (d *FuncDispenser) Dispense(cycle int64) (*op.Op, error) {
	var values map[string]any
	if d.Bindings != nil {
		values = d.Bindings.ApplyMap(cycle)
	}
	return op.New(cycle, values), nil
}

func (d *FuncDispenser) Execute(ctx context.Context, o *op.Op) (int, error) {
	values, _ := o.Payload.(map[string]any)
	return d.Run(ctx, o, values)
}

func (d *FuncDispenser) Close() error {
	if d.Closer != nil {
		return d.Closer.Close()
	}
	return nil
}

// Attempt runs fn on a started op up to maxTries times, calling Retry before
// each further try. It stops early when ctx is done and returns the last
// status and error.
func Attempt(ctx context.Context, o *op.Op, maxTries int, fn func(ctx context.Context) (int, error)) (int, error) {
	var (
		status int
		err    error
	)
	for try := 1; ; try++ {
		status, err = fn(ctx)
		if err == nil || try >= maxTries || ctx.Err() != nil {
			return status, err
		}
		if rerr := o.Retry(); rerr != nil {
			return status, errors.Join(err, rerr)
		}
	}
}
