// Package diag is a driver that talks to nothing. It applies the bindings,
// waits a configured latency and fails or skips chosen cycles, which makes
// it useful for checking a session before pointing it at a real system.
//
// Parameters:
//
//	latency   time each op takes, default 0
//	errormod  every Nth cycle fails, 0 disables
//	skipmod   every Nth cycle is skipped, 0 disables
package diag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cyclegen/internal/activity"
	"cyclegen/internal/bindings"
	"cyclegen/internal/core"
	"cyclegen/internal/op"
)

// Name is the driver name used in activity definitions.
const Name = "diag"

// StatusInjected is the status of injected failures.
const StatusInjected = 500

// ErrInjected is the error of every injected failure.
var ErrInjected = errors.New("injected failure")

// Dispenser produces diag ops.
type Dispenser struct {
	bindings *bindings.Bindings
	latency  time.Duration
	errorMod int64
	skipMod  int64
	logger   *slog.Logger
}

// Open is the activity.DriverFunc for diag.
func Open(_ context.Context, def activity.Def, b *bindings.Bindings) (activity.Dispenser, error) {
	return New(def, b, slog.Default())
}

// New creates a dispenser for def.
func New(def activity.Def, b *bindings.Bindings, logger *slog.Logger) (*Dispenser, error) {
	var errs []error
	latency, err := def.DurationParam("latency", 0)
	if err != nil {
		errs = append(errs, err)
	}
	errorMod, err := def.IntParam("errormod", 0)
	if err != nil {
		errs = append(errs, err)
	}
	skipMod, err := def.IntParam("skipmod", 0)
	if err != nil {
		errs = append(errs, err)
	}
	if latency < 0 || errorMod < 0 || skipMod < 0 {
		errs = append(errs, fmt.Errorf("activity %s: latency, errormod and skipmod must not be negative", def.Alias))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &Dispenser{
		bindings: b,
		latency:  latency,
		errorMod: int64(errorMod),
		skipMod:  int64(skipMod),
		logger:   logger,
	}, nil
}

// Dispense carries the bound values as the op payload.
func (d *Dispenser) Dispense(cycle int64) (*op.Op, error) {
	var values map[string]any
	if d.bindings != nil {
		values = d.bindings.ApplyMap(cycle)
	}
	return op.New(cycle, values), nil
}

// Execute waits the configured latency, then succeeds, fails or skips.
func (d *Dispenser) Execute(ctx context.Context, o *op.Op) (int, error) {
	if d.skipMod > 0 && o.Cycle%d.skipMod == 0 {
		return 0, o.Skip("skipmod")
	}
	if d.latency > 0 {
		timer := time.NewTimer(d.latency)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return 0, ctx.Err()
		}
	}
	if d.logger.Enabled(ctx, slog.LevelDebug) {
		d.logger.DebugContext(ctx, "diag op",
			slog.String("alias", core.AliasFromContext(ctx)),
			slog.Int64("cycle", o.Cycle),
			slog.Any("values", o.Payload),
		)
	}
	if d.errorMod > 0 && o.Cycle%d.errorMod == 0 {
		return StatusInjected, fmt.Errorf("cycle %d: %w", o.Cycle, ErrInjected)
	}
	return 200, nil
}
