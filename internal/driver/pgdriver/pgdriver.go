// Package pgdriver executes one PostgreSQL statement per cycle.
//
// Parameters:
//
//	dsn    connection string (required)
//	stmt   statement with $1..$N placeholders (required)
//	setup  statement run once when the activity loads, e.g. CREATE TABLE
//
// Bound values become the statement arguments in binding order, so $1 is
// the first binding. The op status is the number of rows the statement
// affected or returned.
package pgdriver

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"cyclegen/internal/activity"
	"cyclegen/internal/bindings"
	"cyclegen/internal/op"
)

// Name is the driver name used in activity definitions.
const Name = "postgres"

const (
	connectTimeout = 10 * time.Second
	minConns       = 4
)

var placeholder = regexp.MustCompile(`\$(\d+)`)

// maxPlaceholder returns the highest $N in stmt, or 0.
func maxPlaceholder(stmt string) int {
	n := 0
	for _, m := range placeholder.FindAllStringSubmatch(stmt, -1) {
		if v, err := strconv.Atoi(m[1]); err == nil && v > n {
			n = v
		}
	}
	return n
}

// Dispenser runs a statement on a connection pool.
type Dispenser struct {
	pool     *pgxpool.Pool
	stmt     string
	bindings *bindings.Bindings
	maxTries int
}

// Open connects, runs the setup statement and returns the dispenser.
func Open(ctx context.Context, def activity.Def, b *bindings.Bindings) (activity.Dispenser, error) {
	var errs []error
	dsn, err := def.RequireParam("dsn")
	if err != nil {
		errs = append(errs, err)
	}
	stmt, err := def.RequireParam("stmt")
	if err != nil {
		errs = append(errs, err)
	}
	bound := 0
	if b != nil {
		bound = b.Len()
	}
	if n := maxPlaceholder(stmt); n > bound {
		errs = append(errs, fmt.Errorf("stmt uses $%d but only %d bindings are defined", n, bound))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("dsn: %w", err)
	}
	cfg.MaxConns = int32(max(def.Threads, minConns))

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	initCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := pool.Ping(initCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if setup := def.Param("setup", ""); setup != "" {
		if _, err := pool.Exec(initCtx, setup); err != nil {
			pool.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}
	return &Dispenser{pool: pool, stmt: stmt, bindings: b, maxTries: def.MaxTries}, nil
}

// Dispense carries the statement arguments as the op payload.
func (d *Dispenser) Dispense(cycle int64) (*op.Op, error) {
	var args []any
	if d.bindings != nil {
		args = d.bindings.Apply(cycle)
	}
	return op.New(cycle, args), nil
}

func (d *Dispenser) Execute(ctx context.Context, o *op.Op) (int, error) {
	args, _ := o.Payload.([]any)
	return activity.Attempt(ctx, o, d.maxTries, func(ctx context.Context) (int, error) {
		tag, err := d.pool.Exec(ctx, d.stmt, args...)
		if err != nil {
			return 0, err
		}
		return int(tag.RowsAffected()), nil
	})
}

// Close releases every pooled connection.
func (d *Dispenser) Close() error {
	d.pool.Close()
	return nil
}
