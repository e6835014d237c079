// Package redisdriver issues one Redis command per cycle.
//
// Parameters:
//
//	addr      server address, default localhost:6379
//	password  AUTH password
//	db        database number, default 0
//	cmd       set, get, incr or del, default set
//	prefix    prepended to every key
//	ttl       expiry applied by set, default none
//
// The binding named key supplies the key and, for set, the binding named
// value supplies the value. A get that misses succeeds with status 404.
package redisdriver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"cyclegen/internal/activity"
	"cyclegen/internal/bindings"
	"cyclegen/internal/op"
	"cyclegen/internal/template"
)

// Name is the driver name used in activity definitions.
const Name = "redis"

const (
	defaultAddr = "localhost:6379"
	pingTimeout = 5 * time.Second

	StatusOK      = 200
	StatusMissing = 404
)

// Commands supported by the driver.
const (
	CmdSet  = "set"
	CmdGet  = "get"
	CmdIncr = "incr"
	CmdDel  = "del"
)

type config struct {
	opts     *redis.Options
	cmd      string
	prefix   string
	ttl      time.Duration
	maxTries int
}

func parseConfig(def activity.Def) (config, error) {
	var errs []error
	db, err := def.IntParam("db", 0)
	if err != nil {
		errs = append(errs, err)
	}
	ttl, err := def.DurationParam("ttl", 0)
	if err != nil {
		errs = append(errs, err)
	}
	cmd := strings.ToLower(def.Param("cmd", CmdSet))
	switch cmd {
	case CmdSet, CmdGet, CmdIncr, CmdDel:
	default:
		errs = append(errs, fmt.Errorf("unsupported cmd %q (want set, get, incr or del)", cmd))
	}
	cfg := config{
		opts: &redis.Options{
			Addr:     def.Param("addr", defaultAddr),
			Password: def.Param("password", ""),
			DB:       db,
			PoolSize: max(def.Threads, 10),
		},
		cmd:      cmd,
		prefix:   def.Param("prefix", ""),
		ttl:      ttl,
		maxTries: def.MaxTries,
	}
	return cfg, errors.Join(errs...)
}

// Open connects to the server and returns the dispenser. The connection is
// checked with PING before any cycle runs.
func Open(ctx context.Context, def activity.Def, b *bindings.Bindings) (activity.Dispenser, error) {
	cfg, err := parseConfig(def)
	if err != nil {
		return nil, err
	}
	if err := requireBindings(cfg.cmd, b); err != nil {
		return nil, err
	}
	client := redis.NewClient(cfg.opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.opts.Addr, err)
	}

	c := &commander{cfg: cfg, client: client}
	return &activity.FuncDispenser{Bindings: b, Run: c.run, Closer: client}, nil
}

func requireBindings(cmd string, b *bindings.Bindings) error {
	need := []string{"key"}
	if cmd == CmdSet {
		need = append(need, "value")
	}
	var missing []string
	for _, n := range need {
		if b == nil {
			missing = append(missing, n)
			continue
		}
		if _, ok := b.Lookup(n); !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("cmd %s needs bindings: %s", cmd, strings.Join(missing, ", "))
	}
	return nil
}

type commander struct {
	cfg    config
	client *redis.Client
}

func (c *commander) run(ctx context.Context, o *op.Op, values map[string]any) (int, error) {
	key := c.cfg.prefix + template.Format(values["key"])
	return activity.Attempt(ctx, o, c.cfg.maxTries, func(ctx context.Context) (int, error) {
		return c.do(ctx, key, values["value"])
	})
}

func (c *commander) do(ctx context.Context, key string, value any) (int, error) {
	var err error
	switch c.cfg.cmd {
	case CmdSet:
		err = c.client.Set(ctx, key, template.Format(value), c.cfg.ttl).Err()
	case CmdGet:
		err = c.client.Get(ctx, key).Err()
		if errors.Is(err, redis.Nil) {
			return StatusMissing, nil
		}
	case CmdIncr:
		err = c.client.Incr(ctx, key).Err()
	case CmdDel:
		var n int64
		n, err = c.client.Del(ctx, key).Result()
		if err == nil && n == 0 {
			return StatusMissing, nil
		}
	}
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", c.cfg.cmd, key, err)
	}
	return StatusOK, nil
}
