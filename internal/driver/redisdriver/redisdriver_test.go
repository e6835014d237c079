package redisdriver

import (
	"context"
	"strconv"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyclegen/internal/activity"
	"cyclegen/internal/bindings"
	"cyclegen/internal/funcs"
	"cyclegen/internal/resolver"
	"cyclegen/internal/testutil"
)

func params(addr string, kv ...string) map[string]string {
	p := map[string]string{"driver": Name, "addr": addr}
	for i := 0; i+1 < len(kv); i += 2 {
		p[kv[i]] = kv[i+1]
	}
	return p
}

var keySpec = bindings.Spec{Name: "key", Expr: "ToString(); Prefix('user:')"}

func TestRedis_SetThenGet(t *testing.T) {
	addr := testutil.StartRedis(t)

	res, _ := testutil.RunActivity(t, Open,
		params(addr, "alias", "writes", "cycles", "50", "threads", "4", "prefix", "t1:"),
		keySpec,
		bindings.Spec{Name: "value", Expr: "Add(1000)"},
	)
	assert.Equal(t, activity.Finished, res.State)
	assert.Equal(t, int64(50), res.Ops.Succeeded)

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	got, err := client.Get(context.Background(), "t1:user:7").Result()
	require.NoError(t, err)
	assert.Equal(t, "1007", got)

	// cycles 0..49 were written, 50..59 miss
	_, events := testutil.RunActivity(t, Open,
		params(addr, "alias", "reads", "cmd", "get", "cycles", "40..60", "prefix", "t1:"),
		keySpec,
	)
	require.Len(t, events, 20)
	for _, ev := range events {
		assert.True(t, ev.Success, "cycle %d", ev.Cycle)
		want := StatusOK
		if ev.Cycle >= 50 {
			want = StatusMissing
		}
		assert.Equal(t, want, ev.Status, "cycle %d", ev.Cycle)
	}
}

func TestRedis_Incr(t *testing.T) {
	addr := testutil.StartRedis(t)

	res, _ := testutil.RunActivity(t, Open,
		params(addr, "cmd", "incr", "cycles", "100", "threads", "8"),
		bindings.Spec{Name: "key", Expr: "Mod(3); ToString(); Prefix('counter:')"},
	)
	assert.Equal(t, int64(100), res.Ops.Succeeded)

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	total := 0
	for i := 0; i < 3; i++ {
		v, err := client.Get(context.Background(), "counter:"+strconv.Itoa(i)).Int()
		require.NoError(t, err)
		total += v
	}
	assert.Equal(t, 100, total)
}

func TestOpen_Errors(t *testing.T) {
	r := resolver.New(funcs.NewStandard(nil))
	key := bindings.MustResolve(r, keySpec)

	tests := []struct {
		name   string
		params map[string]string
		b      *bindings.Bindings
		want   string
	}{
		{"unknown cmd", params("localhost:1", "cmd", "hgetall"), key, "unsupported cmd"},
		{"bad db", params("localhost:1", "db", "zero"), key, "db"},
		{"missing key", params("localhost:1", "cmd", "get"), nil, "needs bindings: key"},
		{"set without value", params("localhost:1"), key, "needs bindings: value"},
		{"unreachable", params("127.0.0.1:1", "cmd", "get"), key, "ping"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := activity.ParseDef(tt.params)
			require.NoError(t, err)
			_, err = Open(context.Background(), def, tt.b)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
