package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cyclegen/internal/activity"
	"cyclegen/internal/bindings"
	"cyclegen/internal/core"
	"cyclegen/internal/funcs"
	"cyclegen/internal/resolver"
)

// RunActivity loads an activity with the standard function library and a
// single driver, runs it to completion and returns its result and events.
func RunActivity(t *testing.T, driver activity.DriverFunc, params map[string]string, specs ...bindings.Spec) (activity.ExecutionResult, []core.Event) {
	t.Helper()
	def, err := activity.ParseDef(params)
	require.NoError(t, err)
	def = def.WithBindings(specs...)

	drivers := activity.NewDriverTable(map[string]activity.DriverFunc{def.Driver: driver})
	act, err := activity.Load(context.Background(), def, resolver.New(funcs.NewStandard(nil)), drivers)
	require.NoError(t, err)
	defer func() { require.NoError(t, act.Close()) }()

	rec := &core.StrideRecorder{}
	exec := act.NewExecutor(activity.WithSink(rec))
	go func() { _ = exec.Run(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	res, err := exec.Handle().Wait(ctx)
	require.NoError(t, err)
	return res, rec.Events()
}
