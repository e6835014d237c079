package cli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTarget_ServesUntilCancelled(t *testing.T) {
	ready := make(chan string, 1)
	opts := &TargetOptions{RootOptions: &RootOptions{Format: "text"}, Addr: "127.0.0.1:0", ready: ready}
	cmd := NewTargetCommand(opts.RootOptions)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cmd.SetContext(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- runTarget(opts, cmd) }()

	var addr string
	select {
	case addr = <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("target did not start")
	}

	resp, err := http.Get("http://" + addr + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("target did not stop")
	}
	assert.Contains(t, out.String(), "target listening on http://"+addr)
}
