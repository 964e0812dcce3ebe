package daemon

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

type blockingRunner struct {
	started chan struct{}
	stopped atomic.Bool
}

func (r *blockingRunner) Run(ctx context.Context) error {
	close(r.started)
	<-ctx.Done()
	r.stopped.Store(true)
	return nil
}

func TestManager_StartServeShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddr = freeAddr(t)
	cfg.ShutdownTimeout = 5 * time.Second

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	runner := &blockingRunner{started: make(chan struct{})}
	m := NewManager(cfg, handler, nil, NamedRunner{Name: "test", Runner: runner})
	t.Cleanup(http.DefaultClient.CloseIdleConnections)

	var hookRan atomic.Bool
	m.RegisterShutdownHook("flag", func(context.Context) error {
		hookRan.Store(true)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()

	<-runner.started
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + cfg.ListenAddr + "/")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("manager did not stop")
	}
	require.True(t, runner.stopped.Load(), "runner observed cancellation")
	require.True(t, hookRan.Load(), "shutdown hook executed")
}

func TestManager_HooksRunLIFO(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddr = freeAddr(t)

	m := NewManager(cfg, http.NewServeMux(), nil)
	var order []string
	for _, name := range []string{"first", "second", "third"} {
		m.RegisterShutdownHook(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	require.Equal(t, []string{"third", "second", "first"}, order)
}

func TestManager_HookErrorsSurface(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddr = freeAddr(t)

	m := NewManager(cfg, http.NewServeMux(), nil)
	m.RegisterShutdownHook("boom", func(context.Context) error {
		return fmt.Errorf("close failed")
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	err := <-done
	require.ErrorContains(t, err, "hook boom")
}

func TestManager_DoubleStartRejected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddr = freeAddr(t)

	m := NewManager(cfg, http.NewServeMux(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()
	time.Sleep(50 * time.Millisecond)

	require.Error(t, m.Start(context.Background()))
	cancel()
	require.NoError(t, <-done)
}
