package observability

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestShutdownManager_RunsHooksInReverse(t *testing.T) {
	var buf bytes.Buffer
	sm := NewShutdownManager(NewLogger(InfoLevel, &buf), nil, time.Second)

	var order []string
	for _, name := range []string{"database", "redis", "tracer"} {
		name := name
		sm.Register(name, func(ctx context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	if err := sm.Shutdown(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if strings.Join(order, ",") != "tracer,redis,database" {
		t.Errorf("Unexpected hook order %v", order)
	}
	if !strings.Contains(buf.String(), "Graceful shutdown complete") {
		t.Error("Expected completion log")
	}
}

func TestShutdownManager_CollectsErrors(t *testing.T) {
	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), nil, 0)
	if sm.timeout != 30*time.Second {
		t.Errorf("Expected default timeout, got %v", sm.timeout)
	}

	errRedis := errors.New("redis close failed")
	ran := false
	sm.Register("database", func(ctx context.Context) error {
		ran = true
		return nil
	})
	sm.Register("redis", func(ctx context.Context) error { return errRedis })

	err := sm.Shutdown()
	if !errors.Is(err, errRedis) {
		t.Errorf("Expected joined error to wrap redis failure, got %v", err)
	}
	if !ran {
		t.Error("Hooks after a failure must still run")
	}
}

func TestShutdownManager_Wait(t *testing.T) {
	server := &http.Server{Addr: "127.0.0.1:0"}
	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), server, time.Second)

	closed := make(chan struct{})
	sm.Register("marker", func(ctx context.Context) error {
		close(closed)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sm.Wait(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after cancellation")
	}
	<-closed
}
