package router

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (rec *recorder) hook(name string) LifecycleHook {
	return func(ctx context.Context, r *Router) error {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.calls = append(rec.calls, name)
		return nil
	}
}

func (rec *recorder) snapshot() []string {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]string(nil), rec.calls...)
}

func TestServeRunsLifecycleInOrder(t *testing.T) {
	rec := &recorder{}
	r := newTestRouter()
	plugin := newTestRouter()

	started := make(chan struct{})
	r.OnBeforeStart(rec.hook("parent:before_start")).
		OnAfterStart(func(ctx context.Context, r *Router) error {
			_ = rec.hook("parent:after_start")(ctx, r)
			close(started)
			return nil
		}).
		OnBeforeStop(rec.hook("parent:before_stop")).
		OnAfterStop(rec.hook("parent:after_stop"))
	plugin.OnBeforeStart(rec.hook("plugin:before_start")).
		OnBeforeStop(rec.hook("plugin:before_stop")).
		OnAfterStop(rec.hook("plugin:after_stop"))
	r.Use(plugin)
	r.Get("/ping", func(c *Context) (any, error) { return "pong", nil })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Serve(ctx, ln) }()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for the server to start")
	}

	resp, err := http.Get("http://" + ln.Addr().String() + "/ping")
	if err != nil {
		t.Fatalf("Failed to GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "pong" {
		t.Errorf("Expected body %q, got %q", "pong", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean stop, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for Serve to return")
	}

	want := []string{
		"parent:before_start", "plugin:before_start",
		"parent:after_start",
		"parent:before_stop", "plugin:before_stop",
		"parent:after_stop", "plugin:after_stop",
	}
	got := rec.snapshot()
	if len(got) != len(want) {
		t.Fatalf("Expected calls %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected call %d to be %q, got %q", i, want[i], got[i])
		}
	}
}

func TestBeforeStartErrorAbortsServe(t *testing.T) {
	boom := errors.New("config missing")
	r := newTestRouter()
	afterStart := false
	r.OnBeforeStart(func(ctx context.Context, r *Router) error { return boom })
	r.OnAfterStart(func(ctx context.Context, r *Router) error {
		afterStart = true
		return nil
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	err = r.Serve(context.Background(), ln)
	if !errors.Is(err, boom) {
		t.Errorf("Expected before-start error, got %v", err)
	}
	if afterStart {
		t.Error("Expected after-start hooks not to run")
	}
	if _, err := ln.Accept(); err == nil {
		t.Error("Expected the listener to be closed")
	}
}

func TestStopHookErrorsAreReturned(t *testing.T) {
	boom := errors.New("flush failed")
	r := newTestRouter()
	afterStop := false
	r.OnBeforeStop(func(ctx context.Context, r *Router) error { return boom })
	r.OnAfterStop(func(ctx context.Context, r *Router) error {
		afterStop = true
		return nil
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = r.Serve(ctx, ln)
	if !errors.Is(err, boom) {
		t.Errorf("Expected before-stop error to be returned, got %v", err)
	}
	if !afterStop {
		t.Error("Expected after-stop hooks to run despite the earlier error")
	}
}

func TestListenAndServeBadAddress(t *testing.T) {
	r := newTestRouter()
	if err := r.ListenAndServe(context.Background(), "256.0.0.1:bad"); err == nil {
		t.Error("Expected an error for an invalid address")
	}
}
