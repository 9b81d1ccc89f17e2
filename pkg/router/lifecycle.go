package router

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type lifecycleStage int

const (
	stageBeforeStart lifecycleStage = iota
	stageAfterStart
	stageBeforeStop
	stageAfterStop
)

func (s lifecycleStage) String() string {
	switch s {
	case stageBeforeStart:
		return "before_start"
	case stageAfterStart:
		return "after_start"
	case stageBeforeStop:
		return "before_stop"
	default:
		return "after_stop"
	}
}

func (s lifecycleStage) hook(h Hooks) LifecycleHook {
	switch s {
	case stageBeforeStart:
		return h.BeforeStart
	case stageAfterStart:
		return h.AfterStart
	case stageBeforeStop:
		return h.BeforeStop
	default:
		return h.AfterStop
	}
}

// runLifecycle runs one lifecycle stage for the router and its plugins in
// Use order. When stopOnError is set the first error aborts the stage;
// otherwise every hook runs and the errors are joined.
func (r *Router) runLifecycle(ctx context.Context, stage lifecycleStage, stopOnError bool) error {
	var errs []error
	for _, h := range r.AllHooks() {
		fn := stage.hook(h)
		if fn == nil {
			continue
		}
		if err := fn(ctx, r); err != nil {
			r.logger.Error("Lifecycle hook failed", zap.Stringer("stage", stage), zap.Error(err))
			if stopOnError {
				return err
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ListenAndServe listens on addr and calls Serve.
func (r *Router) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return r.Serve(ctx, ln)
}

// Serve serves HTTP on ln until ctx is canceled, then stops gracefully.
//
// The before-start hooks run first and abort Serve on error. The after-start
// hooks run once the server is accepting connections. On cancellation the
// before-stop hooks run, in-flight requests are drained within
// RouterConfig.ShutdownTimeout, and the after-stop hooks run. Stop hook
// errors are logged and returned together with any shutdown error.
func (r *Router) Serve(ctx context.Context, ln net.Listener) error {
	if err := r.runLifecycle(ctx, stageBeforeStart, true); err != nil {
		_ = ln.Close()
		return fmt.Errorf("before start: %w", err)
	}

	srv := &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(r.logger),
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	r.logger.Info("Server started", zap.String("addr", ln.Addr().String()))
	if err := r.runLifecycle(ctx, stageAfterStart, false); err != nil {
		r.logger.Warn("After-start hooks reported errors", zap.Error(err))
	}

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := r.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	var errs []error
	if err := r.runLifecycle(stopCtx, stageBeforeStop, false); err != nil {
		errs = append(errs, err)
	}

	r.logger.Info("Server stopping", zap.Duration("timeout", timeout))
	if err := r.Shutdown(stopCtx); err != nil {
		errs = append(errs, fmt.Errorf("drain: %w", err))
	}
	if err := srv.Shutdown(stopCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}

	if err := r.runLifecycle(stopCtx, stageAfterStop, false); err != nil {
		errs = append(errs, err)
	}
	r.logger.Info("Server stopped")
	return errors.Join(errs...)
}

// Shutdown gracefully shuts down the router.
// It stops accepting new requests, closes open WebSocket connections and
// waits for in-flight requests to complete. If the context is canceled
// before all requests complete, it returns the context's error.
func (r *Router) Shutdown(ctx context.Context) error {
	// Mark the router as shutting down
	r.shutdownMu.Lock()
	r.shutdown = true
	r.shutdownMu.Unlock()

	r.closeWebSockets()

	// Create a channel to signal when all requests are done
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	// Wait for all requests to finish or for the context to be canceled
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
