// Package testing provides test utilities for satmon packages that exercise
// concurrent appends, live feeds and server lifecycles.
//
// t.Fatal and t.FailNow must only run on the test goroutine: they call
// runtime.Goexit, which ends the calling goroutine, not the test. Worker
// goroutines report through GoroutineTest instead.
package testing

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// GoroutineTest collects errors from goroutines started with Go and fails
// the test in Wait.
//
//	gt := testutil.NewGoroutineTest(t)
//	defer gt.Wait()
//
//	gt.Go(func() error {
//	    _, err := store.Append(id, ts, v)
//	    return err
//	})
type GoroutineTest struct {
	t      *testing.T
	wg     sync.WaitGroup
	mu     sync.Mutex
	errs   []error
	ctx    context.Context
	cancel context.CancelFunc
}

// NewGoroutineTest creates a GoroutineTest bound to t.
func NewGoroutineTest(t *testing.T) *GoroutineTest {
	ctx, cancel := context.WithCancel(context.Background())
	return &GoroutineTest{t: t, ctx: ctx, cancel: cancel}
}

// NewGoroutineTestWithTimeout creates a GoroutineTest whose context expires
// after timeout.
func NewGoroutineTestWithTimeout(t *testing.T, timeout time.Duration) *GoroutineTest {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	return &GoroutineTest{t: t, ctx: ctx, cancel: cancel}
}

// Go runs fn in a goroutine and records its error.
func (gt *GoroutineTest) Go(fn func() error) {
	gt.GoWithContext(func(context.Context) error { return fn() })
}

// GoWithContext runs fn with the test context in a goroutine.
func (gt *GoroutineTest) GoWithContext(fn func(ctx context.Context) error) {
	gt.wg.Add(1)
	go func() {
		defer gt.wg.Done()
		if err := fn(gt.ctx); err != nil {
			gt.mu.Lock()
			gt.errs = append(gt.errs, err)
			gt.mu.Unlock()
		}
	}()
}

// Context returns the context handed to GoWithContext functions.
func (gt *GoroutineTest) Context() context.Context {
	return gt.ctx
}

// Wait blocks until every goroutine returns, then fails the test if any
// of them reported an error.
func (gt *GoroutineTest) Wait() {
	gt.t.Helper()

	gt.wg.Wait()
	gt.cancel()

	gt.mu.Lock()
	defer gt.mu.Unlock()

	if len(gt.errs) == 0 {
		return
	}
	gt.t.Errorf("goroutine test failed with %d error(s):", len(gt.errs))
	for i, err := range gt.errs {
		gt.t.Errorf("  [%d] %v", i+1, err)
	}
	gt.t.FailNow()
}

// WithTimeout runs fn and returns its error, or a timeout error if fn does
// not return in time.
func WithTimeout(timeout time.Duration, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("operation timed out after %v", timeout)
	}
}

// Eventually polls condition every interval until it returns true or
// timeout elapses.
func Eventually(timeout, interval time.Duration, condition func() bool) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return nil
		}
		time.Sleep(interval)
	}
	return fmt.Errorf("condition not met within %v", timeout)
}
