// Package adaptertest provides a scriptable in-memory adapter for tests.
package adaptertest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/waabox/pakdeck/internal/domain"
)

// Call is one recorded capability invocation.
type Call struct {
	Op              string
	Artifact        domain.Artifact
	PreviousVersion string
}

// Fake is a domain.Adapter whose behavior is scripted per operation.
// It records every call and tracks how many calls run at the same time.
type Fake struct {
	// Fail maps an operation name ("validate", "deploy", ...) to the error it returns.
	// A nil entry means success.
	Fail map[string]error
	// FailTimes limits Fail[op] to the first n calls of op; zero means always.
	FailTimes map[string]int
	// Delay is applied to every call before it returns, honoring ctx.
	Delay time.Duration
	// OnCall, when set, runs at the start of every call.
	OnCall func(op string)

	mu      sync.Mutex
	calls   []Call
	counts  map[string]int
	active  atomic.Int32
	maxSeen atomic.Int32
}

// Ensure Fake implements Adapter.
var _ domain.Adapter = (*Fake)(nil)

// Failing returns a Fake whose op always fails with err.
func Failing(op string, err error) *Fake {
	return &Fake{Fail: map[string]error{op: err}}
}

func (f *Fake) invoke(ctx context.Context, op string, a domain.Artifact, prev string) error {
	cur := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if cur <= seen || f.maxSeen.CompareAndSwap(seen, cur) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, Call{Op: op, Artifact: a, PreviousVersion: prev})
	if f.counts == nil {
		f.counts = make(map[string]int)
	}
	f.counts[op]++
	n := f.counts[op]
	f.mu.Unlock()

	if f.OnCall != nil {
		f.OnCall(op)
	}
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	err := f.Fail[op]
	if err != nil && f.FailTimes[op] > 0 && n > f.FailTimes[op] {
		return nil
	}
	return err
}

func (f *Fake) Validate(ctx context.Context, a domain.Artifact) error {
	return f.invoke(ctx, "validate", a, "")
}

func (f *Fake) Build(ctx context.Context, a domain.Artifact) error {
	return f.invoke(ctx, "build", a, "")
}

func (f *Fake) Test(ctx context.Context, a domain.Artifact) error {
	return f.invoke(ctx, "test", a, "")
}

func (f *Fake) Deploy(ctx context.Context, a domain.Artifact) error {
	return f.invoke(ctx, "deploy", a, "")
}

func (f *Fake) Verify(ctx context.Context, a domain.Artifact) error {
	return f.invoke(ctx, "verify", a, "")
}

func (f *Fake) Rollback(ctx context.Context, a domain.Artifact, previousVersion string) error {
	return f.invoke(ctx, "rollback", a, previousVersion)
}

// Calls returns a copy of the recorded calls in invocation order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Count returns how many times op was invoked.
func (f *Fake) Count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[op]
}

// MaxConcurrent returns the highest number of calls observed running at once.
func (f *Fake) MaxConcurrent() int {
	return int(f.maxSeen.Load())
}

// HookedFake is a Fake that also implements domain.Hooks.
type HookedFake struct {
	*Fake
}

// Ensure HookedFake implements Hooks.
var _ domain.Hooks = (*HookedFake)(nil)

func (h *HookedFake) Hook(ctx context.Context, stage domain.StageName, a domain.Artifact) error {
	return h.invoke(ctx, fmt.Sprintf("hook:%s", stage), a, "")
}
