package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/berth-dev/triage/internal/builder"
	"github.com/berth-dev/triage/internal/payload"
)

// Reply is one scripted transport response.
type Reply struct {
	Result *payload.Result
	Err    error
	// Block makes the call wait for ctx to end before returning ctx.Err().
	Block bool
}

// FakeTransport replays scripted replies in order and records every payload it receives.
// Once the script runs out, the last reply repeats.
type FakeTransport struct {
	mu      sync.Mutex
	replies []Reply
	calls   []payload.Payload
	// Started receives a value when a blocking call begins, if non-nil.
	Started chan struct{}
}

// NewFakeTransport creates a FakeTransport with the given script.
func NewFakeTransport(replies ...Reply) *FakeTransport {
	return &FakeTransport{replies: replies}
}

// Diagnose implements backend.Transport.
func (f *FakeTransport) Diagnose(ctx context.Context, p payload.Payload) (*payload.Result, error) {
	f.mu.Lock()
	idx := len(f.calls)
	f.calls = append(f.calls, p.Clone())
	if len(f.replies) == 0 {
		f.mu.Unlock()
		return nil, fmt.Errorf("fake transport: no scripted reply")
	}
	if idx >= len(f.replies) {
		idx = len(f.replies) - 1
	}
	reply := f.replies[idx]
	started := f.Started
	f.mu.Unlock()

	if reply.Block {
		if started != nil {
			started <- struct{}{}
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return reply.Result, reply.Err
}

// Calls returns copies of every payload received so far.
func (f *FakeTransport) Calls() []payload.Payload {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]payload.Payload, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns the number of transport calls made.
func (f *FakeTransport) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// FollowUp builds a result that asks question.
func FollowUp(question string) Reply {
	return Reply{Result: &payload.Result{FollowUp: question}}
}

// Fixed builds a final result with a root cause and patches.
func Fixed(rootCause string, patches ...string) Reply {
	return Reply{Result: &payload.Result{RootCause: rootCause, Patches: patches}}
}

// StaticLister is a builder.ChangedFileLister returning fixed paths.
type StaticLister []string

// ListChangedFiles implements builder.ChangedFileLister.
func (l StaticLister) ListChangedFiles(context.Context) []string {
	return append([]string(nil), l...)
}

// StaticCollector is a builder.FailureCollector returning fixed records.
type StaticCollector []builder.FailureRecord

// CollectFailures implements builder.FailureCollector.
func (c StaticCollector) CollectFailures(context.Context) []builder.FailureRecord {
	return append([]builder.FailureRecord(nil), c...)
}
