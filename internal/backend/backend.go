// Package backend defines the diagnosis service transport and its HTTP client.
package backend

import (
	"context"
	"errors"

	"github.com/berth-dev/triage/internal/payload"
)

// Transport sends one payload to the diagnosis service. It returns either a
// result or an error wrapping ErrTransport or ErrBackend. Transports do not
// retry; ctx bounds the call.
type Transport interface {
	Diagnose(ctx context.Context, p payload.Payload) (*payload.Result, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, p payload.Payload) (*payload.Result, error)

// Diagnose calls f.
func (f TransportFunc) Diagnose(ctx context.Context, p payload.Payload) (*payload.Result, error) {
	return f(ctx, p)
}

var (
	// ErrTransport covers failures reaching the service or reading its reply.
	ErrTransport = errors.New("backend unreachable")
	// ErrBackend covers replies carrying an explicit error field.
	ErrBackend = errors.New("backend error")
)
