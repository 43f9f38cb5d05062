// Package mock provides an in-memory transport for local runs and tests.
package mock

import (
	"context"
	"sync"

	"github.com/parryvoice/parry/pkg/frames"
)

// Transport loops frames through channels with no network. Push injects
// inbound frames, Sent exposes what the engine wrote back. Both directions
// drop when their buffer fills, mirroring the drop-over-block posture of
// the real transport.
type Transport struct {
	recvCh chan frames.Frame
	sentCh chan frames.Frame

	mu     sync.Mutex
	closed bool
}

func New() *Transport {
	return &Transport{
		recvCh: make(chan frames.Frame, 256),
		sentCh: make(chan frames.Frame, 256),
	}
}

func (t *Transport) Name() string { return "mock" }

func (t *Transport) Start(ctx context.Context) error {
	if ctx != nil {
		go func() {
			<-ctx.Done()
			_ = t.Stop()
		}()
	}
	return nil
}

func (t *Transport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.recvCh)
	close(t.sentCh)
	return nil
}

func (t *Transport) Recv() <-chan frames.Frame { return t.recvCh }

func (t *Transport) Send(f frames.Frame) error {
	t.offer(t.sentCh, f)
	return nil
}

// Push injects an inbound frame as if it arrived off the wire.
func (t *Transport) Push(f frames.Frame) {
	t.offer(t.recvCh, f)
}

// Sent exposes outbound frames for inspection.
func (t *Transport) Sent() <-chan frames.Frame { return t.sentCh }

func (t *Transport) offer(ch chan frames.Frame, f frames.Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	select {
	case ch <- f:
	default:
	}
}
