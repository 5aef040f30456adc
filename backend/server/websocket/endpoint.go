package websocket

import (
	"context"
	"errors"
	"sync"

	"github.com/adwski/proctor-signaling/backend/model"
)

// endpoint is the outbound side of a websocket connection.
// Messages are queued and written by the connection's sender goroutine.
type endpoint struct {
	id        string
	tx        chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newEndpoint(id string, queueSize int) *endpoint {
	return &endpoint{
		id:   id,
		tx:   make(chan []byte, queueSize),
		done: make(chan struct{}),
	}
}

func (ep *endpoint) ID() string {
	return ep.id
}

// Deliver queues payload for sending. It waits for queue space
// no longer than ctx allows. An endpoint that misses a delivery deadline
// is closed, so later deliveries fail fast and the connection is torn down.
func (ep *endpoint) Deliver(ctx context.Context, payload []byte) error {
	select {
	case <-ep.done:
		return model.ErrEndpointClosed
	default:
	}
	select {
	case ep.tx <- payload:
		return nil
	case <-ep.done:
		return model.ErrEndpointClosed
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			ep.close()
		}
		return errors.Join(model.ErrEndpointTimedOut, ctx.Err())
	}
}

func (ep *endpoint) close() {
	ep.closeOnce.Do(func() {
		close(ep.done)
	})
}
