package transport

import (
	"context"
	"sync"
)

// Pipe returns a connected pair of in-memory Transports.  What one
// side Writes, the other side Reads, in order.  Intended for tests.
func Pipe() (*PipeConn, *PipeConn) {
	var (
		ab    = make(chan []byte, 32)
		ba    = make(chan []byte, 32)
		state = &pipeState{closed: make(chan struct{})}
	)

	a := &PipeConn{in: ba, out: ab, state: state}
	b := &PipeConn{in: ab, out: ba, state: state}

	return a, b
}

// pipeState is shared by both ends: closing either end closes the
// pipe.
type pipeState struct {
	closed chan struct{}
	once   sync.Once
}

// PipeConn is one end of a Pipe.
type PipeConn struct {
	in    chan []byte
	out   chan []byte
	state *pipeState
}

func (t *PipeConn) Read(ctx context.Context) ([]byte, error) {
	// Drain anything already queued even if the pipe has closed,
	// so in-flight messages aren't lost.
	select {
	case msg := <-t.in:
		return msg, nil
	default:
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.state.closed:
		return nil, Closed
	case msg := <-t.in:
		return msg, nil
	}
}

func (t *PipeConn) Write(ctx context.Context, msg []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.state.closed:
		return Closed
	case t.out <- msg:
		return nil
	}
}

// Close closes both ends.
func (t *PipeConn) Close() error {
	t.state.once.Do(func() {
		close(t.state.closed)
	})
	return nil
}
