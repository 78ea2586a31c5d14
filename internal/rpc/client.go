package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Client issues correlated calls over a Transport and demultiplexes
// responses by id. A single Client should be used by a single logical
// caller (one worker pool entry); it installs exactly one response
// handler per pending id, per spec.md §4.2.
type Client struct {
	transport *Transport
	nextID    atomic.Int64
	log       *logrus.Entry

	mu      sync.Mutex
	pending map[int64]chan responseEnvelope
	closed  bool

	stop chan struct{}
	done chan struct{}
}

// NewClient starts the background read loop that demultiplexes
// transport.Responses by id and returns the Client.
func NewClient(transport *Transport, log *logrus.Entry) *Client {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	c := &Client{
		transport: transport,
		log:       log,
		pending:   make(map[int64]chan responseEnvelope),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		select {
		case raw, ok := <-c.transport.Responses:
			if !ok {
				return
			}
			c.dispatch(raw)
		case <-c.stop:
			return
		}
	}
}

func (c *Client) dispatch(raw []byte) {
	id, ok := peekResponseID(raw)
	if !ok {
		c.log.Warn("rpc: response missing id, dropping")
		return
	}

	c.mu.Lock()
	ch, known := c.pending[id]
	if known {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !known {
		// A late response for an id whose call already timed out (or an
		// id we never issued). This is a protocol error, observable via
		// the log, but must not crash the caller.
		c.log.WithField("rpc_id", id).Warn("rpc: response for unknown or already-timed-out id")
		return
	}

	if !peekHasError(raw) {
		// Success path: skip the full envelope decode, just lift out
		// the raw result bytes.
		ch <- responseEnvelope{ID: id, Result: peekResult(raw)}
		return
	}

	resp, err := decodeResponse(raw)
	if err != nil {
		ch <- responseEnvelope{ID: id, Error: err.Error()}
		return
	}
	ch <- resp
}

// Call issues name(args) and blocks until a matching response arrives,
// the timeout elapses, or ctx is cancelled. On timeout the pending
// handler is removed and the error is exactly
// `rpc <id> (<name>) timed out`, per spec.md §4.2.
func (c *Client) Call(ctx context.Context, name string, args interface{}, timeout time.Duration) (json.RawMessage, error) {
	id := c.nextID.Add(1)

	req, err := encodeRequest(id, name, args)
	if err != nil {
		return nil, err
	}

	respCh := make(chan responseEnvelope, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("worker terminate")
	}
	c.pending[id] = respCh
	c.mu.Unlock()

	cleanup := func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}

	select {
	case c.transport.Requests <- req:
	case <-ctx.Done():
		cleanup()
		return nil, ctx.Err()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-respCh:
		if resp.Error != "" {
			return nil, fmt.Errorf("%s", resp.Error)
		}
		return resp.Result, nil
	case <-timer.C:
		cleanup()
		return nil, &Timeout{ID: id, Name: name}
	case <-ctx.Done():
		cleanup()
		return nil, ctx.Err()
	}
}

// Terminate rejects every pending call with "worker terminate" and stops
// the read loop. It does not wait for in-flight requests to settle.
func (c *Client) Terminate() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := c.pending
	c.pending = make(map[int64]chan responseEnvelope)
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- responseEnvelope{Error: "worker terminate"}
	}

	close(c.stop)
	<-c.done
}
