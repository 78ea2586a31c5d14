package rpc

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Handler implements one named procedure. args is the raw JSON the
// caller sent; implementations unmarshal it themselves. A returned error
// is serialised into the response envelope's "error" field, mirroring
// "thrown errors are serialised as error: <stack-or-toString>".
type Handler func(ctx context.Context, args []byte) (interface{}, error)

// Server dispatches incoming requests by name to a registered Handler.
type Server struct {
	transport *Transport
	log       *logrus.Entry

	mu         sync.RWMutex
	procedures map[string]Handler
}

// NewServer creates a Server bound to transport. Call Register for each
// procedure before Serve.
func NewServer(transport *Transport, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{
		transport:  transport,
		log:        log,
		procedures: make(map[string]Handler),
	}
}

// Register adds or replaces the handler for name.
func (s *Server) Register(name string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.procedures[name] = h
}

// Serve processes requests until ctx is cancelled or the transport's
// request channel is closed. Each request is handled in its own
// goroutine so a slow procedure does not block others queued behind it.
func (s *Server) Serve(ctx context.Context) {
	for {
		select {
		case raw, ok := <-s.transport.Requests:
			if !ok {
				return
			}
			go s.handle(ctx, raw)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) handle(ctx context.Context, raw []byte) {
	req, err := decodeRequest(raw)
	if err != nil {
		s.log.WithError(err).Error("rpc: dropping malformed request")
		return
	}

	result, callErr := s.dispatch(ctx, req)

	resp, err := encodeResponse(req.ID, result, callErr)
	if err != nil {
		resp, _ = encodeResponse(req.ID, nil, fmt.Errorf("rpc: encode response: %v", err))
	}

	select {
	case s.transport.Responses <- resp:
	case <-ctx.Done():
	}
}

func (s *Server) dispatch(ctx context.Context, req requestEnvelope) (result interface{}, callErr error) {
	s.mu.RLock()
	h, ok := s.procedures[req.Name]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("procedure %q doesn't exist", req.Name)
	}

	defer func() {
		if r := recover(); r != nil {
			callErr = fmt.Errorf("%v", r)
			result = nil
		}
	}()

	return h(ctx, req.Args)
}
