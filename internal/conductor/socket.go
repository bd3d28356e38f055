package conductor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/neighbourhoods/forum-applet/internal/infrastructure/logging"
	"github.com/neighbourhoods/forum-applet/internal/infrastructure/monitoring"
	"github.com/neighbourhoods/forum-applet/internal/infrastructure/resilience"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
)

type result struct {
	resp Response
	err  error
}

// socket multiplexes request/response pairs over one websocket
type socket struct {
	endpoint string
	url      string
	conn     *websocket.Conn
	timeout  time.Duration
	breaker  *resilience.Breaker
	metrics  *monitoring.Metrics
	log      *logging.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	pending  map[string]chan result // Protected by mu
	closed   bool                   // Protected by mu
	closeErr error                  // Protected by mu

	done chan struct{}
}

func dial(ctx context.Context, endpoint, url string, opts options) (*socket, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("connect %s endpoint %s: %w", endpoint, url, err)
	}

	s := &socket{
		endpoint: endpoint,
		url:      url,
		conn:     conn,
		timeout:  opts.timeout,
		metrics:  opts.metrics,
		log:      opts.logger.Component("conductor").With(zap.String("endpoint", endpoint)),
		pending:  make(map[string]chan result),
		done:     make(chan struct{}),
	}
	s.breaker = resilience.New("conductor."+endpoint, resilience.Settings{
		MaxProbes: 1,
		Cooldown:  10 * time.Second,
		ShouldTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		// The conductor answering with an error means it is alive.
		Counts: func(err error) bool { return !IsRemote(err) },
		OnStateChange: func(name string, from, to resilience.State) {
			s.log.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
			if s.metrics != nil {
				s.metrics.SetBreakerState(endpoint, int(to))
			}
		},
	})

	go s.readLoop()
	s.log.Info("Connected to conductor", zap.String("url", url))
	return s, nil
}

// request sends one request and decodes the matching response into out
func (s *socket) request(ctx context.Context, reqType string, payload any, out any) error {
	timer := monitoring.NewTimer(s.metrics, s.endpoint, reqType)
	_, err := resilience.Do(ctx, s.breaker, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.roundTrip(ctx, reqType, payload, out)
	})
	switch {
	case err == nil:
		timer.Stop("success")
	case IsRemote(err):
		timer.Stop("rejected")
	default:
		timer.Stop("error")
	}
	return err
}

func (s *socket) roundTrip(ctx context.Context, reqType string, payload any, out any) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	req := Request{Type: reqType}
	if payload != nil {
		data, err := Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s: %w", reqType, err)
		}
		req.Data = data
	}
	body, err := Marshal(req)
	if err != nil {
		return fmt.Errorf("encode %s: %w", reqType, err)
	}

	id := uuid.NewString()
	frame, err := Marshal(Envelope{ID: id, Kind: KindRequest, Data: body})
	if err != nil {
		return fmt.Errorf("encode %s: %w", reqType, err)
	}

	ch := make(chan result, 1)
	s.mu.Lock()
	if s.closed {
		closeErr := s.closeErr
		s.mu.Unlock()
		return fmt.Errorf("%s: %w (%v)", reqType, ErrConnectionClosed, closeErr)
	}
	s.pending[id] = ch
	s.mu.Unlock()

	if err := s.write(frame); err != nil {
		s.forget(id)
		return fmt.Errorf("send %s: %w", reqType, err)
	}

	select {
	case <-ctx.Done():
		s.forget(id)
		return fmt.Errorf("%s: %w", reqType, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return fmt.Errorf("%s: %w", reqType, r.err)
		}
		return decodeResponse(reqType, r.resp, out)
	}
}

func decodeResponse(reqType string, resp Response, out any) error {
	if resp.Type == ResponseError {
		remote := &RemoteError{Request: reqType}
		if err := Unmarshal(resp.Data, remote); err != nil {
			remote.Type = "unknown"
			remote.Message = "undecodable error payload"
		}
		return remote
	}
	if resp.Type != reqType {
		return fmt.Errorf("%s: unexpected response type %q", reqType, resp.Type)
	}
	if out == nil || len(resp.Data) == 0 {
		return nil
	}
	if err := Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", reqType, err)
	}
	return nil
}

func (s *socket) write(frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (s *socket) forget(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

func (s *socket) readLoop() {
	defer close(s.done)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.shutdown(err)
			return
		}

		var env Envelope
		if err := Unmarshal(data, &env); err != nil {
			s.log.Warn("Dropping undecodable frame", zap.Error(err))
			continue
		}
		if env.Kind != KindResponse {
			s.log.Debug("Ignoring frame", zap.String("kind", env.Kind))
			continue
		}

		s.mu.Lock()
		ch, ok := s.pending[env.ID]
		delete(s.pending, env.ID)
		s.mu.Unlock()
		if !ok {
			// Requester gave up (timeout or cancellation).
			continue
		}

		var resp Response
		err = Unmarshal(env.Data, &resp)
		ch <- result{resp: resp, err: err}
	}
}

// shutdown fails every pending request with the read error
func (s *socket) shutdown(cause error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.closeErr = cause
	pending := s.pending
	s.pending = make(map[string]chan result)
	s.mu.Unlock()

	if !websocket.IsCloseError(cause, websocket.CloseNormalClosure) && !errors.Is(cause, ErrConnectionClosed) {
		s.log.Warn("Conductor connection lost", zap.Error(cause))
	}
	for _, ch := range pending {
		ch <- result{err: fmt.Errorf("%w: %v", ErrConnectionClosed, cause)}
	}
}

// close fails pending requests, sends a close frame and waits for the
// read loop to exit
func (s *socket) close() error {
	s.shutdown(ErrConnectionClosed)

	s.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	s.writeMu.Unlock()

	err := s.conn.Close()
	<-s.done
	return err
}
