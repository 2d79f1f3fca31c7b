package graphql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// graphql-transport-ws message types.
const (
	Subprotocol = "graphql-transport-ws"

	MsgConnectionInit = "connection_init"
	MsgConnectionAck  = "connection_ack"
	MsgPing           = "ping"
	MsgPong           = "pong"
	MsgSubscribe      = "subscribe"
	MsgNext           = "next"
	MsgError          = "error"
	MsgComplete       = "complete"
)

// Close codes that end a subscription instead of triggering a reconnect.
const (
	CloseBadRequest   = 4400
	CloseUnauthorized = 4401
	CloseForbidden    = 4403
)

type WSMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// InitPayload is sent with connection_init.
type InitPayload struct {
	Headers map[string]string `json:"headers"`
}

var errCompleted = errors.New("graphql: subscription completed")

// Subscriber runs subscriptions over a websocket and reconnects when the
// channel drops. Every (re)connection starts with a fresh full result, so
// callers never need to replay missed events.
type Subscriber struct {
	URL            string
	Role           string
	Tokens         TokenSource
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	dialer *websocket.Dialer
	log    *zap.Logger
}

func NewSubscriber(url, role string, tokens TokenSource, log *zap.Logger) *Subscriber {
	if log == nil {
		log = zap.NewNop()
	}
	return &Subscriber{
		URL:            url,
		Role:           role,
		Tokens:         tokens,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		dialer: &websocket.Dialer{
			Subprotocols:     []string{Subprotocol},
			HandshakeTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// Subscribe blocks, calling deliver with the data of every "next" message,
// until ctx is canceled, the server completes the operation or reports an
// operation error. Transport failures are retried with backoff.
func (s *Subscriber) Subscribe(ctx context.Context, req Request, deliver func(json.RawMessage)) error {
	backoff := s.InitialBackoff
	limiter := rate.NewLimiter(rate.Every(backoff), 1)

	for {
		if err := limiter.Wait(ctx); err != nil {
			return ctx.Err()
		}

		delivered, err := s.run(ctx, req, deliver)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, errCompleted) {
			return nil
		}
		var opErr *Error
		if errors.As(err, &opErr) {
			return err
		}

		if delivered {
			backoff = s.InitialBackoff
		} else {
			backoff *= 2
			if backoff > s.MaxBackoff {
				backoff = s.MaxBackoff
			}
		}
		limiter.SetLimit(rate.Every(backoff))
		s.log.Warn("subscription dropped, reconnecting",
			zap.String("operation", req.OperationName),
			zap.Duration("backoff", backoff),
			zap.Error(err))
	}
}

func (s *Subscriber) run(ctx context.Context, req Request, deliver func(json.RawMessage)) (bool, error) {
	headers := AuthHeaders(s.Tokens, s.Role)
	httpHeader := http.Header{}
	for k, v := range headers {
		httpHeader.Set(k, v)
	}

	conn, _, err := s.dialer.DialContext(ctx, s.URL, httpHeader)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", s.URL, err)
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	initPayload, _ := json.Marshal(InitPayload{Headers: headers})
	if err := conn.WriteJSON(WSMessage{Type: MsgConnectionInit, Payload: initPayload}); err != nil {
		return false, fmt.Errorf("connection_init: %w", err)
	}
	if err := awaitAck(conn); err != nil {
		return false, err
	}

	id := uuid.NewString()
	payload, err := json.Marshal(req)
	if err != nil {
		return false, fmt.Errorf("encode subscribe payload: %w", err)
	}
	if err := conn.WriteJSON(WSMessage{ID: id, Type: MsgSubscribe, Payload: payload}); err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}

	delivered := false
	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return delivered, readError(err)
		}
		switch msg.Type {
		case MsgPing:
			if err := conn.WriteJSON(WSMessage{Type: MsgPong}); err != nil {
				return delivered, fmt.Errorf("pong: %w", err)
			}
		case MsgNext:
			if msg.ID != id {
				continue
			}
			var result Response
			if err := json.Unmarshal(msg.Payload, &result); err != nil {
				return delivered, fmt.Errorf("decode next: %w", err)
			}
			if len(result.Errors) > 0 {
				return delivered, newError(result.Errors)
			}
			deliver(result.Data)
			delivered = true
		case MsgError:
			var entries []ErrorEntry
			_ = json.Unmarshal(msg.Payload, &entries)
			return delivered, newError(entries)
		case MsgComplete:
			if msg.ID == id {
				return delivered, errCompleted
			}
		}
	}
}

func awaitAck(conn *websocket.Conn) error {
	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return readError(err)
		}
		switch msg.Type {
		case MsgConnectionAck:
			return nil
		case MsgPing:
			if err := conn.WriteJSON(WSMessage{Type: MsgPong}); err != nil {
				return fmt.Errorf("pong: %w", err)
			}
		}
	}
}

func readError(err error) error {
	if websocket.IsCloseError(err, CloseBadRequest, CloseUnauthorized, CloseForbidden) {
		return &Error{Messages: []string{err.Error()}}
	}
	return fmt.Errorf("read: %w", err)
}
