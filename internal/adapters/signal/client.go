// Package signal connects the recorder to the conference signaling gateway
// over a websocket.
package signal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Recorder/internal/core"
	"github.com/dkeye/Recorder/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotConnected = errors.New("signal client not connected")
	ErrClosed       = errors.New("signal client closed")
	ErrJoinRejected = errors.New("join rejected")
)

const (
	sendQueueSize = 64
	writeWait     = 5 * time.Second
	pingInterval  = 20 * time.Second
)

type joinResult struct {
	participant domain.ParticipantID
	err         error
}

// Client implements core.Transport on top of one websocket connection
// shared by every session.
type Client struct {
	url     string
	header  http.Header
	handler core.MessageHandler

	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	mu      sync.Mutex
	pending map[string]chan joinResult
	closed  bool
}

func NewClient(url string, header http.Header) *Client {
	return &Client{
		url:     url,
		header:  header,
		send:    make(chan []byte, sendQueueSize),
		done:    make(chan struct{}),
		pending: make(map[string]chan joinResult),
	}
}

// Connect dials the gateway and starts the pumps. Inbound negotiation
// messages go to handler.
func (c *Client) Connect(ctx context.Context, handler core.MessageHandler) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.handler = handler
	c.mu.Unlock()

	log.Info().Str("module", "signal").Str("url", c.url).Msg("connected")
	go c.writePump()
	go c.readPump()
	return nil
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) JoinRoom(ctx context.Context, conf domain.ConferenceID, nickname string) (domain.ParticipantID, error) {
	id := uuid.NewString()
	ch := make(chan joinResult, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.enqueue(ctx, envelope{Type: typeJoin, ID: id, Conference: conf, Nickname: nickname}); err != nil {
		return "", err
	}

	select {
	case res := <-ch:
		return res.participant, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.done:
		return "", ErrClosed
	}
}

func (c *Client) LeaveRoom(ctx context.Context, conf domain.ConferenceID) error {
	return c.enqueue(ctx, envelope{Type: typeLeave, Conference: conf})
}

func (c *Client) Send(ctx context.Context, msg *domain.Message) error {
	return c.enqueue(ctx, envelope{Type: typeMessage, Conference: msg.Conference, Message: msg})
}

func (c *Client) enqueue(ctx context.Context, env envelope) error {
	c.mu.Lock()
	conn, closed := c.conn, c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if conn == nil {
		return ErrNotConnected
	}

	data, err := encode(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", env.Type, err)
	}
	select {
	case c.send <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

func (c *Client) resolveJoin(id string, res joinResult) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	c.mu.Unlock()
	if !ok {
		log.Warn().Str("module", "signal").Str("id", id).Msg("join reply without request")
		return
	}
	ch <- res
}

func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	return conn.Close()
}
