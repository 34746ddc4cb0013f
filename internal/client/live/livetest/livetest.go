// Package livetest provides an in-memory live transport for tests.
package livetest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"petchat/internal/app/dto"
	"petchat/internal/client/live"
)

var ErrClosed = errors.New("livetest: connection closed")

// Conn is a scripted live.Conn. Frames pushed with Push are read in order.
type Conn struct {
	inbound chan dto.Envelope
	gone    chan struct{}
	goneErr error
	once    sync.Once

	mu         sync.Mutex
	written    []dto.Envelope
	closeCalls int
}

func NewConn() *Conn {
	return &Conn{inbound: make(chan dto.Envelope, 64), gone: make(chan struct{})}
}

func (c *Conn) ReadJSON(v any) error {
	select {
	case env := <-c.inbound:
		raw, err := json.Marshal(env)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, v)
	case <-c.gone:
		return c.goneErr
	}
}

func (c *Conn) WriteJSON(v any) error {
	select {
	case <-c.gone:
		return c.goneErr
	default:
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var env dto.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return err
	}
	c.mu.Lock()
	c.written = append(c.written, env)
	c.mu.Unlock()
	return nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	c.closeCalls++
	c.mu.Unlock()
	c.end(ErrClosed)
	return nil
}

// Drop simulates the server going away.
func (c *Conn) Drop() {
	c.end(io.ErrUnexpectedEOF)
}

func (c *Conn) end(err error) {
	c.once.Do(func() {
		c.goneErr = err
		close(c.gone)
	})
}

// Push queues a server frame.
func (c *Conn) Push(event string, payload any) {
	env, err := dto.NewEnvelope(event, payload)
	if err != nil {
		panic(err)
	}
	c.inbound <- env
}

// Written returns every envelope the client sent.
func (c *Conn) Written() []dto.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]dto.Envelope(nil), c.written...)
}

// Sent returns the envelopes of one event name.
func (c *Conn) Sent(event string) []dto.Envelope {
	var out []dto.Envelope
	for _, env := range c.Written() {
		if env.Event == event {
			out = append(out, env)
		}
	}
	return out
}

// Keys decodes the room keys sent with join_room or leave_room.
func (c *Conn) Keys(event string) []string {
	var keys []string
	for _, env := range c.Sent(event) {
		var key string
		if err := env.Decode(&key); err == nil {
			keys = append(keys, key)
		}
	}
	return keys
}

func (c *Conn) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}

// Dialer hands out Conn, or fails with Err.
type Dialer struct {
	Conn *Conn
	Err  error

	mu      sync.Mutex
	headers []http.Header
	urls    []string
}

func (d *Dialer) Dial(ctx context.Context, url string, header http.Header) (live.Conn, error) {
	d.mu.Lock()
	d.headers = append(d.headers, header.Clone())
	d.urls = append(d.urls, url)
	d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Conn, nil
}

func (d *Dialer) Headers() []http.Header {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]http.Header(nil), d.headers...)
}

func (d *Dialer) URLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}
