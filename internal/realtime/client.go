package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"liveclass-agent/internal/app"
	"liveclass-agent/internal/domain"

	"github.com/gorilla/websocket"
)

// State is the connection lifecycle state. Exactly one instance of it exists
// per client; all transitions go through Join, Leave, or the read loop.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	}
	return "disconnected"
}

// Handler consumes one inbound message of a registered kind.
type Handler func(raw json.RawMessage)

// SampleDriver is the latency sampler lifecycle as seen by the connection
// manager. Sampling runs strictly inside the Connected period.
type SampleDriver interface {
	Start(ch app.PingChannel, sessionID string, ident domain.Identity) error
	Stop()
	RecordPong(payload string)
}

// Client owns the single real-time channel to a session room. At most one
// channel is open or opening at any time; joining while connected closes the
// existing channel and waits for it to tear down before dialing the new room.
type Client struct {
	endpoint string
	dialer   *websocket.Dialer
	sampler  SampleDriver

	// joinMu serializes Join and Leave so close-before-open is observable.
	joinMu sync.Mutex

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	readDone chan struct{}
	gen      uint64
	roomKey  string
	lastRoom string
	identity domain.Identity

	writeMu sync.Mutex

	handlers       map[string]Handler
	onJoined       func(roomKey string)
	onDisconnected func(err error)
}

// NewClient builds a client for the realtime endpoint, e.g. "ws://host:5000".
// sampler may be nil when quality measurement is not wanted.
func NewClient(endpoint string, sampler SampleDriver) *Client {
	return &Client{
		endpoint: endpoint,
		dialer:   websocket.DefaultDialer,
		sampler:  sampler,
		handlers: make(map[string]Handler),
	}
}

// Handle registers the handler for one inbound message kind. Registration
// must happen before Join; the read loop consults the map without locking it
// against writers.
func (c *Client) Handle(kind string, fn Handler) {
	c.handlers[kind] = fn
}

// OnJoined registers the callback fired exactly once per successful open.
func (c *Client) OnJoined(fn func(roomKey string)) {
	c.onJoined = fn
}

// OnDisconnected registers the callback fired when the channel closes for any
// reason. err is nil for a user-initiated Leave.
func (c *Client) OnDisconnected(fn func(err error)) {
	c.onDisconnected = fn
}

// Join opens the channel to roomKey. An existing open or opening channel to
// any room, the same one included, is closed first and its teardown awaited,
// so the server never sees two registrations for one identity. Empty room key
// or identity ID is refused before any network attempt.
func (c *Client) Join(ctx context.Context, roomKey string, ident domain.Identity) error {
	if roomKey == "" {
		return domain.ErrEmptyRoomKey
	}
	if ident.ID == "" {
		return domain.ErrEmptyIdentity
	}

	c.joinMu.Lock()
	defer c.joinMu.Unlock()

	c.closeCurrent()

	c.mu.Lock()
	c.state = StateConnecting
	c.mu.Unlock()

	addr, err := c.roomAddress(roomKey, ident)
	if err != nil {
		c.setState(StateDisconnected)
		return err
	}

	conn, _, err := c.dialer.DialContext(ctx, addr, nil)
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	conn.SetPongHandler(func(appData string) error {
		if c.sampler != nil {
			c.sampler.RecordPong(appData)
		}
		return nil
	})

	readDone := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	c.roomKey = roomKey
	c.lastRoom = roomKey
	c.identity = ident
	c.readDone = readDone
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	go c.readLoop(conn, readDone, gen)

	if c.sampler != nil {
		if err := c.sampler.Start(c, roomKey, ident); err != nil {
			log.Printf("realtime: sampler did not start: %v", err)
		}
	}
	if c.onJoined != nil {
		c.onJoined(roomKey)
	}
	return nil
}

// Leave closes the channel. Idempotent; safe when already disconnected. No
// reconnection follows: the client stays Disconnected until the next Join.
func (c *Client) Leave() {
	c.joinMu.Lock()
	defer c.joinMu.Unlock()
	c.closeCurrent()
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// closeCurrent tears down any open channel and waits for the read loop to
// finish, which is what flips the state back to Disconnected. Caller holds
// joinMu.
func (c *Client) closeCurrent() {
	c.mu.Lock()
	conn := c.conn
	readDone := c.readDone
	if conn == nil {
		c.mu.Unlock()
		return
	}
	c.state = StateClosing
	c.mu.Unlock()

	deadline := time.Now().Add(2 * time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	_ = conn.Close()
	<-readDone
}

func (c *Client) readLoop(conn *websocket.Conn, readDone chan struct{}, gen uint64) {
	var readErr error
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		c.dispatch(data)
	}

	c.mu.Lock()
	userClosed := c.state == StateClosing
	c.conn = nil
	c.readDone = nil
	c.roomKey = ""
	c.state = StateDisconnected
	// The sampler must stop inside this critical section: once conn is nil
	// a concurrent Join proceeds without waiting, and a stop landing after
	// its sampler.Start would kill the new session's sampling.
	if c.sampler != nil {
		c.sampler.Stop()
	}
	c.mu.Unlock()
	close(readDone)

	c.mu.Lock()
	superseded := c.gen != gen
	c.mu.Unlock()
	if superseded {
		// A newer join owns the channel; its callbacks tell the story now.
		return
	}
	if c.onDisconnected != nil {
		if userClosed {
			c.onDisconnected(nil)
		} else {
			c.onDisconnected(readErr)
		}
	}
}

// dispatch parses one inbound payload and routes it by kind. Messages are
// processed one at a time in transport order; a malformed payload is dropped
// and logged, never fatal to the connection.
func (c *Client) dispatch(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("realtime: dropping malformed message: %v", err)
		return
	}
	handler, ok := c.handlers[env.Type]
	if !ok {
		return
	}
	handler(json.RawMessage(data))
}

// Ping sends a ping control frame carrying payload. Implements app.PingChannel.
func (c *Client) Ping(payload string) error {
	c.mu.Lock()
	conn := c.conn
	open := c.state == StateConnected
	c.mu.Unlock()
	if !open || conn == nil {
		return domain.ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteControl(websocket.PingMessage, []byte(payload), time.Now().Add(5*time.Second))
}

// IsOpen reports whether the channel is Connected. Implements app.PingChannel.
func (c *Client) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnected
}

// Send writes one JSON message to the channel.
func (c *Client) Send(v any) error {
	c.mu.Lock()
	conn := c.conn
	open := c.state == StateConnected
	c.mu.Unlock()
	if !open || conn == nil {
		return domain.ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(v)
}

// SendAnswer delivers a quiz answer. Implements app.AnswerSender.
func (c *Client) SendAnswer(answer domain.QuizAnswer) error {
	return c.Send(answerMessage{Type: "answer", QuizAnswer: answer})
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastRoom returns the most recently joined room key. It survives a
// disconnect for observability; no automatic rejoin uses it.
func (c *Client) LastRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRoom
}

// roomAddress combines the configured endpoint with the room key and identity.
// Name and email travel as query parameters for server-side report attribution.
func (c *Client) roomAddress(roomKey string, ident domain.Identity) (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	u.Path = u.Path + "/session/" + url.PathEscape(roomKey) + "/" + url.PathEscape(ident.ID)
	q := u.Query()
	q.Set("studentName", ident.Name)
	q.Set("studentEmail", ident.Email)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
