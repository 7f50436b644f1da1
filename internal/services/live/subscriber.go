// Package live subscribes to the corrugator's in-progress job topic over STOMP.
package live

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/corrudash/internal/models"
)

// Config configures the subscriber
type Config struct {
	URL                  string        // websocket endpoint, e.g. ws://localhost:8080/ws/websocket
	Topic                string        // STOMP destination
	Host                 string        // STOMP virtual host; defaults to the URL host
	ReconnectInterval    time.Duration // fixed delay between attempts
	MaxReconnectAttempts int
	HeartbeatOutgoing    time.Duration
	HeartbeatIncoming    time.Duration
	HeartbeatTolerance   float64 // inbound silence allowed, as a multiple of the negotiated interval
	HandshakeTimeout     time.Duration
}

// DefaultConfig returns the settings the job backend is deployed with
func DefaultConfig() Config {
	return Config{
		URL:                  "ws://localhost:8080/ws/websocket",
		Topic:                "/topic/in-progress",
		ReconnectInterval:    5 * time.Second,
		MaxReconnectAttempts: 10,
		HeartbeatOutgoing:    4 * time.Second,
		HeartbeatIncoming:    4 * time.Second,
		HeartbeatTolerance:   2,
		HandshakeTimeout:     10 * time.Second,
	}
}

// UpdateHandler receives every accepted live set. A nil slice means the live
// set was cleared by Disconnect.
type UpdateHandler func(states []models.JobLiveState)

// StateHandler receives every transition that changed state
type StateHandler func(t Transition)

// Subscriber drives a Machine over a real STOMP connection.
//
// Handlers run synchronously, one at a time, in the order transitions and
// messages happened. A handler must not call Connect or Disconnect.
type Subscriber struct {
	config Config
	logger arbor.ILogger
	dialer *websocket.Dialer

	cbMu sync.Mutex // serialises handler invocations
	mu   sync.Mutex // guards everything below

	machine    *Machine
	generation uint64
	conn       *connection
	retryTimer *time.Timer
	onUpdate   UpdateHandler
	onState    StateHandler
}

// NewSubscriber creates a disconnected subscriber
func NewSubscriber(config Config, logger arbor.ILogger) *Subscriber {
	defaults := DefaultConfig()
	if config.Topic == "" {
		config.Topic = defaults.Topic
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = defaults.HandshakeTimeout
	}
	if config.ReconnectInterval < 0 {
		config.ReconnectInterval = 0
	}

	return &Subscriber{
		config:  config,
		logger:  logger,
		dialer:  &websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: config.HandshakeTimeout},
		machine: NewMachine(config.MaxReconnectAttempts),
	}
}

// OnUpdate sets the live set handler
func (s *Subscriber) OnUpdate(h UpdateHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUpdate = h
}

// OnStateChange sets the state handler
func (s *Subscriber) OnStateChange(h StateHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onState = h
}

// Connect starts connecting in the background. It is a no-op while already
// connecting or connected; from Failed it resets the attempt budget.
func (s *Subscriber) Connect() {
	s.dispatch(Event{Kind: EventConnect}, 0)
}

// Disconnect tears down the connection, cancels any pending retry and clears
// the live set. Calling it again is a no-op.
func (s *Subscriber) Disconnect() {
	s.dispatch(Event{Kind: EventDisconnect}, 0)
}

// State returns the current state
func (s *Subscriber) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.State()
}

// Failures returns the consecutive transport failure count
func (s *Subscriber) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Failures()
}

// RetryPending reports whether a reconnect timer is armed
func (s *Subscriber) RetryPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retryTimer != nil
}

// dispatch feeds ev into the machine and executes the resulting actions.
// gen is the connection generation the event belongs to; events from an
// older generation are stale and dropped. Zero means caller-originated.
func (s *Subscriber) dispatch(ev Event, gen uint64) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()

	s.mu.Lock()
	if gen != 0 && gen != s.generation {
		s.mu.Unlock()
		return
	}

	t := s.machine.HandleEvent(ev)
	graceful := t.From == StateConnected && ev.Kind == EventDisconnect
	for _, action := range t.Actions {
		switch action {
		case ActionCancelRetry:
			s.cancelRetryLocked()
		case ActionTeardown:
			s.teardownLocked(graceful)
		case ActionScheduleRetry:
			s.scheduleRetryLocked()
		case ActionDial:
			s.dialLocked()
		}
	}
	onUpdate, onState := s.onUpdate, s.onState
	s.mu.Unlock()

	if t.Changed() {
		s.logTransition(t)
	}
	if t.Has(ActionClearJobs) && onUpdate != nil {
		onUpdate(nil)
	}
	// ActionSurfaceFailure is carried to the caller by the state handler
	if t.Changed() && onState != nil {
		onState(t)
	}
}

func (s *Subscriber) logTransition(t Transition) {
	event := s.logger.Info()
	if t.To == StateFailed {
		event = s.logger.Error().Err(t.Err)
	} else if t.Event.Err != nil {
		event = s.logger.Warn().Err(t.Event.Err)
	}
	event.
		Str("from", t.From.String()).
		Str("to", t.To.String()).
		Str("event", t.Event.Kind.String()).
		Int("failures", t.Failures).
		Msg("Live stream state changed")
}

// deliver hands a decoded live set to the update handler if gen is current
func (s *Subscriber) deliver(gen uint64, states []models.JobLiveState) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()

	s.mu.Lock()
	current := gen == s.generation
	onUpdate := s.onUpdate
	s.mu.Unlock()

	if current && onUpdate != nil {
		onUpdate(states)
	}
}

func (s *Subscriber) cancelRetryLocked() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
}

func (s *Subscriber) scheduleRetryLocked() {
	s.cancelRetryLocked()
	gen := s.generation
	s.retryTimer = time.AfterFunc(s.config.ReconnectInterval, func() {
		s.mu.Lock()
		if gen == s.generation {
			s.retryTimer = nil
		}
		s.mu.Unlock()
		s.dispatch(Event{Kind: EventRetryElapsed}, gen)
	})
}

// teardownLocked closes the current connection and invalidates its generation
func (s *Subscriber) teardownLocked(graceful bool) {
	if s.conn != nil {
		s.conn.close(graceful)
		s.conn = nil
	}
	s.generation++
}

func (s *Subscriber) dialLocked() {
	if s.conn != nil {
		s.conn.close(false)
	}
	s.generation++
	ctx, cancel := context.WithCancel(context.Background())
	c := &connection{gen: s.generation, cancel: cancel}
	s.conn = c
	go s.run(ctx, c)
}

// run owns one connection attempt from dial to close
func (s *Subscriber) run(ctx context.Context, c *connection) {
	err := s.session(ctx, c)
	if ctx.Err() != nil {
		// torn down by the subscriber, nothing to report
		return
	}
	c.close(false)
	s.dispatch(Event{Kind: EventTransportClosed, Err: err}, c.gen)
}

func (s *Subscriber) session(ctx context.Context, c *connection) error {
	dialCtx, cancel := context.WithTimeout(ctx, s.config.HandshakeTimeout)
	defer cancel()

	ws, _, err := s.dialer.DialContext(dialCtx, s.config.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.config.URL, err)
	}
	if !c.attach(ws) {
		ws.Close()
		return ctx.Err()
	}

	incoming, err := s.handshake(c)
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("url", s.config.URL).
		Str("topic", s.config.Topic).
		Dur("heartbeat_in", incoming).
		Msg("Subscribed to live stream")
	s.dispatch(Event{Kind: EventSubscribed}, c.gen)

	return s.readLoop(ctx, c, incoming)
}

// handshake sends CONNECT and SUBSCRIBE, waits for CONNECTED and starts the
// heart-beat writer. Returns the negotiated inbound heart-beat interval.
func (s *Subscriber) handshake(c *connection) (time.Duration, error) {
	client := HeartBeat{Send: s.config.HeartbeatOutgoing, Receive: s.config.HeartbeatIncoming}
	connect := NewFrame(CmdConnect,
		"accept-version", "1.2",
		"host", s.host(),
		"heart-beat", client.String(),
	)
	if err := c.write(connect.Encode()); err != nil {
		return 0, fmt.Errorf("send CONNECT: %w", err)
	}

	c.ws.SetReadDeadline(time.Now().Add(s.config.HandshakeTimeout))
	var connected Frame
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return 0, fmt.Errorf("await CONNECTED: %w", err)
		}
		frames, err := ParseFrames(data)
		if err != nil {
			return 0, fmt.Errorf("await CONNECTED: %w", err)
		}
		if len(frames) == 0 {
			continue
		}
		connected = frames[0]
		break
	}
	switch connected.Command {
	case CmdConnected:
	case CmdError:
		msg, _ := connected.Get("message")
		return 0, fmt.Errorf("broker rejected CONNECT: %s", msg)
	default:
		return 0, fmt.Errorf("%w: expected CONNECTED, got %s", ErrMalformedFrame, connected.Command)
	}

	var server HeartBeat
	if hb, ok := connected.Get("heart-beat"); ok {
		parsed, err := ParseHeartBeat(hb)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Ignoring broker heart-beat header")
		} else {
			server = parsed
		}
	}
	outgoing, incoming := Negotiate(client, server)

	subscriptionID := "sub-" + strconv.FormatUint(c.gen, 10)
	subscribe := NewFrame(CmdSubscribe,
		"id", subscriptionID,
		"destination", s.config.Topic,
		"ack", "auto",
	)
	if err := c.write(subscribe.Encode()); err != nil {
		return 0, fmt.Errorf("send SUBSCRIBE: %w", err)
	}
	c.subscribed(subscriptionID)

	if outgoing > 0 {
		go c.heartbeat(outgoing)
	}
	return incoming, nil
}

func (s *Subscriber) readLoop(ctx context.Context, c *connection, incoming time.Duration) error {
	var timeout time.Duration
	if incoming > 0 {
		tolerance := s.config.HeartbeatTolerance
		if tolerance < 1 {
			tolerance = 1
		}
		timeout = time.Duration(float64(incoming) * tolerance)
	}

	for {
		if timeout > 0 {
			c.ws.SetReadDeadline(time.Now().Add(timeout))
		} else {
			c.ws.SetReadDeadline(time.Time{})
		}

		_, data, err := c.ws.ReadMessage()
		if err != nil {
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				return fmt.Errorf("no heart-beat from broker within %s: %w", timeout, err)
			}
			return fmt.Errorf("read: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		frames, err := ParseFrames(data)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Dropping malformed STOMP message")
			continue
		}
		for _, frame := range frames {
			switch frame.Command {
			case CmdMessage:
				s.handleMessage(c, frame)
			case CmdError:
				msg, _ := frame.Get("message")
				return fmt.Errorf("broker error: %s", msg)
			}
		}
	}
}

func (s *Subscriber) handleMessage(c *connection, frame Frame) {
	states, dropped, err := DecodeLiveSet(frame.Body)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Int("bytes", len(frame.Body)).
			Msg("Dropping live message")
		return
	}
	if dropped > 0 {
		s.logger.Warn().
			Int("dropped", dropped).
			Int("accepted", len(states)).
			Msg("Dropped malformed live entries")
	}
	s.deliver(c.gen, states)
}

func (s *Subscriber) host() string {
	if s.config.Host != "" {
		return s.config.Host
	}
	if u, err := url.Parse(s.config.URL); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return "localhost"
}

// connection is one websocket plus its heart-beat writer
type connection struct {
	gen    uint64
	cancel context.CancelFunc

	mu           sync.Mutex // guards ws writes, closed and subscription
	ws           *websocket.Conn
	closed       bool
	subscription string
}

// attach binds the dialed socket; false if the connection was already closed
func (c *connection) attach(ws *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.ws = ws
	return true
}

func (c *connection) subscribed(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscription = id
}

func (c *connection) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.ws == nil {
		return net.ErrClosed
	}
	c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *connection) heartbeat(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		if err := c.write([]byte{'\n'}); err != nil {
			return
		}
	}
}

// close is idempotent. graceful sends UNSUBSCRIBE for an active
// subscription and then DISCONNECT.
func (c *connection) close(graceful bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	if c.ws == nil {
		return
	}
	if graceful {
		c.ws.SetWriteDeadline(time.Now().Add(time.Second))
		if c.subscription != "" {
			c.ws.WriteMessage(websocket.TextMessage, NewFrame(CmdUnsubscribe, "id", c.subscription).Encode())
		}
		c.ws.WriteMessage(websocket.TextMessage, NewFrame(CmdDisconnect).Encode())
	}
	c.ws.Close()
}
