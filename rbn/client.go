// Package rbn maintains the telnet connection to a Reverse Beacon Network
// feed: login handshake, line streaming, and reconnect with capped backoff.
// The client does no parsing; raw lines go to the registered handler.
package rbn

import (
	"errors"
	"io"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/ziutek/telnet"
)

// State is the connection lifecycle of the client. Exactly one client owns
// its state; transitions happen on the client's own run loop (plus the
// forced Disconnected on Stop).
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Options configures a Client. Zero durations get conservative defaults so a
// partially filled struct still behaves.
type Options struct {
	Callsign       string   // Sent as the login token
	Servers        []string // host:port, tried in order each attempt
	Commands       []string // Feed-configuration commands sent after login
	DialTimeout    time.Duration
	ReadTimeout    time.Duration // Stream read deadline; expiry just re-arms the loop
	HandshakeWait  time.Duration // Wait for each handshake response; expiry is tolerated
	BackoffStep    time.Duration // Retry delay grows by this per consecutive failure
	BackoffCap     time.Duration
	MaxRetries     int           // Consecutive failures before settling in StateError
	StopJoinWindow time.Duration // How long Stop waits for the run loop to exit
}

func (o *Options) applyDefaults() {
	if o.DialTimeout <= 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 30 * time.Second
	}
	if o.HandshakeWait <= 0 {
		o.HandshakeWait = 2 * time.Second
	}
	if o.BackoffStep <= 0 {
		o.BackoffStep = 5 * time.Second
	}
	if o.BackoffCap < o.BackoffStep {
		o.BackoffCap = 30 * time.Second
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 10
	}
	if o.StopJoinWindow <= 0 {
		o.StopJoinWindow = 2 * time.Second
	}
}

// Client owns a single live feed connection. Safe for Start/Stop from any
// goroutine; line and state handlers run on the client's read loop.
type Client struct {
	opts Options

	onLine  func(string)
	onState func(State)

	mu      sync.Mutex
	running bool
	state   State
	conn    net.Conn
	stop    chan struct{}
	done    chan struct{}
}

// NewClient creates a client. Handlers may be nil; SetHandlers must be
// called before Start for the client to be useful.
func NewClient(opts Options) *Client {
	opts.applyDefaults()
	return &Client{opts: opts, state: StateDisconnected}
}

// SetHandlers registers the raw-line and state-change callbacks. Not safe to
// call while the client is running.
func (c *Client) SetHandlers(onLine func(string), onState func(State)) {
	c.onLine = onLine
	c.onState = onState
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start launches the connect/read loop. Idempotent: a running client is left
// alone. The state moves to Connecting before any network activity so
// consumers observe the transition immediately. Start also clears a previous
// Error state, restarting the retry budget.
func (c *Client) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	stop, done := c.stop, c.done
	c.mu.Unlock()

	c.setState(StateConnecting)
	go c.run(stop, done)
}

// Stop signals the run loop, closes the socket to interrupt any blocking
// read, and waits up to the configured join window. The state is forced to
// Disconnected even if the loop failed to exit in time; Stop never hangs.
func (c *Client) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	// running flips off before the unlock so a concurrent Stop sees the
	// channel as already closed and returns instead of closing it again.
	c.running = false
	close(c.stop)
	conn := c.conn
	done := c.done
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}

	select {
	case <-done:
	case <-time.After(c.opts.StopJoinWindow):
		log.Printf("RBN: read loop did not exit within %s, abandoning", c.opts.StopJoinWindow)
	}

	c.setState(StateDisconnected)
}

// run cycles through connect attempts until stopped or the retry budget is
// exhausted. Each failed attempt transitions Error then back to Connecting
// for the retry, so consumers can show the flap.
func (c *Client) run(stop, done chan struct{}) {
	defer close(done)

	failures := 0
	for {
		if stopped(stop) {
			return
		}

		conn, err := c.connect(stop)
		if err != nil {
			if stopped(stop) {
				return
			}
			failures++
			c.setState(StateError)
			if failures >= c.opts.MaxRetries {
				log.Printf("RBN: giving up after %d consecutive failures", failures)
				c.markStopped()
				return
			}
			delay := backoffDelay(failures, c.opts.BackoffStep, c.opts.BackoffCap)
			log.Printf("RBN: connect failed (%d/%d): %v (retry in %s)", failures, c.opts.MaxRetries, err, delay)
			if !sleepInterruptible(delay, stop) {
				return
			}
			c.setState(StateConnecting)
			continue
		}

		failures = 0
		c.setState(StateConnected)
		err = c.stream(conn, stop)
		conn.Close()
		c.clearConn()
		if stopped(stop) {
			return
		}
		if err != nil {
			log.Printf("RBN: stream ended: %v", err)
		}
		failures++
		c.setState(StateError)
		if failures >= c.opts.MaxRetries {
			c.markStopped()
			return
		}
		if !sleepInterruptible(backoffDelay(failures, c.opts.BackoffStep, c.opts.BackoffCap), stop) {
			return
		}
		c.setState(StateConnecting)
	}
}

// markStopped flips running off without touching the state, which stays
// Error until the next Start.
func (c *Client) markStopped() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

// connect tries each configured endpoint in order and performs the login
// handshake on the first one that answers.
func (c *Client) connect(stop chan struct{}) (net.Conn, error) {
	var lastErr error
	for _, addr := range c.opts.Servers {
		if stopped(stop) {
			return nil, errStopped
		}
		log.Printf("RBN: connecting to %s...", addr)
		conn, err := telnet.DialTimeout("tcp", addr, c.opts.DialTimeout)
		if err != nil {
			lastErr = err
			continue
		}
		log.Printf("RBN: connected to %s", addr)
		if err := c.login(conn); err != nil {
			// Handshake writes failing means the link is already dead.
			conn.Close()
			lastErr = err
			continue
		}
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		return conn, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no servers configured")
	}
	return nil, lastErr
}

// login performs the service handshake: read the banner, send the callsign,
// then send each feed-configuration command. Responses are read on a short
// deadline and a timeout on any of them is tolerated; only write failures
// abort the attempt.
func (c *Client) login(conn net.Conn) error {
	c.drainResponse(conn) // banner

	log.Printf("RBN: logging in as %s", c.opts.Callsign)
	if err := writeLine(conn, c.opts.Callsign); err != nil {
		return err
	}
	c.drainResponse(conn)

	for _, cmd := range c.opts.Commands {
		if err := writeLine(conn, cmd); err != nil {
			return err
		}
		c.drainResponse(conn)
	}
	return nil
}

// drainResponse reads whatever the server sends within the handshake window
// and discards it. Missing acknowledgments are routine.
func (c *Client) drainResponse(conn net.Conn) {
	conn.SetReadDeadline(time.Now().Add(c.opts.HandshakeWait))
	buf := make([]byte, 4096)
	conn.Read(buf)
}

// stream reads the spot feed until the peer closes, an error occurs, or stop
// is signaled. Partial reads are buffered across deadline expiries so a slow
// feed never corrupts line framing.
func (c *Client) stream(conn net.Conn, stop chan struct{}) error {
	var pending []byte
	chunk := make([]byte, 4096)
	for {
		if stopped(stop) {
			return nil
		}
		conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		n, err := conn.Read(chunk)
		if n > 0 {
			pending = append(pending, chunk[:n]...)
			pending = c.emitLines(pending)
		}
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				// Quiet feed; the deadline exists so stop stays responsive.
				continue
			}
			if errors.Is(err, io.EOF) {
				return errors.New("connection closed by server")
			}
			return err
		}
	}
}

// emitLines forwards each complete line in buf to the handler and returns
// the unterminated remainder.
func (c *Client) emitLines(buf []byte) []byte {
	for {
		idx := indexNewline(buf)
		if idx < 0 {
			return buf
		}
		line := strings.TrimSpace(string(buf[:idx]))
		buf = buf[idx+1:]
		if line == "" {
			continue
		}
		if c.onLine != nil {
			c.onLine(line)
		}
	}
}

func indexNewline(buf []byte) int {
	for i, b := range buf {
		if b == '\n' {
			return i
		}
	}
	return -1
}

func (c *Client) clearConn() {
	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
}

// setState updates the state and fires the callback on a real transition.
// Transitions from the run loop are ignored once the client is no longer
// running, so a loop abandoned by Stop cannot flap the forced Disconnected.
func (c *Client) setState(s State) {
	c.mu.Lock()
	if !c.running && s != StateDisconnected {
		c.mu.Unlock()
		return
	}
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	cb := c.onState
	c.mu.Unlock()
	log.Printf("RBN: state %s", s)
	if cb != nil {
		cb(s)
	}
}

// backoffDelay is the observed retry policy: delay grows linearly with the
// consecutive failure count and is capped.
func backoffDelay(failures int, step, limit time.Duration) time.Duration {
	d := time.Duration(failures) * step
	if d > limit {
		d = limit
	}
	return d
}

var errStopped = errors.New("client stopped")

func stopped(stop chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

// sleepInterruptible waits for d unless stop fires first; returns false when
// interrupted.
func sleepInterruptible(d time.Duration, stop chan struct{}) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-stop:
		return false
	}
}

func writeLine(conn net.Conn, s string) error {
	_, err := conn.Write([]byte(s + "\n"))
	return err
}
