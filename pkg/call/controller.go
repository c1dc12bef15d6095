package call

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chirpling-ai/chirpling/pkg/core"
	"github.com/chirpling-ai/chirpling/pkg/live"
)

// State is the call lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateCalling   State = "calling"
	StateConnected State = "connected"
)

// DefaultSettleDelay buffers the UI-visible switch into the connected layout.
// It is a presentation transition only, not a correctness requirement.
const DefaultSettleDelay = 500 * time.Millisecond

// Conn is the slice of a live session the controller drives.
type Conn interface {
	Events() <-chan live.Event
	StartRecord() error
	StopRecord() error
	SetPlaybackVolume(volume float64) error
	EndSession() error
	Close() error
	Err() error
}

// Dialer opens a live session. The default wraps live.Dial.
type Dialer func(ctx context.Context, cfg live.Config) (Conn, error)

// Notice is a transient user-visible notification. Fatal notices accompany
// a forced return to idle.
type Notice struct {
	Fatal   bool
	Message string
}

type ControllerConfig struct {
	// Session is the connect configuration handed to the dialer.
	Session live.Config

	Dial   Dialer
	Notify func(Notice)

	// OnState observes lifecycle transitions. The connected transition is
	// delayed by SettleDelay before it becomes visible here.
	OnState func(State)

	// SettleDelay defaults to DefaultSettleDelay when zero.
	SettleDelay time.Duration

	Logger *slog.Logger

	// Tick overrides the 1-second call duration ticker; pass nil to use a
	// real ticker.
	Tick <-chan time.Time
}

// Controller owns one call session at a time: it dials, pumps session
// events into the transcript, counts call duration while connected, and
// guarantees that no timer or connection survives the return to idle.
type Controller struct {
	cfg        ControllerConfig
	logger     *slog.Logger
	transcript *Transcript

	mu       sync.Mutex
	state    State
	conn     Conn
	gen      uint64
	duration int
	stop     chan struct{}
}

func NewController(cfg ControllerConfig) *Controller {
	if cfg.Dial == nil {
		cfg.Dial = func(ctx context.Context, sc live.Config) (Conn, error) {
			return live.Dial(ctx, sc)
		}
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg:        cfg,
		logger:     logger,
		transcript: NewTranscript(),
		state:      StateIdle,
	}
}

// Transcript returns the aggregator owned by this controller.
func (c *Controller) Transcript() *Transcript { return c.transcript }

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Duration returns whole seconds spent in the current connected period.
func (c *Controller) Duration() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duration
}

// BotID returns the bot the controller dials.
func (c *Controller) BotID() string { return c.cfg.Session.BotID }

// PressToTalk reports whether the session uses manual turn detection.
func (c *Controller) PressToTalk() bool {
	return strings.TrimSpace(c.cfg.Session.TurnDetection) == "client_interrupt"
}

// StartCall dials the platform and enters the connected state. A connect
// failure returns the controller to idle and surfaces the error; there is
// no automatic retry.
func (c *Controller) StartCall(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("start call: session is %s, want idle", state)
	}
	c.state = StateCalling
	c.mu.Unlock()
	c.emitState(StateCalling)

	conn, err := c.cfg.Dial(ctx, c.cfg.Session)
	if err != nil {
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
		c.emitState(StateIdle)
		c.notify(Notice{Message: fmt.Sprintf("call failed: %v", err)})
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.gen = c.transcript.Begin()
	c.duration = 0
	c.stop = make(chan struct{})
	c.state = StateConnected
	stop := c.stop
	gen := c.gen
	c.mu.Unlock()

	go c.settle(stop)
	go c.eventLoop(conn, gen)
	go c.durationLoop(stop)
	return nil
}

// EndCall tears the session down: timers stop, the connection is asked to
// end and then closed, duration resets to zero. Safe to call from any state
// and from session callbacks.
func (c *Controller) EndCall() {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.conn = nil
	c.duration = 0
	c.state = StateIdle
	c.mu.Unlock()

	if conn != nil {
		if err := conn.EndSession(); err != nil {
			c.logger.Debug("end session request failed", "error", err)
		}
		_ = conn.Close()
	}
	c.emitState(StateIdle)
}

// StartRecord forwards a record-start request for the active call.
func (c *Controller) StartRecord() error {
	conn, err := c.connectedConn()
	if err != nil {
		return err
	}
	return conn.StartRecord()
}

// StopRecord forwards a record-stop request for the active call.
func (c *Controller) StopRecord() error {
	conn, err := c.connectedConn()
	if err != nil {
		return err
	}
	return conn.StopRecord()
}

// SetPlaybackVolume forwards a volume change for the active call.
func (c *Controller) SetPlaybackVolume(volume float64) error {
	conn, err := c.connectedConn()
	if err != nil {
		return err
	}
	return conn.SetPlaybackVolume(volume)
}

func (c *Controller) connectedConn() (Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected || c.conn == nil {
		return nil, core.NewRecordingError("no active call")
	}
	return c.conn, nil
}

func (c *Controller) eventLoop(conn Conn, gen uint64) {
	for event := range conn.Events() {
		if errEvent, ok := event.(live.ServerErrorEvent); ok {
			// Server errors are fatal to the session regardless of state.
			msg := strings.TrimSpace(errEvent.Err.Message)
			if msg == "" {
				msg = "server error"
			}
			c.logger.Warn("live session error",
				"code", errEvent.Err.Code,
				"log_id", errEvent.Err.LogID,
				"message", msg)
			c.notify(Notice{Fatal: true, Message: msg})
			c.EndCall()
			continue
		}
		c.transcript.Apply(gen, event)
	}

	// Transport ended without an explicit error frame.
	c.mu.Lock()
	active := c.state == StateConnected && c.conn == conn
	c.mu.Unlock()
	if !active {
		return
	}
	if err := conn.Err(); err != nil {
		c.notify(Notice{Fatal: true, Message: err.Error()})
	} else {
		c.notify(Notice{Message: "call ended"})
	}
	c.EndCall()
}

func (c *Controller) durationLoop(stop <-chan struct{}) {
	tick := c.cfg.Tick
	var ticker *time.Ticker
	if tick == nil {
		ticker = time.NewTicker(time.Second)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-stop:
			return
		case <-tick:
			c.mu.Lock()
			if c.state == StateConnected {
				c.duration++
			}
			c.mu.Unlock()
		}
	}
}

func (c *Controller) settle(stop <-chan struct{}) {
	timer := time.NewTimer(c.cfg.SettleDelay)
	defer timer.Stop()
	select {
	case <-stop:
	case <-timer.C:
		c.mu.Lock()
		connected := c.state == StateConnected
		c.mu.Unlock()
		if connected {
			c.emitState(StateConnected)
		}
	}
}

func (c *Controller) emitState(state State) {
	if c.cfg.OnState != nil {
		c.cfg.OnState(state)
	}
}

func (c *Controller) notify(n Notice) {
	if c.cfg.Notify != nil {
		c.cfg.Notify(n)
		return
	}
	if n.Fatal {
		c.logger.Error(n.Message)
		return
	}
	c.logger.Info(n.Message)
}
