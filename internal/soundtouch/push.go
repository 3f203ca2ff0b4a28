package soundtouch

import (
	"context"
	"encoding/xml"
	"fmt"
	"math"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tessro/stctl/internal/core"
	sterrors "github.com/tessro/stctl/internal/errors"
)

const (
	// DefaultPushPort is the device's WebSocket update port.
	DefaultPushPort = 8080
	// PushSubprotocol is the WebSocket subprotocol the device requires.
	PushSubprotocol = "gabbo"

	defaultReconnectInterval = 3 * time.Second
	defaultMaxAttempts       = 10
	defaultHandshakeTimeout  = 5 * time.Second
)

// ChannelState is the connection state of a push channel.
type ChannelState int

const (
	StateDisconnected ChannelState = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s ChannelState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// PushOptions configures a PushChannel.
type PushOptions struct {
	Port int
	// Interval is the delay before the first reconnect attempt.
	Interval time.Duration
	// Multiplier grows the delay per failed attempt. Values <= 1 keep it fixed.
	Multiplier float64
	// MaxInterval caps the grown delay. Zero means no cap.
	MaxInterval      time.Duration
	MaxAttempts      int
	DisableReconnect bool
	HandshakeTimeout time.Duration
	Logger           *zap.Logger
}

// PushChannel is a WebSocket subscription to one device's update stream.
// It only signals changes; callers refetch state themselves.
type PushChannel struct {
	deviceIP string
	url      string
	opts     PushOptions
	log      *zap.Logger
	bus      *EventBus

	mu         sync.Mutex
	state      ChannelState
	conn       *websocket.Conn
	attempts   int
	gen        int
	timer      *time.Timer
	cancelDial context.CancelFunc

	// emitMu is held for reading while handlers run; Close takes it for
	// writing so no handler fires after Close returns. Handlers must not
	// call Close synchronously.
	emitMu sync.RWMutex
	closed bool

	hooksMu      sync.Mutex
	nextHook     int
	onConnect    map[int]func()
	onDisconnect map[int]func()
	onError      map[int]func(error)
}

var _ core.PushChannel = (*PushChannel)(nil)

// NewPushChannel creates a channel for the device at ip. It does not connect.
func NewPushChannel(ip string, opts PushOptions) *PushChannel {
	if opts.Port == 0 {
		opts.Port = DefaultPushPort
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultReconnectInterval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &PushChannel{
		deviceIP:     ip,
		url:          "ws://" + net.JoinHostPort(ip, strconv.Itoa(opts.Port)),
		opts:         opts,
		log:          log.With(zap.String("device", ip), zap.String("component", "push")),
		bus:          NewEventBus(),
		onConnect:    make(map[int]func()),
		onDisconnect: make(map[int]func()),
		onError:      make(map[int]func(error)),
	}
}

// State returns the current connection state.
func (p *PushChannel) State() ChannelState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Subscribe registers a handler for category (core.UpdateAll for every event).
func (p *PushChannel) Subscribe(category core.UpdateCategory, handler core.UpdateHandler) func() {
	return p.bus.Subscribe(category, handler)
}

// OnConnect registers a handler called each time the channel opens.
func (p *PushChannel) OnConnect(fn func()) func() {
	return addHook(p, p.onConnect, fn)
}

// OnDisconnect registers a handler called when an open channel drops.
func (p *PushChannel) OnDisconnect(fn func()) func() {
	return addHook(p, p.onDisconnect, fn)
}

// OnError registers a handler for dial, read and decode failures.
func (p *PushChannel) OnError(fn func(error)) func() {
	return addHook(p, p.onError, fn)
}

func addHook[F any](p *PushChannel, hooks map[int]F, fn F) func() {
	p.hooksMu.Lock()
	id := p.nextHook
	p.nextHook++
	hooks[id] = fn
	p.hooksMu.Unlock()

	return func() {
		p.hooksMu.Lock()
		delete(hooks, id)
		p.hooksMu.Unlock()
	}
}

func hookList[F any](p *PushChannel, hooks map[int]F) []F {
	p.hooksMu.Lock()
	defer p.hooksMu.Unlock()
	list := make([]F, 0, len(hooks))
	for _, fn := range hooks {
		list = append(list, fn)
	}
	return list
}

// Connect starts dialing. It is a no-op unless the channel is disconnected.
func (p *PushChannel) Connect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connectLocked()
}

func (p *PushChannel) connectLocked() {
	if p.state != StateDisconnected {
		return
	}
	p.state = StateConnecting
	p.gen++
	ctx, cancel := context.WithCancel(context.Background())
	p.cancelDial = cancel
	go p.dial(ctx, p.gen)
}

func (p *PushChannel) dial(ctx context.Context, gen int) {
	dialer := websocket.Dialer{
		HandshakeTimeout: p.opts.HandshakeTimeout,
		Subprotocols:     []string{PushSubprotocol},
	}
	conn, _, err := dialer.DialContext(ctx, p.url, nil)

	p.mu.Lock()
	if p.state == StateClosed || gen != p.gen {
		p.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	p.cancelDial = nil
	if err != nil {
		p.state = StateDisconnected
		p.mu.Unlock()
		p.log.Debug("dial failed", zap.Error(err))
		p.emitError(fmt.Errorf("dial %s: %w", p.url, err))
		p.scheduleReconnect()
		return
	}
	p.state = StateOpen
	p.conn = conn
	p.attempts = 0
	p.mu.Unlock()

	p.log.Debug("connected", zap.String("url", p.url))
	p.emit(func() {
		for _, fn := range hookList(p, p.onConnect) {
			fn()
		}
	})

	go p.readLoop(conn, gen)
}

func (p *PushChannel) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			p.dropped(gen, err)
			return
		}
		p.handleMessage(data)
	}
}

// dropped handles the loss of an open connection.
func (p *PushChannel) dropped(gen int, err error) {
	p.mu.Lock()
	if p.state == StateClosed || gen != p.gen {
		p.mu.Unlock()
		return
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
	p.state = StateDisconnected
	p.mu.Unlock()

	p.log.Debug("connection lost", zap.Error(err))
	p.emit(func() {
		for _, fn := range hookList(p, p.onDisconnect) {
			fn()
		}
	})
	p.scheduleReconnect()
}

func (p *PushChannel) scheduleReconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateClosed || p.opts.DisableReconnect || p.timer != nil {
		return
	}
	if p.attempts >= p.opts.MaxAttempts {
		p.log.Warn("reconnect attempts exhausted", zap.Int("attempts", p.attempts))
		go p.emitError(fmt.Errorf("%s: %w", p.url, sterrors.ErrReconnectExhausted))
		return
	}

	delay := p.backoff(p.attempts)
	p.attempts++
	p.log.Debug("reconnect scheduled", zap.Duration("delay", delay), zap.Int("attempt", p.attempts))
	p.timer = time.AfterFunc(delay, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.timer = nil
		if p.state == StateClosed {
			return
		}
		p.connectLocked()
	})
}

func (p *PushChannel) backoff(attempt int) time.Duration {
	if p.opts.Multiplier <= 1 {
		return p.opts.Interval
	}
	d := time.Duration(float64(p.opts.Interval) * math.Pow(p.opts.Multiplier, float64(attempt)))
	if p.opts.MaxInterval > 0 && d > p.opts.MaxInterval {
		d = p.opts.MaxInterval
	}
	return d
}

// Close stops the channel permanently. Pending reconnects and in-flight dials
// are cancelled, and no handler runs after Close returns.
func (p *PushChannel) Close() {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	p.state = StateClosed
	p.gen++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if p.cancelDial != nil {
		p.cancelDial()
		p.cancelDial = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
	p.bus.Clear()
}

// emit runs fn unless the channel has been closed.
func (p *PushChannel) emit(fn func()) {
	p.emitMu.RLock()
	defer p.emitMu.RUnlock()
	if p.closed {
		return
	}
	fn()
}

func (p *PushChannel) emitError(err error) {
	p.emit(func() {
		for _, fn := range hookList(p, p.onError) {
			fn(err)
		}
	})
}

// handleMessage decodes an <updates> document and publishes one event per
// recognized child element. Other documents are ignored.
func (p *PushChannel) handleMessage(data []byte) {
	var doc updatesXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		p.log.Debug("undecodable message", zap.Error(err))
		p.emitError(&sterrors.DecodeError{What: "update", Err: err})
		return
	}
	if doc.XMLName.Local != "updates" {
		return
	}

	for _, child := range doc.Children {
		category := core.UpdateCategory(child.XMLName.Local)
		if !core.KnownUpdate(category) {
			continue
		}
		ev := core.UpdateEvent{
			DeviceID: doc.DeviceID,
			Category: category,
			Payload:  child.Inner,
		}
		p.emit(func() { p.bus.Publish(ev) })
	}
}
