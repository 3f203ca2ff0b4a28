package soundtouch

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tessro/stctl/internal/core"
	sterrors "github.com/tessro/stctl/internal/errors"
)

// fakeDevice is a WebSocket endpoint speaking the gabbo subprotocol.
type fakeDevice struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns []*websocket.Conn
	subs  []string
	ready chan *websocket.Conn
}

func newFakeDevice(t *testing.T) *fakeDevice {
	t.Helper()
	d := &fakeDevice{
		upgrader: websocket.Upgrader{Subprotocols: []string{PushSubprotocol}},
		ready:    make(chan *websocket.Conn, 8),
	}
	d.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := d.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		d.mu.Lock()
		d.conns = append(d.conns, conn)
		d.subs = append(d.subs, conn.Subprotocol())
		d.mu.Unlock()
		d.ready <- conn
	}))
	t.Cleanup(func() {
		d.mu.Lock()
		for _, c := range d.conns {
			_ = c.Close()
		}
		d.mu.Unlock()
		d.srv.Close()
	})
	return d
}

func (d *fakeDevice) channel(t *testing.T, opts PushOptions) *PushChannel {
	t.Helper()
	addr := serverAddress(t, d.srv)
	opts.Port = addr.Port
	p := NewPushChannel(addr.IP, opts)
	t.Cleanup(p.Close)
	return p
}

func (d *fakeDevice) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-d.ready:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("device was never dialed")
		return nil
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestPushChannelEmitsUpdates(t *testing.T) {
	dev := newFakeDevice(t)
	p := dev.channel(t, PushOptions{})

	events := make(chan core.UpdateEvent, 8)
	p.Subscribe(core.UpdateAll, func(ev core.UpdateEvent) { events <- ev })

	p.Connect()
	conn := dev.accept(t)
	waitFor(t, "open", func() bool { return p.State() == StateOpen })

	dev.mu.Lock()
	sub := dev.subs[0]
	dev.mu.Unlock()
	if sub != PushSubprotocol {
		t.Errorf("subprotocol = %q, want %q", sub, PushSubprotocol)
	}

	msgs := []string{
		`<SoundTouchSdkInfo serverVersion="4" serverBuild="trunk" />`,
		`<updates deviceID="AABBCC"><volumeUpdated><volume><targetvolume>20</targetvolume></volume></volumeUpdated><bogusUpdated/><nowPlayingUpdated><nowPlaying source="AUX"/></nowPlayingUpdated></updates>`,
	}
	for _, m := range msgs {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
			t.Fatal(err)
		}
	}

	var got []core.UpdateEvent
	for len(got) < 2 {
		select {
		case ev := <-events:
			got = append(got, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("got %d events, want 2", len(got))
		}
	}

	if got[0].Category != core.UpdateVolume || got[1].Category != core.UpdateNowPlaying {
		t.Errorf("categories = %s, %s", got[0].Category, got[1].Category)
	}
	if got[0].DeviceID != "AABBCC" {
		t.Errorf("DeviceID = %q, want AABBCC", got[0].DeviceID)
	}

	select {
	case ev := <-events:
		t.Errorf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPushChannelReconnects(t *testing.T) {
	dev := newFakeDevice(t)
	p := dev.channel(t, PushOptions{Interval: 10 * time.Millisecond})

	var mu sync.Mutex
	var connects, disconnects int
	p.OnConnect(func() { mu.Lock(); connects++; mu.Unlock() })
	p.OnDisconnect(func() { mu.Lock(); disconnects++; mu.Unlock() })

	p.Connect()
	first := dev.accept(t)
	waitFor(t, "open", func() bool { return p.State() == StateOpen })

	_ = first.Close()
	dev.accept(t)
	waitFor(t, "second open", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return connects == 2
	})

	mu.Lock()
	defer mu.Unlock()
	if disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", disconnects)
	}
}

func TestPushChannelReconnectExhausted(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := serverAddress(t, srv)
	srv.Close()

	p := NewPushChannel(addr.IP, PushOptions{Port: addr.Port, Interval: 5 * time.Millisecond, MaxAttempts: 2})
	t.Cleanup(p.Close)

	var mu sync.Mutex
	var dialErrs int
	exhausted := make(chan struct{})
	p.OnError(func(err error) {
		if errors.Is(err, sterrors.ErrReconnectExhausted) {
			close(exhausted)
			return
		}
		mu.Lock()
		dialErrs++
		mu.Unlock()
	})

	p.Connect()
	select {
	case <-exhausted:
	case <-time.After(2 * time.Second):
		t.Fatal("never reported ErrReconnectExhausted")
	}

	mu.Lock()
	defer mu.Unlock()
	if dialErrs != 3 {
		t.Errorf("dial errors = %d, want 3 (initial + 2 retries)", dialErrs)
	}
	if p.State() != StateDisconnected {
		t.Errorf("State() = %s, want disconnected", p.State())
	}
}

func TestPushChannelCloseCancelsReconnect(t *testing.T) {
	dev := newFakeDevice(t)
	p := dev.channel(t, PushOptions{Interval: 50 * time.Millisecond})

	var mu sync.Mutex
	var connects int
	p.OnConnect(func() { mu.Lock(); connects++; mu.Unlock() })

	p.Connect()
	conn := dev.accept(t)
	waitFor(t, "open", func() bool { return p.State() == StateOpen })

	_ = conn.Close()
	waitFor(t, "disconnect", func() bool { return p.State() == StateDisconnected })
	p.Close()

	time.Sleep(150 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if connects != 1 {
		t.Errorf("connects = %d, want 1", connects)
	}
	if p.State() != StateClosed {
		t.Errorf("State() = %s, want closed", p.State())
	}

	p.Connect()
	if p.State() != StateClosed {
		t.Error("Connect after Close should be a no-op")
	}
}

func TestPushChannelDisableReconnect(t *testing.T) {
	dev := newFakeDevice(t)
	p := dev.channel(t, PushOptions{Interval: 5 * time.Millisecond, DisableReconnect: true})

	p.Connect()
	conn := dev.accept(t)
	waitFor(t, "open", func() bool { return p.State() == StateOpen })
	_ = conn.Close()

	waitFor(t, "disconnect", func() bool { return p.State() == StateDisconnected })
	select {
	case <-dev.ready:
		t.Error("channel redialed with reconnect disabled")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBackoff(t *testing.T) {
	p := NewPushChannel("127.0.0.1", PushOptions{
		Interval:    100 * time.Millisecond,
		Multiplier:  2,
		MaxInterval: 500 * time.Millisecond,
	})
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 500 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := p.backoff(tt.attempt); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
