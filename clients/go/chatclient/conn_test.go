package chatclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// stateRecorder collects handler callbacks across conn goroutines.
type stateRecorder struct {
	mu     sync.Mutex
	states []ConnState
	errs   []error
	frames [][]byte
	closes []int
	opened chan struct{}
	done   chan struct{}
}

func newStateRecorder() *stateRecorder {
	return &stateRecorder{
		opened: make(chan struct{}, 8),
		done:   make(chan struct{}, 8),
	}
}

func (r *stateRecorder) handlers() ConnHandlers {
	return ConnHandlers{
		OnOpen: func() {
			r.opened <- struct{}{}
		},
		OnFrame: func(raw []byte) {
			r.mu.Lock()
			r.frames = append(r.frames, raw)
			r.mu.Unlock()
		},
		OnClose: func(code int, reason string) {
			r.mu.Lock()
			r.closes = append(r.closes, code)
			r.mu.Unlock()
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
			if errors.Is(err, ErrReconnectExhausted) {
				r.done <- struct{}{}
			}
		},
		OnState: func(s ConnState) {
			r.mu.Lock()
			r.states = append(r.states, s)
			r.mu.Unlock()
			if s == StateClosed || s == StateExhausted {
				select {
				case r.done <- struct{}{}:
				default:
				}
			}
		},
	}
}

func (r *stateRecorder) wait(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connection event")
	}
}

func TestSendBeforeOpenReturnsNotConnected(t *testing.T) {
	c := NewConn("ws://unused", zerolog.Nop(), ConnHandlers{})
	if err := c.Send([]byte("{}")); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestReconnectExhaustsAfterCeiling(t *testing.T) {
	rec := newStateRecorder()
	c := NewConn("ws://unused", zerolog.Nop(), rec.handlers())

	var mu sync.Mutex
	dials := 0
	c.dial = func(ctx context.Context, url string) (*websocket.Conn, error) {
		mu.Lock()
		dials++
		mu.Unlock()
		return nil, errors.New("connection refused")
	}
	c.delay = func(int) time.Duration { return time.Millisecond }
	c.maxAttempts = 3

	c.Open(context.Background())
	rec.wait(t, rec.done)

	mu.Lock()
	gotDials := dials
	mu.Unlock()
	// Initial connect plus one per reconnect attempt.
	if gotDials != 4 {
		t.Errorf("dial count = %d, want 4", gotDials)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	exhausted := 0
	for _, err := range rec.errs {
		if errors.Is(err, ErrReconnectExhausted) {
			exhausted++
		}
	}
	if exhausted != 1 {
		t.Errorf("ErrReconnectExhausted reported %d times, want once", exhausted)
	}
	if got := rec.states[len(rec.states)-1]; got != StateExhausted {
		t.Errorf("final state = %v, want exhausted", got)
	}
}

func TestCloseCancelsPendingReconnect(t *testing.T) {
	rec := newStateRecorder()
	c := NewConn("ws://unused", zerolog.Nop(), rec.handlers())

	var mu sync.Mutex
	dials := 0
	c.dial = func(ctx context.Context, url string) (*websocket.Conn, error) {
		mu.Lock()
		dials++
		mu.Unlock()
		return nil, errors.New("connection refused")
	}
	c.delay = func(int) time.Duration { return time.Hour }

	c.Open(context.Background())
	// Wait for the first dial failure to schedule a reconnect.
	deadline := time.Now().Add(2 * time.Second)
	for c.State() != StateReconnecting {
		if time.Now().After(deadline) {
			t.Fatal("never entered reconnecting state")
		}
		time.Sleep(time.Millisecond)
	}

	c.Close("test over")
	c.Close("test over") // idempotent

	if got := c.State(); got != StateClosed {
		t.Errorf("state after Close = %v, want closed", got)
	}
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if dials != 1 {
		t.Errorf("reconnect fired after Close: %d dials", dials)
	}
}

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func wsTestServer(t *testing.T, serve func(ws *websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer ws.Close()
		serve(ws)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsAddr(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestFramesDeliveredToHandler(t *testing.T) {
	srv := wsTestServer(t, func(ws *websocket.Conn) {
		ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"connected"}`))
		// Hold the connection until the client hangs up.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})

	rec := newStateRecorder()
	c := NewConn(wsAddr(srv), zerolog.Nop(), rec.handlers())
	c.Open(context.Background())
	rec.wait(t, rec.opened)

	deadline := time.Now().Add(2 * time.Second)
	for {
		rec.mu.Lock()
		n := len(rec.frames)
		rec.mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("frame never delivered")
		}
		time.Sleep(time.Millisecond)
	}
	c.Close("done")
}

func TestSendSafeAlongsideKeepalive(t *testing.T) {
	srv := wsTestServer(t, func(ws *websocket.Conn) {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})

	rec := newStateRecorder()
	c := NewConn(wsAddr(srv), zerolog.Nop(), rec.handlers())
	c.keepaliveGap = time.Millisecond
	c.Open(context.Background())
	rec.wait(t, rec.opened)

	// Hammer Send from two goroutines while the keepalive ticker writes
	// its own frames. Unserialized writes make gorilla/websocket panic.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stop := time.Now().Add(100 * time.Millisecond)
			for time.Now().Before(stop) {
				if err := c.Send([]byte(`{"type":"message","message":{"message":"hi"}}`)); err != nil {
					return
				}
			}
		}()
	}
	wg.Wait()
	c.Close("done")
}

func TestServerNormalClosureDoesNotReconnect(t *testing.T) {
	srv := wsTestServer(t, func(ws *websocket.Conn) {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended")
		ws.WriteMessage(websocket.CloseMessage, msg)
		ws.ReadMessage() // drain the close reply
	})

	rec := newStateRecorder()
	c := NewConn(wsAddr(srv), zerolog.Nop(), rec.handlers())
	c.delay = func(int) time.Duration { return time.Millisecond }
	c.Open(context.Background())
	rec.wait(t, rec.opened)
	rec.wait(t, rec.done)

	if got := c.State(); got != StateClosed {
		t.Errorf("state = %v, want closed", got)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.closes) != 1 || rec.closes[0] != websocket.CloseNormalClosure {
		t.Errorf("closes = %v, want one normal closure", rec.closes)
	}
	for _, s := range rec.states {
		if s == StateReconnecting {
			t.Error("reconnect attempted after intentional close")
		}
	}
}

func TestServerDropTriggersReconnect(t *testing.T) {
	var conns int
	var mu sync.Mutex
	srv := wsTestServer(t, func(ws *websocket.Conn) {
		mu.Lock()
		conns++
		first := conns == 1
		mu.Unlock()
		if first {
			ws.Close() // abnormal drop, no close frame
			return
		}
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})

	rec := newStateRecorder()
	c := NewConn(wsAddr(srv), zerolog.Nop(), rec.handlers())
	c.delay = func(int) time.Duration { return time.Millisecond }
	c.Open(context.Background())

	rec.wait(t, rec.opened) // first connect
	rec.wait(t, rec.opened) // reconnect after the drop

	if got := c.State(); got != StateOpen {
		t.Errorf("state after reconnect = %v, want open", got)
	}
	c.Close("done")
}
