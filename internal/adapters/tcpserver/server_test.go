package tcpserver

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/adiarra14/fleetsdkapp-sub001/internal/adapters/framing"
	"github.com/adiarra14/fleetsdkapp-sub001/internal/adapters/observability"
	"github.com/adiarra14/fleetsdkapp-sub001/internal/adapters/sdk"
)

type collectHandler struct {
	mu       sync.Mutex
	payloads []string
	deviceID string
	notify   chan struct{}
}

func (h *collectHandler) handle(ctx context.Context, payload []byte) (string, error) {
	h.mu.Lock()
	h.payloads = append(h.payloads, string(payload))
	h.mu.Unlock()
	select {
	case h.notify <- struct{}{}:
	default:
	}
	return h.deviceID, nil
}

func (h *collectHandler) got() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.payloads...)
}

func startServer(t *testing.T, handler FrameHandler, hub *sdk.Hub) (*Server, context.CancelFunc, string) {
	t.Helper()
	srv, err := NewServer(Config{
		ListenAddr:    "127.0.0.1:0",
		MaxFrameBytes: 64,
		ReadTimeout:   2 * time.Second,
		WriteTimeout:  time.Second,
	}, handler, hub, observability.NopObs{})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Error("server did not shut down")
		}
	})

	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("server never bound a listener")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return srv, cancel, srv.Addr().String()
}

func TestFramesAcrossChunkBoundaries(t *testing.T) {
	handler := &collectHandler{notify: make(chan struct{}, 16)}
	_, _, addr := startServer(t, handler.handle, nil)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	stream := append(framing.EncodeFrame([]byte(`{"deviceId":"BAL-1"}`)),
		framing.EncodeFrame([]byte(`{"deviceId":"BAL-1","voltage":3.9}`))...)

	// Drip-feed one byte at a time; framing must not depend on read sizes.
	for _, b := range stream {
		if _, err := conn.Write([]byte{b}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	for len(handler.got()) < 2 {
		select {
		case <-handler.notify:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out, frames seen: %v", handler.got())
		}
	}
	got := handler.got()
	if got[0] != `{"deviceId":"BAL-1"}` || got[1] != `{"deviceId":"BAL-1","voltage":3.9}` {
		t.Fatalf("unexpected payloads: %v", got)
	}
}

func TestAcceptFailureClosesLiveConnections(t *testing.T) {
	handler := &collectHandler{notify: make(chan struct{}, 16)}
	srv, err := NewServer(Config{
		ListenAddr:    "127.0.0.1:0",
		MaxFrameBytes: 64,
		ReadTimeout:   time.Minute,
		WriteTimeout:  time.Second,
	}, handler.handle, nil, observability.NopObs{})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- srv.Serve(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("server never bound a listener")
		}
		time.Sleep(5 * time.Millisecond)
	}

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	for {
		srv.mu.Lock()
		tracked := len(srv.conns)
		srv.mu.Unlock()
		if tracked == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("connection never tracked")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Kill the listener out from under Serve without cancelling the context;
	// the accept error must still tear down the connection, not wait out the
	// read deadline.
	srv.mu.Lock()
	listener := srv.listener
	srv.mu.Unlock()
	listener.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected an accept error")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Serve stalled on live connections after accept failure")
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := conn.Read(make([]byte, 1)); err != io.EOF {
		t.Fatalf("expected EOF on the client side, got %v", err)
	}
}

func TestOversizeFrameClosesConnection(t *testing.T) {
	handler := &collectHandler{notify: make(chan struct{}, 16)}
	_, _, addr := startServer(t, handler.handle, nil)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Declared length 65 exceeds the 64-byte test limit.
	if _, err := conn.Write([]byte{0, 0, 0, 65}); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err != io.EOF {
		t.Fatalf("expected server to close the connection, read err = %v", err)
	}
	if frames := handler.got(); len(frames) != 0 {
		t.Fatalf("no frames should be handled, got %v", frames)
	}
}

func TestIdentifiedConnectionReceivesCommands(t *testing.T) {
	hub := sdk.NewHub()
	handler := &collectHandler{notify: make(chan struct{}, 16), deviceID: "BAL-7"}
	_, _, addr := startServer(t, handler.handle, hub)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write(framing.EncodeFrame([]byte(`{"deviceId":"BAL-7"}`))); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case <-handler.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("frame never reached the handler")
	}

	deadline := time.Now().Add(2 * time.Second)
	var writer interface{ WriteFrame([]byte) error }
	for {
		if w, ok := hub.Lookup("BAL-7"); ok {
			writer = w
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("device never registered in the hub")
		}
		time.Sleep(5 * time.Millisecond)
	}

	command := framing.EncodeFrame([]byte(`{"command":"LOCK"}`))
	if err := writer.WriteFrame(command); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	got := make([]byte, len(command))
	if _, err := io.ReadFull(conn, got); err != nil {
		t.Fatalf("reading command: %v", err)
	}
	if string(got) != string(command) {
		t.Fatalf("command bytes mismatch: %q", got)
	}
}

func TestShutdownClosesConnections(t *testing.T) {
	handler := &collectHandler{notify: make(chan struct{}, 16)}
	_, cancel, addr := startServer(t, handler.handle, nil)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	cancel()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("connection should be closed on shutdown")
	}
}
