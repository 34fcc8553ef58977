package tcpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/adiarra14/fleetsdkapp-sub001/internal/adapters/framing"
	"github.com/adiarra14/fleetsdkapp-sub001/internal/ports"
)

// FrameHandler processes one decoded frame payload and reports the device the
// frame identified, or "" when identity is still unknown. Errors are logged
// and counted but never terminate the connection; devices keep streaming.
type FrameHandler func(ctx context.Context, payload []byte) (deviceID string, err error)

type Config struct {
	ListenAddr    string
	MaxFrameBytes int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

// Server accepts balise connections and runs one goroutine per connection. A
// connection owns its frame decoder, so partial frames never leak between
// devices. Once a frame identifies the device, the connection is registered
// in the hub for outbound commands until disconnect.
type Server struct {
	cfg     Config
	handler FrameHandler
	hub     ports.ConnHub
	obs     ports.Observability

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
}

func NewServer(cfg Config, handler FrameHandler, hub ports.ConnHub, obs ports.Observability) (*Server, error) {
	if cfg.ListenAddr == "" {
		return nil, errors.New("tcpserver: listen address is required")
	}
	if handler == nil {
		return nil, errors.New("tcpserver: frame handler is required")
	}
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = framing.DefaultMaxFrameBytes
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 5 * time.Minute
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Server{
		cfg:     cfg,
		handler: handler,
		hub:     hub,
		obs:     obs,
		conns:   make(map[net.Conn]struct{}),
	}, nil
}

// Serve listens and accepts until ctx is cancelled, then closes the listener,
// closes open connections and waits for their handlers to drain whatever was
// already buffered.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.ListenAddr, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		listener.Close()
		s.closeConns()
	}()

	s.obs.LogInfo("listening", ports.Field{Key: "addr", Value: listener.Addr().String()})

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			// Live handlers would otherwise hold the wait until their read
			// deadline fires.
			s.closeConns()
			s.wg.Wait()
			return fmt.Errorf("accept: %w", err)
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.obs.SetGauge("balise_active_connections", float64(len(s.conns)))
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
}

// Addr reports the bound listener address, useful when ListenAddr used an
// ephemeral port.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()

	remote := conn.RemoteAddr().String()
	writer := &frameWriter{conn: conn, timeout: s.cfg.WriteTimeout}
	var registeredID string

	defer func() {
		conn.Close()
		if registeredID != "" && s.hub != nil {
			s.hub.Unregister(registeredID, writer)
		}
		s.mu.Lock()
		delete(s.conns, conn)
		s.obs.SetGauge("balise_active_connections", float64(len(s.conns)))
		s.mu.Unlock()
	}()

	decoder := framing.NewDecoder(s.cfg.MaxFrameBytes)
	buf := make([]byte, 4096)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
			return
		}
		n, readErr := conn.Read(buf)
		if n > 0 {
			frames, err := decoder.Feed(buf[:n])
			for _, frame := range frames {
				s.obs.IncCounter("balise_frames_received_total", 1)
				deviceID, handleErr := s.handler(ctx, frame)
				if handleErr != nil {
					s.obs.LogError("frame_handling_failed", handleErr,
						ports.Field{Key: "remote", Value: remote})
				}
				if deviceID != "" && deviceID != registeredID && s.hub != nil {
					if registeredID != "" {
						s.hub.Unregister(registeredID, writer)
					}
					s.hub.Register(deviceID, writer)
					registeredID = deviceID
				}
			}
			if err != nil {
				// A declared length past the limit poisons the stream; the
				// only safe move is dropping the connection.
				s.obs.IncCounter("balise_frames_oversize_total", 1)
				s.obs.LogError("protocol_violation", err,
					ports.Field{Key: "remote", Value: remote})
				return
			}
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return
			}
			var netErr net.Error
			if errors.As(readErr, &netErr) && netErr.Timeout() {
				s.obs.LogInfo("idle_disconnect", ports.Field{Key: "remote", Value: remote})
			}
			return
		}
	}
}

// frameWriter is the write half of a connection handed to the hub. Writes are
// serialized; concurrent command pushes must not interleave frames.
type frameWriter struct {
	conn    net.Conn
	timeout time.Duration
	mu      sync.Mutex
}

func (w *frameWriter) WriteFrame(payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
		return err
	}
	_, err := w.conn.Write(payload)
	return err
}

var _ ports.CommandConn = (*frameWriter)(nil)
