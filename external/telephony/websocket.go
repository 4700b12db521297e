package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/foxseedlab/voicelink/internal/fault"
	"github.com/foxseedlab/voicelink/internal/media"
	"github.com/foxseedlab/voicelink/internal/session"
	telephonypkg "github.com/foxseedlab/voicelink/internal/telephony"
	"github.com/gorilla/websocket"
)

const (
	writeTimeout      = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
	mediaStreamPath   = "/media-stream"
)

type WebSocketServer struct {
	httpServer *http.Server
	upgrader   websocket.Upgrader

	mu        sync.RWMutex
	handler   telephonypkg.CallHandler
	inspector telephonypkg.CallInspector
}

func NewWebSocketServer(addr string) *WebSocketServer {
	s := &WebSocketServer{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Media streams come from the telephony provider, not a browser.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

func (s *WebSocketServer) RegisterCallHandler(handler telephonypkg.CallHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

func (s *WebSocketServer) RegisterCallInspector(inspector telephonypkg.CallInspector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inspector = inspector
}

func (s *WebSocketServer) callHandler() telephonypkg.CallHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handler
}

func (s *WebSocketServer) callInspector() telephonypkg.CallInspector {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inspector
}

func (s *WebSocketServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+mediaStreamPath, s.handleMediaStream)
	mux.HandleFunc("GET /calls/{callID}", s.handleCallSnapshot)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// Run serves until Shutdown is called.
func (s *WebSocketServer) Run() error {
	slog.Info("media stream server listening", "addr", s.httpServer.Addr, "path", mediaStreamPath)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *WebSocketServer) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *WebSocketServer) handleMediaStream(w http.ResponseWriter, r *http.Request) {
	handler := s.callHandler()
	if handler == nil {
		http.Error(w, "call handler not ready", http.StatusServiceUnavailable)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("media stream upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}
	conn := &streamConn{ws: ws}
	defer conn.close()
	slog.Info("media stream connected", "remote_addr", r.RemoteAddr)
	s.readLoop(r.Context(), conn, handler)
}

func (s *WebSocketServer) readLoop(ctx context.Context, conn *streamConn, handler telephonypkg.CallHandler) {
	var call session.Handle
	callID := ""
	stopped := false
	defer func() {
		if call != nil && !stopped {
			call.Stop(session.StopReasonTransportClosed)
		}
	}()

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Info("media stream read ended", "call_id", callID, "error", err)
			}
			return
		}
		ev, err := media.DecodeEvent(data)
		if err != nil {
			slog.Warn("dropping malformed media stream message", "call_id", callID, "error", err)
			continue
		}

		switch ev.Kind {
		case media.EventConnected:
			slog.Debug("media stream handshake", "call_id", callID)
		case media.EventStart:
			if call != nil {
				slog.Warn("duplicate start on media stream ignored", "call_id", callID, "new_call_id", ev.CallID)
				continue
			}
			conn.setStreamSID(ev.StreamSID)
			started, err := handler.Start(ctx, *ev.Start, conn)
			if err == nil && started == nil {
				err = errors.New("call handler returned no handle")
			}
			if err != nil {
				slog.Error("failed to start call", "call_id", ev.CallID, "error", err)
				code := websocket.CloseInternalServerErr
				if fault.IsProtocol(err) {
					code = websocket.CloseProtocolError
				}
				conn.closeWith(code, "call could not be started")
				return
			}
			call, callID = started, started.CallID()
		case media.EventStop:
			if call == nil {
				continue
			}
			call.Dispatch(ev)
			stopped = true
		default:
			if call == nil {
				slog.Warn("dropping media stream event before start", "event", ev.Kind.String())
				continue
			}
			call.Dispatch(ev)
		}
	}
}

func (s *WebSocketServer) handleCallSnapshot(w http.ResponseWriter, r *http.Request) {
	inspector := s.callInspector()
	if inspector == nil {
		http.Error(w, "call inspector not ready", http.StatusServiceUnavailable)
		return
	}
	snap, ok := inspector.Snapshot(r.PathValue("callID"))
	if !ok {
		http.Error(w, "call not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *WebSocketServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	active := 0
	if inspector := s.callInspector(); inspector != nil {
		active = inspector.ActiveCalls()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "active_calls": active})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

// streamConn is the outbound half of one media stream. gorilla connections
// allow a single concurrent writer, so writes are serialized here.
type streamConn struct {
	ws        *websocket.Conn
	mu        sync.Mutex
	streamSID string
	closed    bool
}

func (c *streamConn) setStreamSID(sid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streamSID = sid
}

func (c *streamConn) write(encode func(streamSID string) ([]byte, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("media stream closed")
	}
	b, err := encode(c.streamSID)
	if err != nil {
		return err
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, b)
}

func (c *streamConn) SendMedia(f media.Frame) error {
	return c.write(func(sid string) ([]byte, error) { return media.EncodeMedia(sid, f) })
}

func (c *streamConn) SendMark(name string) error {
	return c.write(func(sid string) ([]byte, error) { return media.EncodeMark(sid, name) })
}

func (c *streamConn) closeWith(code int, reason string) {
	c.mu.Lock()
	if !c.closed {
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeTimeout))
	}
	c.mu.Unlock()
	c.close()
}

func (c *streamConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	_ = c.ws.Close()
}
