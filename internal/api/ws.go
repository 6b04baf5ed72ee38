package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kstaniek/go-mcmcan/internal/gateway"
	"github.com/kstaniek/go-mcmcan/internal/hub"
	"github.com/kstaniek/go-mcmcan/internal/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ReplyPayload answers a frame sent by a websocket client.
type ReplyPayload struct {
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

// serveWS streams bus events to the client and submits the frames it sends.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	h := s.gw.Hub()
	cl, err := h.Subscribe()
	if err != nil {
		if errors.Is(err, hub.ErrTooManyClients) {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Remove(cl)
		s.logger.Warn("ws_upgrade_failed", "error", err)
		return
	}
	logger := s.logger.With("remote", r.RemoteAddr)
	logger.Info("ws_connected")

	replies := make(chan ReplyPayload, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wsWriter(conn, cl, replies)
	}()

	conn.SetReadLimit(s.readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(2 * s.pingInterval))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * s.pingInterval))
	})
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				metrics.IncError(metrics.ErrWSRead)
				logger.Debug("ws_read_end", "error", err)
			}
			break
		}
		metrics.IncWSRx()
		var p FramePayload
		if err := json.Unmarshal(msg, &p); err != nil {
			metrics.IncMalformed()
			s.reply(replies, ReplyPayload{Error: err.Error()})
			continue
		}
		f, err := p.Frame()
		if err == nil {
			err = s.gw.Submit(f)
		}
		if err != nil {
			s.reply(replies, ReplyPayload{Error: err.Error()})
			continue
		}
		s.reply(replies, ReplyPayload{Accepted: true})
	}
	h.Remove(cl)
	<-done
	_ = conn.Close()
	logger.Info("ws_disconnected")
}

func (s *Server) reply(out chan<- ReplyPayload, p ReplyPayload) {
	select {
	case out <- p:
	default:
	}
}

func (s *Server) wsWriter(conn *websocket.Conn, cl *hub.Client[gateway.Event], replies <-chan ReplyPayload) {
	ping := time.NewTicker(s.pingInterval)
	defer ping.Stop()
	write := func(v any) error {
		_ = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		if err := conn.WriteJSON(v); err != nil {
			metrics.IncError(metrics.ErrWSWrite)
			return err
		}
		return nil
	}
	for {
		select {
		case ev := <-cl.Out:
			if err := write(eventOf(ev)); err != nil {
				_ = conn.Close()
				return
			}
			metrics.AddWSTx(1)
		case p := <-replies:
			if err := write(p); err != nil {
				_ = conn.Close()
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeTimeout)); err != nil {
				_ = conn.Close()
				return
			}
		case <-cl.Closed:
			// kicked by the hub or the reader ended
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(s.writeTimeout))
			_ = conn.Close()
			return
		}
	}
}
