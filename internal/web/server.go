package web

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"lyricsync/internal/lyrics"
	"lyricsync/internal/metrics"
	"lyricsync/internal/session"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var logger = log.With().Str("component", "web").Logger()

const writeWait = 5 * time.Second

// Session is the part of *session.Session the web server needs.
type Session interface {
	Snapshot() session.Snapshot
	Subscribe() (<-chan session.Snapshot, func())
	Refresh()
}

// Message is what clients receive, both over the websocket and from /snapshot.
type Message struct {
	session.Snapshot
	Lines        []lyrics.Line `json:"lines"`
	Translations []string      `json:"translations,omitempty"`
	Error        string        `json:"error,omitempty"`
	ErrorKind    string        `json:"error_kind,omitempty"`
}

// Command is sent by clients over the websocket.
type Command struct {
	Action string `json:"action"` // "refresh"
}

func newMessage(snap session.Snapshot) Message {
	m := Message{
		Snapshot:     snap,
		Lines:        snap.Timeline.Lines(),
		Translations: snap.Translations,
	}
	if m.Lines == nil {
		m.Lines = []lyrics.Line{}
	}
	if snap.Err != nil {
		m.Error = snap.Message()
		m.ErrorKind = snap.Err.Kind.String()
	}
	return m
}

type Server struct {
	session  Session
	upgrader websocket.Upgrader
	http     *http.Server
}

func NewServer(addr string, sess Session) *Server {
	s := &Server{
		session: sess,
		upgrader: websocket.Upgrader{
			// 只监听本机，允许任意来源的页面连接
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.http = &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/snapshot", s.handleSnapshot)
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	logger.Info().Str("listen", ln.Addr().String()).Msg("Web server listening")
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Web server stopped")
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(newMessage(s.session.Snapshot())); err != nil {
		logger.Error().Err(err).Msg("Failed to encode snapshot")
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	logger.Info().Str("remote", r.RemoteAddr).Msg("Web client connected")

	updates, unsubscribe := s.session.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for snap := range updates {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(newMessage(snap)); err != nil {
				logger.Debug().Err(err).Msg("Failed to write to web client")
				conn.Close()
				return
			}
		}
		// 会话关闭
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
			time.Now().Add(writeWait))
		conn.Close()
	}()

	for {
		var cmd Command
		if err := conn.ReadJSON(&cmd); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				logger.Debug().Err(err).Msg("Web client read failed")
			}
			break
		}
		switch cmd.Action {
		case "refresh":
			logger.Info().Msg("Refresh requested by web client")
			s.session.Refresh()
		default:
			logger.Warn().Str("action", cmd.Action).Msg("Unknown web command")
		}
	}

	unsubscribe()
	<-done
	logger.Info().Str("remote", r.RemoteAddr).Msg("Web client disconnected")
}
