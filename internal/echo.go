package internal

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// EchoServer is a WebSocket endpoint that writes every text and binary
// message back unchanged and answers close frames in kind. It backs the
// demo binaries and the round-trip tests.
type EchoServer struct {
	// Log receives per-connection lifecycle logs. Nil disables logging.
	Log *zap.Logger

	// MaxMessageSize bounds inbound messages. 0 keeps the transport
	// default.
	MaxMessageSize int64

	// Subprotocols lists the sub-protocol names the server will agree to.
	Subprotocols []string
}

func (s *EchoServer) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *EchoServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{
		Subprotocols: s.Subprotocols,
		// Echo endpoint for the demo binaries and tests; origin checks
		// would only get in their way.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	c, err := up.Upgrade(w, r, nil)
	if err != nil {
		s.logger().Warn("upgrade failed", zap.Error(err))
		return
	}
	defer c.Close()

	log := s.logger().With(zap.String("conn", uuid.NewString()))
	log.Info("connection open",
		zap.String("remote", r.RemoteAddr),
		zap.String("subprotocol", c.Subprotocol()))
	observeConnOpen("server")

	if s.MaxMessageSize > 0 {
		c.SetReadLimit(s.MaxMessageSize)
	}

	for {
		mt, data, err := c.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				observeConnClosed("server", "clean")
				log.Info("connection closed",
					zap.Int("code", ce.Code),
					zap.String("reason", ce.Text))
			} else {
				observeConnClosed("server", "abnormal")
				log.Warn("read failed", zap.Error(err))
			}
			return
		}
		observeMessage("server", "recv", MessageType(mt), len(data))
		if err := c.WriteMessage(mt, data); err != nil {
			observeConnClosed("server", "abnormal")
			log.Warn("write failed", zap.Error(err))
			return
		}
		observeMessage("server", "send", MessageType(mt), len(data))
	}
}
