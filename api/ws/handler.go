package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kasuganosora/friendhub/cache"
	mw "github.com/kasuganosora/friendhub/middleware"
	"github.com/kasuganosora/friendhub/social"
	"go.uber.org/zap"
)

// Packet types sent by the server besides the friendship event types.
const (
	TypeConnected = "connected"
	TypePing      = "ping"
	TypePong      = "pong"
	TypeError     = "error"
)

// Handler is the Gin handler for GET /ws. It pushes the account's friendship
// events and answers heartbeat pings.
type Handler struct {
	pubsub   cache.PubSub
	upgrader websocket.Upgrader
	ping     time.Duration
	logger   *zap.Logger
}

// NewHandler creates a new WebSocket Handler.
// allowedOrigins controls which WebSocket origins are accepted.
// An empty slice permits all origins (development only).
func NewHandler(pubsub cache.PubSub, allowedOrigins []string, logger *zap.Logger) *Handler {
	h := &Handler{pubsub: pubsub, ping: pingInterval, logger: logger}
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			return allowed[r.Header.Get("Origin")]
		},
	}
	return h
}

// ServeWS handles GET /ws. It must sit behind middleware.AuthQuery.
func (h *Handler) ServeWS(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	if accountID == 0 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	msgCh, unsub, err := h.pubsub.Subscribe(c.Request.Context(), social.EventChannel(accountID))
	if err != nil {
		h.logger.Error("ws subscribe failed", zap.Int64("account_id", accountID), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	defer unsub()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already answered the request.
		h.logger.Warn("ws upgrade failed", zap.Int64("account_id", accountID), zap.Error(err))
		return
	}

	sess := newSession(accountID, conn, h.ping, h.logger)
	defer sess.Wait()
	defer sess.Close()

	sess.Send(&Packet{Type: TypeConnected, Payload: mustJSON(map[string]int64{"accountId": accountID})})
	go h.forwardEvents(sess, msgCh)

	h.readPump(sess)
}

// forwardEvents relays pub/sub payloads until the subscription or session ends.
func (h *Handler) forwardEvents(s *Session, msgCh <-chan *cache.Message) {
	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				s.Close()
				return
			}
			ev, err := social.DecodeEvent(msg.Payload)
			if err != nil {
				h.logger.Warn("ws dropped undecodable event", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			s.Send(&Packet{Type: ev.Type, Payload: json.RawMessage(msg.Payload)})
		case <-s.Done:
			return
		}
	}
}

// readPump reads client packets until the connection closes.
func (h *Handler) readPump(s *Session) {
	s.Conn.SetReadLimit(maxReadBytes)
	s.extendReadDeadline()
	s.Conn.SetPongHandler(func(string) error {
		s.extendReadDeadline()
		return nil
	})

	for {
		_, raw, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				h.logger.Warn("ws unexpected close",
					zap.Int64("account_id", s.AccountID),
					zap.Error(err))
			}
			return
		}
		s.extendReadDeadline()
		h.dispatch(s, raw)
	}
}

func (h *Handler) dispatch(s *Session, raw []byte) {
	var pkt Packet
	if err := json.Unmarshal(raw, &pkt); err != nil {
		s.Send(&Packet{Type: TypeError, Payload: mustJSON(map[string]string{"error": "malformed packet"})})
		return
	}

	// Seq == 0 means the client does not number its packets.
	if pkt.Seq != 0 && pkt.Seq <= s.LastSeq {
		h.logger.Debug("replayed or out-of-order packet",
			zap.Int64("account_id", s.AccountID),
			zap.Uint64("seq", pkt.Seq),
			zap.Uint64("last_seq", s.LastSeq))
		return
	}
	if pkt.Seq != 0 {
		s.LastSeq = pkt.Seq
	}

	switch pkt.Type {
	case TypePing:
		s.Send(&Packet{Seq: pkt.Seq, Type: TypePong, Payload: mustJSON(map[string]int64{"serverTs": time.Now().UnixMilli()})})
	default:
		s.Send(&Packet{Seq: pkt.Seq, Type: TypeError, Payload: mustJSON(map[string]string{"error": "unknown packet type"})})
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
