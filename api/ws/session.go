package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sendChanBuf   = 64
	writeDeadline = 10 * time.Second
	readDeadline  = 60 * time.Second
	pingInterval  = 30 * time.Second
	maxReadBytes  = 4096
)

// Packet is the WS message envelope in both directions.
type Packet struct {
	Seq     uint64          `json:"seq,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Session is one connected account. Writes go through SendChan so only the
// write pump touches the connection's writer.
type Session struct {
	AccountID int64
	Conn      *websocket.Conn

	SendChan chan []byte
	Done     chan struct{}
	LastSeq  uint64

	closeOnce sync.Once
	pumpDone  chan struct{}
	ping      time.Duration
	logger    *zap.Logger
}

func newSession(accountID int64, conn *websocket.Conn, ping time.Duration, logger *zap.Logger) *Session {
	s := &Session{
		AccountID: accountID,
		Conn:      conn,
		SendChan:  make(chan []byte, sendChanBuf),
		Done:      make(chan struct{}),
		pumpDone:  make(chan struct{}),
		ping:      ping,
		logger:    logger,
	}
	go s.writePump()
	return s
}

// writePump drains SendChan and sends periodic pings to detect dead peers.
func (s *Session) writePump() {
	ticker := time.NewTicker(s.ping)
	defer ticker.Stop()
	defer close(s.pumpDone)
	defer s.Conn.Close()
	for {
		select {
		case data := <-s.SendChan:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Warn("ws write error",
					zap.Int64("account_id", s.AccountID),
					zap.Error(err))
				s.Close()
				return
			}
		case <-ticker.C:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		case <-s.Done:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			_ = s.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send encodes pkt and queues it. Drops when the queue is full or closed.
func (s *Session) Send(pkt *Packet) {
	if s.IsClosed() {
		return
	}
	data, err := json.Marshal(pkt)
	if err != nil {
		return
	}
	select {
	case s.SendChan <- data:
	case <-s.Done:
	default:
		s.logger.Warn("send channel full, dropping packet",
			zap.Int64("account_id", s.AccountID),
			zap.String("type", pkt.Type))
	}
}

// Close signals the write pump to send a close frame and stop.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.Done) })
}

// IsClosed reports whether Close has been called.
func (s *Session) IsClosed() bool {
	select {
	case <-s.Done:
		return true
	default:
		return false
	}
}

// Wait blocks until the write pump has exited and the connection is closed.
func (s *Session) Wait() {
	<-s.pumpDone
}

func (s *Session) extendReadDeadline() {
	_ = s.Conn.SetReadDeadline(time.Now().Add(readDeadline))
}
