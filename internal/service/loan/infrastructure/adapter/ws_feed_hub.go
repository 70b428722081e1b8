package adapter

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Abbracx/loan-be/internal/service/loan/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool { // 认证在握手前已完成
		return true
	},
}

// FlagFeedHub 维护所有在线管理员的连接，并广播被标记的申请。实现了 port.FlagFeed。
type FlagFeedHub struct {
	clients map[*feedClient]struct{}
	lock    sync.RWMutex
}

// feedClient 是一个 WebSocket 连接的代表
type feedClient struct {
	hub     *FlagFeedHub
	conn    *websocket.Conn
	send    chan []byte
	adminID string
}

func NewFlagFeedHub() *FlagFeedHub {
	return &FlagFeedHub{clients: make(map[*feedClient]struct{})}
}

// Publish 从不阻塞：缓冲区已满的慢客户端直接断开。
func (h *FlagFeedHub) Publish(event *domain.LoanFlaggedEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("loan", event.LoanID).Msg("failed to encode flagged loan for feed")
		return
	}

	h.lock.Lock()
	defer h.lock.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			log.Warn().Str("admin", c.adminID).Msg("feed client too slow, disconnecting")
			h.removeLocked(c)
		}
	}
}

// Serve 把 HTTP 请求升级为 WebSocket 并注册到 Hub。
func (h *FlagFeedHub) Serve(w http.ResponseWriter, r *http.Request, adminID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &feedClient{hub: h, conn: conn, send: make(chan []byte, sendBufferSize), adminID: adminID}
	h.lock.Lock()
	h.clients[c] = struct{}{}
	h.lock.Unlock()
	log.Info().Str("admin", adminID).Msg("flag feed client registered")

	go c.writePump()
	go c.readPump()
	return nil
}

func (h *FlagFeedHub) ClientCount() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.clients)
}

// Close 断开所有客户端，服务退出时调用。
func (h *FlagFeedHub) Close() {
	h.lock.Lock()
	defer h.lock.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *FlagFeedHub) unregister(c *feedClient) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if _, ok := h.clients[c]; ok {
		h.removeLocked(c)
		log.Info().Str("admin", c.adminID).Msg("flag feed client unregistered")
	}
}

// removeLocked 关闭 send 后由 writePump 负责关闭连接。
func (h *FlagFeedHub) removeLocked(c *feedClient) {
	delete(h.clients, c)
	close(c.send)
}

func (c *feedClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 只处理心跳，管理员端不需要上行消息。
func (c *feedClient) readPump() {
	defer c.hub.unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
