package channel

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"EchoQuiz/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Emitter 是任务执行器和出题编排器使用的事件发送接口。
// 通道标识无效时事件被丢弃，发送方永远不会因此出错。
type Emitter interface {
	Emit(channelID string, eventType EventType, data interface{})
}

// Client 一条已建立的客户端连接。每次连接分配新的通道标识，
// 重连后旧标识随即失效。
type Client struct {
	Hub       *Hub
	Conn      *websocket.Conn
	Send      chan []byte
	ChannelID string
}

// Hub 实时通道管理中心
type Hub struct {
	// 通道标识 -> 客户端
	clients map[string]*Client

	// 注销通道
	unregister chan *Client

	mu sync.RWMutex

	// 关闭信号
	done chan struct{}
}

// NewHub 创建通道管理中心
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// NewClient 为一条新连接创建客户端并分配通道标识
func (h *Hub) NewClient(conn *websocket.Conn) *Client {
	return &Client{
		Hub:       h,
		Conn:      conn,
		Send:      make(chan []byte, 64),
		ChannelID: uuid.NewString(),
	}
}

// Run 启动主循环
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop 停止主循环并断开所有连接
func (h *Hub) Stop() {
	close(h.done)
}

// Register 注册客户端。同步完成：返回时通道已可寻址，
// 紧跟着的 connection-established 事件不会落空。
func (h *Hub) Register(client *Client) {
	h.registerClient(client)
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client.ChannelID] = client
	h.mu.Unlock()

	logger.Info("client registered", logger.String("channel", client.ChannelID))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ChannelID]; ok {
		delete(h.clients, client.ChannelID)
		close(client.Send)
		logger.Info("client unregistered", logger.String("channel", client.ChannelID))
	}
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		close(client.Send)
	}
	h.clients = make(map[string]*Client)
}

// Emit 向指定通道发送事件。通道不在线时丢弃并记录调试日志，
// 丢失的事件由客户端的 /status 轮询补偿。
func (h *Hub) Emit(channelID string, eventType EventType, data interface{}) {
	event, err := NewEvent(eventType, data)
	if err != nil {
		logger.Error("事件序列化失败",
			logger.String("type", string(eventType)),
			logger.ErrorField(err))
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		logger.Error("事件信封序列化失败", logger.ErrorField(err))
		return
	}

	h.mu.RLock()
	client, ok := h.clients[channelID]
	h.mu.RUnlock()

	if !ok {
		logger.Debug("通道不在线，事件丢弃",
			logger.String("channel", channelID),
			logger.String("type", string(eventType)))
		return
	}

	select {
	case client.Send <- payload:
	default:
		// 发送缓冲区满，断开这条连接
		h.unregister <- client
	}
}

// ClientCount 当前在线连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ========== Client 方法 ==========

// ReadPump 读取消息循环，处理客户端心跳
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(4096)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, message, err := c.Conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Warn("websocket read error",
						logger.ErrorField(err),
						logger.String("channel", c.ChannelID))
				}
				return
			}

			var event Event
			if err := json.Unmarshal(message, &event); err != nil {
				logger.Warn("invalid message format",
					logger.ErrorField(err),
					logger.String("channel", c.ChannelID))
				continue
			}

			// 应用层心跳：刷新读超时并回应 pong
			if event.Type == EvtPing {
				c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
				if pong, err := NewEvent(EvtPong, nil); err == nil {
					if data, err := json.Marshal(pong); err == nil {
						select {
						case c.Send <- data:
						default:
						}
					}
				}
			}
		}
	}
}

// WritePump 写入消息循环
func (c *Client) WritePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Hub 关闭了通道
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
