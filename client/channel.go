package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"EchoQuiz/core/channel"
	"EchoQuiz/logger"

	"github.com/gorilla/websocket"
)

const (
	reconnectBase     = 1 * time.Second
	reconnectCap      = 5 * time.Second
	maxReconnectTries = 10
	keepaliveInterval = 30 * time.Second
	channelWriteWait  = 10 * time.Second
)

// Channel 到服务端实时通道的客户端连接。断线后按有界指数退避自动重连，
// 传输层错误只通过回调上报，从不向调用方返回。
type Channel struct {
	url    string
	dialer *websocket.Dialer

	// 连接状态回调，未设置的回调直接跳过
	OnConnected    func(channelID string)
	OnReconnected  func(channelID string, attempt int)
	OnDisconnected func()
	OnError        func(err error)
	OnEvent        func(evt channel.Event)

	mu        sync.Mutex
	conn      *websocket.Conn
	channelID string

	cancel context.CancelFunc
	done   chan struct{}
}

// NewChannel 创建实时通道客户端，url 形如 ws://host:port/ws
func NewChannel(url string) *Channel {
	return &Channel{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// ChannelID 返回服务端分配的通道标识，未连接时为空串
func (c *Channel) ChannelID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channelID
}

// Start 建立连接并在后台维持它。首次连接失败同样进入重连流程。
func (c *Channel) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(ctx)
}

// Stop 关闭连接并停止重连
func (c *Channel) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()
	if c.done != nil {
		<-c.done
	}
}

func (c *Channel) run(ctx context.Context) {
	defer close(c.done)

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			attempt++
			if c.OnError != nil {
				c.OnError(err)
			}
			if attempt > maxReconnectTries {
				logger.Error("实时通道重连次数耗尽",
					logger.Int("attempts", maxReconnectTries),
					logger.ErrorField(err))
				return
			}
			delay := backoff(attempt)
			logger.Warn("实时通道连接失败，稍后重试",
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay),
				logger.ErrorField(err))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		reconnected := attempt > 0
		lastAttempt := attempt
		attempt = 0

		c.serve(ctx, conn, reconnected, lastAttempt)

		c.mu.Lock()
		c.conn = nil
		c.channelID = ""
		c.mu.Unlock()

		if c.OnDisconnected != nil {
			c.OnDisconnected()
		}
		if ctx.Err() != nil {
			return
		}
		attempt = 1
		select {
		case <-time.After(backoff(attempt)):
		case <-ctx.Done():
			return
		}
	}
}

// serve 在单条连接上跑读循环与心跳，直到连接断开
func (c *Channel) serve(ctx context.Context, conn *websocket.Conn, reconnected bool, attempt int) {
	stopPing := make(chan struct{})
	defer close(stopPing)

	go func() {
		ticker := time.NewTicker(keepaliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ping, err := channel.NewEvent(channel.EvtPing, nil)
				if err != nil {
					continue
				}
				c.mu.Lock()
				conn.SetWriteDeadline(time.Now().Add(channelWriteWait))
				err = conn.WriteJSON(ping)
				c.mu.Unlock()
				if err != nil {
					conn.Close()
					return
				}
			case <-stopPing:
				return
			case <-ctx.Done():
				conn.Close()
				return
			}
		}
	}()

	for {
		var evt channel.Event
		if err := conn.ReadJSON(&evt); err != nil {
			if ctx.Err() == nil && c.OnError != nil {
				c.OnError(err)
			}
			return
		}

		switch evt.Type {
		case channel.EvtConnectionEstablished:
			var data channel.ConnectionEstablishedData
			if err := json.Unmarshal(evt.Data, &data); err != nil {
				logger.Warn("通道标识解析失败", logger.ErrorField(err))
				continue
			}
			c.mu.Lock()
			c.channelID = data.ChannelID
			c.mu.Unlock()
			logger.Info("实时通道已建立", logger.String("channelId", data.ChannelID))
			if reconnected {
				if c.OnReconnected != nil {
					c.OnReconnected(data.ChannelID, attempt)
				}
			} else if c.OnConnected != nil {
				c.OnConnected(data.ChannelID)
			}
		case channel.EvtPong:
			// 心跳响应，不需要处理
		default:
			if c.OnEvent != nil {
				c.OnEvent(evt)
			}
		}
	}
}

// backoff 有界指数退避：1s 起步，封顶 5s
func backoff(attempt int) time.Duration {
	delay := reconnectBase << (attempt - 1)
	if delay > reconnectCap || delay <= 0 {
		return reconnectCap
	}
	return delay
}
