package server

import (
	"context"
	"net/http"

	"EchoQuiz/core/channel"
	"EchoQuiz/logger"

	"github.com/gorilla/websocket"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocketHandler 建立实时通道连接。每条连接分配唯一通道标识并
// 立即下发给客户端，后续上传请求必须携带该标识才能收到事件。
func (h *APIHandler) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", logger.ErrorField(err))
		return
	}

	client := h.hub.NewClient(conn)
	h.hub.Register(client)

	// 升级后的连接寿命与请求无关，读循环不能挂在请求上下文上
	go client.WritePump()
	go client.ReadPump(context.Background())

	// 通道标识必须在任何业务事件之前送达
	h.hub.Emit(client.ChannelID, channel.EvtConnectionEstablished, channel.ConnectionEstablishedData{
		ChannelID: client.ChannelID,
	})
}
