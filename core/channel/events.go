package channel

import (
	"encoding/json"
	"time"

	"EchoQuiz/model"
)

// EventType 实时通道事件类型
type EventType string

const (
	// 系统事件
	EvtConnectionEstablished EventType = "connection-established" // 下发通道标识
	EvtPing                  EventType = "ping"                   // 客户端心跳
	EvtPong                  EventType = "pong"                   // 心跳响应

	// 转录任务事件
	EvtTranscriptionStatus   EventType = "transcription-status"   // 状态变更
	EvtTranscriptionProgress EventType = "transcription-progress" // 进度更新
	EvtTranscriptionLog      EventType = "transcription-log"      // 引擎日志转发
	EvtTranscriptionComplete EventType = "transcription-complete" // 终止事件

	// 出题事件
	EvtMCQStatus EventType = "mcq-status" // 出题状态变更
)

// Event WebSocket 事件信封
type Event struct {
	Type      EventType       `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// ConnectionEstablishedData 连接建立事件数据
type ConnectionEstablishedData struct {
	ChannelID string `json:"channelId"`
}

// StatusData 转录状态事件数据
type StatusData struct {
	Status   string `json:"status"`
	FileName string `json:"fileName"`
}

// ProgressData 转录进度事件数据
type ProgressData struct {
	Progress int    `json:"progress"`
	FileName string `json:"fileName"`
}

// LogData 引擎日志事件数据
type LogData struct {
	Log      string `json:"log"`
	FileName string `json:"fileName"`
	IsError  bool   `json:"isError,omitempty"`
}

// CompleteData 转录终止事件数据。引擎成功但描述文件缺失时，
// status 仍为 completed，错误通过 error 字段携带。
type CompleteData struct {
	Status   string          `json:"status"`
	FileName string          `json:"fileName"`
	Metadata *model.Metadata `json:"metadata,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// MCQStatusData 出题状态事件数据
type MCQStatusData struct {
	FileID    string `json:"fileId"`
	SegmentID string `json:"segment"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
}

// NewEvent 构造带时间戳的事件信封
func NewEvent(eventType EventType, data interface{}) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Event{
		Type:      eventType,
		Data:      raw,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}
