package model

import "time"

// JobStatus 转录任务状态
type JobStatus string

const (
	JobStarted    JobStatus = "started"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal 是否为终止状态
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// UploadJob 一次进行中的转录任务，由任务执行器独占持有。
// 终止事件发出后即从内存中移除，持久结果在 Transcript 中。
type UploadJob struct {
	FileName     string    `json:"fileName"` // 服务端生成的存储名
	OriginalName string    `json:"originalName"`
	SourcePath   string    `json:"sourcePath"`
	ChannelID    string    `json:"channelId"`
	Progress     int       `json:"progress"` // 0-100，单调不减
	Status       JobStatus `json:"status"`
	Error        string    `json:"error,omitempty"`
	StartedAt    time.Time `json:"startedAt"`
}

// JobSnapshot /status 轮询接口返回的任务快照
type JobSnapshot struct {
	Completed bool      `json:"completed"`
	Status    JobStatus `json:"status"`
	Progress  int       `json:"progress"`
	Metadata  *Metadata `json:"metadata,omitempty"`
	Error     string    `json:"error,omitempty"`
}
