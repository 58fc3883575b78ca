package server

import (
	"encoding/json"
	"net/http"

	"EchoQuiz/config"
	"EchoQuiz/core/channel"
	"EchoQuiz/core/mcq"
	"EchoQuiz/core/transcribe"
	"EchoQuiz/core/transcript"
	"EchoQuiz/logger"
	"EchoQuiz/repository"
)

// APIHandler 处理所有API请求
type APIHandler struct {
	cfg            *config.Config
	hub            *channel.Hub
	runner         *transcribe.Runner
	store          *transcript.Store
	orchestrator   *mcq.Orchestrator
	transcriptRepo repository.TranscriptRepository
	mcqRepo        repository.MCQRepository
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(
	cfg *config.Config,
	hub *channel.Hub,
	runner *transcribe.Runner,
	store *transcript.Store,
	orchestrator *mcq.Orchestrator,
	transcriptRepo repository.TranscriptRepository,
	mcqRepo repository.MCQRepository,
) *APIHandler {
	return &APIHandler{
		cfg:            cfg,
		hub:            hub,
		runner:         runner,
		store:          store,
		orchestrator:   orchestrator,
		transcriptRepo: transcriptRepo,
		mcqRepo:        mcqRepo,
	}
}

// respondJSON 输出JSON响应
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("编码响应失败", logger.ErrorField(err))
	}
}

// respondError 输出统一格式的错误响应
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
