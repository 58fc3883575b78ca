package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"EchoQuiz/core/mcq"
	"EchoQuiz/logger"
	"EchoQuiz/model"

	"github.com/gorilla/mux"
)

// GetSegmentContentHandler 返回一个分段的文本内容
func (h *APIHandler) GetSegmentContentHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	fileID := vars["fileId"]
	segmentID := vars["segmentId"]

	content, err := h.orchestrator.ResolveSegmentText(r.Context(), fileID, segmentID)
	if err != nil {
		if errors.Is(err, mcq.ErrSegmentNotFound) || errors.Is(err, mcq.ErrSegmentEmpty) {
			respondError(w, http.StatusNotFound, "Segment content not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to fetch segment content")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"content": content,
	})
}

// GetMCQsHandler 返回 (fileId, segmentId) 下已有的题目
func (h *APIHandler) GetMCQsHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	mcqs, err := h.mcqRepo.GetBySegment(r.Context(), vars["fileId"], vars["segmentId"])
	if err != nil {
		logger.Error("查询题目失败", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to fetch MCQs")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"mcqs":    mcqs,
	})
}

// generateRequest 出题请求体
type generateRequest struct {
	FileID    string `json:"fileId"`
	Segment   string `json:"segment"`
	ChannelID string `json:"channelId"`
}

// GenerateMCQsHandler 触发出题。已有题目直接返回，否则调用出题服务。
func (h *APIHandler) GenerateMCQsHandler(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.FileID == "" || req.Segment == "" {
		respondError(w, http.StatusBadRequest, "fileId and segment are required")
		return
	}

	mcqs, err := h.orchestrator.GetOrGenerate(r.Context(), req.ChannelID, req.FileID, req.Segment)
	if err != nil {
		switch {
		case errors.Is(err, mcq.ErrServiceUnavailable):
			respondError(w, http.StatusServiceUnavailable, "LLM service is not available")
		case errors.Is(err, mcq.ErrSegmentNotFound), errors.Is(err, mcq.ErrSegmentEmpty):
			respondError(w, http.StatusNotFound, "Segment content not found")
		case errors.Is(err, mcq.ErrNoValidQuestions):
			respondError(w, http.StatusInternalServerError, "No valid questions were generated")
		default:
			logger.Error("出题失败", logger.ErrorField(err))
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"mcqs":    mcqs,
	})
}

// UpdateMCQHandler 更新一道题
func (h *APIHandler) UpdateMCQHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["mcqId"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid MCQ id")
		return
	}

	existing, err := h.mcqRepo.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch MCQ")
		return
	}
	if existing == nil {
		respondError(w, http.StatusNotFound, "MCQ not found")
		return
	}

	var update model.MCQ
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	existing.Question = update.Question
	existing.Options = update.Options
	existing.Correct = update.Correct
	// 人工改过的题不再算自动生成
	existing.IsAutoGenerated = false
	if !existing.Valid() {
		respondError(w, http.StatusBadRequest, "MCQ must have 4 options and a correct index in [0,3]")
		return
	}

	if err := h.mcqRepo.Update(r.Context(), existing); err != nil {
		logger.Error("更新题目失败", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to update MCQ")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"mcq":     existing,
	})
}

// DeleteMCQHandler 删除一道题
func (h *APIHandler) DeleteMCQHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["mcqId"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid MCQ id")
		return
	}

	if err := h.mcqRepo.DeleteByID(r.Context(), id); err != nil {
		logger.Error("删除题目失败", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to delete MCQ")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "MCQ deleted successfully",
	})
}
