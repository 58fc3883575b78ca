package server

import (
	"context"
	"net/http"
	"time"

	"EchoQuiz/core/transcribe"
	"EchoQuiz/db"
	"EchoQuiz/logger"
	"EchoQuiz/model"

	"github.com/gorilla/mux"
)

// ListTranscriptionsHandler 返回全部转录记录
func (h *APIHandler) ListTranscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	transcripts, err := h.store.ListAll(r.Context())
	if err != nil {
		logger.Error("查询转录列表失败", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to fetch transcripts")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"transcripts": transcripts,
	})
}

// GetTranscriptionHandler 按 fileId 返回单条转录记录
func (h *APIHandler) GetTranscriptionHandler(w http.ResponseWriter, r *http.Request) {
	fileID := mux.Vars(r)["fileId"]

	record, err := h.store.GetByFileID(r.Context(), fileID)
	if err != nil {
		logger.Error("查询转录记录失败", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to fetch transcript")
		return
	}
	if record == nil {
		respondError(w, http.StatusNotFound, "Transcript not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"transcript": record,
	})
}

// GetMetadataHandler 返回转录描述信息，库里没有时回退读磁盘描述文件
func (h *APIHandler) GetMetadataHandler(w http.ResponseWriter, r *http.Request) {
	fileID := mux.Vars(r)["fileId"]

	record, err := h.store.GetByFileID(r.Context(), fileID)
	if err != nil {
		logger.Error("查询转录记录失败", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to fetch transcript metadata")
		return
	}
	if record != nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success":  true,
			"metadata": record.Metadata,
		})
		return
	}

	meta, err := transcribe.ParseDescriptor(transcribe.MetadataPath(h.cfg.TranscriptDir, fileID))
	if err != nil {
		respondError(w, http.StatusNotFound, "Transcript not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"metadata": meta,
	})
}

// GetFullTranscriptHandler 返回完整转录文本
func (h *APIHandler) GetFullTranscriptHandler(w http.ResponseWriter, r *http.Request) {
	fileID := mux.Vars(r)["fileId"]

	text, err := h.store.FullTranscript(r.Context(), fileID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Full transcript not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"transcript": text,
	})
}

// DeleteTranscriptHandler 删除转录记录及全部关联产物。
// 删除跨库与文件系统不具原子性，部分失败如实上报而不回滚。
func (h *APIHandler) DeleteTranscriptHandler(w http.ResponseWriter, r *http.Request) {
	fileID := mux.Vars(r)["fileId"]

	result := h.store.Delete(r.Context(), fileID)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"result":  result,
	})
}

// ScanHandler 显式触发一次目录修复：扫描磁盘描述文件回填数据库。幂等。
func (h *APIHandler) ScanHandler(w http.ResponseWriter, r *http.Request) {
	restored, err := h.store.Scan(r.Context())
	if err != nil {
		logger.Error("目录修复扫描失败", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Scan failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"restored": restored,
	})
}

// StatsHandler 返回转录与题目数量统计
func (h *APIHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	transcriptCount, err := h.transcriptRepo.Count(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch stats")
		return
	}
	mcqCount, err := h.mcqRepo.Count(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch stats")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"transcripts": transcriptCount,
		"mcqs":        mcqCount,
	})
}

// StatusHandler /status/{fileId} 对账轮询接口。优先答内存中的进行中任务，
// 其次是Redis里的任务镜像（服务重启后仍在），最后查持久的转录记录。
func (h *APIHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	fileID := mux.Vars(r)["fileId"]

	if snap := h.runner.Snapshot(fileID); snap != nil {
		respondJSON(w, http.StatusOK, snap)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if snap, err := db.GetJobSnapshot(ctx, fileID); err == nil && snap != nil {
		respondJSON(w, http.StatusOK, snap)
		return
	}

	record, err := h.store.GetByFileID(r.Context(), fileID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch status")
		return
	}
	if record != nil && record.Processed {
		respondJSON(w, http.StatusOK, &model.JobSnapshot{
			Completed: true,
			Status:    model.JobCompleted,
			Progress:  100,
			Metadata:  &record.Metadata,
		})
		return
	}

	respondError(w, http.StatusNotFound, "Unknown file")
}
