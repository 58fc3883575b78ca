package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"EchoQuiz/logger"
	"EchoQuiz/model"
	"EchoQuiz/storage"
)

// maxUploadSize 上传大小上限
const maxUploadSize = 500 << 20 // 500 MiB

// allowedMediaTypes 允许上传的媒体类型
var allowedMediaTypes = map[string]bool{
	"audio/wav":   true,
	"audio/x-wav": true,
	"audio/mpeg":  true,
	"audio/mp3":   true,
	"audio/mp4":   true,
	"audio/m4a":   true,
	"video/mp4":   true,
}

var whitespacePattern = regexp.MustCompile(`\s+`)

// UploadHandler 接收媒体文件与通道标识，落盘后立即返回生成的文件名。
// 转录任务异步启动，后续状态全部走实时通道；校验失败在任何写入前拒绝。
func (h *APIHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	logger.Info("开始处理上传请求",
		logger.String("remoteAddr", r.RemoteAddr),
		logger.Int64("contentLength", r.ContentLength))

	if r.ContentLength > maxUploadSize {
		logger.Warn("请求体过大，拒绝处理",
			logger.Int64("contentLength", r.ContentLength))
		respondError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("File too large. Maximum size is %d MB", maxUploadSize>>20))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		logger.Error("解析表单失败", logger.ErrorField(err))
		respondError(w, http.StatusBadRequest, "Failed to parse upload form")
		return
	}

	file, header, err := r.FormFile("videoFile")
	if err != nil {
		if err == http.ErrMissingFile {
			respondError(w, http.StatusBadRequest, "No file uploaded")
		} else {
			respondError(w, http.StatusBadRequest, "Failed to process uploaded file")
		}
		return
	}
	defer file.Close()

	// 类型与大小都在任何存储写入之前校验
	contentType := header.Header.Get("Content-Type")
	if !allowedMediaTypes[contentType] {
		logger.Warn("不支持的文件类型",
			logger.String("contentType", contentType),
			logger.String("filename", header.Filename))
		respondError(w, http.StatusBadRequest,
			"Invalid file type. Supported formats: MP3, WAV, M4A, MP4.")
		return
	}
	if header.Size > maxUploadSize {
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("File too large. Maximum size is %d MB", maxUploadSize>>20))
		return
	}

	channelID := r.FormValue("channelId")

	// 服务端生成存储名：时间戳前缀加净化后的原始名
	sanitized := whitespacePattern.ReplaceAllString(header.Filename, "-")
	storedName := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), sanitized)

	if err := os.MkdirAll(h.cfg.UploadDir, 0755); err != nil {
		logger.Error("创建上传目录失败", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Server error during file processing")
		return
	}

	destPath := filepath.Join(h.cfg.UploadDir, storedName)
	dest, err := os.Create(destPath)
	if err != nil {
		logger.Error("创建目标文件失败", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Server error during file processing")
		return
	}

	written, err := io.Copy(dest, file)
	dest.Close()
	if err != nil {
		os.Remove(destPath)
		logger.Error("写入上传文件失败", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Server error during file processing")
		return
	}

	logger.Info("上传落盘完成",
		logger.String("storedName", storedName),
		logger.Int64("bytes", written))

	// 响应立即返回，转录在后台进行
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"message":  "File uploaded successfully, transcription started",
		"fileName": storedName,
	})

	h.runner.Start(&model.UploadJob{
		FileName:     storedName,
		OriginalName: header.Filename,
		SourcePath:   destPath,
		ChannelID:    channelID,
	})

	// 原始媒体归档到 MinIO，尽力而为，失败只记日志
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := storage.ArchiveFile(ctx, h.cfg, destPath, "uploads", contentType); err != nil {
			logger.Warn("上传归档失败",
				logger.String("storedName", storedName),
				logger.ErrorField(err))
		}
	}()
}
