package mcq

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"EchoQuiz/cache"
	"EchoQuiz/config"
	"EchoQuiz/core/channel"
	"EchoQuiz/core/llm"
	"EchoQuiz/core/transcribe"
	"EchoQuiz/logger"
	"EchoQuiz/model"
	"EchoQuiz/repository"
)

// questionsPerSegment 每个分段请求生成的题目数
const questionsPerSegment = 5

// Orchestrator 出题编排器：优先返回已生成的题目，未命中时解析分段文本、
// 探测出题服务、调用生成并校验落库，全程通过实时通道汇报状态。
//
// 先查后生成不是原子操作：记录尚不存在时并发两次生成会各自落库一套题。
// 生成由用户手动触发且低频，这里按已知限制处理，不加锁。
type Orchestrator struct {
	cfg            *config.Config
	mcqRepo        repository.MCQRepository
	transcriptRepo repository.TranscriptRepository
	client         *llm.Client
	hub            channel.Emitter
}

// NewOrchestrator 创建出题编排器
func NewOrchestrator(
	cfg *config.Config,
	mcqRepo repository.MCQRepository,
	transcriptRepo repository.TranscriptRepository,
	client *llm.Client,
	hub channel.Emitter,
) *Orchestrator {
	return &Orchestrator{
		cfg:            cfg,
		mcqRepo:        mcqRepo,
		transcriptRepo: transcriptRepo,
		client:         client,
		hub:            hub,
	}
}

// emitStatus 推送出题状态事件
func (o *Orchestrator) emitStatus(channelID, fileID, segmentID, status, message string) {
	o.hub.Emit(channelID, channel.EvtMCQStatus, channel.MCQStatusData{
		FileID:    fileID,
		SegmentID: segmentID,
		Status:    status,
		Message:   message,
	})
}

// GetOrGenerate 返回 (fileId, segmentId) 的题目集合。
// 已有记录直接返回（缓存命中，不再调用出题服务）；否则生成后返回。
func (o *Orchestrator) GetOrGenerate(ctx context.Context, channelID, fileID, segmentID string) ([]*model.MCQ, error) {
	// 命中已有题目是重复请求的默认路径，省掉一次昂贵的LLM调用
	existing, err := o.mcqRepo.GetBySegment(ctx, fileID, segmentID)
	if err != nil {
		return nil, fmt.Errorf("查询已有题目失败: %w", err)
	}
	if len(existing) > 0 {
		logger.Debug("题目缓存命中",
			logger.String("fileId", fileID),
			logger.String("segmentId", segmentID),
			logger.Int("count", len(existing)))
		return existing, nil
	}

	o.emitStatus(channelID, fileID, segmentID, "started", "Starting MCQ generation")

	// 没有文本就不碰LLM
	text, err := o.ResolveSegmentText(ctx, fileID, segmentID)
	if err != nil {
		o.emitStatus(channelID, fileID, segmentID, "error", "Segment content not found")
		return nil, err
	}

	// 服务挂掉时快速失败，不让每个请求都去等慢超时
	if err := o.client.Healthy(ctx); err != nil {
		logger.Warn("出题服务不可用",
			logger.String("fileId", fileID),
			logger.ErrorField(err))
		o.emitStatus(channelID, fileID, segmentID, "error", "LLM service not available")
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}

	o.emitStatus(channelID, fileID, segmentID, "processing", "Generating questions with LLM...")

	resp, err := o.client.Generate(ctx, &llm.GenerateRequest{
		Text:         text,
		NumQuestions: questionsPerSegment,
		SegmentID:    segmentID,
		FileID:       fileID,
	})
	if err != nil {
		o.emitStatus(channelID, fileID, segmentID, "error", fmt.Sprintf("LLM error: %v", err))
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	if !resp.Success {
		o.emitStatus(channelID, fileID, segmentID, "error", resp.Message)
		return nil, fmt.Errorf("%w: %s", ErrGeneration, resp.Message)
	}

	o.emitStatus(channelID, fileID, segmentID, "saving", fmt.Sprintf("Saving %d questions...", len(resp.MCQs)))

	// 逐条校验，坏题单独丢弃，不连累同批合法题目
	saved := make([]*model.MCQ, 0, len(resp.MCQs))
	for _, generated := range resp.MCQs {
		record := &model.MCQ{
			FileID:          fileID,
			SegmentID:       segmentID,
			Question:        generated.Question,
			Options:         model.OptionList(generated.Options),
			Correct:         generated.Correct,
			IsAutoGenerated: true,
			Model:           resp.Model,
			GPUUsed:         resp.GPUUsed,
			GeneratedAt:     time.Now(),
		}
		if !record.Valid() {
			logger.Warn("丢弃不合法的生成题目",
				logger.String("fileId", fileID),
				logger.String("segmentId", segmentID),
				logger.Int("options", len(record.Options)),
				logger.Int("correct", record.Correct))
			continue
		}
		if err := o.mcqRepo.Create(ctx, record); err != nil {
			logger.Error("保存题目失败",
				logger.String("fileId", fileID),
				logger.ErrorField(err))
			continue
		}
		saved = append(saved, record)
	}

	if len(saved) == 0 {
		o.emitStatus(channelID, fileID, segmentID, "error", "No valid questions were generated")
		return nil, ErrNoValidQuestions
	}

	o.emitStatus(channelID, fileID, segmentID, "completed", fmt.Sprintf("Generated %d questions", len(saved)))
	logger.Info("出题完成",
		logger.String("fileId", fileID),
		logger.String("segmentId", segmentID),
		logger.Int("count", len(saved)))

	return saved, nil
}

// ResolveSegmentText 解析分段文本，依次尝试：
//  1. Redis缓存
//  2. 数据库中转录记录的分段文本
//  3. 磁盘上的精确分段文件 <fileId>_<segmentId>.txt
//  4. 模糊目录查找（先按 fileId 的日期部分匹配，再退化为任意 _<segmentId>.txt）
func (o *Orchestrator) ResolveSegmentText(ctx context.Context, fileID, segmentID string) (string, error) {
	if cached, _ := cache.GetSegmentText(fileID, segmentID); cached != "" {
		return cached, nil
	}

	text := o.lookupSegmentText(ctx, fileID, segmentID)
	if strings.TrimSpace(text) == "" {
		if text != "" {
			return "", fmt.Errorf("%w: %s/%s", ErrSegmentEmpty, fileID, segmentID)
		}
		return "", fmt.Errorf("%w: %s/%s", ErrSegmentNotFound, fileID, segmentID)
	}

	if err := cache.SetSegmentText(fileID, segmentID, text); err == nil {
		logger.Debug("分段文本已缓存",
			logger.String("fileId", fileID),
			logger.String("segmentId", segmentID))
	}
	return text, nil
}

func (o *Orchestrator) lookupSegmentText(ctx context.Context, fileID, segmentID string) string {
	// 数据库里的分段文本
	transcript, err := o.transcriptRepo.GetByFileID(ctx, fileID)
	if err != nil {
		logger.Warn("查询转录记录失败", logger.ErrorField(err))
	}
	if transcript != nil {
		for _, segment := range transcript.Segments {
			if segment.SegmentID == segmentID && segment.Text != "" {
				return segment.Text
			}
		}
	}

	// 磁盘精确路径
	exactPath := transcribe.SegmentPath(o.cfg.TranscriptDir, fileID, segmentID)
	if data, err := os.ReadFile(exactPath); err == nil {
		return string(data)
	}

	// 模糊查找：服务端改名导致客户端拿到的 fileId 可能对不上磁盘文件名
	entries, err := os.ReadDir(o.cfg.TranscriptDir)
	if err != nil {
		return ""
	}

	suffix := "_" + segmentID + ".txt"
	datePart := ""
	if idx := strings.Index(fileID, "-"); idx >= 0 {
		datePart = fileID[idx+1:]
	}

	var fallback string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, suffix) {
			continue
		}
		if datePart != "" && strings.Contains(name, datePart) {
			if data, err := os.ReadFile(filepath.Join(o.cfg.TranscriptDir, name)); err == nil {
				logger.Info("用日期部分匹配到分段文件",
					logger.String("fileId", fileID),
					logger.String("matched", name))
				return string(data)
			}
		}
		if fallback == "" {
			fallback = name
		}
	}

	if fallback != "" {
		if data, err := os.ReadFile(filepath.Join(o.cfg.TranscriptDir, fallback)); err == nil {
			logger.Info("按分段后缀匹配到分段文件",
				logger.String("fileId", fileID),
				logger.String("matched", fallback))
			return string(data)
		}
	}
	return ""
}
