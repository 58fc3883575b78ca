package transcribe

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"EchoQuiz/config"
	"EchoQuiz/core/channel"
	"EchoQuiz/db"
	"EchoQuiz/logger"
	"EchoQuiz/model"
	"EchoQuiz/repository"

	"github.com/fsnotify/fsnotify"
)

// completeSettleDelay 进度到达100后稍作停顿再发终止事件，避免界面跳变
const completeSettleDelay = 500 * time.Millisecond

// Runner 转录任务执行器：为每个上传的文件启动一次外部引擎进程，
// 估算并推送进度，在进程退出后解析产物并落库。
// 不同文件的任务互相独立并发执行，任务失败不自动重试。
type Runner struct {
	cfg  *config.Config
	hub  channel.Emitter
	repo repository.TranscriptRepository

	// mu 同时保护 jobs 表和每个任务的可变字段（Status/Progress/Error）：
	// 任务的goroutine在写，/status 轮询的请求goroutine在读
	mu   sync.RWMutex
	jobs map[string]*model.UploadJob // key: fileId
}

// NewRunner 创建任务执行器
func NewRunner(cfg *config.Config, hub channel.Emitter, repo repository.TranscriptRepository) *Runner {
	return &Runner{
		cfg:  cfg,
		hub:  hub,
		repo: repo,
		jobs: make(map[string]*model.UploadJob),
	}
}

// Start 登记任务并异步执行，立即返回。
func (r *Runner) Start(job *model.UploadJob) {
	fileID := FileIDFromStoredName(job.FileName)

	// 可变字段在任务对外可见之前初始化完毕
	job.Status = model.JobStarted
	job.StartedAt = time.Now()

	r.mu.Lock()
	r.jobs[fileID] = job
	r.mu.Unlock()

	r.hub.Emit(job.ChannelID, channel.EvtTranscriptionStatus, channel.StatusData{
		Status:   string(model.JobStarted),
		FileName: job.FileName,
	})
	r.setProgress(job, fileID, 5)

	go r.run(job, fileID)
}

// Snapshot 返回进行中任务的快照，任务不存在时返回 nil
func (r *Runner) Snapshot(fileID string) *model.JobSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[fileID]
	if !ok {
		return nil
	}
	return &model.JobSnapshot{
		Completed: job.Status.Terminal(),
		Status:    job.Status,
		Progress:  job.Progress,
		Error:     job.Error,
	}
}

// transition 在锁内推进任务状态，返回与该状态一致的镜像快照
func (r *Runner) transition(job *model.UploadJob, status model.JobStatus, errMsg string, meta *model.Metadata) *model.JobSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	job.Status = status
	if errMsg != "" {
		job.Error = errMsg
	}
	return &model.JobSnapshot{
		Completed: status.Terminal(),
		Status:    status,
		Progress:  job.Progress,
		Metadata:  meta,
		Error:     job.Error,
	}
}

// run 执行一次完整的转录任务生命周期
func (r *Runner) run(job *model.UploadJob, fileID string) {
	defer r.drop(fileID)

	r.mirror(fileID, r.transition(job, model.JobProcessing, "", nil))

	cmd := exec.Command(r.cfg.EnginePath, job.SourcePath, r.cfg.TranscriptDir, r.cfg.EngineTier)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		r.fail(job, fileID, fmt.Sprintf("无法获取引擎标准输出: %v", err))
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		r.fail(job, fileID, fmt.Sprintf("无法获取引擎标准错误: %v", err))
		return
	}

	if err := cmd.Start(); err != nil {
		r.fail(job, fileID, fmt.Sprintf("引擎启动失败: %v", err))
		return
	}

	logger.Info("转录引擎已启动",
		logger.String("fileId", fileID),
		logger.String("source", job.SourcePath),
		logger.String("tier", r.cfg.EngineTier))

	// 引擎诊断输出按来源标记后转发到通道
	go r.relayOutput(job, stdout, false)
	go r.relayOutput(job, stderr, true)

	// 进度估算与分段产物监听随进程退出一起停止
	done := make(chan struct{})
	go r.estimateProgress(job, fileID, done)
	go r.watchOutputDir(job, fileID, done)

	err = cmd.Wait()
	close(done)

	if err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		r.fail(job, fileID, fmt.Sprintf("Process exited with code %d", exitCode))
		return
	}

	r.finalize(job, fileID)
}

// estimateProgress 按文件大小估算总耗时并周期性推送进度。
// 引擎没有结构化的进度协议，只能用 已耗时/估算总时长 近似。
// 进度仅在严格增大时发送，并封顶在95，最后的100留给确认完成。
func (r *Runner) estimateProgress(job *model.UploadJob, fileID string, done <-chan struct{}) {
	info, err := os.Stat(job.SourcePath)
	if err != nil {
		logger.Warn("无法读取源文件大小，跳过进度估算",
			logger.String("fileId", fileID),
			logger.ErrorField(err))
		return
	}

	sizeMB := float64(info.Size()) / (1 << 20)
	estTotal := time.Duration(sizeMB*float64(r.cfg.SecondsPerMB)) * time.Second
	if minTotal := time.Duration(r.cfg.MinEstimateSec) * time.Second; estTotal < minTotal {
		estTotal = minTotal
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			elapsed := time.Since(job.StartedAt)
			pct := int(float64(elapsed) / float64(estTotal) * 100)
			if pct > 95 {
				pct = 95
			}
			r.setProgress(job, fileID, pct)
		}
	}
}

// watchOutputDir 监听引擎输出目录，把本任务分段文件的产生转发为日志事件
func (r *Runner) watchOutputDir(job *model.UploadJob, fileID string, done <-chan struct{}) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("创建输出目录监听失败", logger.ErrorField(err))
		return
	}
	defer watcher.Close()

	if err := watcher.Add(r.cfg.TranscriptDir); err != nil {
		logger.Warn("监听输出目录失败",
			logger.String("dir", r.cfg.TranscriptDir),
			logger.ErrorField(err))
		return
	}

	seen := make(map[string]bool)
	for {
		select {
		case event := <-watcher.Events:
			if event.Op&fsnotify.Create != fsnotify.Create {
				continue
			}
			name := filepath.Base(event.Name)
			if !strings.HasPrefix(name, fileID+"_") || !strings.HasSuffix(name, ".txt") {
				continue
			}
			if seen[name] {
				continue
			}
			seen[name] = true
			r.hub.Emit(job.ChannelID, channel.EvtTranscriptionLog, channel.LogData{
				Log:      fmt.Sprintf("segment written: %s", name),
				FileName: job.FileName,
			})
		case err := <-watcher.Errors:
			logger.Warn("输出目录监听错误", logger.ErrorField(err))
		case <-done:
			return
		}
	}
}

// relayOutput 把引擎的诊断输出逐行转发为日志事件
func (r *Runner) relayOutput(job *model.UploadJob, pipe interface{ Read([]byte) (int, error) }, isError bool) {
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		r.hub.Emit(job.ChannelID, channel.EvtTranscriptionLog, channel.LogData{
			Log:      line,
			FileName: job.FileName,
			IsError:  isError,
		})
	}
}

// finalize 引擎正常退出后解析描述文件、落库并发出终止事件
func (r *Runner) finalize(job *model.UploadJob, fileID string) {
	metadataPath := MetadataPath(r.cfg.TranscriptDir, fileID)

	if _, err := os.Stat(metadataPath); err != nil {
		// 引擎成功但找不到约定的描述文件：算完成但带错误标记，不能静默当成功
		logger.Error("引擎退出正常但描述文件缺失",
			logger.String("fileId", fileID),
			logger.String("path", metadataPath))
		r.mirror(fileID, r.transition(job, model.JobCompleted, "Metadata file not found", nil))
		r.emitComplete(job, channel.CompleteData{
			Status:   string(model.JobCompleted),
			FileName: job.FileName,
			Error:    "Metadata file not found",
		})
		return
	}

	meta, err := ParseDescriptor(metadataPath)
	if err != nil {
		r.fail(job, fileID, fmt.Sprintf("描述文件解析失败: %v", err))
		return
	}

	transcript := &model.Transcript{
		FileID:           fileID,
		FileName:         job.FileName,
		OriginalFileName: job.OriginalName,
		FullTranscript:   ReadFullTranscript(meta),
		Metadata:         *meta,
		Segments:         BuildSegments(meta),
		Processed:        true,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := r.repo.Upsert(ctx, transcript); err != nil {
		r.fail(job, fileID, fmt.Sprintf("转录结果入库失败: %v", err))
		return
	}

	logger.Info("转录完成",
		logger.String("fileId", fileID),
		logger.Int("segments", len(transcript.Segments)))

	// 只有解析入库都成功后才推100，完成事件稍后发以便界面收尾
	r.setProgress(job, fileID, 100)
	r.mirror(fileID, r.transition(job, model.JobCompleted, "", meta))

	time.Sleep(completeSettleDelay)
	r.emitComplete(job, channel.CompleteData{
		Status:   string(model.JobCompleted),
		FileName: job.FileName,
		Metadata: meta,
	})
}

// fail 任务终止于失败：发出失败终止事件，不自动重试
func (r *Runner) fail(job *model.UploadJob, fileID, message string) {
	logger.Error("转录任务失败",
		logger.String("fileId", fileID),
		logger.String("reason", message))

	r.mirror(fileID, r.transition(job, model.JobFailed, message, nil))

	r.emitComplete(job, channel.CompleteData{
		Status:   string(model.JobFailed),
		FileName: job.FileName,
		Error:    message,
	})
}

func (r *Runner) emitComplete(job *model.UploadJob, data channel.CompleteData) {
	r.hub.Emit(job.ChannelID, channel.EvtTranscriptionComplete, data)
}

// setProgress 单调推进任务进度并推送事件。
// 比较、写入、推送在同一临界区内完成，保证发出的进度序列严格递增，
// 估算goroutine和完成路径的100互不穿插。
func (r *Runner) setProgress(job *model.UploadJob, fileID string, pct int) {
	r.mu.Lock()
	if pct <= job.Progress {
		r.mu.Unlock()
		return
	}
	job.Progress = pct
	r.hub.Emit(job.ChannelID, channel.EvtTranscriptionProgress, channel.ProgressData{
		Progress: pct,
		FileName: job.FileName,
	})
	snap := &model.JobSnapshot{
		Completed: job.Status.Terminal(),
		Status:    job.Status,
		Progress:  job.Progress,
		Error:     job.Error,
	}
	r.mu.Unlock()

	r.mirror(fileID, snap)
}

// mirror 把任务快照镜像到Redis，/status 轮询在服务重启后靠它回答
func (r *Runner) mirror(fileID string, snap *model.JobSnapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.SetJobSnapshot(ctx, fileID, snap); err != nil {
		logger.Warn("任务状态镜像写入失败",
			logger.String("fileId", fileID),
			logger.ErrorField(err))
	}
}

// drop 终止事件已发出，任务从内存移除，持久结果在 Transcript 中
func (r *Runner) drop(fileID string) {
	r.mu.Lock()
	delete(r.jobs, fileID)
	r.mu.Unlock()
}
