package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"EchoQuiz/core/channel"
	"EchoQuiz/core/transcribe"
	"EchoQuiz/logger"
	"EchoQuiz/model"
)

const (
	statusPollInterval = 10 * time.Second
	uploadWatchTimeout = 5 * time.Minute
)

// Reconciler 把服务端事件对回本地上传条目。事件携带的是服务端存储名，
// 本地条目以原始文件名为键，两者之间没有稳定的关联字段，只能按一组
// 有序的匹配策略推断归属。
type Reconciler struct {
	store  *Store
	client *http.Client
}

// NewReconciler 创建对账器
func NewReconciler(store *Store) *Reconciler {
	return &Reconciler{
		store:  store,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Match 按顺序尝试匹配策略，返回命中的条目原始名。命中的策略会被记录，
// 全部落空返回空串。
//
// 策略顺序：
//  1. 服务端存储名精确匹配
//  2. 去掉路径与扩展名后的基名精确匹配
//  3. 与去扩展名的原始名双向包含
//  4. 终了事件（完成或100%）且本地只剩一个进行中条目
func (r *Reconciler) Match(serverFileName string, terminal bool) string {
	entries := r.store.All()

	for _, entry := range entries {
		if entry.ServerFileName != "" && entry.ServerFileName == serverFileName {
			r.logMatch("exact-server-name", serverFileName, entry.OriginalName)
			return entry.OriginalName
		}
	}

	eventBase := stripExt(filepath.Base(serverFileName))
	for _, entry := range entries {
		if stripExt(filepath.Base(entry.OriginalName)) == eventBase {
			r.logMatch("base-name", serverFileName, entry.OriginalName)
			return entry.OriginalName
		}
	}

	for _, entry := range entries {
		nameNoExt := stripExt(entry.OriginalName)
		if nameNoExt == "" {
			continue
		}
		if strings.Contains(serverFileName, nameNoExt) || strings.Contains(nameNoExt, serverFileName) {
			r.logMatch("containment", serverFileName, entry.OriginalName)
			return entry.OriginalName
		}
	}

	if terminal {
		processing := r.store.Processing()
		if len(processing) == 1 {
			r.logMatch("sole-processing", serverFileName, processing[0].OriginalName)
			return processing[0].OriginalName
		}
	}

	logger.Warn("服务端事件无法对回本地条目", logger.String("fileName", serverFileName))
	return ""
}

func (r *Reconciler) logMatch(strategy, serverFileName, originalName string) {
	logger.Info("事件对账命中",
		logger.String("strategy", strategy),
		logger.String("fileName", serverFileName),
		logger.String("entry", originalName))
}

// HandleEvent 消费通道事件并更新本地条目，用作 Channel.OnEvent
func (r *Reconciler) HandleEvent(evt channel.Event) {
	switch evt.Type {
	case channel.EvtTranscriptionStatus:
		var data channel.StatusData
		if json.Unmarshal(evt.Data, &data) != nil {
			return
		}
		if name := r.Match(data.FileName, false); name != "" {
			r.store.UpdateFile(name, FileUpdate{
				ServerFileName: &data.FileName,
				FileID:         strPtr(transcribe.FileIDFromStoredName(data.FileName)),
				Status:         &data.Status,
			})
		}

	case channel.EvtTranscriptionProgress:
		var data channel.ProgressData
		if json.Unmarshal(evt.Data, &data) != nil {
			return
		}
		if name := r.Match(data.FileName, data.Progress >= 100); name != "" {
			r.store.UpdateFile(name, FileUpdate{
				ServerFileName: &data.FileName,
				Progress:       &data.Progress,
			})
		}

	case channel.EvtTranscriptionComplete:
		var data channel.CompleteData
		if json.Unmarshal(evt.Data, &data) != nil {
			return
		}
		if name := r.Match(data.FileName, true); name != "" {
			update := FileUpdate{
				ServerFileName: &data.FileName,
				Status:         &data.Status,
				Metadata:       data.Metadata,
			}
			if data.Status == string(model.JobCompleted) {
				update.Progress = intPtr(100)
			}
			if data.Error != "" {
				update.Error = &data.Error
			}
			r.store.UpdateFile(name, update)
		}
	}
}

// PollStatuses 对每个进行中的条目拉一次 /status，用于启动恢复和断线重连
// 之后补齐错过的终了事件
func (r *Reconciler) PollStatuses(ctx context.Context, baseURL string) {
	for _, entry := range r.store.Processing() {
		if entry.FileID == "" {
			continue
		}
		snap, err := r.fetchStatus(ctx, baseURL, entry.FileID)
		if err != nil {
			logger.Warn("任务状态轮询失败",
				logger.String("fileId", entry.FileID),
				logger.ErrorField(err))
			continue
		}
		if snap == nil {
			continue
		}
		r.applySnapshot(entry.OriginalName, snap)
	}
}

// WatchUpload 单个上传的兜底轮询。事件流丢失时仍能在轮询里收敛到终态，
// 五分钟后自行放弃。
func (r *Reconciler) WatchUpload(ctx context.Context, baseURL, originalName string) {
	ctx, cancel := context.WithTimeout(ctx, uploadWatchTimeout)
	defer cancel()

	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			entry, ok := r.store.Get(originalName)
			if !ok || model.JobStatus(entry.Status).Terminal() {
				return
			}
			if entry.FileID == "" {
				continue
			}
			snap, err := r.fetchStatus(ctx, baseURL, entry.FileID)
			if err != nil || snap == nil {
				continue
			}
			r.applySnapshot(originalName, snap)
			if snap.Status.Terminal() {
				return
			}
		}
	}
}

func (r *Reconciler) applySnapshot(originalName string, snap *model.JobSnapshot) {
	status := string(snap.Status)
	update := FileUpdate{
		Status:   &status,
		Progress: &snap.Progress,
		Metadata: snap.Metadata,
	}
	if snap.Error != "" {
		update.Error = &snap.Error
	}
	r.store.UpdateFile(originalName, update)
}

func (r *Reconciler) fetchStatus(ctx context.Context, baseURL, fileID string) (*model.JobSnapshot, error) {
	url := fmt.Sprintf("%s/status/%s", baseURL, fileID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status poll: server returned %d", resp.StatusCode)
	}
	var snap model.JobSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func stripExt(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }
