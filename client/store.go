package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"EchoQuiz/logger"
	"EchoQuiz/model"
)

// FileEntry 客户端侧的单个上传条目，以原始文件名为键。
// Content 保存待上传的字节，持久化时剥离，恢复后为空占位。
type FileEntry struct {
	OriginalName   string          `json:"originalName"`
	ServerFileName string          `json:"serverFileName,omitempty"`
	FileID         string          `json:"fileId,omitempty"`
	Status         string          `json:"status"`
	Progress       int             `json:"progress"`
	Error          string          `json:"error,omitempty"`
	Metadata       *model.Metadata `json:"metadata,omitempty"`
	UpdatedAt      time.Time       `json:"updatedAt"`

	Content []byte `json:"-"`
}

// FileUpdate 部分更新。nil 字段保持原值，Progress 只增不减。
type FileUpdate struct {
	ServerFileName *string
	FileID         *string
	Status         *string
	Progress       *int
	Error          *string
	Metadata       *model.Metadata
}

// Store 客户端上传状态仓库。每次变更后整集合落盘，构造时从状态文件
// 恢复，恢复出来的条目不含文件内容。
type Store struct {
	mu        sync.Mutex
	entries   map[string]*FileEntry
	statePath string
	baseURL   string
	client    *http.Client
}

// NewStore 创建并从状态文件恢复。statePath 为空时不做持久化。
func NewStore(statePath, baseURL string) *Store {
	s := &Store{
		entries:   make(map[string]*FileEntry),
		statePath: statePath,
		baseURL:   baseURL,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
	s.rehydrate()
	return s
}

// AddFile 登记一个新上传。已存在的同名条目被替换。
func (s *Store) AddFile(entry *FileEntry) {
	s.mu.Lock()
	entry.UpdatedAt = time.Now()
	if entry.Status == "" {
		entry.Status = string(model.JobStarted)
	}
	s.entries[entry.OriginalName] = entry
	s.mu.Unlock()
	s.persist()
}

// UpdateFile 按原始文件名局部更新。进度取当前值与新值的较大者，
// 乱序到达的旧进度不会让条目倒退。
func (s *Store) UpdateFile(name string, update FileUpdate) bool {
	s.mu.Lock()
	entry, ok := s.entries[name]
	if !ok {
		s.mu.Unlock()
		return false
	}
	if update.ServerFileName != nil {
		entry.ServerFileName = *update.ServerFileName
	}
	if update.FileID != nil {
		entry.FileID = *update.FileID
	}
	if update.Status != nil {
		entry.Status = *update.Status
	}
	if update.Progress != nil && *update.Progress > entry.Progress {
		entry.Progress = *update.Progress
	}
	if update.Error != nil {
		entry.Error = *update.Error
	}
	if update.Metadata != nil {
		entry.Metadata = update.Metadata
	}
	entry.UpdatedAt = time.Now()
	s.mu.Unlock()
	s.persist()
	return true
}

// RemoveFile 只删本地条目，不触碰服务端
func (s *Store) RemoveFile(name string) {
	s.mu.Lock()
	delete(s.entries, name)
	s.mu.Unlock()
	s.persist()
}

// DeleteFile 先删服务端转录，成功后再删本地条目
func (s *Store) DeleteFile(ctx context.Context, name string) error {
	s.mu.Lock()
	entry, ok := s.entries[name]
	var fileID string
	if ok {
		fileID = entry.FileID
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown file: %s", name)
	}
	if fileID == "" {
		s.RemoveFile(name)
		return nil
	}

	url := fmt.Sprintf("%s/api/transcription/transcript/%s", s.baseURL, fileID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("delete transcript: server returned %d", resp.StatusCode)
	}

	s.RemoveFile(name)
	return nil
}

// Get 返回条目的副本
func (s *Store) Get(name string) (FileEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[name]
	if !ok {
		return FileEntry{}, false
	}
	return *entry, true
}

// All 返回全部条目的副本
func (s *Store) All() []FileEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FileEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, *entry)
	}
	return out
}

// Processing 返回尚未终了的条目
func (s *Store) Processing() []FileEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []FileEntry
	for _, entry := range s.entries {
		if !model.JobStatus(entry.Status).Terminal() {
			out = append(out, *entry)
		}
	}
	return out
}

// persist 把整个集合写入状态文件。Content 带 json:"-" 标签，
// 文件内容不会落盘。
func (s *Store) persist() {
	if s.statePath == "" {
		return
	}
	s.mu.Lock()
	data, err := json.MarshalIndent(s.entries, "", "  ")
	s.mu.Unlock()
	if err != nil {
		logger.Warn("上传状态序列化失败", logger.ErrorField(err))
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.statePath), 0755); err != nil {
		logger.Warn("状态目录创建失败", logger.ErrorField(err))
		return
	}
	if err := os.WriteFile(s.statePath, data, 0644); err != nil {
		logger.Warn("上传状态写入失败", logger.ErrorField(err))
	}
}

func (s *Store) rehydrate() {
	if s.statePath == "" {
		return
	}
	data, err := os.ReadFile(s.statePath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("上传状态读取失败", logger.ErrorField(err))
		}
		return
	}
	entries := make(map[string]*FileEntry)
	if err := json.Unmarshal(data, &entries); err != nil {
		logger.Warn("上传状态解析失败，忽略旧状态", logger.ErrorField(err))
		return
	}
	s.entries = entries
	logger.Info("恢复上传状态", logger.Int("entries", len(entries)))
}
