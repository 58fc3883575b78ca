package transcript

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"EchoQuiz/cache"
	"EchoQuiz/config"
	"EchoQuiz/core/transcribe"
	"EchoQuiz/db"
	"EchoQuiz/logger"
	"EchoQuiz/model"
	"EchoQuiz/repository"
	"EchoQuiz/storage"
)

// Store 转录目录的服务层：读路径保持纯查询，目录修复（从磁盘描述文件
// 回填数据库）作为显式操作暴露，删除则负责数据库、磁盘、归档与缓存的
// 组合清理。
type Store struct {
	cfg            *config.Config
	transcriptRepo repository.TranscriptRepository
	mcqRepo        repository.MCQRepository
}

// NewStore 创建转录目录服务
func NewStore(cfg *config.Config, transcriptRepo repository.TranscriptRepository, mcqRepo repository.MCQRepository) *Store {
	return &Store{
		cfg:            cfg,
		transcriptRepo: transcriptRepo,
		mcqRepo:        mcqRepo,
	}
}

// GetByFileID 按 fileId 查询
func (s *Store) GetByFileID(ctx context.Context, fileID string) (*model.Transcript, error) {
	return s.transcriptRepo.GetByFileID(ctx, fileID)
}

// ListAll 返回全部转录记录。纯查询，不做任何隐式修复；
// 磁盘回填统一走显式的 Scan。
func (s *Store) ListAll(ctx context.Context) ([]*model.Transcript, error) {
	return s.transcriptRepo.ListAll(ctx)
}

// Scan 扫描磁盘上的描述文件，把数据库缺失的记录补回去。幂等：
// 已有记录的 fileId 直接跳过，重复执行不产生变化。
func (s *Store) Scan(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.cfg.TranscriptDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	restored := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, "_metadata.json") {
			continue
		}
		fileID := strings.TrimSuffix(name, "_metadata.json")

		existing, err := s.transcriptRepo.GetByFileID(ctx, fileID)
		if err != nil {
			return restored, err
		}
		if existing != nil {
			continue
		}

		meta, err := transcribe.ParseDescriptor(filepath.Join(s.cfg.TranscriptDir, name))
		if err != nil {
			logger.Warn("跳过无法解析的描述文件",
				logger.String("file", name),
				logger.ErrorField(err))
			continue
		}

		record := &model.Transcript{
			FileID:         fileID,
			FileName:       filepath.Base(meta.VideoFile),
			FullTranscript: transcribe.ReadFullTranscript(meta),
			Metadata:       *meta,
			Segments:       transcribe.BuildSegments(meta),
			Processed:      true,
		}
		if err := s.transcriptRepo.Upsert(ctx, record); err != nil {
			return restored, err
		}
		restored++
		logger.Info("从磁盘回填转录记录", logger.String("fileId", fileID))
	}
	return restored, nil
}

// DeleteResult 组合删除的结果。删除跨数据库与文件系统，不具原子性；
// 任何一侧的失败都不回滚另一侧，只如实上报。
type DeleteResult struct {
	FileID         string   `json:"fileId"`
	RecordDeleted  bool     `json:"recordDeleted"`
	MCQsDeleted    int64    `json:"mcqsDeleted"`
	FilesDeleted   []string `json:"filesDeleted"`
	ArchiveDeleted int      `json:"archiveDeleted"`
	Errors         []string `json:"errors,omitempty"`
}

// Delete 删除转录记录及 fileId 前缀的全部磁盘产物、归档对象和缓存键。
// 某一侧无匹配内容时是安全空操作，重复删除不报错。
func (s *Store) Delete(ctx context.Context, fileID string) *DeleteResult {
	result := &DeleteResult{FileID: fileID}

	rows, err := s.transcriptRepo.Delete(ctx, fileID)
	if err != nil {
		result.Errors = append(result.Errors, "database: "+err.Error())
	}
	result.RecordDeleted = rows > 0

	if count, err := s.mcqRepo.DeleteByFileID(ctx, fileID); err != nil {
		result.Errors = append(result.Errors, "mcqs: "+err.Error())
	} else {
		result.MCQsDeleted = count
	}

	result.FilesDeleted = s.removePrefixed(s.cfg.TranscriptDir, fileID, result)
	result.FilesDeleted = append(result.FilesDeleted, s.removePrefixed(s.cfg.UploadDir, fileID, result)...)

	if removed, err := storage.RemoveByPrefix(ctx, s.cfg, fileID); err != nil {
		result.Errors = append(result.Errors, "archive: "+err.Error())
	} else {
		result.ArchiveDeleted = removed
	}

	if err := db.DeleteJobKeys(ctx, fileID); err != nil {
		result.Errors = append(result.Errors, "redis: "+err.Error())
	}
	if err := cache.DeleteSegmentPattern(fileID); err != nil {
		result.Errors = append(result.Errors, "cache: "+err.Error())
	}

	logger.Info("转录删除完成",
		logger.String("fileId", fileID),
		logger.Bool("recordDeleted", result.RecordDeleted),
		logger.Int("filesDeleted", len(result.FilesDeleted)),
		logger.Int("errors", len(result.Errors)))
	return result
}

// removePrefixed 删除目录下以 fileId 为前缀的文件，返回删除的文件名
func (s *Store) removePrefixed(dir, fileID string, result *DeleteResult) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, dir+": "+err.Error())
		}
		return nil
	}

	var deleted []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, fileID) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			result.Errors = append(result.Errors, name+": "+err.Error())
			continue
		}
		deleted = append(deleted, name)
	}
	return deleted
}

// FullTranscript 返回完整转录文本，数据库为空时回退读磁盘约定文件
func (s *Store) FullTranscript(ctx context.Context, fileID string) (string, error) {
	record, err := s.transcriptRepo.GetByFileID(ctx, fileID)
	if err != nil {
		return "", err
	}
	if record != nil && record.FullTranscript != "" {
		return record.FullTranscript, nil
	}

	data, err := os.ReadFile(transcribe.FullTranscriptPath(s.cfg.TranscriptDir, fileID))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
