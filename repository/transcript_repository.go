package repository

import (
	"context"
	"time"

	"EchoQuiz/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TranscriptRepository 转录结果数据访问接口
type TranscriptRepository interface {
	// Upsert 按 fileId 幂等写入：已存在则原地更新，不产生重复记录
	Upsert(ctx context.Context, transcript *model.Transcript) error
	GetByFileID(ctx context.Context, fileID string) (*model.Transcript, error)
	ListAll(ctx context.Context) ([]*model.Transcript, error)
	Delete(ctx context.Context, fileID string) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// gormTranscriptRepository GORM 实现
type gormTranscriptRepository struct {
	db *gorm.DB
}

// NewGormTranscriptRepository 创建 GORM 转录仓库
func NewGormTranscriptRepository(db *gorm.DB) TranscriptRepository {
	return &gormTranscriptRepository{db: db}
}

// Upsert 按 fileId 写入或更新
func (r *gormTranscriptRepository) Upsert(ctx context.Context, transcript *model.Transcript) error {
	transcript.UpdatedAt = time.Now()
	if transcript.CreatedAt.IsZero() {
		transcript.CreatedAt = transcript.UpdatedAt
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "file_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"file_name", "original_file_name", "full_transcript",
			"metadata", "segments", "processed", "updated_at",
		}),
	}).Create(transcript).Error
}

// GetByFileID 按 fileId 查询，未找到返回 (nil, nil)
func (r *gormTranscriptRepository) GetByFileID(ctx context.Context, fileID string) (*model.Transcript, error) {
	var transcript model.Transcript
	err := r.db.WithContext(ctx).Where("file_id = ?", fileID).First(&transcript).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &transcript, nil
}

// ListAll 按创建时间倒序返回全部转录记录
func (r *gormTranscriptRepository) ListAll(ctx context.Context) ([]*model.Transcript, error) {
	var transcripts []*model.Transcript
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&transcripts).Error
	if err != nil {
		return nil, err
	}
	return transcripts, nil
}

// Delete 删除指定 fileId 的记录，返回删除的行数。无匹配记录时为安全空操作。
func (r *gormTranscriptRepository) Delete(ctx context.Context, fileID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("file_id = ?", fileID).Delete(&model.Transcript{})
	return res.RowsAffected, res.Error
}

// Count 返回转录记录总数
func (r *gormTranscriptRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Transcript{}).Count(&count).Error
	return count, err
}
