package repository

import (
	"context"

	"EchoQuiz/model"

	"gorm.io/gorm"
)

// MCQRepository 选择题数据访问接口
type MCQRepository interface {
	Create(ctx context.Context, mcq *model.MCQ) error
	GetBySegment(ctx context.Context, fileID, segmentID string) ([]*model.MCQ, error)
	GetByID(ctx context.Context, id int64) (*model.MCQ, error)
	Update(ctx context.Context, mcq *model.MCQ) error
	DeleteByID(ctx context.Context, id int64) error
	DeleteByFileID(ctx context.Context, fileID string) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// gormMCQRepository GORM 实现
type gormMCQRepository struct {
	db *gorm.DB
}

// NewGormMCQRepository 创建 GORM 选择题仓库
func NewGormMCQRepository(db *gorm.DB) MCQRepository {
	return &gormMCQRepository{db: db}
}

// Create 保存一道题
func (r *gormMCQRepository) Create(ctx context.Context, mcq *model.MCQ) error {
	return r.db.WithContext(ctx).Create(mcq).Error
}

// GetBySegment 查询 (fileId, segmentId) 下已有的全部题目
func (r *gormMCQRepository) GetBySegment(ctx context.Context, fileID, segmentID string) ([]*model.MCQ, error) {
	var mcqs []*model.MCQ
	err := r.db.WithContext(ctx).
		Where("file_id = ? AND segment_id = ?", fileID, segmentID).
		Order("id ASC").
		Find(&mcqs).Error
	if err != nil {
		return nil, err
	}
	return mcqs, nil
}

// GetByID 按主键查询，未找到返回 (nil, nil)
func (r *gormMCQRepository) GetByID(ctx context.Context, id int64) (*model.MCQ, error) {
	var mcq model.MCQ
	err := r.db.WithContext(ctx).First(&mcq, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &mcq, nil
}

// Update 整体更新一道题
func (r *gormMCQRepository) Update(ctx context.Context, mcq *model.MCQ) error {
	return r.db.WithContext(ctx).Save(mcq).Error
}

// DeleteByID 按主键删除
func (r *gormMCQRepository) DeleteByID(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&model.MCQ{}, id).Error
}

// DeleteByFileID 删除某个文件的全部题目，随转录记录一起清理
func (r *gormMCQRepository) DeleteByFileID(ctx context.Context, fileID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("file_id = ?", fileID).Delete(&model.MCQ{})
	return res.RowsAffected, res.Error
}

// Count 返回题目总数
func (r *gormMCQRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.MCQ{}).Count(&count).Error
	return count, err
}
