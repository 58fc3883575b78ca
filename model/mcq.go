package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// OptionList 选项列表，合法记录恒为4项
type OptionList []string

// Value implements driver.Valuer for gorm JSON columns.
func (o OptionList) Value() (driver.Value, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner for gorm JSON columns.
func (o *OptionList) Scan(value interface{}) error {
	if value == nil {
		*o = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, o)
	case string:
		return json.Unmarshal([]byte(v), o)
	default:
		return fmt.Errorf("unsupported type for OptionList: %T", value)
	}
}

// MCQ 一道针对某个转录分段生成的选择题。
// 持久化前必须通过校验：恰好4个选项且正确项下标在[0,3]。
type MCQ struct {
	ID              int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	FileID          string     `json:"fileId" gorm:"index:idx_file_segment;size:255;not null"`
	SegmentID       string     `json:"segmentId" gorm:"index:idx_file_segment;size:64;not null"`
	Question        string     `json:"question" gorm:"type:text;not null"`
	Options         OptionList `json:"options" gorm:"type:json;not null"`
	Correct         int        `json:"correct"`
	IsAutoGenerated bool       `json:"isAutoGenerated" gorm:"default:true"`
	Model           string     `json:"model" gorm:"size:128"`
	GPUUsed         bool       `json:"gpuUsed"`
	GeneratedAt     time.Time  `json:"generatedAt"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// TableName 指定表名
func (MCQ) TableName() string {
	return "mcqs"
}

// Valid 校验题目结构是否满足持久化约束
func (m *MCQ) Valid() bool {
	return m.Question != "" && len(m.Options) == 4 && m.Correct >= 0 && m.Correct <= 3
}
