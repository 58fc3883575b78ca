package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// TranscriptSegment 转录分段：固定时长切片及其文本
type TranscriptSegment struct {
	SegmentID string  `json:"segmentId"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Text      string  `json:"text"`
	FilePath  string  `json:"filePath"`
}

// SegmentList 以JSON列形式存储的分段序列
type SegmentList []TranscriptSegment

// Value implements driver.Valuer for gorm JSON columns.
func (s SegmentList) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner for gorm JSON columns.
func (s *SegmentList) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("unsupported type for SegmentList: %T", value)
	}
}

// Metadata 转录引擎产出的原始描述信息
type Metadata struct {
	VideoFile      string   `json:"video_file"`
	ModelSize      string   `json:"model_size"`
	Chunks         []string `json:"chunks"`
	ChunkFiles     []string `json:"chunk_files"`
	FullTranscript string   `json:"full_transcript"`
}

// Value implements driver.Valuer for gorm JSON columns.
func (m Metadata) Value() (driver.Value, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner for gorm JSON columns.
func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("unsupported type for Metadata: %T", value)
	}
}

// Transcript 一次成功转录的持久化结果，fileId 唯一。
// processed=true 之后即为该文件的权威记录。
type Transcript struct {
	ID               int64       `json:"id" gorm:"primaryKey;autoIncrement"`
	FileID           string      `json:"fileId" gorm:"uniqueIndex;size:255;not null"`
	FileName         string      `json:"fileName" gorm:"size:255"`
	OriginalFileName string      `json:"originalFileName" gorm:"size:255"`
	FullTranscript   string      `json:"fullTranscript" gorm:"type:longtext"`
	Metadata         Metadata    `json:"metadata" gorm:"type:json"`
	Segments         SegmentList `json:"segments" gorm:"type:json"`
	Processed        bool        `json:"processed" gorm:"default:false"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

// TableName 指定表名
func (Transcript) TableName() string {
	return "transcripts"
}
