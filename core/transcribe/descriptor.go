package transcribe

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"EchoQuiz/model"
)

// 磁盘产物命名约定（删除与回退查找都依赖该前缀规则）：
//   <fileId>_metadata.json   描述文件
//   <fileId>_full.txt        完整转录文本
//   <fileId>_<segmentId>.txt 分段文本，segmentId 形如 "00_05"

// FileIDFromStoredName 从服务端存储名推导 fileId（去掉路径与扩展名）
func FileIDFromStoredName(storedName string) string {
	base := filepath.Base(storedName)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// MetadataPath 描述文件的约定路径
func MetadataPath(transcriptDir, fileID string) string {
	return filepath.Join(transcriptDir, fileID+"_metadata.json")
}

// SegmentPath 分段文本文件的约定路径
func SegmentPath(transcriptDir, fileID, segmentID string) string {
	return filepath.Join(transcriptDir, fileID+"_"+segmentID+".txt")
}

// FullTranscriptPath 完整转录文本的约定路径
func FullTranscriptPath(transcriptDir, fileID string) string {
	return filepath.Join(transcriptDir, fileID+"_full.txt")
}

// ParseDescriptor 读取并解析引擎输出的描述文件
func ParseDescriptor(path string) (*model.Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取描述文件失败 %s: %w", path, err)
	}

	var meta model.Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("解析描述文件失败 %s: %w", path, err)
	}

	if len(meta.Chunks) != len(meta.ChunkFiles) {
		return nil, fmt.Errorf("描述文件分段列表不一致: %d chunks, %d files", len(meta.Chunks), len(meta.ChunkFiles))
	}

	return &meta, nil
}

// segmentBounds 从 "MM_MM" 形式的分段标识解析起止秒数
func segmentBounds(segmentID string) (start, end float64) {
	parts := strings.SplitN(segmentID, "_", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	s, err1 := strconv.Atoi(parts[0])
	e, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0
	}
	return float64(s * 60), float64(e * 60)
}

// BuildSegments 根据描述文件读取各分段文本，组装有序分段列表。
// 个别分段文件读不到时保留空文本占位，不中断整体解析。
func BuildSegments(meta *model.Metadata) model.SegmentList {
	segments := make(model.SegmentList, 0, len(meta.Chunks))
	for i, segmentID := range meta.Chunks {
		filePath := meta.ChunkFiles[i]
		text := ""
		if data, err := os.ReadFile(filePath); err == nil {
			text = string(data)
		}
		start, end := segmentBounds(segmentID)
		segments = append(segments, model.TranscriptSegment{
			SegmentID: segmentID,
			Start:     start,
			End:       end,
			Text:      text,
			FilePath:  filePath,
		})
	}
	return segments
}

// ReadFullTranscript 读取完整转录文本，文件缺失时返回空串
func ReadFullTranscript(meta *model.Metadata) string {
	if meta.FullTranscript == "" {
		return ""
	}
	data, err := os.ReadFile(meta.FullTranscript)
	if err != nil {
		return ""
	}
	return string(data)
}
