package mcq

import "errors"

var (
	// ErrSegmentNotFound 数据库与文件系统回退查找都没有找到分段文本
	ErrSegmentNotFound = errors.New("segment content not found")

	// ErrSegmentEmpty 找到了分段但文本为空
	ErrSegmentEmpty = errors.New("segment content is empty")

	// ErrServiceUnavailable 出题服务健康检查失败，未尝试生成
	ErrServiceUnavailable = errors.New("llm service is not available")

	// ErrGeneration 出题服务调用失败或明确报告失败
	ErrGeneration = errors.New("llm generation failed")

	// ErrNoValidQuestions 生成结果经校验后没有任何合法题目
	ErrNoValidQuestions = errors.New("no valid questions produced")
)
