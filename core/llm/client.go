package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// 出题服务是独立进程，推理很慢；生成调用允许最长两分钟，
// 健康检查必须快，服务挂掉时不能让每个请求都去等慢超时。
const (
	healthTimeout   = 5 * time.Second
	generateTimeout = 2 * time.Minute
)

// GenerateRequest /generate 请求体
type GenerateRequest struct {
	Text         string `json:"text"`
	NumQuestions int    `json:"num_questions"`
	SegmentID    string `json:"segment_id"`
	FileID       string `json:"file_id"`
}

// GeneratedMCQ 服务返回的单道题
type GeneratedMCQ struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Correct  int      `json:"correct"`
}

// GenerateResponse /generate 响应体
type GenerateResponse struct {
	Success bool           `json:"success"`
	MCQs    []GeneratedMCQ `json:"mcqs"`
	Message string         `json:"message,omitempty"`
	Model   string         `json:"model,omitempty"`
	GPUUsed bool           `json:"gpu_used"`
}

// healthResponse /health 响应体
type healthResponse struct {
	Status string `json:"status"`
}

// Client 出题服务HTTP客户端
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient 创建出题服务客户端
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
}

// Healthy 探测服务存活。返回 nil 表示服务健康。
func (c *Client) Healthy(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("健康检查请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("健康检查返回 %d", resp.StatusCode)
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("健康检查响应解析失败: %w", err)
	}
	if health.Status != "ok" {
		return fmt.Errorf("服务状态异常: %s", health.Status)
	}
	return nil
}

// Generate 用分段文本调用出题服务
func (c *Client) Generate(ctx context.Context, request *GenerateRequest) (*GenerateResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	body, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("生成请求失败: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取生成响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("生成请求返回 %d: %s", resp.StatusCode, string(data))
	}

	var result GenerateResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("生成响应解析失败: %w", err)
	}
	return &result, nil
}
