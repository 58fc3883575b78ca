package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"EchoQuiz/config"
	"EchoQuiz/model"

	"github.com/go-redis/redis/v8"
)

// RedisClient 是全局Redis客户端
var RedisClient *redis.Client

// jobStatusTTL 任务状态镜像的过期时间。转录最长也就几十分钟，
// 两小时后仍未被读取的状态没有保留价值。
const jobStatusTTL = 2 * time.Hour

// ConnectRedis 初始化Redis连接
func ConnectRedis(cfg *config.Config) error {
	RedisClient = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := RedisClient.Ping(ctx).Result()
	if err != nil {
		// 连不上就把全局客户端清掉，镜像与缓存按未启用处理
		RedisClient.Close()
		RedisClient = nil
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return nil
}

// CloseRedis 关闭Redis连接
func CloseRedis() error {
	if RedisClient != nil {
		return RedisClient.Close()
	}
	return nil
}

func jobStatusKey(fileID string) string {
	return fmt.Sprintf("job:status:%s", fileID)
}

// SetJobSnapshot 将任务快照写入Redis，供 /status 轮询在服务重启后仍可回答。
func SetJobSnapshot(ctx context.Context, fileID string, snap *model.JobSnapshot) error {
	if RedisClient == nil {
		return nil
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return RedisClient.Set(ctx, jobStatusKey(fileID), data, jobStatusTTL).Err()
}

// GetJobSnapshot 读取任务快照，缓存未命中返回 (nil, nil)。
func GetJobSnapshot(ctx context.Context, fileID string) (*model.JobSnapshot, error) {
	if RedisClient == nil {
		return nil, nil
	}
	data, err := RedisClient.Get(ctx, jobStatusKey(fileID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var snap model.JobSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// DeleteJobKeys 删除指定 fileId 的任务相关缓存键
func DeleteJobKeys(ctx context.Context, fileID string) error {
	if RedisClient == nil {
		return nil
	}
	return RedisClient.Del(ctx, jobStatusKey(fileID)).Err()
}
