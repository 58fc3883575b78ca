package cache

import (
	"context"
	"fmt"
	"time"

	"EchoQuiz/db"
	"EchoQuiz/logger"

	"github.com/go-redis/redis/v8"
)

// 分段文本缓存：出题前的文本解析要走数据库加文件系统回退，
// 同一分段反复出题时直接命中缓存。
const segmentTTL = 30 * time.Minute

func segmentKey(fileID, segmentID string) string {
	return fmt.Sprintf("segment:text:%s:%s", fileID, segmentID)
}

// SetSegmentText 设置分段文本缓存
func SetSegmentText(fileID, segmentID, text string) error {
	if db.RedisClient == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := db.RedisClient.Set(ctx, segmentKey(fileID, segmentID), text, segmentTTL).Err()
	if err != nil {
		logger.Warn("设置分段文本缓存失败",
			logger.String("fileId", fileID),
			logger.String("segmentId", segmentID),
			logger.ErrorField(err))
		return err
	}
	return nil
}

// GetSegmentText 获取分段文本缓存，未命中返回 ("", nil)
func GetSegmentText(fileID, segmentID string) (string, error) {
	if db.RedisClient == nil {
		return "", nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	text, err := db.RedisClient.Get(ctx, segmentKey(fileID, segmentID)).Result()
	if err != nil {
		// 键不存在按未命中处理，其他错误也不阻塞调用方，继续走回退查找
		if err != redis.Nil {
			logger.Warn("获取分段文本缓存失败",
				logger.String("fileId", fileID),
				logger.String("segmentId", segmentID),
				logger.ErrorField(err))
		}
		return "", nil
	}
	return text, nil
}

// DeleteSegmentPattern 批量删除某个 fileId 的分段文本缓存
func DeleteSegmentPattern(fileID string) error {
	if db.RedisClient == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pattern := fmt.Sprintf("segment:text:%s:*", fileID)
	keys, err := db.RedisClient.Keys(ctx, pattern).Result()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return db.RedisClient.Del(ctx, keys...).Err()
}
