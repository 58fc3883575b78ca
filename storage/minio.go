package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"EchoQuiz/config"
	"EchoQuiz/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var minioClient *minio.Client

// InitMinio 初始化 MinIO 客户端并确保归档桶存在。
// MinIO 仅作为上传文件与转录产物的归档，不可用时服务仍可运行。
func InitMinio(cfg *config.Config) error {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return fmt.Errorf("创建 MinIO 客户端失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return fmt.Errorf("检查存储桶失败: %w", err)
	}
	if !exists {
		err = client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{
			Region: cfg.MinioRegion,
		})
		if err != nil {
			return fmt.Errorf("创建存储桶失败: %w", err)
		}
		logger.Info("成功创建存储桶", logger.String("bucket", cfg.MinioBucket))
	}

	minioClient = client
	return nil
}

// GetMinioClient 返回全局客户端，未初始化时为 nil
func GetMinioClient() *minio.Client {
	return minioClient
}

// ArchiveFile 将本地文件归档到 MinIO 指定前缀下，尽力而为。
func ArchiveFile(ctx context.Context, cfg *config.Config, localPath, prefix, contentType string) error {
	if minioClient == nil {
		return nil
	}

	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	objectName := filepath.ToSlash(filepath.Join(prefix, filepath.Base(localPath)))
	_, err = minioClient.PutObject(ctx, cfg.MinioBucket, objectName, f, info.Size(),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return err
	}

	logger.Debug("文件已归档到 MinIO",
		logger.String("object", objectName),
		logger.Int64("size", info.Size()))
	return nil
}

// RemoveByPrefix 删除归档中指定前缀的全部对象，返回删除数量。
// 对象不存在时为安全空操作。
func RemoveByPrefix(ctx context.Context, cfg *config.Config, prefix string) (int, error) {
	if minioClient == nil {
		return 0, nil
	}

	removed := 0
	objects := minioClient.ListObjects(ctx, cfg.MinioBucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})
	for object := range objects {
		if object.Err != nil {
			return removed, object.Err
		}
		if err := minioClient.RemoveObject(ctx, cfg.MinioBucket, object.Key, minio.RemoveObjectOptions{}); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
