// Package storage 提供了与对象存储服务（如 MinIO）交互的功能。
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"canon-rag-go/internal/config"
	"canon-rag-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStore 封装了一个存储桶上的对象操作。
type ObjectStore struct {
	client *minio.Client
	bucket string
}

// NewObjectStore 初始化 MinIO 客户端并确保指定的存储桶存在。
func NewObjectStore(ctx context.Context, cfg config.MinIOConfig) (*ObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}
	log.Info("MinIO 客户端初始化成功")

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("检查 MinIO 存储桶失败: %w", err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建 MinIO 存储桶失败: %w", err)
		}
		log.Infof("存储桶 '%s' 创建成功", cfg.BucketName)
	}
	return &ObjectStore{client: client, bucket: cfg.BucketName}, nil
}

// DocumentObjectName 返回文档原始文件在存储桶中的对象名。
func DocumentObjectName(agentID, documentID uint, fileName string) string {
	base := filepath.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "file"
	}
	return path.Join("agents", fmt.Sprint(agentID), "documents", fmt.Sprint(documentID), base)
}

// Put 上传对象，size 未知时传 -1。
func (s *ObjectStore) Put(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, s.bucket, objectName, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("上传对象 %s 失败: %w", objectName, err)
	}
	return nil
}

// Download 把对象写入本地文件 destPath。
func (s *ObjectStore) Download(ctx context.Context, objectName, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	if err := s.client.FGetObject(ctx, s.bucket, objectName, destPath, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("从 MinIO 下载文件失败: %w", err)
	}
	return nil
}

// Remove 删除对象，对象不存在时不报错。
func (s *ObjectStore) Remove(ctx context.Context, objectName string) error {
	if objectName == "" {
		return nil
	}
	err := s.client.RemoveObject(ctx, s.bucket, objectName, minio.RemoveObjectOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return fmt.Errorf("删除对象 %s 失败: %w", objectName, err)
	}
	return nil
}

// PresignedURL 生成临时下载链接。
func (s *ObjectStore) PresignedURL(ctx context.Context, objectName, fileName string, expiry time.Duration) (string, error) {
	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, expiry, params)
	if err != nil {
		log.Errorf("Error generating presigned URL: %s", err)
		return "", err
	}
	return u.String(), nil
}
