package event

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/aihub/knowledge-sync/internal/config"
)

// MinIOPayloadStore 从MinIO对象存储解析负载定位符
//
// 定位符格式为对象键，bucket由配置固定。变更事件可以只携带
// 定位符，避免大文件在消息总线上传输。
type MinIOPayloadStore struct {
	client *minio.Client
	bucket string
}

// NewMinIOPayloadStore 创建MinIO负载存储
func NewMinIOPayloadStore(cfg config.ObjectStorageConfig) (*MinIOPayloadStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint not configured")
	}

	endpoint := strings.TrimPrefix(cfg.Endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "regulatory-documents"
	}

	return &MinIOPayloadStore{
		client: client,
		bucket: bucket,
	}, nil
}

// Fetch 按定位符读取文档字节
func (s *MinIOPayloadStore) Fetch(ctx context.Context, locator string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, locator, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payload %s: %w", locator, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload %s: %w", locator, err)
	}
	return data, nil
}
