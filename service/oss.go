package service

import (
	"context"
	"fmt"
	"log"

	"DiaryToWebtoon-server/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var MinioClient *minio.Client

// InitMinIO 初始化连接，在 main.go 中调用
func InitMinIO() {
	cfg := config.AppConfig.MinIO
	var err error
	MinioClient, err = minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatalf("MinIO 初始化失败: %v", err)
	}
	log.Println("MinIO 连接成功")
}

// UploadWebpFile 上传本地 webp 文件到指定对象名，返回可直接访问的 URL
func UploadWebpFile(localPath, objectName string) (string, error) {
	ctx := context.Background()
	cfg := config.AppConfig.MinIO
	bucketName := cfg.Bucket

	// 确保 Bucket 存在
	exists, err := MinioClient.BucketExists(ctx, bucketName)
	if err != nil {
		return "", fmt.Errorf("检查 Bucket 失败: %w", err)
	}
	if !exists {
		if err := MinioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return "", fmt.Errorf("创建 Bucket 失败: %w", err)
		}
		log.Printf("Bucket '%s' 已创建", bucketName)
	}

	_, err = MinioClient.FPutObject(ctx, bucketName, objectName, localPath, minio.PutObjectOptions{
		ContentType: "image/webp",
	})
	if err != nil {
		return "", fmt.Errorf("上传到 MinIO 失败: %w", err)
	}

	log.Printf("文件已上传: %s", objectName)
	return PublicObjectURL(objectName), nil
}

// PublicObjectURL 按配置的域名拼出确定性的对象访问 URL（前端可直接引用，
// 同一个对象键永远得到同一个 URL，不依赖预签名）
func PublicObjectURL(objectName string) string {
	cfg := config.AppConfig.MinIO
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	host := cfg.Domain
	if host == "" {
		host = cfg.Endpoint
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, host, cfg.Bucket, objectName)
}
