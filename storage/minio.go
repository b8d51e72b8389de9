package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"ReplayFM/config"
	"ReplayFM/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	minioClient *minio.Client
	bucketName  string
)

// InitMinio initializes the MinIO client and makes sure the archive bucket
// exists.
func InitMinio(cfg *config.Config) error {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", cfg.MinioBucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", cfg.MinioBucket, err)
		}
		logger.Info("Created MinIO bucket", logger.String("bucket", cfg.MinioBucket))
	}

	minioClient = client
	bucketName = cfg.MinioBucket
	return nil
}

func exportObjectName(sessionID, fileName string) string {
	return fmt.Sprintf("exports/%s/%s", sessionID, fileName)
}

// ArchiveExport stores a fully assembled raw export file. The archive is the
// durable copy of the source data; events can be re-ingested from it.
func ArchiveExport(ctx context.Context, sessionID, fileName string, payload []byte) error {
	if minioClient == nil {
		return fmt.Errorf("MinIO client not initialized")
	}

	_, err := minioClient.PutObject(ctx, bucketName, exportObjectName(sessionID, fileName),
		bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("failed to archive export %s: %w", fileName, err)
	}

	logger.Info("Archived raw export",
		logger.String("sessionId", sessionID),
		logger.String("fileName", fileName),
		logger.Int("bytes", len(payload)))
	return nil
}

// RemoveSessionArchives deletes every archived export of a session. Called
// on session clear.
func RemoveSessionArchives(ctx context.Context, sessionID string) error {
	if minioClient == nil {
		return fmt.Errorf("MinIO client not initialized")
	}

	prefix := fmt.Sprintf("exports/%s/", sessionID)
	objects := minioClient.ListObjects(ctx, bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	for obj := range objects {
		if obj.Err != nil {
			return fmt.Errorf("failed to list archives of session %s: %w", sessionID, obj.Err)
		}
		if err := minioClient.RemoveObject(ctx, bucketName, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("failed to remove archive %s: %w", obj.Key, err)
		}
	}
	return nil
}
