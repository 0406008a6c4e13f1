package objectstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"

	_ "github.com/lib/pq" // Postgres driver
)

// StoreType selects the object-store backend.
type StoreType string

const (
	StoreTypeMemory   StoreType = "memory"
	StoreTypeGCS      StoreType = "gcs"
	StoreTypeS3       StoreType = "s3"
	StoreTypeRedis    StoreType = "redis"
	StoreTypePostgres StoreType = "postgres"
)

// NewStoreFromEnv creates an object store based on environment variables.
//
// Environment variables:
//   - CASEFLOW_STORAGE_TYPE: "memory" (default), "gcs", "s3", "redis", or "postgres"
//
// For GCS (requires a -tags gcp build):
//   - CASEFLOW_GCS_BUCKET (required)
//   - CASEFLOW_GCS_PREFIX (optional)
//
// For S3:
//   - CASEFLOW_S3_BUCKET (required)
//   - CASEFLOW_S3_REGION or AWS_REGION
//   - CASEFLOW_S3_ENDPOINT (optional, for MinIO/LocalStack)
//   - CASEFLOW_S3_PREFIX (optional)
//
// For Redis:
//   - CASEFLOW_REDIS_ADDR (default "localhost:6379")
//   - CASEFLOW_REDIS_PASSWORD, CASEFLOW_REDIS_DB, CASEFLOW_REDIS_PREFIX (optional)
//
// For Postgres:
//   - DATABASE_URL (required)
func NewStoreFromEnv(ctx context.Context) (Store, error) {
	storeType := StoreType(os.Getenv("CASEFLOW_STORAGE_TYPE"))
	if storeType == "" {
		storeType = StoreTypeMemory
	}

	switch storeType {
	case StoreTypeMemory:
		return NewInMemoryStore(), nil
	case StoreTypeGCS:
		return newGCSStoreFromEnv(ctx)
	case StoreTypeS3:
		return newS3StoreFromEnv(ctx)
	case StoreTypeRedis:
		return newRedisStoreFromEnv()
	case StoreTypePostgres:
		return newPostgresStoreFromEnv()
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storeType)
	}
}

func newS3StoreFromEnv(ctx context.Context) (Store, error) {
	bucket := os.Getenv("CASEFLOW_S3_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("CASEFLOW_S3_BUCKET is required for S3 storage")
	}

	region := os.Getenv("CASEFLOW_S3_REGION")
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}

	return NewS3Store(ctx, S3StoreConfig{
		Bucket:   bucket,
		Region:   region,
		Endpoint: os.Getenv("CASEFLOW_S3_ENDPOINT"),
		Prefix:   os.Getenv("CASEFLOW_S3_PREFIX"),
	})
}

func newRedisStoreFromEnv() (Store, error) {
	addr := os.Getenv("CASEFLOW_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	db := 0
	if raw := os.Getenv("CASEFLOW_REDIS_DB"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid CASEFLOW_REDIS_DB: %w", err)
		}
		db = parsed
	}
	return NewRedisStore(RedisStoreConfig{
		Addr:     addr,
		Password: os.Getenv("CASEFLOW_REDIS_PASSWORD"),
		DB:       db,
		Prefix:   os.Getenv("CASEFLOW_REDIS_PREFIX"),
	}), nil
}

func newPostgresStoreFromEnv() (Store, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for Postgres storage")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	return NewPostgresStore(db)
}
