//go:build gcp

package objectstore

import (
	"context"
	"fmt"
	"os"
)

func newGCSStoreFromEnv(ctx context.Context) (Store, error) {
	bucket := os.Getenv("CASEFLOW_GCS_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("CASEFLOW_GCS_BUCKET is required for GCS storage")
	}

	return NewGCSStore(ctx, GCSStoreConfig{
		Bucket: bucket,
		Prefix: os.Getenv("CASEFLOW_GCS_PREFIX"),
	})
}
