package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"portal_usap_backend/internal/adapters/storage"
)

// ObjectStore is the object storage capability the archive needs.
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, key, contentType string, reader io.Reader, size int64) error
	GenerateDownloadURL(ctx context.Context, bucket, key string) (*storage.PresignedURL, error)
}

// ReportArchive writes each run's full JSON report to object storage.
type ReportArchive struct {
	store  ObjectStore
	bucket string
}

// NewReportArchive creates an archive writing into bucket.
func NewReportArchive(store ObjectStore, bucket string) *ReportArchive {
	return &ReportArchive{store: store, bucket: bucket}
}

// ReportKey is the object key for a run: sync-runs/YYYY/MM/DD/<runId>.json.
func ReportKey(result RunResult) string {
	return fmt.Sprintf("sync-runs/%s/%s.json", result.StartedAt.UTC().Format("2006/01/02"), result.RunID)
}

// Archive uploads the report.
func (a *ReportArchive) Archive(ctx context.Context, result RunResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run report: %w", err)
	}
	return a.store.PutObject(ctx, a.bucket, ReportKey(result), "application/json", bytes.NewReader(data), int64(len(data)))
}

// ReportURL returns a short-lived download link for a run's report.
func (a *ReportArchive) ReportURL(ctx context.Context, result RunResult) (*storage.PresignedURL, error) {
	return a.store.GenerateDownloadURL(ctx, a.bucket, ReportKey(result))
}
