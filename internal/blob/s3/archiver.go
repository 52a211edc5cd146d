package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

const (
	csvContentType   = "text/csv"
	jsonlContentType = "application/x-ndjson"

	// reportStamp matches the local report file naming.
	reportStamp = "2006-01-02_15-04"

	defaultMultipartThreshold int64 = 8 * 1024 * 1024
)

// Archiver uploads rendered reports and raw fill snapshots, recording each
// upload in the audit log.
type Archiver struct {
	writer             domain.BlobWriter
	audit              domain.AuditStore
	multipartThreshold int64
}

// NewArchiver creates an Archiver. audit may be nil.
func NewArchiver(writer domain.BlobWriter, audit domain.AuditStore) *Archiver {
	return &Archiver{
		writer:             writer,
		audit:              audit,
		multipartThreshold: defaultMultipartThreshold,
	}
}

// Store uploads a CSV report to reports/<name>/<YYYY-MM-DD_HH-MM>.csv and
// returns the object key. Large reports go through multipart upload.
func (a *Archiver) Store(ctx context.Context, name string, at time.Time, data []byte) (string, error) {
	key := reportPath(name, at)

	var err error
	if int64(len(data)) > a.multipartThreshold {
		err = a.writer.PutMultipart(ctx, key, bytes.NewReader(data), minPartSize)
	} else {
		err = a.writer.Put(ctx, key, bytes.NewReader(data), csvContentType)
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: store report %s: %w", name, err)
	}

	a.logAudit(ctx, "archive.report", map[string]any{
		"path":  key,
		"bytes": len(data),
	})
	return key, nil
}

// ArchiveFills uploads a collected fill snapshot as JSONL under
// archive/fills/<YYYY-MM-DD>/<HHMMSS>.jsonl.
func (a *Archiver) ArchiveFills(ctx context.Context, at time.Time, fills []domain.Fill) (string, error) {
	if len(fills) == 0 {
		return "", nil
	}

	buf, err := marshalJSONL(fills)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive fills marshal: %w", err)
	}

	key := fillArchivePath(at)
	if err := a.writer.Put(ctx, key, bytes.NewReader(buf), jsonlContentType); err != nil {
		return "", fmt.Errorf("s3blob: archive fills upload: %w", err)
	}

	a.logAudit(ctx, "archive.fills", map[string]any{
		"path":  key,
		"count": len(fills),
	})
	return key, nil
}

func (a *Archiver) logAudit(ctx context.Context, event string, detail map[string]any) {
	if a.audit == nil {
		return
	}
	// An upload that succeeded is not undone by a failed audit write.
	_ = a.audit.Log(ctx, event, detail)
}

func reportPath(name string, at time.Time) string {
	return fmt.Sprintf("reports/%s/%s.csv", name, at.UTC().Format(reportStamp))
}

func fillArchivePath(at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("archive/fills/%s/%s.jsonl", at.Format("2006-01-02"), at.Format("150405"))
}

// marshalJSONL encodes records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
