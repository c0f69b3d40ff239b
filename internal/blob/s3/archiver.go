package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/bondd/internal/domain"
)

// defaultArchiveBatch bounds how many issuances go into one archive object.
const defaultArchiveBatch = 5000

// multipartThreshold switches uploads to the multipart manager.
const multipartThreshold = 16 << 20

// Archiver implements domain.Archiver: settled issuances older than the
// cutoff are written to the blob store as JSONL and then deleted from the
// primary store.
type Archiver struct {
	writer domain.BlobWriter
	store  domain.IssuanceStore
	audit  domain.AuditStore
	batch  int
	now    func() time.Time
	logger *slog.Logger
}

// NewArchiver creates an Archiver. audit may be nil.
func NewArchiver(writer domain.BlobWriter, store domain.IssuanceStore, audit domain.AuditStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		store:  store,
		audit:  audit,
		batch:  defaultArchiveBatch,
		now:    time.Now,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveIssuances moves settled issuances last updated before the cutoff to
// object storage and returns how many were archived. Records are only
// deleted once their batch has been uploaded.
func (a *Archiver) ArchiveIssuances(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for {
		list, err := a.store.ListBefore(ctx, before, a.batch)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive query: %w", err)
		}
		if len(list) == 0 {
			return total, nil
		}

		path := archivePath(a.now())
		if err := a.upload(ctx, path, list); err != nil {
			return total, err
		}

		ids := make([]string, len(list))
		for i, iss := range list {
			ids[i] = iss.ID
		}
		deleted, err := a.store.DeleteByIDs(ctx, ids)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive delete: %w", err)
		}
		total += int64(len(list))

		a.logger.InfoContext(ctx, "issuances archived",
			slog.String("path", path),
			slog.Int("count", len(list)),
			slog.Int64("deleted", deleted),
		)
		if a.audit != nil {
			if err := a.audit.Log(ctx, domain.AuditIssuancesArchived, map[string]any{
				"path":   path,
				"count":  len(list),
				"before": before.UTC().Format(time.RFC3339),
			}); err != nil {
				a.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
			}
		}

		if len(list) < a.batch || deleted == 0 {
			return total, nil
		}
	}
}

func (a *Archiver) upload(ctx context.Context, path string, list []domain.Issuance) error {
	buf, err := marshalJSONL(list)
	if err != nil {
		return fmt.Errorf("s3blob: archive marshal: %w", err)
	}
	if len(buf) >= multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), 0)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return fmt.Errorf("s3blob: archive upload: %w", err)
	}
	return nil
}

// archivePath is issuances/YYYY/MM/DD/<unix nanos>.jsonl for the run time.
func archivePath(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("issuances/%s/%d.jsonl", t.Format("2006/01/02"), t.UnixNano())
}

func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*Archiver)(nil)
