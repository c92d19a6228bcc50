package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"

	"visitrack/internal/models"
	"visitrack/internal/repositories/interfaces"
	"visitrack/internal/utils"
	"visitrack/pkg/logger"
	"visitrack/pkg/storage"
)

const (
	defaultExportLimit = 10000
	maxExportLimit     = 100000
)

type ExportService interface {
	ExportEvents(ctx context.Context, callerID string, filter *interfaces.EventFilter, limit int) (*models.ExportResult, error)
}

type exportService struct {
	eventRepo interfaces.EventRepository
	storage   storage.StorageProvider
	prefix    string
	urlExpiry time.Duration
	audit     *logger.AuditLogger
	now       func() time.Time
}

func NewExportService(eventRepo interfaces.EventRepository, provider storage.StorageProvider, prefix string, urlExpiry time.Duration, log *logger.Logger) ExportService {
	return &exportService{
		eventRepo: eventRepo,
		storage:   provider,
		prefix:    prefix,
		urlExpiry: urlExpiry,
		audit:     logger.NewAuditLoggerFrom(log),
		now:       time.Now,
	}
}

// ExportEvents writes matching events as NDJSON to the storage provider.
func (s *exportService) ExportEvents(ctx context.Context, callerID string, filter *interfaces.EventFilter, limit int) (*models.ExportResult, error) {
	if filter != nil && filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, utils.NewValidationError("invalid date range", map[string]string{"to": "must not be before from"})
	}
	if limit <= 0 {
		limit = defaultExportLimit
	}
	if limit > maxExportLimit {
		limit = maxExportLimit
	}

	events, err := s.eventRepo.ListForExport(ctx, filter, limit)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return nil, fmt.Errorf("failed to encode event %s: %w", e.EventID, err)
		}
	}

	now := s.now().UTC()
	key := path.Join(s.prefix, "events", fmt.Sprintf("%s-%s.ndjson", now.Format("20060102T150405Z"), uuid.NewString()[:8]))

	if _, err := s.storage.Upload(ctx, &storage.UploadRequest{
		Key:         key,
		Reader:      bytes.NewReader(buf.Bytes()),
		ContentType: "application/x-ndjson",
		Size:        int64(buf.Len()),
		Metadata: map[string]string{
			"events":      fmt.Sprintf("%d", len(events)),
			"exported_by": callerID,
		},
	}); err != nil {
		return nil, utils.NewPersistenceError("failed to upload export", err)
	}

	url, err := s.storage.GetURL(ctx, key, s.urlExpiry)
	if err != nil {
		return nil, utils.NewPersistenceError("failed to sign export url", err)
	}

	s.audit.LogAdminAction("export_events", "events", callerID, map[string]interface{}{
		"key":    key,
		"events": len(events),
	})

	return &models.ExportResult{
		Key:         key,
		URL:         url,
		Events:      len(events),
		GeneratedAt: now,
	}, nil
}
