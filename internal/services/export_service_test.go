package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitrack/internal/models"
	"visitrack/internal/repositories/interfaces"
	"visitrack/internal/utils"
	"visitrack/pkg/logger"
	"visitrack/pkg/storage"
)

func TestExportEvents(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	local, err := storage.NewLocalStorage(dir, "http://localhost:8080/exports")
	require.NoError(t, err)

	events := newFakeEventRepo()
	for _, e := range []*models.Event{
		{EventID: "e1", EventType: "click", UserID: "u1"},
		{EventID: "e2", EventType: "page_view", UserID: "u1"},
		{EventID: "e3", EventType: "click", UserID: "u2"},
	} {
		require.NoError(t, events.Insert(ctx, e))
	}

	svc := NewExportService(events, local, "exports", time.Hour, logger.NewNop())
	at := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)
	svc.(*exportService).now = func() time.Time { return at }

	result, err := svc.ExportEvents(ctx, "admin-1", &interfaces.EventFilter{EventType: "click"}, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Events)
	assert.True(t, strings.HasPrefix(result.Key, "exports/events/20240501T083000Z-"))
	assert.True(t, strings.HasSuffix(result.Key, ".ndjson"))
	assert.Equal(t, "http://localhost:8080/exports/"+result.Key, result.URL)

	data, err := os.ReadFile(filepath.Join(dir, result.Key))
	require.NoError(t, err)

	var ids []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		var e models.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		ids = append(ids, e.EventID)
	}
	assert.Equal(t, []string{"e1", "e3"}, ids)
}

type failingStorage struct {
	storage.StorageProvider
}

func (failingStorage) Upload(ctx context.Context, request *storage.UploadRequest) (*storage.UploadResponse, error) {
	return nil, errors.New("bucket unreachable")
}

func TestExportEventsUploadFailure(t *testing.T) {
	svc := NewExportService(newFakeEventRepo(), failingStorage{}, "exports", time.Hour, logger.NewNop())

	_, err := svc.ExportEvents(context.Background(), "admin-1", nil, 10)

	assert.True(t, errors.Is(err, utils.ErrPersistence))
	assert.Contains(t, err.Error(), "bucket unreachable")
}

func TestExportEventsRejectsInvertedRange(t *testing.T) {
	svc := NewExportService(newFakeEventRepo(), failingStorage{}, "exports", time.Hour, logger.NewNop())
	from := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	to := from.Add(-time.Hour)

	_, err := svc.ExportEvents(context.Background(), "admin-1", &interfaces.EventFilter{From: &from, To: &to}, 0)

	assert.True(t, errors.Is(err, utils.ErrValidation))
}
