package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageUpload(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir, "http://files.local/")
	require.NoError(t, err)

	resp, err := store.Upload(context.Background(), &UploadRequest{
		Key:    "exports/events/a.ndjson",
		Reader: strings.NewReader("{\"event_id\":\"e1\"}\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(18), resp.Size)

	data, err := os.ReadFile(filepath.Join(dir, "exports", "events", "a.ndjson"))
	require.NoError(t, err)
	assert.Equal(t, "{\"event_id\":\"e1\"}\n", string(data))

	leftovers, err := filepath.Glob(filepath.Join(dir, "exports", "events", ".export-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)

	url, err := store.GetURL(context.Background(), resp.Key, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "http://files.local/exports/events/a.ndjson", url)
}

func TestLocalStorageKeys(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir, "http://files.local")
	require.NoError(t, err)

	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{name: "Empty", key: ""},
		{name: "Root", key: "/"},
		{name: "Climbing", key: "../../outside.ndjson", expected: filepath.Join(dir, "outside.ndjson")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := store.Upload(context.Background(), &UploadRequest{Key: tt.key, Reader: strings.NewReader("x")})
			if tt.expected == "" {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, resp.Location)
		})
	}
}
