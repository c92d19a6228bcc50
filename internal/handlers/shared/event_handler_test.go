package shared

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitrack/internal/models"
	"visitrack/internal/services"
	"visitrack/internal/utils"
)

// fakeIngestion accepts every event without a rejection.
type fakeIngestion struct {
	services.IngestionService
	items     []services.BatchItem
	single    *models.Event
	batchMode bool
	err       error
}

func (f *fakeIngestion) IngestEvent(ctx context.Context, event *models.Event, meta services.RequestMeta, batchMode bool) (*models.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.single = event
	f.batchMode = batchMode
	return event, nil
}

func (f *fakeIngestion) IngestBatch(ctx context.Context, items []services.BatchItem, meta services.RequestMeta) (*models.BatchResult, error) {
	f.items = items
	result := &models.BatchResult{Received: len(items)}
	for i, item := range items {
		if item.Rejection != nil {
			result.Failed++
			result.Errors = append(result.Errors, models.BatchItemError{Index: i, Error: "rejected"})
			continue
		}
		result.Inserted++
		result.EventIDs = append(result.EventIDs, item.Event.EventID)
	}
	return result, nil
}

func newEventRouter(svc services.IngestionService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewEventHandler(svc)
	r.POST("/events", h.IngestEvent)
	r.POST("/events/batch", h.IngestBatch)
	return r
}

func postJSON(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIngestEventHandler(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		err       error
		expected  int
		batchMode bool
	}{
		{
			name:     "Recorded",
			body:     `{"event_id":"e1","user_id":"u1","session_id":"s1","event_type":"click","event_name":"cta"}`,
			expected: http.StatusCreated,
		},
		{
			name:      "Queued",
			body:      `{"user_id":"u1","session_id":"s1","event_type":"click","event_name":"cta","batch_mode":true}`,
			expected:  http.StatusAccepted,
			batchMode: true,
		},
		{
			name:     "Malformed JSON",
			body:     `{"user_id":`,
			expected: http.StatusBadRequest,
		},
		{
			name:     "Missing session",
			body:     `{"user_id":"u1","event_type":"click","event_name":"cta"}`,
			expected: http.StatusBadRequest,
		},
		{
			name:     "Unknown session",
			body:     `{"user_id":"u1","session_id":"s9","event_type":"click","event_name":"cta"}`,
			err:      utils.NewNotFoundError("session"),
			expected: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeIngestion{err: tt.err}
			w := postJSON(newEventRouter(svc), "/events", tt.body)

			assert.Equal(t, tt.expected, w.Code)
			assert.Equal(t, tt.batchMode, svc.batchMode)
		})
	}
}

func TestIngestBatchHandler(t *testing.T) {
	svc := &fakeIngestion{}
	body := `{"events":[
		{"event_id":"e1","user_id":"u1","session_id":"s1","event_type":"click","event_name":"cta"},
		{"event_id":"e2","user_id":"u1","event_type":"Not Valid","event_name":"cta"},
		{"event_id":"e3","user_id":"u1","session_id":"s1","event_type":"page_view","event_name":"home"}
	]}`

	w := postJSON(newEventRouter(svc), "/events/batch", body)

	require.Equal(t, http.StatusMultiStatus, w.Code)
	require.Len(t, svc.items, 3)
	assert.Nil(t, svc.items[0].Rejection)
	assert.Contains(t, svc.items[1].Rejection, "session_id")
	assert.Contains(t, svc.items[1].Rejection, "event_type")
	assert.Equal(t, models.IngestSourceBatch, svc.items[2].Event.Source)

	var resp struct {
		Status string             `json:"status"`
		Data   models.BatchResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, utils.StatusPartial, resp.Status)
	assert.Equal(t, 2, resp.Data.Inserted)
	assert.Equal(t, []string{"e1", "e3"}, resp.Data.EventIDs)
}

func TestIngestBatchHandlerAllGood(t *testing.T) {
	svc := &fakeIngestion{}
	body := `{"events":[{"user_id":"u1","session_id":"s1","event_type":"click","event_name":"cta"}]}`

	w := postJSON(newEventRouter(svc), "/events/batch", body)
	assert.Equal(t, http.StatusOK, w.Code)

	w = postJSON(newEventRouter(svc), "/events/batch", `{"events":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
