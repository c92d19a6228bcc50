package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"visitrack/internal/models"
	"visitrack/internal/repositories/interfaces"
	"visitrack/internal/utils"
	"visitrack/pkg/broker"
	"visitrack/pkg/logger"
	"visitrack/pkg/metrics"
	"visitrack/pkg/olap"
)

const retrySweepLimit = 1000

// RequestMeta is the request context used to enrich ingested events.
type RequestMeta struct {
	ClientIP string
	Headers  utils.FingerprintHeaders
	Hints    models.LocaleHints
}

// BatchItem is one element of a batch request. Rejection carries field
// errors found before the event reached the service.
type BatchItem struct {
	Event     *models.Event
	Rejection map[string]string
}

type IngestionOptions struct {
	EventIDPrefix     string
	BatchMax          int
	FlushSize         int
	FlushTimeout      time.Duration
	BackgroundTimeout time.Duration
}

type IngestionService interface {
	IngestEvent(ctx context.Context, event *models.Event, meta RequestMeta, batchMode bool) (*models.Event, error)
	IngestBatch(ctx context.Context, items []BatchItem, meta RequestMeta) (*models.BatchResult, error)
	IngestStream(ctx context.Context, event *models.Event, meta RequestMeta) (*models.Event, error)
	RetryFailedStreamEvents(ctx context.Context) (*models.RetryResult, error)

	Start(ctx context.Context)
	Stop(ctx context.Context) error
}

type ingestionService struct {
	eventRepo       interfaces.EventRepository
	sessionRepo     interfaces.SessionRepository
	pageMetricsRepo interfaces.PageMetricsRepository
	geo             GeolocationService
	queue           *EventQueue
	sink            olap.EventSink
	publisher       broker.Publisher
	options         IngestionOptions
	logger          *logger.Logger

	background sync.WaitGroup
	now        func() time.Time
}

func NewIngestionService(
	eventRepo interfaces.EventRepository,
	sessionRepo interfaces.SessionRepository,
	pageMetricsRepo interfaces.PageMetricsRepository,
	geo GeolocationService,
	backend QueueBackend,
	sink olap.EventSink,
	publisher broker.Publisher,
	options IngestionOptions,
	logger *logger.Logger,
) IngestionService {
	if options.BatchMax <= 0 {
		options.BatchMax = utils.MaxBatchEvents
	}
	if options.BackgroundTimeout <= 0 {
		options.BackgroundTimeout = 30 * time.Second
	}
	options.EventIDPrefix = utils.CoalesceString(options.EventIDPrefix, "evt")
	if sink == nil {
		sink = olap.NopSink{}
	}
	if publisher == nil {
		publisher = broker.NopPublisher{}
	}

	s := &ingestionService{
		eventRepo:       eventRepo,
		sessionRepo:     sessionRepo,
		pageMetricsRepo: pageMetricsRepo,
		geo:             geo,
		sink:            sink,
		publisher:       publisher,
		options:         options,
		logger:          logger,
		now:             time.Now,
	}
	s.queue = NewEventQueue(backend, s.flushQueued, options.FlushSize, options.FlushTimeout, logger)
	return s
}

func (s *ingestionService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the queue and waits for background work to finish.
func (s *ingestionService) Stop(ctx context.Context) error {
	err := s.queue.Stop(ctx)

	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
	return err
}

func (s *ingestionService) IngestEvent(ctx context.Context, event *models.Event, meta RequestMeta, batchMode bool) (*models.Event, error) {
	if details := checkRequiredEventFields(event); len(details) > 0 {
		return nil, utils.NewValidationError("invalid event", details)
	}

	if batchMode {
		s.enrich(ctx, event, meta, nil, models.IngestSourceBatch)
		event.ProcessingStatus = models.ProcessingStatusPending
		if err := s.queue.Enqueue(ctx, event); err != nil {
			return nil, err
		}
		metrics.EventsIngested.WithLabelValues(string(models.IngestSourceBatch), "queued").Inc()
		return event, nil
	}

	session, err := s.sessionRepo.GetBySessionID(ctx, event.SessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != event.UserID {
		return nil, utils.NewValidationError("session does not belong to user", map[string]string{
			"session_id": "session belongs to a different user",
		})
	}

	s.enrich(ctx, event, meta, nil, models.IngestSourceSingle)
	if err := s.eventRepo.Insert(ctx, event); err != nil {
		metrics.EventsIngested.WithLabelValues(string(models.IngestSourceSingle), "failed").Inc()
		return nil, err
	}
	metrics.EventsIngested.WithLabelValues(string(models.IngestSourceSingle), "accepted").Inc()

	if err := s.applySideEffects(ctx, []*models.Event{event}); err != nil {
		metrics.BackgroundErrors.WithLabelValues("event_side_effects").Inc()
		s.logger.WithError(err).WithField("event_id", event.EventID).Warn("Event side effects failed")
	}
	return event, nil
}

func (s *ingestionService) IngestBatch(ctx context.Context, items []BatchItem, meta RequestMeta) (*models.BatchResult, error) {
	if len(items) == 0 {
		return nil, utils.NewValidationError("events must not be empty", map[string]string{"events": "at least one event is required"})
	}
	if len(items) > s.options.BatchMax {
		return nil, utils.NewValidationError(
			fmt.Sprintf("batch exceeds %d events", s.options.BatchMax),
			map[string]string{"events": fmt.Sprintf("at most %d events per batch", s.options.BatchMax)},
		)
	}

	start := s.now()
	result := &models.BatchResult{Received: len(items), EventIDs: []string{}}

	var (
		valid    []*models.Event
		indexes  []int
		resolved *models.Location
	)
	for i, item := range items {
		if len(item.Rejection) > 0 {
			result.Errors = append(result.Errors, models.BatchItemError{Index: i, Error: joinDetails(item.Rejection)})
			continue
		}
		if details := checkRequiredEventFields(item.Event); len(details) > 0 {
			itemErr := models.BatchItemError{Index: i, Error: joinDetails(details)}
			if item.Event != nil {
				itemErr.EventID = item.Event.EventID
			}
			result.Errors = append(result.Errors, itemErr)
			continue
		}

		// One lookup serves every event of the request without its own location.
		if resolved == nil && item.Event.Location == nil {
			loc := s.geo.ParseLocation(ctx, nil, meta.ClientIP, meta.Hints)
			resolved = &loc
		}
		s.enrich(ctx, item.Event, meta, resolved, models.IngestSourceBatch)
		valid = append(valid, item.Event)
		indexes = append(indexes, i)
	}

	var inserted []*models.Event
	if len(valid) > 0 {
		failures, err := s.eventRepo.InsertMany(ctx, valid)
		if err != nil {
			return nil, err
		}

		failed := make(map[int]bool, len(failures))
		for _, f := range failures {
			failed[f.Index] = true
			result.Errors = append(result.Errors, models.BatchItemError{
				Index:   indexes[f.Index],
				EventID: valid[f.Index].EventID,
				Error:   f.Err.Error(),
			})
		}
		for i, e := range valid {
			if !failed[i] {
				inserted = append(inserted, e)
				result.EventIDs = append(result.EventIDs, e.EventID)
			}
		}
	}

	result.Inserted = len(inserted)
	result.Failed = result.Received - result.Inserted
	metrics.EventsIngested.WithLabelValues(string(models.IngestSourceBatch), "accepted").Add(float64(result.Inserted))
	metrics.EventsIngested.WithLabelValues(string(models.IngestSourceBatch), "failed").Add(float64(result.Failed))
	s.logger.LogIngestBatch(string(models.IngestSourceBatch), result.Inserted, result.Failed, s.now().Sub(start))

	if len(inserted) > 0 {
		s.goBackground(ctx, "batch_side_effects", func(bctx context.Context) error {
			return s.applySideEffects(bctx, inserted)
		})
	}
	return result, nil
}

func (s *ingestionService) IngestStream(ctx context.Context, event *models.Event, meta RequestMeta) (*models.Event, error) {
	if details := checkRequiredEventFields(event); len(details) > 0 {
		return nil, utils.NewValidationError("invalid event", details)
	}

	s.enrich(ctx, event, meta, nil, models.IngestSourceStream)
	event.ProcessingStatus = models.ProcessingStatusPending
	if err := s.eventRepo.Insert(ctx, event); err != nil {
		metrics.EventsIngested.WithLabelValues(string(models.IngestSourceStream), "failed").Inc()
		return nil, err
	}
	metrics.EventsIngested.WithLabelValues(string(models.IngestSourceStream), "accepted").Inc()

	queued := *event
	s.goBackground(ctx, "stream_processing", func(bctx context.Context) error {
		return s.processStream(bctx, &queued)
	})
	return event, nil
}

// processStream drives one stream event through processing to completed or
// failed. The returned error is the processing failure, already recorded.
func (s *ingestionService) processStream(ctx context.Context, event *models.Event) error {
	if err := s.eventRepo.UpdateProcessingStatus(ctx, event.EventID, models.ProcessingStatusProcessing, ""); err != nil {
		return err
	}

	procErr := s.applySideEffects(ctx, []*models.Event{event})
	if procErr == nil {
		procErr = s.publishEvent(ctx, event)
	}

	if procErr != nil {
		if err := s.eventRepo.UpdateProcessingStatus(ctx, event.EventID, models.ProcessingStatusFailed, procErr.Error()); err != nil {
			s.logger.WithError(err).WithField("event_id", event.EventID).Error("Failed to record stream failure")
		}
		return procErr
	}
	return s.eventRepo.UpdateProcessingStatus(ctx, event.EventID, models.ProcessingStatusCompleted, "")
}

func (s *ingestionService) publishEvent(ctx context.Context, event *models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event for broker: %w", err)
	}
	if err := s.publisher.Publish(ctx, event.SessionID, payload); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (s *ingestionService) RetryFailedStreamEvents(ctx context.Context) (*models.RetryResult, error) {
	failed, err := s.eventRepo.ListFailed(ctx, models.IngestSourceStream, retrySweepLimit)
	if err != nil {
		return nil, err
	}

	result := &models.RetryResult{Attempted: len(failed)}
	for _, event := range failed {
		if err := s.eventRepo.IncrementRetry(ctx, event.EventID); err != nil {
			s.logger.WithError(err).WithField("event_id", event.EventID).Warn("Failed to increment retry count")
		}

		if err := s.processStream(ctx, event); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, models.BatchItemError{EventID: event.EventID, Error: err.Error()})
			continue
		}
		result.Succeeded++
	}

	s.logger.WithFields(map[string]interface{}{
		"attempted": result.Attempted,
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
	}).Info("Stream retry sweep completed")
	return result, nil
}

// flushQueued writes one queue batch: bulk insert, OLAP mirror, then
// enrichment in the background.
func (s *ingestionService) flushQueued(ctx context.Context, events []*models.Event) error {
	for _, e := range events {
		e.ProcessingStatus = models.ProcessingStatusCompleted
	}
	failures, err := s.eventRepo.InsertMany(ctx, events)
	if err != nil {
		for _, e := range events {
			e.ProcessingStatus = models.ProcessingStatusPending
		}
		return err
	}

	failed := make(map[int]bool, len(failures))
	for _, f := range failures {
		failed[f.Index] = true
		events[f.Index].ProcessingStatus = models.ProcessingStatusFailed
		s.logger.WithError(f.Err).WithField("event_id", events[f.Index].EventID).Warn("Queued event rejected")
	}

	inserted := make([]*models.Event, 0, len(events)-len(failed))
	for i, e := range events {
		if !failed[i] {
			inserted = append(inserted, e)
		}
	}
	metrics.EventsIngested.WithLabelValues("queue", "accepted").Add(float64(len(inserted)))
	metrics.EventsIngested.WithLabelValues("queue", "failed").Add(float64(len(failed)))

	if len(inserted) == 0 {
		return nil
	}

	rows := make([]olap.EventRow, len(inserted))
	for i, e := range inserted {
		rows[i] = toEventRow(e)
	}
	if err := s.sink.WriteEvents(ctx, rows); err != nil {
		metrics.BackgroundErrors.WithLabelValues("olap_mirror").Inc()
		s.logger.WithError(err).WithField("events", len(rows)).Warn("Failed to mirror events to OLAP store")
	}

	s.goBackground(ctx, "queue_enrichment", func(bctx context.Context) error {
		return s.applySideEffects(bctx, inserted)
	})
	return nil
}

// applySideEffects touches the owning sessions and records page metrics.
func (s *ingestionService) applySideEffects(ctx context.Context, events []*models.Event) error {
	var errs []error

	sessionIDs := make([]string, 0, len(events))
	for _, e := range events {
		sessionIDs = append(sessionIDs, e.SessionID)
	}
	if err := s.sessionRepo.Touch(ctx, utils.UniqueStrings(sessionIDs), s.now()); err != nil {
		errs = append(errs, err)
	}

	for _, e := range events {
		url := e.PageURL()
		switch e.EventType {
		case utils.EventPageView:
			if err := s.pageMetricsRepo.RecordView(ctx, url, e.Timestamp); err != nil {
				errs = append(errs, err)
			}
		case utils.EventPageLeave:
			if seconds, ok := utils.NormalizePageDuration(e.Duration); ok {
				if err := s.pageMetricsRepo.RecordDuration(ctx, url, seconds); err != nil {
					errs = append(errs, err)
				}
			}
		}
	}
	return errors.Join(errs...)
}

func (s *ingestionService) goBackground(ctx context.Context, task string, fn func(context.Context) error) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()

		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.options.BackgroundTimeout)
		defer cancel()

		if err := fn(bctx); err != nil {
			metrics.BackgroundErrors.WithLabelValues(task).Inc()
			s.logger.WithContext(bctx).WithError(err).WithField("task", task).Warn("Background ingestion task failed")
		}
	}()
}

func (s *ingestionService) enrich(ctx context.Context, event *models.Event, meta RequestMeta, resolved *models.Location, source models.IngestSource) {
	now := s.now()

	event.UserID = strings.TrimSpace(event.UserID)
	event.SessionID = strings.TrimSpace(event.SessionID)
	if event.EventID == "" {
		event.EventID = utils.GenerateEventID(s.options.EventIDPrefix, now)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = now
	}
	event.CreatedAt = now
	event.Source = source
	if event.Fingerprint == "" {
		event.Fingerprint = utils.DeviceFingerprint(meta.Headers)
	}

	switch {
	case event.Location != nil:
		loc := s.geo.ParseLocation(ctx, event.Location, meta.ClientIP, meta.Hints)
		event.Location = &loc
	case resolved != nil:
		loc := *resolved
		event.Location = &loc
	default:
		loc := s.geo.ParseLocation(ctx, nil, meta.ClientIP, meta.Hints)
		event.Location = &loc
	}
}

func checkRequiredEventFields(event *models.Event) map[string]string {
	if event == nil {
		return map[string]string{"event": "event is required"}
	}

	details := make(map[string]string)
	if strings.TrimSpace(event.UserID) == "" {
		details["user_id"] = "user_id is required"
	}
	if strings.TrimSpace(event.SessionID) == "" {
		details["session_id"] = "session_id is required"
	}
	if strings.TrimSpace(event.EventType) == "" {
		details["event_type"] = "event_type is required"
	}
	if strings.TrimSpace(event.EventName) == "" {
		details["event_name"] = "event_name is required"
	}
	return details
}

func joinDetails(details map[string]string) string {
	fields := make([]string, 0, len(details))
	for field := range details {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, details[field])
	}
	return strings.Join(parts, "; ")
}

func toEventRow(e *models.Event) olap.EventRow {
	row := olap.EventRow{
		EventID:   e.EventID,
		EventType: e.EventType,
		EventName: e.EventName,
		UserID:    e.UserID,
		SessionID: e.SessionID,
		WebsiteID: e.WebsiteID,
		Timestamp: e.Timestamp,
		PageURL:   e.PageURL(),
		Source:    string(e.Source),
	}
	if e.Duration > 0 {
		row.DurationMs = uint64(e.Duration * 1000)
	}
	if e.Location != nil {
		row.Country = e.Location.Country
		row.City = e.Location.City
	}
	if len(e.Metadata) > 0 {
		if data, err := json.Marshal(e.Metadata); err == nil {
			row.Metadata = string(data)
		}
	}
	return row
}
